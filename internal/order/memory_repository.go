package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"orderline-be/internal/metrics"
)

// memoryRepository keeps orders in process memory. It mirrors the postgres
// repository's contract, including newest-first ordering and the HasMore
// lookahead, and is used for local runs and end-to-end tests.
type memoryRepository struct {
	mu       sync.RWMutex
	byID     map[int64]*Order
	byNumber map[string]int64
	nextID   int64
	nextItem int64

	numbers *NumberGenerator
	metrics *metrics.Collector
	now     func() time.Time
}

func NewMemoryRepository(opts ...RepositoryOption) Repository {
	return newMemoryRepository(time.Now, opts...)
}

func newMemoryRepository(now func() time.Time, opts ...RepositoryOption) *memoryRepository {
	o := buildRepositoryOptions(opts)
	return &memoryRepository{
		byID:     make(map[int64]*Order),
		byNumber: make(map[string]int64),
		numbers:  o.numbers,
		metrics:  o.metrics,
		now:      now,
	}
}

func (r *memoryRepository) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyOrder
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var orderNumber string
	for attempt := 1; ; attempt++ {
		if attempt > maxOrderNumberAttempts {
			return nil, ErrOrderNumberExhausted
		}
		orderNumber = r.numbers.Next()
		if _, taken := r.byNumber[orderNumber]; !taken {
			break
		}
		r.metrics.OrderNumberCollision()
	}

	now := r.now().UTC()
	r.nextID++
	o := &Order{
		ID:              r.nextID,
		OrderNumber:     orderNumber,
		UserID:          clonePtr(input.UserID),
		CustomerName:    input.CustomerName,
		CustomerEmail:   input.CustomerEmail,
		CustomerPhone:   clonePtr(input.CustomerPhone),
		ShippingAddress: input.ShippingAddress,
		TotalAmount:     input.TotalAmount,
		Currency:        input.Currency,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		Notes:           clonePtr(input.Notes),
		Items:           make([]OrderItem, 0, len(input.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, in := range input.Items {
		r.nextItem++
		o.Items = append(o.Items, OrderItem{
			ID:           r.nextItem,
			OrderID:      o.ID,
			ProductID:    in.ProductID,
			ProductName:  in.ProductName,
			ProductPrice: in.ProductPrice,
			Quantity:     in.Quantity,
			Subtotal:     in.Subtotal,
		})
	}

	r.byID[o.ID] = o
	r.byNumber[o.OrderNumber] = o.ID
	return o.clone(), nil
}

func (r *memoryRepository) FindByID(_ context.Context, id int64) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return o.clone(), nil
}

func (r *memoryRepository) FindByOrderNumber(_ context.Context, orderNumber string) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, nil
	}
	return r.byID[id].clone(), nil
}

func (r *memoryRepository) FindByUser(_ context.Context, userID string, page Page) (*PageResult, error) {
	return r.list(func(o *Order) bool {
		return o.UserID != nil && *o.UserID == userID
	}, page), nil
}

func (r *memoryRepository) FindAll(_ context.Context, page Page) (*PageResult, error) {
	return r.list(func(*Order) bool { return true }, page), nil
}

func (r *memoryRepository) list(match func(*Order) bool, page Page) *PageResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*Order, 0, len(r.byID))
	for _, o := range r.byID {
		if match(o) {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	result := &PageResult{
		Orders:  []*Order{},
		HasMore: len(matched) > page.Offset+page.Limit,
	}
	if page.Offset >= len(matched) {
		return result
	}
	end := min(page.Offset+page.Limit, len(matched))
	for _, o := range matched[page.Offset:end] {
		result.Orders = append(result.Orders, o.clone())
	}
	return result
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id int64, status Status) (*Order, error) {
	return r.update(id, func(o *Order) { o.Status = status })
}

func (r *memoryRepository) UpdatePaymentStatus(_ context.Context, id int64, status PaymentStatus) (*Order, error) {
	return r.update(id, func(o *Order) { o.PaymentStatus = status })
}

func (r *memoryRepository) update(id int64, apply func(*Order)) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	apply(o)
	// updated_at never moves backwards or stays equal, even with a coarse clock.
	now := r.now().UTC()
	if !now.After(o.UpdatedAt) {
		now = o.UpdatedAt.Add(time.Microsecond)
	}
	o.UpdatedAt = now
	return o.clone(), nil
}
