package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"orderline-be/internal/logger"
	"orderline-be/internal/metrics"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	maxOrderNumberAttempts = 3

	uniqueViolation       = "23505"
	orderNumberConstraint = "orders_order_number_key"
	orderColumns          = `id, order_number, user_id, customer_name, customer_email, customer_phone, shipping_address, total_amount, currency, status, payment_status, notes, created_at, updated_at`
	orderItemColumns      = `id, order_id, product_id, product_name, product_price, quantity, subtotal`
	newestFirst           = `ORDER BY created_at DESC, id DESC`
)

// Repository is the durable store for orders and their line items.
// Finders return (nil, nil) when nothing matches; updates return
// ErrOrderNotFound when no row was touched.
type Repository interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)
	FindByUser(ctx context.Context, userID string, page Page) (*PageResult, error)
	FindAll(ctx context.Context, page Page) (*PageResult, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (*Order, error)
}

type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	numbers *NumberGenerator
	metrics *metrics.Collector
}

func WithNumberGenerator(g *NumberGenerator) RepositoryOption {
	return func(o *repositoryOptions) { o.numbers = g }
}

func WithMetrics(m *metrics.Collector) RepositoryOption {
	return func(o *repositoryOptions) { o.metrics = m }
}

func buildRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	o := repositoryOptions{numbers: NewNumberGenerator()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type repository struct {
	db      *sql.DB
	numbers *NumberGenerator
	metrics *metrics.Collector
}

func NewRepository(db *sql.DB, opts ...RepositoryOption) Repository {
	o := buildRepositoryOptions(opts)
	return &repository{db: db, numbers: o.numbers, metrics: o.metrics}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *repository) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	if len(input.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.Int("item_count", len(input.Items)),
	)

	for attempt := 1; attempt <= maxOrderNumberAttempts; attempt++ {
		orderNumber := r.numbers.Next()

		orderID, err := r.insertOrderTx(ctx, orderNumber, input)
		if isOrderNumberConflict(err) {
			r.metrics.OrderNumberCollision()
			log.Warn("order number collision, regenerating",
				zap.String("order_number", orderNumber),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Info("order created",
			zap.Int64("order_id", orderID),
			zap.String("order_number", orderNumber),
		)

		created, err := r.FindByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("reload created order %d: %w", orderID, err)
		}
		if created == nil {
			return nil, fmt.Errorf("reload created order %d: %w", orderID, ErrOrderNotFound)
		}
		return created, nil
	}

	return nil, ErrOrderNumberExhausted
}

// insertOrderTx writes the header and every item in one transaction.
func (r *repository) insertOrderTx(ctx context.Context, orderNumber string, input CreateOrderInput) (int64, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "insertOrderTx"),
		zap.String("order_number", orderNumber),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("failed to rollback transaction", zap.Error(rbErr))
		} else {
			log.Debug("transaction rolled back")
		}
	}()

	var orderID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, user_id, customer_name, customer_email, customer_phone,
			shipping_address, total_amount, currency, status, payment_status, notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`,
		orderNumber,
		input.UserID,
		input.CustomerName,
		input.CustomerEmail,
		input.CustomerPhone,
		input.ShippingAddress,
		input.TotalAmount,
		input.Currency,
		StatusPending,
		PaymentPending,
		input.Notes,
	).Scan(&orderID)
	if err != nil {
		if !isOrderNumberConflict(err) {
			log.Error("failed to insert order", zap.Error(err))
		}
		return 0, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range input.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, product_name, product_price, quantity, subtotal
			) VALUES ($1,$2,$3,$4,$5,$6)
		`,
			orderID,
			item.ProductID,
			item.ProductName,
			item.ProductPrice,
			item.Quantity,
			item.Subtotal,
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return 0, fmt.Errorf("insert order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transaction", zap.Error(err))
		return 0, fmt.Errorf("commit order: %w", err)
	}
	committed = true

	return orderID, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return r.assemble(ctx, row)
}

func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber)
	return r.assemble(ctx, row)
}

// assemble scans a header row and attaches its items. A missing header is
// (nil, nil), never a partial order.
func (r *repository) assemble(ctx context.Context, row rowScanner) (*Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	items, err := r.fetchItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *repository) FindByUser(ctx context.Context, userID string, page Page) (*PageResult, error) {
	return r.list(ctx, "WHERE user_id = $1", []any{userID}, page)
}

func (r *repository) FindAll(ctx context.Context, page Page) (*PageResult, error) {
	return r.list(ctx, "", nil, page)
}

// list reads one newest-first page, then probes for a single row at
// offset+limit to decide HasMore without counting. where is always a
// constant fragment whose placeholders are numbered from $1.
func (r *repository) list(ctx context.Context, where string, filterArgs []any, page Page) (*PageResult, error) {
	n := len(filterArgs)

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "list"),
		zap.Int("limit", page.Limit),
		zap.Int("offset", page.Offset),
	)

	query := fmt.Sprintf(`SELECT %s FROM orders %s %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, newestFirst, n+1, n+2)
	args := append(append([]any{}, filterArgs...), page.Limit, page.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*Order, 0, page.Limit)
	ids := make([]int64, 0, page.Limit)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	probe := fmt.Sprintf(`SELECT 1 FROM orders %s %s LIMIT 1 OFFSET $%d`, where, newestFirst, n+1)
	probeArgs := append(append([]any{}, filterArgs...), page.Offset+page.Limit)

	var one int
	hasMore := true
	if err := r.db.QueryRowContext(ctx, probe, probeArgs...).Scan(&one); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Error("failed to probe next page", zap.Error(err))
			return nil, fmt.Errorf("probe next page: %w", err)
		}
		hasMore = false
	}

	if len(ids) > 0 {
		items, err := r.fetchItems(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			o.Items = items[o.ID]
		}
	}

	log.Debug("listed orders", zap.Int("count", len(orders)), zap.Bool("has_more", hasMore))

	return &PageResult{Orders: orders, HasMore: hasMore}, nil
}

func (r *repository) fetchItems(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, id`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.ProductName,
			&it.ProductPrice,
			&it.Quantity,
			&it.Subtotal,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[it.OrderID] = append(items[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error) {
	return r.updateField(ctx, id, "UpdateStatus",
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status))
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (*Order, error) {
	return r.updateField(ctx, id, "UpdatePaymentStatus",
		`UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2`, string(status))
}

func (r *repository) updateField(ctx context.Context, id int64, method, stmt, value string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", method),
		zap.Int64("order_id", id),
		zap.String("value", value),
	)

	res, err := r.db.ExecContext(ctx, stmt, value, id)
	if err != nil {
		log.Error("failed to update order", zap.Error(err))
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order %d: %w", id, err)
	}
	if affected == 0 {
		return nil, ErrOrderNotFound
	}

	updated, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrOrderNotFound
	}
	return updated, nil
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o                     Order
		userID, phone, notes  sql.NullString
		status, paymentStatus string
	)
	if err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&userID,
		&o.CustomerName,
		&o.CustomerEmail,
		&phone,
		&o.ShippingAddress,
		&o.TotalAmount,
		&o.Currency,
		&status,
		&paymentStatus,
		&notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	o.UserID = nullStringPtr(userID)
	o.CustomerPhone = nullStringPtr(phone)
	o.Notes = nullStringPtr(notes)
	o.Status = Status(status)
	o.PaymentStatus = PaymentStatus(paymentStatus)
	return &o, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func isOrderNumberConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && pqErr.Constraint == orderNumberConstraint
}
