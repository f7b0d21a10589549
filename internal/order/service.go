package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"orderline-be/internal/apperror"
	"orderline-be/internal/logger"
	"orderline-be/internal/metrics"

	"go.uber.org/zap"
)

// Service is the order boundary used by the HTTP layer. Every error it
// returns is an *apperror.Error.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)
	GetUserOrders(ctx context.Context, userID string, page Page) (*PageResult, error)
	GetAllOrders(ctx context.Context, page Page) (*PageResult, error)
	UpdateOrderStatus(ctx context.Context, id int64, status string) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status string) (*Order, error)
}

type ServiceOption func(*service)

// WithStrictTransitions enforces the forward-only status chain and the
// payment graph. Without it any valid value may replace any other.
func WithStrictTransitions(strict bool) ServiceOption {
	return func(s *service) { s.strict = strict }
}

func WithServiceMetrics(m *metrics.Collector) ServiceOption {
	return func(s *service) { s.metrics = m }
}

type service struct {
	repo    Repository
	strict  bool
	metrics *metrics.Collector
}

func NewService(repo Repository, opts ...ServiceOption) Service {
	s := &service{repo: repo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Int("item_count", len(input.Items)),
	)

	input = normalizeCreateInput(input)
	if fieldErrs := validateCreateInput(input); len(fieldErrs) > 0 {
		log.Info("create order rejected", zap.Int("invalid_fields", len(fieldErrs)))
		return nil, apperror.Validation("invalid order", fieldErrs...)
	}

	o, err := s.repo.CreateOrder(ctx, input)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("create order: %w", err))
	}

	s.metrics.OrderCreated(o.Currency)
	log.Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Bool("guest", o.UserID == nil),
	)
	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	o, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("find order %d: %w", id, err))
	}
	if o == nil {
		return nil, apperror.NotFound("order", strconv.FormatInt(id, 10))
	}
	return o, nil
}

func (s *service) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := s.repo.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("find order %q: %w", orderNumber, err))
	}
	if o == nil {
		return nil, apperror.NotFound("order", orderNumber)
	}
	return o, nil
}

func (s *service) GetUserOrders(ctx context.Context, userID string, page Page) (*PageResult, error) {
	if userID == "" {
		return nil, apperror.InvalidParam("user_id", "user_id is required")
	}
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.FindByUser(ctx, userID, page)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("list orders for user: %w", err))
	}
	return res, nil
}

func (s *service) GetAllOrders(ctx context.Context, page Page) (*PageResult, error) {
	page, err := normalizePage(page)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.FindAll(ctx, page)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("list orders: %w", err))
	}
	return res, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, id int64, status string) (*Order, error) {
	next := Status(status)
	if !next.Valid() {
		return nil, invalidEnum("status", status, AllStatuses())
	}

	if s.strict {
		current, err := s.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.Status.CanTransitionTo(next) {
			return nil, invalidTransition("status", string(current.Status), status)
		}
	}

	o, err := s.repo.UpdateStatus(ctx, id, next)
	if err != nil {
		return nil, s.translateUpdateErr(id, err)
	}

	s.metrics.StatusUpdated("status", status)
	logger.FromCtx(ctx).Info("order status updated",
		zap.Int64("order_id", id),
		zap.String("status", status),
	)
	return o, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, id int64, status string) (*Order, error) {
	next := PaymentStatus(status)
	if !next.Valid() {
		return nil, invalidEnum("payment_status", status, AllPaymentStatuses())
	}

	if s.strict {
		current, err := s.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !current.PaymentStatus.CanTransitionTo(next) {
			return nil, invalidTransition("payment_status", string(current.PaymentStatus), status)
		}
	}

	o, err := s.repo.UpdatePaymentStatus(ctx, id, next)
	if err != nil {
		return nil, s.translateUpdateErr(id, err)
	}

	s.metrics.StatusUpdated("payment_status", status)
	logger.FromCtx(ctx).Info("order payment status updated",
		zap.Int64("order_id", id),
		zap.String("payment_status", status),
	)
	return o, nil
}

func (s *service) translateUpdateErr(id int64, err error) error {
	if errors.Is(err, ErrOrderNotFound) {
		return apperror.NotFound("order", strconv.FormatInt(id, 10))
	}
	return apperror.Internal(fmt.Errorf("update order %d: %w", id, err))
}

func normalizePage(p Page) (Page, error) {
	if p.Limit < 0 {
		return p, apperror.InvalidParam("limit", "limit must not be negative")
	}
	if p.Offset < 0 {
		return p, apperror.InvalidParam("offset", "offset must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

func invalidEnum[T ~string](param, value string, allowed []T) *apperror.Error {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	e := apperror.InvalidParam(param, fmt.Sprintf("invalid %s %q, must be one of %v", param, value, names))
	e.Code = "invalid_enum_value"
	return e
}

func invalidTransition(param, from, to string) *apperror.Error {
	e := apperror.InvalidParam(param, fmt.Sprintf("cannot change %s from %q to %q", param, from, to))
	e.Code = "invalid_transition"
	return e
}
