package api

import (
	"orderline-be/internal/order"

	"github.com/shopspring/decimal"
)

// CreateOrderRequest is the public checkout payload. Amounts are accepted as
// JSON numbers or numeric strings.
type CreateOrderRequest struct {
	UserID          *string             `json:"user_id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   *string             `json:"customer_phone"`
	ShippingAddress string              `json:"shipping_address"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	Currency        string              `json:"currency"`
	Notes           *string             `json:"notes"`
	Items           []CreateItemRequest `json:"items"`
}

type CreateItemRequest struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdatePaymentStatusRequest takes payment_status, or status to mirror the
// order status route. payment_status wins when both are set.
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`
}

func (r UpdatePaymentStatusRequest) value() string {
	if r.PaymentStatus != "" {
		return r.PaymentStatus
	}
	return r.Status
}

type OrderResponse struct {
	ID              int64               `json:"id"`
	Object          string              `json:"object"`
	OrderNumber     string              `json:"order_number"`
	UserID          *string             `json:"user_id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	CustomerPhone   *string             `json:"customer_phone,omitempty"`
	ShippingAddress string              `json:"shipping_address"`
	TotalAmount     float64             `json:"total_amount"`
	Currency        string              `json:"currency"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"payment_status"`
	Notes           *string             `json:"notes,omitempty"`
	Items           []OrderItemResponse `json:"items"`
	Created         int64               `json:"created"`
	Updated         int64               `json:"updated"`
}

type OrderItemResponse struct {
	ID           int64   `json:"id"`
	Object       string  `json:"object"`
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductPrice float64 `json:"product_price"`
	Quantity     int     `json:"quantity"`
	Subtotal     float64 `json:"subtotal"`
}

func (req CreateOrderRequest) toInput() order.CreateOrderInput {
	items := make([]order.CreateItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.CreateItemInput{
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductPrice: it.ProductPrice,
			Quantity:     it.Quantity,
			Subtotal:     it.Subtotal,
		}
	}
	return order.CreateOrderInput{
		UserID:          req.UserID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		Notes:           req.Notes,
		Items:           items,
	}
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:           it.ID,
			Object:       "order_item",
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductPrice: it.ProductPrice.InexactFloat64(),
			Quantity:     it.Quantity,
			Subtotal:     it.Subtotal.InexactFloat64(),
		}
	}
	return OrderResponse{
		ID:              o.ID,
		Object:          "order",
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		CustomerPhone:   o.CustomerPhone,
		ShippingAddress: o.ShippingAddress,
		TotalAmount:     o.TotalAmount.InexactFloat64(),
		Currency:        o.Currency,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		Notes:           o.Notes,
		Items:           items,
		Created:         o.CreatedAt.Unix(),
		Updated:         o.UpdatedAt.Unix(),
	}
}

func toOrderResponses(orders []*order.Order) []OrderResponse {
	list := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		list = append(list, toOrderResponse(o))
	}
	return list
}
