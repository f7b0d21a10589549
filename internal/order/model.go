package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultCurrency = "USD"
	DefaultLimit    = 20
	MaxLimit        = 100
)

// Order is the header of one purchase. Only Status and PaymentStatus change
// after creation.
type Order struct {
	ID              int64
	OrderNumber     string
	UserID          *string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   *string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Currency        string
	Status          Status
	PaymentStatus   PaymentStatus
	Notes           *string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem snapshots the product name and price at order time.
type OrderItem struct {
	ID           int64
	OrderID      int64
	ProductID    string
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
	Subtotal     decimal.Decimal
}

type CreateOrderInput struct {
	UserID          *string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   *string
	ShippingAddress string
	TotalAmount     decimal.Decimal
	Currency        string
	Notes           *string
	Items           []CreateItemInput
}

type CreateItemInput struct {
	ProductID    string
	ProductName  string
	ProductPrice decimal.Decimal
	Quantity     int
	Subtotal     decimal.Decimal
}

type Page struct {
	Limit  int
	Offset int
}

type PageResult struct {
	Orders  []*Order
	HasMore bool
}

func (o *Order) clone() *Order {
	c := *o
	c.UserID = clonePtr(o.UserID)
	c.CustomerPhone = clonePtr(o.CustomerPhone)
	c.Notes = clonePtr(o.Notes)
	c.Items = append([]OrderItem(nil), o.Items...)
	return &c
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
