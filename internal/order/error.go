package order

import "errors"

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNumberExhausted = errors.New("could not allocate a unique order number")
	ErrEmptyOrder           = errors.New("order must contain at least one item")
)
