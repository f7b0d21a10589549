package order

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"orderline-be/internal/apperror"

	"github.com/shopspring/decimal"
)

var (
	emailRegex    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

const (
	maxNameLength    = 255
	maxEmailLength   = 320
	maxPhoneLength   = 50
	maxAddressLength = 2000
	maxNotesLength   = 2000
	maxItems         = 500
	maxQuantity      = math.MaxInt32

	// Money columns are NUMERIC(12,2).
	moneyScale = 2
)

var maxMoney = decimal.New(1, 10)

// normalizeCreateInput trims free text, drops blank optionals and applies the
// currency default. Amounts are left exactly as submitted.
func normalizeCreateInput(in CreateOrderInput) CreateOrderInput {
	in.UserID = trimOptional(in.UserID)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	in.CustomerPhone = trimOptional(in.CustomerPhone)
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	in.Notes = trimOptional(in.Notes)

	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}

	items := make([]CreateItemInput, len(in.Items))
	for i, it := range in.Items {
		it.ProductID = strings.TrimSpace(it.ProductID)
		it.ProductName = strings.TrimSpace(it.ProductName)
		items[i] = it
	}
	in.Items = items
	return in
}

func validateCreateInput(in CreateOrderInput) []apperror.FieldError {
	var errs []apperror.FieldError
	add := func(field, msg string) {
		errs = append(errs, apperror.FieldError{Field: field, Message: msg})
	}

	switch {
	case in.CustomerName == "":
		add("customer_name", "is required")
	case tooLong(in.CustomerName, maxNameLength):
		add("customer_name", fmt.Sprintf("must be at most %d characters", maxNameLength))
	}

	switch {
	case in.CustomerEmail == "":
		add("customer_email", "is required")
	case tooLong(in.CustomerEmail, maxEmailLength) || !emailRegex.MatchString(in.CustomerEmail):
		add("customer_email", "must be a valid email address")
	}

	if in.CustomerPhone != nil && tooLong(*in.CustomerPhone, maxPhoneLength) {
		add("customer_phone", fmt.Sprintf("must be at most %d characters", maxPhoneLength))
	}

	switch {
	case in.ShippingAddress == "":
		add("shipping_address", "is required")
	case tooLong(in.ShippingAddress, maxAddressLength):
		add("shipping_address", fmt.Sprintf("must be at most %d characters", maxAddressLength))
	}

	if msg := checkMoney(in.TotalAmount); msg != "" {
		add("total_amount", msg)
	}

	if !currencyRegex.MatchString(in.Currency) {
		add("currency", "must be a three-letter ISO 4217 code")
	}

	if in.Notes != nil && tooLong(*in.Notes, maxNotesLength) {
		add("notes", fmt.Sprintf("must be at most %d characters", maxNotesLength))
	}

	switch {
	case len(in.Items) == 0:
		add("items", "must contain at least one item")
	case len(in.Items) > maxItems:
		add("items", fmt.Sprintf("must contain at most %d items", maxItems))
	}

	for i, it := range in.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

		if it.ProductID == "" {
			add(field("product_id"), "is required")
		}
		if it.ProductName == "" {
			add(field("product_name"), "is required")
		}
		if msg := checkMoney(it.ProductPrice); msg != "" {
			add(field("product_price"), msg)
		}
		switch {
		case it.Quantity <= 0:
			add(field("quantity"), "must be a positive integer")
		case it.Quantity > maxQuantity:
			add(field("quantity"), fmt.Sprintf("must be at most %d", maxQuantity))
		}
		if msg := checkMoney(it.Subtotal); msg != "" {
			add(field("subtotal"), msg)
		}
	}

	return errs
}

// checkMoney returns a validation message for an amount the money columns
// cannot hold exactly, or "" when d is acceptable.
func checkMoney(d decimal.Decimal) string {
	switch {
	case !d.IsPositive():
		return "must be greater than 0"
	case !d.Equal(d.Truncate(moneyScale)):
		return fmt.Sprintf("must have at most %d decimal places", moneyScale)
	case d.GreaterThanOrEqual(maxMoney):
		return "must be less than " + maxMoney.String()
	}
	return ""
}

func tooLong(s string, limit int) bool {
	return utf8.RuneCountInString(s) > limit
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
