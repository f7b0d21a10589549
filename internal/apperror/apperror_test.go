package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Type]int{
		TypeValidation:     http.StatusBadRequest,
		TypeAuthentication: http.StatusUnauthorized,
		TypeAuthorization:  http.StatusForbidden,
		TypeNotFound:       http.StatusNotFound,
		TypeRateLimit:      http.StatusTooManyRequests,
		TypeInternal:       http.StatusInternalServerError,
	}

	for typ, status := range cases {
		t.Run(string(typ), func(t *testing.T) {
			assert.Equal(t, status, (&Error{Type: typ}).HTTPStatus())
		})
	}
}

func TestValidation(t *testing.T) {
	t.Run("Lists fields", func(t *testing.T) {
		err := Validation("invalid order",
			FieldError{Field: "customer_email", Message: "must be a valid email address"},
			FieldError{Field: "items", Message: "must contain at least one item"},
		)

		assert.Equal(t, TypeValidation, err.Type)
		assert.Equal(t, "customer_email", err.Param)
		assert.Equal(t, "invalid order: customer_email, items", err.Message)
		assert.Len(t, err.Details, 2)
	})

	t.Run("Without fields", func(t *testing.T) {
		err := Validation("malformed JSON body")
		assert.Empty(t, err.Param)
		assert.Equal(t, "malformed JSON body", err.Message)
	})
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Internal(cause)

	assert.Equal(t, "an internal error occurred", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestFrom(t *testing.T) {
	t.Run("Unwraps wrapped app error", func(t *testing.T) {
		nf := NotFound("order", "42")
		wrapped := fmt.Errorf("loading: %w", nf)

		got := From(wrapped)
		require.NotNil(t, got)
		assert.Same(t, nf, got)
		assert.True(t, IsType(wrapped, TypeNotFound))
	})

	t.Run("Plain errors become internal", func(t *testing.T) {
		got := From(errors.New("boom"))
		assert.Equal(t, TypeInternal, got.Type)
		assert.False(t, IsType(errors.New("boom"), TypeNotFound))
	})
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("order", "ORDER-1")
	assert.Equal(t, "no such order: 'ORDER-1'", err.Message)
	assert.Equal(t, "resource_missing", err.Code)
}
