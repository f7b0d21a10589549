package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"orderline-be/internal/apperror"
	"orderline-be/internal/logger"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

type Meta struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	Timestamp  int64       `json:"timestamp"`
	RequestID  string      `json:"request_id,omitempty"`
}

type ErrorBody struct {
	Type    apperror.Type         `json:"type"`
	Message string                `json:"message"`
	Code    string                `json:"code,omitempty"`
	Param   string                `json:"param,omitempty"`
	Details []apperror.FieldError `json:"details,omitempty"`
}

type SuccessEnvelope struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
	Meta  Meta      `json:"meta"`
}

// now is swapped by tests that assert on meta.timestamp.
var now = time.Now

func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, r, status, SuccessEnvelope{Data: data, Meta: meta(r, nil)})
}

func WritePage(w http.ResponseWriter, r *http.Request, data any, page Pagination) {
	writeEnvelope(w, r, http.StatusOK, SuccessEnvelope{Data: data, Meta: meta(r, &page)})
}

// WriteError renders err in the error envelope. Internal errors are logged
// with their cause and answered generically.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.From(err)
	status := appErr.HTTPStatus()

	log := logger.FromCtx(r.Context()).With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
	)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Debug("request rejected", zap.String("type", string(appErr.Type)), zap.String("reason", appErr.Message))
	}

	writeEnvelope(w, r, status, ErrorEnvelope{
		Error: ErrorBody{
			Type:    appErr.Type,
			Message: appErr.Message,
			Code:    appErr.Code,
			Param:   appErr.Param,
			Details: appErr.Details,
		},
		Meta: meta(r, nil),
	})
}

// DecodeJSON reads a single JSON object from the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.Validation("request body is required")
		case errors.As(err, &maxErr):
			return apperror.Validation("request body is too large")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return apperror.InvalidParam(typeErr.Field, "invalid type for field "+typeErr.Field)
		default:
			return apperror.Validation("malformed JSON body")
		}
	}
	if dec.More() {
		return apperror.Validation("request body must contain a single JSON object")
	}
	return nil
}

func meta(r *http.Request, page *Pagination) Meta {
	return Meta{
		Pagination: page,
		Timestamp:  now().Unix(),
		RequestID:  logger.RequestIDFrom(r.Context()),
	}
}

func writeEnvelope(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.FromCtx(r.Context()).Warn("failed to write response", zap.Error(err))
	}
}
