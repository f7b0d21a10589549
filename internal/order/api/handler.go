// Package api exposes the order service over HTTP.
package api

import (
	"net/http"
	"strconv"

	"orderline-be/internal/apperror"
	"orderline-be/internal/auth"
	"orderline-be/internal/order"
	"orderline-be/internal/transport"
)

type Handler struct {
	svc  order.Service
	gate auth.Gate
}

func NewHandler(svc order.Service, gate auth.Gate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

// Register mounts the order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("GET /orders/my-orders", h.MyOrders)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /orders/number/{orderNumber}", h.GetOrderByNumber)
	mux.HandleFunc("PATCH /orders/{id}/status", h.UpdateStatus)
	mux.HandleFunc("PATCH /orders/{id}/payment-status", h.UpdatePaymentStatus)
}

// CreateOrder is public. A caller with a valid token owns the order
// regardless of the user_id in the body.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := transport.DecodeJSON(w, r, &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	input := req.toInput()
	if p := h.optionalPrincipal(r); p != nil {
		uid := p.UserID
		input.UserID = &uid
	}

	o, err := h.svc.CreateOrder(r.Context(), input)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.VerifyAdmin(r.Context(), auth.ExtractAccessToken(r)); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	page, err := parsePage(r)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	res, err := h.svc.GetAllOrders(r.Context(), page)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	writePage(w, r, res, page)
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	p, err := h.gate.Verify(r.Context(), auth.ExtractAccessToken(r))
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	page, err := parsePage(r)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	res, err := h.svc.GetUserOrders(r.Context(), p.UserID, page)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	writePage(w, r, res, page)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteJSON(w, r, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOrderByNumber(r.Context(), r.PathValue("orderNumber"))
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteJSON(w, r, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.VerifyAdmin(r.Context(), auth.ExtractAccessToken(r)); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	var req UpdateStatusRequest
	if err := transport.DecodeJSON(w, r, &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	o, err := h.svc.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteJSON(w, r, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := h.gate.VerifyAdmin(r.Context(), auth.ExtractAccessToken(r)); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}

	var req UpdatePaymentStatusRequest
	if err := transport.DecodeJSON(w, r, &req); err != nil {
		transport.WriteError(w, r, err)
		return
	}

	o, err := h.svc.UpdatePaymentStatus(r.Context(), id, req.value())
	if err != nil {
		transport.WriteError(w, r, err)
		return
	}
	transport.WriteJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// optionalPrincipal prefers the principal attached by middleware and falls
// back to verifying the request token. An invalid token is treated as a
// guest.
func (h *Handler) optionalPrincipal(r *http.Request) *auth.Principal {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return p
	}
	token := auth.ExtractAccessToken(r)
	if token == "" {
		return nil
	}
	p, err := h.gate.Verify(r.Context(), token)
	if err != nil {
		return nil
	}
	return p
}

// pathID resolves the {id} segment. Anything that cannot name a stored
// order is reported as not found.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound("order", raw)
	}
	return id, nil
}

func parsePage(r *http.Request) (order.Page, error) {
	var page order.Page
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperror.InvalidParam("limit", "limit must be an integer")
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperror.InvalidParam("offset", "offset must be an integer")
		}
		page.Offset = n
	}
	return page, nil
}

// writePage reports the limit actually applied, which the service may have
// defaulted or capped.
func writePage(w http.ResponseWriter, r *http.Request, res *order.PageResult, page order.Page) {
	limit := page.Limit
	switch {
	case limit == 0:
		limit = order.DefaultLimit
	case limit > order.MaxLimit:
		limit = order.MaxLimit
	}
	transport.WritePage(w, r, toOrderResponses(res.Orders), transport.Pagination{
		Limit:   limit,
		Offset:  page.Offset,
		HasMore: res.HasMore,
	})
}
