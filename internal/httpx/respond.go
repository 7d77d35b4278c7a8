package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/cart"
	"github.com/ecomstack/fulfillment/internal/notify"
	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/payments"
	"github.com/ecomstack/fulfillment/internal/stock"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Anything unmapped is a 500
// with a generic body; the cause goes to the log, not the client.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, payments.ErrNotFound),
		errors.Is(err, notify.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, stock.ErrUnknownProduct):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, orders.ErrEmptyItems),
		errors.Is(err, orders.ErrInvalidQty):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, payments.ErrNotRefundable),
		errors.Is(err, payments.ErrStatusRegressed):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		s.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}
