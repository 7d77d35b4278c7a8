package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/saga"
)

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req saga.CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.Coord.CreateOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(o))
}

func (s *Server) createOrderFromCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          string               `json:"user_id"`
		DeliveryAddress string               `json:"delivery_address"`
		PaymentMethod   orders.PaymentMethod `json:"payment_method"`
		Card            saga.CardDetails     `json:"card"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	o, err := s.Coord.CreateOrderFromCart(r.Context(), req.UserID, req.DeliveryAddress, req.PaymentMethod, req.Card)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse(o))
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Coord.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (s *Server) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.Coord.OrderStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": string(status)})
}

func (s *Server) listOrdersByUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.Coord.Orders.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, o := range list {
		out = append(out, orderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status orders.Status `json:"status"`
		// Force bypasses the transition table and suppresses saga side
		// effects. Operator repairs only.
		Force bool `json:"force"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	update := s.Coord.UpdateStatus
	if req.Force {
		update = s.Coord.ForceStatus
	}
	o, err := update(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (s *Server) setTracking(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TrackingNumber string `json:"tracking_number"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TrackingNumber == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "tracking_number is required"})
		return
	}
	o, err := s.Coord.SetTracking(r.Context(), chi.URLParam(r, "id"), req.TrackingNumber)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o))
}

func (s *Server) releaseStock(w http.ResponseWriter, r *http.Request) {
	n, err := s.Coord.ReleaseStock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": n})
}

func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := s.Coord.DeleteOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// orderResponse augments the order with its derived total, which is not a
// stored field.
func orderResponse(o *orders.Order) map[string]any {
	return map[string]any{
		"id":                o.ID,
		"user_id":           o.UserID,
		"items":             o.Items,
		"delivery_address":  o.DeliveryAddress,
		"payment_method":    o.PaymentMethod,
		"payment_reference": o.PaymentReference,
		"tracking_number":   o.TrackingNumber,
		"status":            o.Status,
		"total":             o.Total(),
		"created_at":        o.CreatedAt,
		"updated_at":        o.UpdatedAt,
	}
}
