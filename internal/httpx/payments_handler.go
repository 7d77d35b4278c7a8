package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getPaymentByOrder(w http.ResponseWriter, r *http.Request) {
	p, err := s.Payments.GetByOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listPaymentsByUser(w http.ResponseWriter, r *http.Request) {
	list, err := s.Payments.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
