package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string          `json:"product_id"`
		Quantity  int             `json:"quantity"`
		Price     decimal.Decimal `json:"price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "product_id and a positive quantity are required"})
		return
	}
	price := req.Price
	if price.IsZero() {
		// Resolve the catalog price when the caller does not send one.
		p, err := s.Coord.Catalog.GetProduct(r.Context(), req.ProductID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		price = p.Price
	}
	c, err := s.Carts.AddItem(r.Context(), chi.URLParam(r, "userID"), req.ProductID, req.Quantity, price)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "quantity must be at least 1"})
		return
	}
	c, err := s.Carts.UpdateItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.RemoveItem(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	c, err := s.Carts.Clear(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
