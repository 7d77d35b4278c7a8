package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/cart"
	"github.com/ecomstack/fulfillment/internal/notify"
	"github.com/ecomstack/fulfillment/internal/payments"
	"github.com/ecomstack/fulfillment/internal/saga"
)

// Server is the public HTTP surface of the order API. Payments are read-only
// here; the processor owns its own refund endpoint.
type Server struct {
	Coord         *saga.Coordinator
	Payments      payments.Repository
	Notifications notify.Store
	Carts         *cart.Service
	Log           *zap.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.createOrder)
		r.Post("/from-cart", s.createOrderFromCart)
		r.Get("/{id}", s.getOrder)
		r.Get("/{id}/status", s.getOrderStatus)
		r.Get("/user/{userID}", s.listOrdersByUser)
		r.Put("/{id}/status", s.updateOrderStatus)
		r.Put("/{id}/tracking", s.setTracking)
		r.Post("/{id}/release-stock", s.releaseStock)
		r.Delete("/{id}", s.deleteOrder)
	})

	r.Route("/cart/{userID}", func(r chi.Router) {
		r.Get("/", s.getCart)
		r.Post("/items", s.addCartItem)
		r.Put("/items/{itemID}", s.updateCartItem)
		r.Delete("/items/{itemID}", s.removeCartItem)
		r.Delete("/", s.clearCart)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/user/{userID}", s.listNotifications)
		r.Get("/user/{userID}/unread", s.listUnreadNotifications)
		r.Get("/user/{userID}/unread/count", s.countUnreadNotifications)
		r.Put("/{id}/read", s.markNotificationRead)
		r.Put("/user/{userID}/read-all", s.markAllNotificationsRead)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/order/{orderID}", s.getPaymentByOrder)
		r.Get("/user/{userID}", s.listPaymentsByUser)
	})

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
