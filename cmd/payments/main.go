package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/config"
	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/payments"
	"github.com/ecomstack/fulfillment/internal/postgres"
	"github.com/ecomstack/fulfillment/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", cfg.ServiceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	resultProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentResult, 1024, logger)
	resultProd.Start(ctx)

	svc := &payments.Service{
		Repo:    &payments.PgRepo{DB: db},
		Gateway: payments.NewGateway(nil),
		Index:   redisx.NewPaymentIndex(rdb),
		Publish: func(key, value []byte) error {
			resultProd.Publish(key, value)
			return nil
		},
		Name: cfg.ServiceName,
		Log:  logger,
	}

	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicPaymentIntent, cfg.ConsumerWorkers, logger)
	go func() {
		if err := consumer.Start(ctx, svc.HandleIntent); err != nil {
			logger.Error("intent consumer stopped", zap.Error(err))
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/payments/{id}/refund", func(w http.ResponseWriter, req *http.Request) {
		p, err := svc.Refund(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			logger.Warn("refund failed", zap.String("payment_id", chi.URLParam(req, "id")), zap.Error(err))
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(kafkax.MustMarshal(p))
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(shutdownCtx)

	cancel()
	resultProd.Close()
	resultProd.WaitClosed()
}
