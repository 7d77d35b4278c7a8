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
	"github.com/ecomstack/fulfillment/internal/notify"
	"github.com/ecomstack/fulfillment/internal/orders"
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

	svc := &notify.Service{
		Store: &notify.PgStore{DB: db},
		Dedup: redisx.NewIdempotencyStore(rdb, cfg.ServiceName),
		Log:   logger,
	}

	notifConsumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicNotification, cfg.ConsumerWorkers, logger)
	go func() {
		if err := notifConsumer.Start(ctx, svc.HandleNotification); err != nil {
			logger.Error("notification consumer stopped", zap.Error(err))
		}
	}()

	cartConsumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicCartEvent, cfg.ConsumerWorkers, logger)
	go func() {
		if err := cartConsumer.Start(ctx, svc.HandleCartEvent); err != nil {
			logger.Error("cart event consumer stopped", zap.Error(err))
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

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
}
