package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ecomstack/fulfillment/internal/cart"
	"github.com/ecomstack/fulfillment/internal/config"
	"github.com/ecomstack/fulfillment/internal/httpx"
	kafkax "github.com/ecomstack/fulfillment/internal/kafka"
	"github.com/ecomstack/fulfillment/internal/notify"
	"github.com/ecomstack/fulfillment/internal/orders"
	"github.com/ecomstack/fulfillment/internal/payments"
	"github.com/ecomstack/fulfillment/internal/postgres"
	"github.com/ecomstack/fulfillment/internal/products"
	"github.com/ecomstack/fulfillment/internal/redisx"
	"github.com/ecomstack/fulfillment/internal/saga"
	"github.com/ecomstack/fulfillment/internal/stock"
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

	intentProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentIntent, 1024, logger)
	intentProd.Start(ctx)
	createdProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, logger)
	createdProd.Start(ctx)
	notifProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicNotification, 1024, logger)
	notifProd.Start(ctx)
	cartProd := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicCartEvent, 256, logger)
	cartProd.Start(ctx)

	dispatcher := notify.NewDispatcher(func(key, value []byte) error {
		notifProd.Publish(key, value)
		return nil
	}, cfg.ServiceName, 256, logger)
	dispatcher.Start()

	carts := cart.NewService(&cart.PgStore{DB: db}, func(p cart.EventPayload) {
		env := orders.Envelope{
			EventID:      uuid.NewString(),
			EventType:    orders.EventCartChanged,
			EventVersion: 1,
			OccurredAt:   time.Now().UTC(),
			Producer:     cfg.ServiceName,
			Payload:      kafkax.MustMarshal(p),
		}
		cartProd.Publish([]byte(p.UserID), kafkax.MustMarshal(env))
	}, logger)

	coord := &saga.Coordinator{
		Orders:  &orders.Repo{DB: db},
		Ledger:  stock.NewClient(cfg.StockBaseURL, stock.FallbackPolicy{}, logger),
		Catalog: products.NewHTTPClient(cfg.ProductBaseURL, logger),
		Carts:   carts,
		Cache:   redisx.NewStatusCache(rdb),
		Dedup:   redisx.NewIdempotencyStore(rdb, cfg.ServiceName),
		Notify:  dispatcher,
		Publish: func(key, value []byte) error {
			intentProd.Publish(key, value)
			return nil
		},
		PublishCreated: func(key, value []byte) error {
			createdProd.Publish(key, value)
			return nil
		},
		Name: cfg.ServiceName,
		Log:  logger,
	}

	resultConsumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicPaymentResult, cfg.ConsumerWorkers, logger)
	go func() {
		if err := resultConsumer.Start(ctx, coord.HandlePaymentResult); err != nil {
			logger.Error("payment result consumer stopped", zap.Error(err))
		}
	}()

	server := &httpx.Server{
		Coord:         coord,
		Payments:      &payments.PgRepo{DB: db},
		Notifications: &notify.PgStore{DB: db},
		Carts:         carts,
		Log:           logger,
	}
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router()}

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
	dispatcher.Close()
	intentProd.Close()
	createdProd.Close()
	notifProd.Close()
	cartProd.Close()
	intentProd.WaitClosed()
	createdProd.WaitClosed()
	notifProd.WaitClosed()
	cartProd.WaitClosed()
}
