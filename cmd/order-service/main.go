package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/dmehra2102/order-ledger/internal/config"
	invdomain "github.com/dmehra2102/order-ledger/internal/inventory/domain"
	notifapp "github.com/dmehra2102/order-ledger/internal/notification/application"
	notifamqp "github.com/dmehra2102/order-ledger/internal/notification/infrastructure/amqp"
	notifkafka "github.com/dmehra2102/order-ledger/internal/notification/infrastructure/kafka"
	notifpg "github.com/dmehra2102/order-ledger/internal/notification/infrastructure/postgres"
	"github.com/dmehra2102/order-ledger/internal/order/application"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	ordercache "github.com/dmehra2102/order-ledger/internal/order/infrastructure/cache"
	ordergrpc "github.com/dmehra2102/order-ledger/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/order-ledger/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/order-ledger/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/order-ledger/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/order-ledger/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/order-ledger/pkg/idempotency"
	"github.com/dmehra2102/order-ledger/pkg/logging"
	"github.com/dmehra2102/order-ledger/pkg/metrics"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
	"github.com/dmehra2102/order-ledger/pkg/shutdown"
	"github.com/dmehra2102/order-ledger/pkg/tracing"
)

const serviceName = "order-service"

type store interface {
	application.UnitOfWork
	application.OrderReader
	ordergrpc.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "order_service")
	engineMetrics := metrics.NewEngineMetrics(reg)

	var (
		st    store
		sinks []notifapp.Sink
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := memory.NewStore()
		seedDemo(mem)
		st = mem
		log.Warn("using in-memory store, data is lost on exit")
	default:
		pool, err := orderpg.Open(ctx, cfg.PGURL, cfg.PGMaxConns)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := orderpg.Migrate(ctx, pool); err != nil {
			log.Error("pg migrate failed", "err", err)
			os.Exit(1)
		}
		st = orderpg.NewRepository(log, pool, cfg.LockTimeout)
		if cfg.HasSink("postgres") {
			sinks = append(sinks, notifpg.NewStore(log, pool))
		}

		if len(cfg.KafkaBrokers) > 0 {
			writer := orderkafka.NewWriter(cfg.KafkaBrokers)
			defer writer.Close()

			dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
			relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), dispatch, serviceName+"-"+uuid.NewString())
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error("relay stopped with error", "err", err)
				}
			}()
		}
	}

	if cfg.HasSink("kafka") {
		writer := orderkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		sinks = append(sinks, notifkafka.NewPublisher(writer, cfg.NotifyTopic))
	}
	if cfg.HasSink("amqp") {
		pub, err := notifamqp.Dial(ctx, log, cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Error("amqp connect failed", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	notifier := notifapp.NewDispatcher(log, cfg.NotifyTimeout, engineMetrics, sinks...)

	opts := []application.Option{application.WithMetrics(engineMetrics), application.WithTxTimeout(cfg.TxTimeout)}
	var handlerOpts []orderhttp.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		opts = append(opts, application.WithStatsCache(ordercache.NewStatsCache(rdb, cfg.StatsTTL), cfg.StatsTTL))
		idem := idempotency.Middleware(log, idempotency.NewStore(rdb, cfg.IdempotencyTTL), orderhttp.UserKey)
		handlerOpts = append(handlerOpts, orderhttp.WithIdempotency(idem))
	}

	svc := application.NewService(log, st, st, notifier, opts...)
	handler := orderhttp.NewHandler(log, svc, handlerOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Timeout(15*time.Second))
	r.Use(serverMetrics.Middleware)
	r.Get("/health", health(st))
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/orders", handler.Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	var gs *grpc.Server
	if cfg.GRPCAddr != "" {
		hs := ordergrpc.NewHealthServer(log, st, 10*time.Second)
		go hs.Watch(ctx)
		if gs, err = ordergrpc.Run(log, cfg.GRPCAddr, hs); err != nil {
			log.Error("grpc listen failed", "err", err)
			os.Exit(1)
		}
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	log.Info("order-service shutdown complete")
}

func health(p ordergrpc.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := p.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func seedDemo(s *memory.Store) {
	s.AddCustomer(domain.Customer{ID: 1, Name: "Demo Customer"})
	s.AddProduct(invdomain.Product{ID: 1, Name: "Widget", Price: decimal.RequireFromString("20.00"), StockQuantity: 10, Active: true})
	s.AddProduct(invdomain.Product{ID: 2, Name: "Gadget", Price: decimal.RequireFromString("7.50"), StockQuantity: 25, Active: true})
}
