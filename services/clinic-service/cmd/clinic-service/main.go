package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/healpoint/healpoint/libs/config"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/grpcx"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/kafkax"
	"github.com/healpoint/healpoint/libs/metrics"
	otelx "github.com/healpoint/healpoint/libs/otel"
	"github.com/healpoint/healpoint/libs/runtime"
	"github.com/healpoint/healpoint/services/clinic-service/internal/booking"
	"github.com/healpoint/healpoint/services/clinic-service/internal/handlers"
	"github.com/healpoint/healpoint/services/clinic-service/internal/live"
	"github.com/healpoint/healpoint/services/clinic-service/internal/outbox"
	"github.com/healpoint/healpoint/services/clinic-service/internal/refcache"
	"github.com/healpoint/healpoint/services/clinic-service/internal/reminders"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "clinic-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(config.String("CLINIC_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid CLINIC_TIMEZONE; using UTC", "err", err)
		loc = time.UTC
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var cache *refcache.Cache
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
		cache = refcache.New(rdb, config.Duration("REFCACHE_TTL", 5*time.Minute), logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: refcache.ReadyCheck(rdb)})
		logger.Info("reference cache enabled (redis)", "redis_addr", addr)
	}

	var writer outbox.MessageWriter
	if brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", "")); len(brokers) > 0 {
		kw := kafkax.NewWriter(kafkax.WriterConfig{Brokers: brokers})
		defer func() { _ = kw.Close() }()
		writer = kw
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	publisher := outbox.NewPublisher(pool, writer, logger, outbox.PublisherConfig{
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if config.Bool("REMINDERS_ENABLED", true) {
		worker := reminders.NewWorker(pool, logger, reminders.Config{
			Interval:  config.Duration("REMINDER_INTERVAL", 5*time.Minute),
			Lead:      config.Duration("REMINDER_LEAD", 24*time.Hour),
			BatchSize: config.Int("REMINDER_BATCH_SIZE", 50),
			Location:  loc,
		})
		go worker.Run(ctx)
	}

	hub := live.NewHub(logger)
	go hub.Run(ctx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(service, reg)

	svc := booking.NewService(booking.NewPostgresStore(pool), hub, booking.NewMetrics(reg), logger, booking.Config{
		Step:     time.Duration(config.Int("SLOT_STEP_MINUTES", 30)) * time.Minute,
		Location: loc,
	})
	api := handlers.New(pool, svc, logger, handlers.Options{
		Cache:      cache,
		Location:   loc,
		BcryptCost: config.Int("BCRYPT_COST", 0),
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", httpMetrics.Handler())
	api.Register(mux)

	// The websocket upgrade needs the raw connection, so it skips the
	// timeout and body-limit wrappers applied to the REST routes.
	root := http.NewServeMux()
	root.Handle("GET /api/v1/live", live.NewHandler(hub, config.List("LIVE_ALLOWED_ORIGINS", "")))
	root.Handle("/", httpx.Chain(httpMetrics.Middleware(mux),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	))

	handler := httpx.Chain(root,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "clinic")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if grpcPort := config.String("GRPC_PORT", "9082"); grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			panic(err)
		}
		hs := grpcx.NewHealthServer(logger)
		hs.SetServing(service, true)
		go func() {
			logger.Info("grpc health server starting", "addr", lis.Addr().String())
			if err := hs.Serve(ctx, lis); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	runtime.Serve(ctx, srv, logger)
}
