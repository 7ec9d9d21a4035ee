package main

import (
	"context"
	"net/http"
	"time"

	"github.com/healpoint/healpoint/libs/config"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/metrics"
	otelx "github.com/healpoint/healpoint/libs/otel"
	"github.com/healpoint/healpoint/libs/runtime"
	"github.com/healpoint/healpoint/services/auth-service/internal/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "auth-service")
	port, err := config.Port("PORT", "8081")
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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	authHandler := handlers.NewAuthHandler(signer, pool, logger, handlers.Config{
		AccessTTL:  config.Duration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL: config.Duration("REFRESH_TOKEN_TTL", 720*time.Hour),
		BcryptCost: config.Int("BCRYPT_COST", 0),
	})

	reg := prometheus.NewRegistry()
	httpMetrics := metrics.NewHTTPMetrics(service, reg)

	mux := runtime.NewBaseMuxWithReady(runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	mux.Handle("GET /metrics", httpMetrics.Handler())
	authHandler.Register(mux)

	handler := httpx.Chain(httpMetrics.Middleware(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 64<<10))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "auth")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger)
}

// buildSigner prefers a rotating RS256 key set, then a single RS256 key, then HS256.
func buildSigner() (handlers.TokenSigner, error) {
	if pems := config.String("JWT_PRIVATE_KEYS_PEM", ""); pems != "" {
		keySet, err := handlers.ParseRS256KeySet(pems)
		if err != nil {
			return nil, err
		}
		signer, err := handlers.NewRotatingRS256Signer(keySet, config.String("JWT_ACTIVE_KID", ""), config.String("JWT_ROTATE_KEY", ""))
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	if pem := config.String("JWT_PRIVATE_KEY_PEM", ""); pem != "" {
		return handlers.NewRS256Signer([]byte(pem), config.String("JWT_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}
