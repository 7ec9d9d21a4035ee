package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/healpoint/healpoint/libs/config"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/kafkax"
	"github.com/healpoint/healpoint/libs/metrics"
	otelx "github.com/healpoint/healpoint/libs/otel"
	"github.com/healpoint/healpoint/libs/runtime"
	"github.com/healpoint/healpoint/services/notification-service/internal/consumer"
	"github.com/healpoint/healpoint/services/notification-service/internal/email"
	"github.com/healpoint/healpoint/services/notification-service/internal/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 5))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	sender, err := newSender()
	if err != nil {
		logger.Error("email sender setup failed", "err", err)
		panic(err)
	}
	logger.Info("email provider configured", "provider", sender.ProviderID())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := metrics.NewHTTPMetrics(service, reg)

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	if len(brokers) > 0 {
		topics := config.List("NOTIFICATION_TOPICS", "")
		if len(topics) == 0 {
			topics = notify.DefaultTopics
		}
		reader := kafkax.NewReader(kafkax.ReaderConfig{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
			Topics:  topics,
		})
		processor := notify.NewProcessor(sender, notify.NewMetrics(reg), logger)
		go consumer.New(reader, pool, logger, processor.Handle).Run(ctx)
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
		logger.Info("consuming events", "topics", topics)
	} else {
		logger.Warn("KAFKA_BROKERS not set; no events will be consumed")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("GET /metrics", httpMetrics.Handler())

	handler := httpx.Chain(httpMetrics.Middleware(mux),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	runtime.Serve(ctx, srv, logger)
}

func newSender() (email.Sender, error) {
	switch strings.ToLower(config.String("EMAIL_PROVIDER", "smtp")) {
	case "sendgrid":
		return email.NewSendGridSender(email.SendGridConfig{
			APIKey:    config.String("SENDGRID_API_KEY", ""),
			FromEmail: config.String("EMAIL_FROM", "no-reply@healpoint.local"),
			FromName:  config.String("EMAIL_FROM_NAME", "HealPoint"),
		})
	default:
		return email.NewSMTPSender(email.SMTPConfig{
			Host:     config.String("SMTP_HOST", "mailpit"),
			Port:     config.String("SMTP_PORT", "1025"),
			From:     config.String("EMAIL_FROM", "no-reply@healpoint.local"),
			Username: config.String("SMTP_USERNAME", ""),
			Password: config.String("SMTP_PASSWORD", ""),
		}), nil
	}
}
