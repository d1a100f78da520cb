package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/libs/grpcx"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/libs/inbox"
	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tutorbook/libs/otel"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/emails"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/handlers"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/internal/storage"
	"github.com/md-rashed-zaman/tutorbook/services/notification-service/migrations"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9085")
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
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(config.Int("DB_MAX_CONNS", 5))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS, ".", "notification_migrations")
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", n)
	}

	notificationsRepo := storage.NewRepository(pool)

	var sender emails.Sender
	switch provider := strings.ToLower(config.String("SESSION_EMAIL_PROVIDER", "webhook")); provider {
	case "smtp":
		sender = emails.NewSMTPSender(
			config.String("SMTP_HOST", "mailpit"),
			config.String("SMTP_PORT", "1025"),
			config.String("SMTP_FROM", "no-reply@tutorbook.local"),
		)
	case "noop":
		sender = emails.NewNoopSender()
	default:
		sender = emails.NewWebhookSender(config.String("SESSION_EMAILS_URL", ""), config.String("SESSION_EMAILS_TOKEN", ""))
	}
	logger.Info("session email provider", "provider", sender.ProviderID())

	brokers := config.String("KAFKA_BROKERS", "")
	paymentConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topics:  []string{notify.TopicPaymentSucceeded, notify.TopicPaymentFailed},
	}, notify.Handler(notificationsRepo, sender, logger))
	go paymentConsumer.Run(ctx)

	h := handlers.New(notificationsRepo, logger)
	authed := httpx.RequireAuth(jwtSecret)
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, notify.TopicPaymentSucceeded, notify.TopicPaymentFailed)},
	)
	mux.Handle("GET /api/v1/notifications", httpx.Chain(http.HandlerFunc(h.List), authed))
	mux.Handle("POST /api/v1/notifications/{notificationID}/read", httpx.Chain(http.HandlerFunc(h.MarkRead), authed))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithTimeout(10*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer(service, logger)
	go func() {
		if err := grpcServer.Serve(ctx, ":"+grpcPort); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
