package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/libs/grpcx"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tutorbook/libs/otel"
	"github.com/md-rashed-zaman/tutorbook/libs/outbox"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/handlers"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/payments"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/internal/storage"
	"github.com/md-rashed-zaman/tutorbook/services/payment-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "payment-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9082")
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
	stripeKey := config.String("STRIPE_SECRET_KEY", "")
	if stripeKey == "" {
		logger.Warn("STRIPE_SECRET_KEY missing; payment setup will fail")
	}

	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS, ".", "payment_migrations")
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", n)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	gateway := payments.NewStripeGateway(stripeKey)
	svc := payments.NewService(repo, gateway, logger, payments.Config{
		DefaultCurrency: config.String("PAYMENT_CURRENCY", "usd"),
		MaxAmount:       int64(config.Int("PAYMENT_MAX_AMOUNT_CENTS", 1_000_000)),
		FeeBasisPoints:  int64(config.Int("PLATFORM_FEE_BASIS_POINTS", 0)),
	})

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", time.Second, 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	if stripeKey != "" && config.Bool("PAYMENT_RECONCILE_ENABLED", true) {
		reconciler := payments.NewReconciler(pool, repo, gateway, logger, payments.ReconcilerConfig{
			StaleAfter:      config.Duration("PAYMENT_RECONCILE_STALE_MINUTES", time.Minute, 15*time.Minute),
			BatchSize:       config.Int("PAYMENT_RECONCILE_BATCH_SIZE", 50),
			AdvisoryLockKey: int64(config.Int("PAYMENT_RECONCILE_LOCK_KEY", 0)),
		})
		go reconciler.Run(ctx, config.Duration("PAYMENT_RECONCILE_INTERVAL", time.Second, 5*time.Minute))
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	limit := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 20), time.Minute).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, config.Int("RATE_LIMIT_PER_MINUTE", 20), time.Minute, "tb:rl:"+service)
		limit = rl.Middleware("payments", logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	paymentHandler := handlers.NewPaymentHandler(svc, repo, logger)
	webhookHandler := handlers.NewWebhookHandler(repo, logger,
		config.String("STRIPE_WEBHOOK_SECRET", ""),
		config.Duration("STRIPE_WEBHOOK_TOLERANCE_SECONDS", time.Second, 300*time.Second))

	authed := httpx.RequireAuth(jwtSecret)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("POST /api/v1/payments/setup", httpx.Chain(http.HandlerFunc(paymentHandler.Setup),
		authed, httpx.RequireRole(auth.RoleStudent), limit))
	mux.Handle("POST /api/v1/payments/intent", httpx.Chain(http.HandlerFunc(paymentHandler.Intent),
		authed, httpx.RequireRole(auth.RoleStudent, auth.RoleTutor), limit))
	mux.Handle("PUT /api/v1/payments/accounts", httpx.Chain(http.HandlerFunc(paymentHandler.PutAccount),
		authed, httpx.RequireRole(auth.RoleTutor)))
	mux.HandleFunc("POST /api/v1/payments/webhooks/stripe", webhookHandler.Stripe)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(20*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "payments")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
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
