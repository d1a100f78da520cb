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
	"github.com/md-rashed-zaman/tutorbook/libs/inbox"
	"github.com/md-rashed-zaman/tutorbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/tutorbook/libs/otel"
	"github.com/md-rashed-zaman/tutorbook/libs/outbox"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/events"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/holds"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9081")
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

	pool, err := db.Open(ctx, dbURL, db.PoolOptions{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", true) {
		n, err := db.Migrate(ctx, pool, migrations.FS, ".", "scheduling_migrations")
		if err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
		logger.Info("migrations applied", "count", n)
	}

	brokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	sessionRepo := storage.NewSessionRepository(pool, outboxRepo)
	availabilityRepo := storage.NewAvailabilityRepository(pool)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", time.Second, 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go publisher.Run(ctx)

	paymentConsumer := kafkax.NewConsumer(logger, inbox.NewRepository(pool), kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", service),
		Topics:  []string{config.String("KAFKA_PAYMENT_SUCCEEDED_TOPIC", events.TopicPaymentSucceeded)},
	}, events.PaymentSucceeded(sessionRepo, logger))
	go paymentConsumer.Run(ctx)

	sweeper := holds.NewSweeper(sessionRepo, logger, holds.Config{
		Hold:     config.Duration("SESSION_HOLD_MINUTES", time.Minute, 30*time.Minute),
		Interval: config.Duration("HOLD_SWEEP_INTERVAL", time.Second, time.Minute),
	})
	go sweeper.Run(ctx)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	}
	limit := httpx.NewRateLimiter(config.Int("RATE_LIMIT_PER_MINUTE", 30), time.Minute).Middleware()
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer func() { _ = rdb.Close() }()
		rl := httpx.NewRedisRateLimiter(rdb, config.Int("RATE_LIMIT_PER_MINUTE", 30), time.Minute, "tb:rl:"+service)
		limit = rl.Middleware("sessions", logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	opts := handlers.Options{
		Granularity:    config.Duration("SLOT_GRANULARITY_MINUTES", time.Minute, 30*time.Minute),
		MaxHorizonDays: config.Int("SLOT_MAX_HORIZON_DAYS", 90),
	}
	availabilityHandler := handlers.NewAvailabilityHandler(availabilityRepo, sessionRepo, logger, opts)
	sessionHandler := handlers.NewSessionHandler(sessionRepo, availabilityRepo, logger, opts)
	courseHandler := handlers.NewCourseHandler(storage.NewCourseRepository(pool), logger)

	authed := httpx.RequireAuth(jwtSecret)
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.HandleFunc("GET /api/v1/terms", courseHandler.Terms)
	mux.HandleFunc("GET /api/v1/courses", courseHandler.List)
	mux.HandleFunc("GET /api/v1/tutors/{tutorID}/availability", availabilityHandler.Get)
	mux.HandleFunc("GET /api/v1/tutors/{tutorID}/slots", availabilityHandler.Slots)
	mux.HandleFunc("GET /api/v1/tutors/{tutorID}/sessions", availabilityHandler.TutorSessions)
	mux.Handle("PUT /api/v1/tutors/availability", httpx.Chain(http.HandlerFunc(availabilityHandler.Put),
		authed, httpx.RequireRole(auth.RoleTutor)))
	mux.Handle("POST /api/v1/sessions", httpx.Chain(http.HandlerFunc(sessionHandler.Create),
		authed, httpx.RequireRole(auth.RoleStudent), limit))
	mux.Handle("GET /api/v1/sessions", httpx.Chain(http.HandlerFunc(sessionHandler.List),
		authed, httpx.RequireRole(auth.RoleStudent, auth.RoleTutor)))
	mux.Handle("POST /api/v1/sessions/{sessionID}/cancel", httpx.Chain(http.HandlerFunc(sessionHandler.Cancel),
		authed, httpx.RequireRole(auth.RoleStudent, auth.RoleTutor)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
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
