package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/config"
	"github.com/md-rashed-zaman/tutorbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/tutorbook/libs/otel"
	"github.com/md-rashed-zaman/tutorbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type upstreams struct {
	Scheduling   *url.URL
	Payments     *url.URL
	Notification *url.URL
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
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

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady()
	registerRoutes(mux, jwtSecret, upstreams{
		Scheduling:   mustParseURL(config.String("SCHEDULING_URL", "http://scheduling-service:8081")),
		Payments:     mustParseURL(config.String("PAYMENTS_URL", "http://payment-service:8082")),
		Notification: mustParseURL(config.String("NOTIFICATION_URL", "http://notification-service:8085")),
	})

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "tb:rl:gateway"))
		rateLimitMW = rl.Middleware("gateway", logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DefaultCORSPolicy(config.List("CORS_ALLOWED_ORIGINS"))),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", time.Second, 20*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

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

// registerRoutes fronts the services. Upstreams verify tokens themselves; the gateway rejects
// requests without a valid token early on the routes that always need one.
func registerRoutes(mux *http.ServeMux, jwtSecret string, u upstreams) {
	schedulingProxy := newProxy(u.Scheduling)
	paymentsProxy := newProxy(u.Payments)
	notificationProxy := newProxy(u.Notification)
	authed := httpx.RequireAuth(jwtSecret)

	// Catalog, slots and availability are public reads; PUT availability is checked upstream.
	registerProxy(mux, "/api/v1/terms", schedulingProxy)
	registerProxy(mux, "/api/v1/courses", schedulingProxy)
	registerProxy(mux, "/api/v1/tutors", schedulingProxy)
	registerProxy(mux, "/api/v1/sessions", httpx.Chain(schedulingProxy, authed))
	// The processor reaches the webhook without a JWT; the signature is the auth.
	registerProxy(mux, "/api/v1/payments/webhooks/stripe", paymentsProxy)
	registerProxy(mux, "/api/v1/payments", httpx.Chain(paymentsProxy, authed))
	registerProxy(mux, "/api/v1/notifications", httpx.Chain(notificationProxy, authed))
}

func newProxy(target *url.URL) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = otelhttp.NewTransport(http.DefaultTransport)
	return p
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
