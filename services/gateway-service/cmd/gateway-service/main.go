package main

import (
	"net/url"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/libs/redisx"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	shutdownTracing := otelx.Bootstrap(ctx, logger, service)
	defer shutdownTracing()

	verifier := auth.Verifier{Secret: config.String("JWT_SECRET", "dev-secret")}
	if jwksURL := config.String("JWKS_URL", ""); jwksURL != "" {
		verifier.Keys = auth.NewJWKSClient(jwksURL, config.Duration("JWKS_CACHE_TTL", 5*time.Minute))
		logger.Info("rs256 verification enabled", "jwks_url", jwksURL)
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60, 1)
	var rdb *redis.Client
	var rateLimitMW httpx.Middleware
	if opts := redisx.OptionsFromEnv(); opts.Enabled() {
		rdb = opts.Client()
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", opts.Addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
	)
	registerRoutes(mux, Upstreams{
		Auth:      mustParseURL(config.String("AUTH_URL", "http://auth-service:8081")),
		Booking:   mustParseURL(config.String("BOOKING_URL", "http://booking-service:8083")),
		Analytics: mustParseURL(config.String("ANALYTICS_URL", "http://analytics-service:8086")),
	}, verifier)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PATCH,DELETE,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key"),
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE", 10*time.Minute),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 15*time.Second)),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	runtime.Serve(ctx, logger, runtime.NewServer(port, handler))
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}
