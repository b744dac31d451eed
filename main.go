package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"workboard-api/analytics"
	"workboard-api/api"
	"workboard-api/config"
	"workboard-api/storage"
)

const (
	defaultRateLimit       = 100
	defaultRateLimitWindow = 15 * time.Minute
)

type boardStore interface {
	api.Storage
	analytics.BoardLoader
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx := context.Background()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	var (
		store       boardStore
		mongoClient *mongo.Client
	)
	switch cfg.StorageBackend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		ms, client, err := storage.NewMongo(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.BoardsCollection)
		if err == nil {
			err = ms.EnsureIndexes(connectCtx)
		}
		cancel()
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store, mongoClient = ms, client
	case config.BackendTables:
		ts, err := storage.NewTableStore(cfg.StorageConnectionString, cfg.BoardsTable)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = ts
	}

	summarizer, err := analytics.New(cfg.AnalyticsStrategy, store)
	if err != nil {
		log.Fatalf("analytics: %v", err)
	}

	var deduper api.Deduper
	if cfg.RedisConnectionString != "" {
		rc := redis.NewClient(redisOptions(cfg.RedisConnectionString))
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.IdempotencyTTL)
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; idempotency keys are ignored")
	}

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	logger := log.StandardLogger()

	var feed *api.ActivityFeed
	if cfg.ActivityQueue != "" {
		q, err := storage.NewActivityQueue(cfg.StorageConnectionString, cfg.ActivityQueue)
		if err != nil {
			log.Fatalf("activity queue: %v", err)
		}
		feed = api.NewActivityFeed(q, logger, api.FeedOptions{
			Workers: cfg.ActivityWorkers,
			Buffer:  cfg.ActivityBuffer,
		})
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Use(rateLimiter(cfg.RateLimitPerMinute))
	if cfg.Debug {
		pprof.Register(e)
	}

	api.Register(e, api.Deps{
		Store:     store,
		Analytics: summarizer,
		Auth:      auth,
		Deduper:   deduper,
		Activity:  feed,
		Logger:    logger,
	})

	listenAddr := ":" + cfg.Port
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(listenAddr)
	}()

	select {
	case <-sigCtx.Done():
		log.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server stopped unexpectedly: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}
	feed.Close()
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			log.Warnf("mongo disconnect: %v", err)
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnf("tracer shutdown: %v", err)
	}
}

func newAuth(cfg config.Config) (*api.Auth, error) {
	if secret := cfg.SharedSecret(); secret != "" {
		log.Warn("bearer tokens verified with a shared HS256 secret")
		return api.NewAuth(nil, api.AuthOptions{
			Audience:     cfg.Auth0Audience,
			SharedSecret: secret,
		}), nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			log.Warnf("jwks refresh: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, api.AuthOptions{
		Audience:    cfg.Auth0Audience,
		Issuer:      "https://" + cfg.Auth0Domain + "/",
		KeyCacheTTL: cfg.JWKSCacheTTL,
	}), nil
}

// redisOptions accepts a redis:// URL or an Azure-style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

// rateLimiter limits each client IP. perMinute <= 0 keeps the default of 100
// requests per 15 minutes.
func rateLimiter(perMinute int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(rateLimiterConfig(perMinute))
}

func rateLimiterConfig(perMinute int) middleware.RateLimiterConfig {
	limit := rate.Limit(float64(defaultRateLimit) / defaultRateLimitWindow.Seconds())
	burst := defaultRateLimit
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
		burst = perMinute
	}
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool { return c.Path() == "/health" },
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      limit,
			Burst:     burst,
			ExpiresIn: defaultRateLimitWindow,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			log.WithError(err).Error("rate limiter identifier")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server error"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests, please try again later."})
		},
	}
}
