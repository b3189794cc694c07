package main

import (
	"context"
	"os"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"company-tasks-api/api"
	"company-tasks-api/config"
	"company-tasks-api/identity"
	"company-tasks-api/storage"
)

func main() {
	if err := config.LoadEnvFile(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	httpClient := storage.NewHTTPClient()
	if !cfg.HasServiceAccount() {
		logger.Warn("FIREBASE_CLIENT_EMAIL or FIREBASE_PRIVATE_KEY not set; document store calls will fail")
	}
	tokens := storage.NewTokenSource(storage.ServiceAccount{
		Email:      cfg.ClientEmail,
		PrivateKey: cfg.PrivateKey,
	}, cfg.TokenURL, httpClient)

	store, err := storage.New(storage.Options{
		BaseURL:    cfg.FirestoreBaseURL,
		ProjectID:  cfg.ProjectID,
		HTTPClient: httpClient,
		Tokens:     tokens,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	accounts, err := identity.New(identity.Options{
		BaseURL:    cfg.IdentityBaseURL,
		APIKey:     cfg.APIKey,
		HTTPClient: httpClient,
		Records:    store,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("identity: %v", err)
	}

	var verifier *identity.Verifier
	if cfg.AuthTestMode {
		logger.Warn("AUTH_TEST_MODE enabled; tokens are verified with TEST_JWT_SECRET")
		verifier = identity.NewVerifier(identity.VerifierConfig{
			ProjectID:  cfg.ProjectID,
			TestSecret: []byte(cfg.TestJWTSecret),
		})
	} else {
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = identity.DefaultJWKSURL
		}
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Warn("jwks refresh failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		verifier = identity.NewVerifier(identity.VerifierConfig{JWKS: jwks, ProjectID: cfg.ProjectID})
	}

	var cache storage.ResponseCache
	if cfg.RedisConnection != "" {
		redisOpts, err := config.RedisOptions(cfg.RedisConnection)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		cache = storage.NewRedisCache(rc, cfg.ResponseCacheTTL)
	} else {
		cache = storage.NewMemoryCache(cfg.ResponseCacheTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lister := storage.NewAggregator(store, cache, storage.AggregatorOptions{
		Limit:   cfg.FanOutLimit,
		Logger:  logger,
		Metrics: storage.NewMetrics(reg),
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "company_tasks",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	api.Register(e, api.Deps{
		Store:    store,
		Lister:   lister,
		Accounts: accounts,
		Auth:     verifier,
		Limiter:  api.NewRateLimiter(cfg.RateLimitPerMinute),
		Logger:   logger,
	})

	logger.WithField("port", cfg.Port).Info("listening")
	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
