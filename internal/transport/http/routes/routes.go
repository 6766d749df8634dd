package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/infra/config"
	"github.com/atymri/Promptino/internal/transport/http/handlers"
	"github.com/atymri/Promptino/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on. Registration and
// PasswordReset are optional; their routes are omitted when nil.
type ServiceSet struct {
	Auth          handlers.Authenticator
	Registration  handlers.Registrar
	PasswordReset handlers.PasswordResetter
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Services    ServiceSet
	Tokens      middleware.AccessTokenParser
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Tracing())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(deps.Metrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", metricsHandler(deps.Gatherer))

	if deps.Services.Auth == nil {
		return r
	}

	authHandler := handlers.NewAuthHandler(deps.Services.Auth,
		handlers.WithRegistrationService(deps.Services.Registration),
		handlers.WithPasswordResetService(deps.Services.PasswordReset),
		handlers.WithLogger(deps.Logger),
	)

	routeMiddlewares := handlers.RouteMiddlewares{
		Login:          limit(deps.RateLimiter, loginRule(cfg.RateLimit)),
		ForgotPassword: limit(deps.RateLimiter, forgotPasswordRule(cfg.RateLimit)),
	}
	if deps.Tokens != nil {
		routeMiddlewares.RequireAuth = middleware.RequireAuth(deps.Tokens)
	}

	api := r.Group("/api/v1")
	authHandler.RegisterRoutes(api.Group("/auth"), routeMiddlewares)

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) gin.HandlerFunc {
	if gatherer == nil {
		return gin.WrapH(promhttp.Handler())
	}
	return gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

func limit(limiter *middleware.RateLimiter, rule middleware.RateLimitRule) []gin.HandlerFunc {
	if limiter == nil {
		return nil
	}
	return []gin.HandlerFunc{limiter.Limit(rule)}
}

func loginRule(cfg config.RateLimitSettings) middleware.RateLimitRule {
	return middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      cfg.LoginMaxAttempts,
		Window:     cfg.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	}
}

func forgotPasswordRule(cfg config.RateLimitSettings) middleware.RateLimitRule {
	return middleware.RateLimitRule{
		Name:       "auth_forgot_password_ip",
		Limit:      cfg.ForgotPasswordMaxAttempts,
		Window:     cfg.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	}
}
