package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/config"
	"github.com/atymri/Promptino/internal/infra/database"
	kafkainfra "github.com/atymri/Promptino/internal/infra/kafka"
	"github.com/atymri/Promptino/internal/infra/logger"
	"github.com/atymri/Promptino/internal/infra/mail"
	redisinfra "github.com/atymri/Promptino/internal/infra/redis"
	"github.com/atymri/Promptino/internal/infra/security"
	"github.com/atymri/Promptino/internal/infra/telemetry"
	postgresrepo "github.com/atymri/Promptino/internal/repository/postgres"
	redisrepo "github.com/atymri/Promptino/internal/repository/redis"
	"github.com/atymri/Promptino/internal/transport/http/middleware"
	"github.com/atymri/Promptino/internal/transport/http/routes"
	"github.com/atymri/Promptino/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application owns the HTTP engine and every connection it depends on.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

// New connects the backing stores, seeds defaults and builds the router. Anything already
// opened is released when a later step fails.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.build(ctx); err != nil {
		a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	if cfg.Telemetry.Enabled {
		tracer, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tracer
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	repos := postgresrepo.NewRepositories(pool)
	oneTimeTokens := redisrepo.NewOneTimeTokenRepository(redisClient.Client(), cfg.Redis.TokenPrefix)
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       2 * max(cfg.RateLimit.WindowDuration, cfg.RateLimit.ForgotPasswordWindow, time.Minute),
	})

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("init password hasher: %w", err)
	}
	passwordPolicy := security.DefaultPasswordPolicy(cfg.Password.MinStrengthScore)

	signer, err := security.NewTokenSigner(security.SignerOptions{
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		Secret:     cfg.JWT.SecretKey,
		AccessTTL:  cfg.JWT.AccessTokenTTL(),
		RefreshTTL: cfg.JWT.RefreshTokenTTL(),
	}, repos.Roles)
	if err != nil {
		return fmt.Errorf("init token signer: %w", err)
	}

	events := a.eventPublisher()
	notifier, err := a.notifier()
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}

	authMetrics := telemetry.NewAuthMetrics(prometheus.DefaultRegisterer)
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: prometheus.DefaultRegisterer})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	authService := usecase.NewAuthService(repos.Accounts, repos.Roles, signer, hasher, usecase.LockoutPolicyFromConfig(cfg.Lockout)).
		WithEvents(events).
		WithObserver(authMetrics).
		WithLogger(log)

	registrationService := usecase.NewRegistrationService(
		repos.Accounts,
		repos.Roles,
		oneTimeTokens,
		notifier,
		hasher,
		passwordPolicy,
		signer,
		usecase.RegistrationOptions{
			ConfirmationURL: cfg.Mail.ConfirmationURL,
			ConfirmationTTL: cfg.Tokens.ConfirmationTTL,
			ExposeToken:     cfg.App.IsDevelopment(),
		},
	).WithEvents(events).WithLogger(log)

	passwordResetService := usecase.NewPasswordResetService(
		repos.Accounts,
		oneTimeTokens,
		notifier,
		hasher,
		passwordPolicy,
		rateLimitStore,
		usecase.PasswordResetOptions{
			ResetTTL:    cfg.Tokens.ResetTTL,
			MaxAttempts: cfg.RateLimit.ForgotPasswordMaxAttempts,
			Window:      cfg.RateLimit.ForgotPasswordWindow,
		},
	).WithEvents(events).WithLogger(log)

	seeder := usecase.NewSeeder(repos.Accounts, repos.Roles, hasher, usecase.AdminAccount{
		Email:     cfg.Bootstrap.AdminEmail,
		Password:  cfg.Bootstrap.AdminPassword,
		FirstName: cfg.Bootstrap.AdminFirstName,
		LastName:  cfg.Bootstrap.AdminLastName,
		Phone:     cfg.Bootstrap.AdminPhone,
	}, log).WithTransactor(repos.Tx)
	if err := seeder.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(rateLimitStore, log),
		Metrics:     httpMetrics,
		Tokens:      signer,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			PasswordReset: passwordResetService,
		},
	})

	return nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.logger.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(a.logger)
	}

	producer, err := kafkainfra.NewProducer(a.cfg.Kafka, a.logger)
	if err != nil {
		a.logger.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(a.logger)
	}

	a.producer = producer
	a.logger.Info("kafka event publisher initialized", zap.Strings("brokers", a.cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, a.cfg.App, a.logger)
}

func (a *Application) notifier() (port.Notifier, error) {
	if a.cfg.Mail.Host == "" {
		a.logger.Warn("mail host not configured, links will only be logged")
		return mail.NewLogNotifier(a.logger), nil
	}

	sender, err := mail.NewSender(a.cfg.Mail)
	if err != nil {
		return nil, err
	}
	notifier, err := mail.NewNotifier(sender, a.logger)
	if err != nil {
		return nil, err
	}
	return notifier, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer a.release(context.Background())

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, strconv.Itoa(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting Promptino auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		a.logger.Info("server stopped")
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// release closes whatever build managed to open, in reverse order.
func (a *Application) release(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
