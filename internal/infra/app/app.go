package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/core/port"
	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/database"
	kafkainfra "github.com/zaedhealth/identity-service/internal/infra/kafka"
	"github.com/zaedhealth/identity-service/internal/infra/logger"
	redisinfra "github.com/zaedhealth/identity-service/internal/infra/redis"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	"github.com/zaedhealth/identity-service/internal/infra/sms"
	"github.com/zaedhealth/identity-service/internal/infra/telemetry"
	postgresrepo "github.com/zaedhealth/identity-service/internal/repository/postgres"
	redisrepo "github.com/zaedhealth/identity-service/internal/repository/redis"
	"github.com/zaedhealth/identity-service/internal/transport/http/routes"
	"github.com/zaedhealth/identity-service/internal/usecase"
)

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	if cfg.JWT.Secret == "" {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("jwt secret is required")
	}

	signer := security.NewHMACSigner(cfg.JWT.Secret)
	tokenService := security.NewTokenService(
		signer,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.TempTokenTTL,
		cfg.JWT.PendingTokenTTL,
	)

	hasher := security.NewArgon2Hasher(security.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})

	totpProvider := security.NewTOTPProvider(cfg.TwoFactor.Issuer)

	repos := postgresrepo.NewRepositories(pool)
	ephemeralStore := redisrepo.NewEphemeralStore(redisClient.Client(), cfg.Redis.KeyPrefix)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var gateway port.SMSGateway = sms.NewConsoleGateway(log)
	if cfg.SMS.MaxRetries > 0 {
		gateway = sms.NewRetryingGateway(gateway, cfg.SMS.MaxRetries, cfg.SMS.BaseDelay, log)
	}

	sessionService := usecase.NewSessionService(tokenService, repos.Tokens, repos.Users, repos.Audit, eventPublisher, log)

	twoFactorService := usecase.NewTwoFactorService(
		repos.TwoFactor,
		repos.Users,
		hasher,
		totpProvider,
		cfg.TwoFactor.RecoveryCodeCount,
		repos.Audit,
		eventPublisher,
		log,
	)

	authService := usecase.NewAuthService(
		cfg.Lockout,
		repos.Users,
		repos.Credentials,
		hasher,
		tokenService,
		sessionService,
		twoFactorService,
		repos.Audit,
		eventPublisher,
		log,
	)

	otpService := usecase.NewOTPService(
		ephemeralStore,
		hasher,
		gateway,
		tokenService,
		cfg.OTP,
		repos.Audit,
		eventPublisher,
		log,
	)

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Tokens:   tokenService,
		Registry: metrics.Registry(),
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Sessions:  sessionService,
			TwoFactor: twoFactorService,
			OTP:       otpService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP traffic until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
