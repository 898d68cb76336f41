package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zaedhealth/identity-service/internal/infra/config"
	"github.com/zaedhealth/identity-service/internal/infra/security"
	"github.com/zaedhealth/identity-service/internal/transport/http/handlers"
	"github.com/zaedhealth/identity-service/internal/transport/http/middleware"
	"github.com/zaedhealth/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Sessions  *usecase.SessionService
	TwoFactor *usecase.TwoFactorService
	OTP       *usecase.OTPService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Tokens   *security.TokenService
	Registry *prometheus.Registry
	Database DatabaseChecker
	Cache    CacheChecker
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
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSAllowedOrigins))

	if deps.Registry != nil {
		namespace := ""
		if deps.Config != nil {
			namespace = deps.Config.Telemetry.MetricsNamespace
		}
		httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
			Registerer: deps.Registry,
			Namespace:  namespace,
		})
		if err != nil {
			deps.Logger.Warn("failed to register http metrics", zap.Error(err))
		} else {
			r.Use(httpMetrics.Handler())
		}
	}

	healthOptions := make([]handlers.HealthHandlerOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	{
		requireAuth := middleware.RequireAuth(deps.Tokens)

		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Sessions)
		authHandler.RegisterRoutes(authGroup, requireAuth)

		otpHandler := handlers.NewOTPHandler(deps.Services.OTP)
		otpHandler.RegisterRoutes(authGroup)

		twoFactorGroup := authGroup.Group("/2fa")
		twoFactorGroup.Use(requireAuth)
		twoFactorHandler := handlers.NewTwoFactorHandler(deps.Services.TwoFactor)
		twoFactorHandler.RegisterRoutes(twoFactorGroup)
	}

	return r
}
