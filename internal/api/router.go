package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/quizbuster/quizbuster-api/docs"
	"github.com/quizbuster/quizbuster-api/internal/api/handler"
	"github.com/quizbuster/quizbuster-api/internal/api/middleware"
	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Auth  ports.AuthService
	Score ports.ScoreService
	Users ports.UserService

	// Ready lists the dependencies pinged by /health/ready, keyed by name.
	Ready map[string]handler.Pinger

	CORSOrigins     []string
	LeaderboardSize int
	Log             zerolog.Logger

	// Registry receives the HTTP metrics. Nil means the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if d.Registry != nil {
		registerer, gatherer = d.Registry, d.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Log))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     d.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handler.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{handler.HeaderIdempotentReplayed},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "quizbuster",
		Registerer: registerer,
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(d.Auth)
	scoreHandler := handler.NewScoreHandler(d.Score, d.LeaderboardSize)
	userHandler := handler.NewUserHandler(d.Users)
	authMiddleware := middleware.Auth(d.Auth)

	// --- Auth routes ---
	e.POST("/register", authHandler.Register)
	e.POST("/token", authHandler.Login)

	// --- Score routes ---
	e.GET("/score", scoreHandler.Leaderboard)

	user := e.Group("/user", authMiddleware)
	user.GET("/me", userHandler.Me)
	user.PATCH("/score", scoreHandler.Update)

	// --- Admin routes ---
	admin := e.Group("/admin", authMiddleware, middleware.RBAC(domain.RoleAdmin))
	admin.DELETE("/users/:username", userHandler.Delete)

	// --- Health probes (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	healthDepsHandler := handler.NewHealthDependenciesHandler(d.Ready)

	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthDepsHandler.Readiness)

	// --- Operations ---
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

// requestLogger writes one zerolog event per request. Tokens and bodies are
// never logged.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			lvl := zerolog.InfoLevel
			switch {
			case v.Status >= 500:
				lvl = zerolog.ErrorLevel
			case v.Status >= 400:
				lvl = zerolog.WarnLevel
			}
			log.WithLevel(lvl).
				Err(v.Error).
				Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
