package api

import (
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/bestheroz/account-service/internal/docs"

	"github.com/bestheroz/account-service/internal/api/handler"
	"github.com/bestheroz/account-service/internal/api/middleware"
	"github.com/bestheroz/account-service/internal/core/domain"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger      zerolog.Logger
	Tokens      middleware.AccessTokenParser
	Admins      *handler.AccountHandler
	Users       *handler.AccountHandler
	Health      *handler.HealthHandler
	CORSOrigins []string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(requestLogger(d.Logger))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:  d.CORSOrigins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, handler.RenewTokenHeader},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	e.Use(echoprometheus.NewMiddleware("account"))

	// --- Health probes, metrics and docs (no auth required) ---
	e.GET("/health", d.Health.Liveness)
	e.GET("/health/ready", d.Health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Account routes ---
	v1 := e.Group("/api/v1")
	mountAccounts(v1.Group("/admins"), domain.KindAdmin, d.Admins, d.Tokens)
	mountAccounts(v1.Group("/users"), domain.KindUser, d.Users, d.Tokens)

	return e
}

func mountAccounts(g *echo.Group, kind domain.Kind, h *handler.AccountHandler, tokens middleware.AccessTokenParser) {
	g.POST("/login", h.Login)
	g.GET("/renew-token", h.RenewToken)
	g.GET("/check-login-id", h.CheckLoginID)

	auth := middleware.Auth(tokens)
	view := middleware.RequireAuthority(domain.ViewAuthority(kind))
	edit := middleware.RequireAuthority(domain.EditAuthority(kind))

	g.DELETE("/logout", h.Logout, auth, middleware.RequireKind(kind))

	g.GET("", h.List, auth, view)
	g.GET("/:id", h.Get, auth, view)
	g.POST("", h.Create, auth, edit)
	g.PUT("/:id", h.Update, auth, edit)
	g.PATCH("/:id/password", h.ChangePassword, auth, edit)
	g.DELETE("/:id", h.Remove, auth, edit)
}

// requestLogger writes one access log line per request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil || v.Status >= 500 {
				ev = log.Error().Err(v.Error)
			}
			ev.Str("request_id", v.RequestID).
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
