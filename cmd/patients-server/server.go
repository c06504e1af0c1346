package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/domain/user"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/reporting"
	"github.com/ehr/patients/internal/platform/web"
)

const version = "0.1.0"

// newServer builds the echo instance with every route and middleware
// mounted. The store must already be migrated.
func newServer(cfg *config.Config, st *store, tokens *auth.TokenIssuer, logger zerolog.Logger) (*echo.Echo, error) {
	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.HTTPErrorHandler = web.HTTPErrorHandler(logger)

	cookies := auth.CookieConfig{Secure: cfg.CookieSecure, TTL: tokens.TTL()}

	// Global middleware
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.CookieSecure))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.Authenticate(tokens, cookies))
	e.Use(st.session())
	e.Use(middleware.Audit(logger, st.auditRecorder()))

	e.StaticFS("/static", web.StaticFS())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(st.checker()))
	e.GET("/favicon.ico", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/", func(c echo.Context) error {
		if auth.IdentityFromContext(c.Request().Context()) == nil {
			return c.Redirect(http.StatusFound, "/login")
		}
		return c.Redirect(http.StatusFound, "/dashboard")
	})

	// Accounts
	userSvc := user.NewService(st.users(), tokens)
	limitCfg := middleware.DefaultLoginRateLimit()
	if cfg.LoginRatePerMinute > 0 {
		limitCfg.PerMinute = cfg.LoginRatePerMinute
	}
	loginLimit := middleware.RateLimit(limitCfg, http.MethodPost)
	user.NewHandler(userSvc, cookies, logger).RegisterRoutes(e, loginLimit)

	// Patients
	patientRepo := st.patients()
	patientSvc := patient.NewService(patientRepo)
	patient.NewHandler(patientSvc, userSvc, logger).
		RegisterRoutes(e, middleware.BodyLimit(cfg.ImportBodyLimit))

	// Dashboard and export
	reporting.NewHandler(reporting.NewService(patientRepo), logger).RegisterRoutes(e)

	logger.Info().Str("driver", st.driver).Msg("routes registered")
	return e, nil
}
