package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/tabauth/internal/auth/http"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       *sqlite.Store
	redis    *redis.Store
	sessions store.Sessions
	revokes  store.Revocations
	sweepers []service.Sweeper

	// Services
	auth                *service.AuthService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initBackends(context.Background()); err != nil {
		app.closeBackends()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Logger returns the configured root logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Auth exposes the orchestrator for the CLI.
func (app *Application) Auth() *service.AuthService { return app.auth }

// Handler is the fully wired HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"sessions", app.cfg.SessionBackend,
		"revocations", app.cfg.RevocationBackend,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeBackends()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// Close releases the backends of an application that was never Run.
func (app *Application) Close() error {
	return app.closeBackends()
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
			errs = append(errs, err)
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
		app.db = nil
	}
	return errors.Join(errs...)
}

// initDatabase opens the credential store and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// Migrate applies the SQLite migrations and reports the resulting version.
func Migrate(cfg Config) (version uint, dirty bool, err error) {
	db, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return 0, false, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.ApplyMigrations(); err != nil {
		return 0, false, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return db.MigrationVersion()
}

// initBackends picks the session and revocation stores. Backends without
// native expiry are registered with housekeeping.
func (app *Application) initBackends(ctx context.Context) error {
	if app.cfg.usesRedis() {
		rs, err := redis.NewStore(ctx, redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redis = rs
	}

	switch app.cfg.SessionBackend {
	case BackendRedis:
		app.sessions = app.redis
	default:
		mem := memory.NewSessions()
		app.sessions = mem
		app.sweepers = append(app.sweepers, service.Sweeper{Name: "sessions", ExpirySweeper: mem})
	}

	switch app.cfg.RevocationBackend {
	case BackendRedis:
		app.revokes = app.redis
	default:
		app.revokes = app.db.Revocations()
		app.sweepers = append(app.sweepers, service.Sweeper{Name: "revocations", ExpirySweeper: app.db.RevocationSweeper()})
	}

	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	tokens, err := service.NewTokenService(service.TokenConfig{
		Issuer:        app.cfg.Issuer,
		AccessSecret:  app.cfg.AccessTokenSecret,
		RefreshSecret: app.cfg.RefreshTokenSecret,
		AccessTTL:     app.cfg.AccessTokenTTL.Duration(),
		RefreshTTL:    app.cfg.RefreshTokenTTL.Duration(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	totp := service.NewTOTPService(app.cfg.TOTPIssuer)
	totp.Skew = app.cfg.TOTPWindow

	app.auth = &service.AuthService{
		Store:       app.db,
		Tokens:      tokens,
		TOTP:        totp,
		Revocations: service.NewRevocationRegistry(app.revokes, tokens),
		Sessions:    service.NewSessionManager(app.sessions, app.cfg.SessionTTL.Duration()),
		DefaultRole: app.cfg.DefaultRole,
	}
	if app.cfg.ProviderVerification {
		app.auth.Providers = service.NewUserInfoVerifier()
	} else {
		app.logger.Warn("provider verification disabled, OAuth identities are trusted as sent")
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.logger,
		app.cfg.HousekeepingInterval,
		app.sweepers...,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.auth, httpapi.CookieConfig{
		Secure: app.cfg.CookieSecure,
		MaxAge: app.cfg.SessionTTL.Duration(),
	}, BuildVersion, app.logger)

	router.Readiness = httpapi.ReadinessChecks{
		Database:    app.db,
		Sessions:    app.sessions,
		Revocations: app.db,
	}
	if app.cfg.RevocationBackend == BackendRedis {
		router.Readiness.Revocations = app.redis
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
