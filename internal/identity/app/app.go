package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/campushq/identity/internal/identity/http"
	"github.com/campushq/identity/internal/identity/idp"
	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/internal/identity/store/drivers/sqlite"
	"github.com/campushq/identity/pkg/cryptox"
	"github.com/campushq/identity/pkg/httpx"
	"github.com/campushq/identity/pkg/jwtx"
	"github.com/campushq/identity/pkg/slogx"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// BuildVersion is overridden at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the identity service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db    store.Store
	codec *jwtx.Codec

	// Services
	sessionService    *service.SessionService
	federationService *service.FederationService
	authorizeService  *service.AuthorizeService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity-service",
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

	if err := app.initCodec(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("identity service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCodec builds the per-kind token codec from configured signing
// material. Missing secrets are a startup failure, not a runtime one.
func (app *Application) initCodec() error {
	kinds := map[jwtx.Kind]jwtx.KeyConfig{
		jwtx.KindAccess:   keyConfig(app.cfg.Access),
		jwtx.KindRefresh:  keyConfig(app.cfg.Refresh),
		jwtx.KindExchange: keyConfig(app.cfg.Exchange),
	}

	codec, err := jwtx.NewCodec(kinds)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec
	return nil
}

func keyConfig(c TokenKindConfig) jwtx.KeyConfig {
	return jwtx.KeyConfig{
		Secret:   []byte(c.Secret),
		Issuer:   c.Issuer,
		Audience: c.Audience,
		TTL:      c.TTL,
		Leeway:   c.Leeway,
	}
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	attempts := &service.AttemptRecorder{
		Store:    app.db,
		Blocking: app.cfg.AttemptRecordingBlocks,
	}

	app.sessionService = &service.SessionService{
		Codec:    app.codec,
		Store:    app.db,
		Attempts: attempts,
	}

	idpClient := idp.NewClient(
		idp.WithHTTPClient(&http.Client{Timeout: app.cfg.IdPTimeout}),
		idp.WithRetries(app.cfg.IdPRetries),
	)

	app.federationService = &service.FederationService{
		Store:       app.db,
		IdP:         idpClient,
		Codec:       app.codec,
		Cache:       gocache.New(app.cfg.FederationCache, 5*time.Minute),
		StateTTL:    app.cfg.SSOStateTTL,
		CompleteURL: app.cfg.SSOCompleteURL,
	}

	app.authorizeService = &service.AuthorizeService{Store: app.db}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	cookie := httpx.CookieConfig{
		Name:     app.cfg.CookieName,
		Domain:   app.cfg.CookieDomain,
		SameSite: app.cfg.CookieSameSite,
		Secure:   app.cfg.CookieSecure,
		TTL:      app.cfg.CookieTTL,
	}

	router := httpapi.NewRouter(app.codec, cookie, BuildVersion, app.db, app.logger)
	router.SessionService = app.sessionService
	router.FederationService = app.federationService
	router.AuthorizeService = app.authorizeService
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
