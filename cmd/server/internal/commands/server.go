package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coterm/coterm/internal/auth"
	httpmiddleware "github.com/coterm/coterm/internal/http"
	"github.com/coterm/coterm/internal/logger"
	"github.com/coterm/coterm/internal/presence"
	"github.com/coterm/coterm/internal/runtime"
	"github.com/coterm/coterm/internal/server"
	"github.com/coterm/coterm/internal/store"
	memorystore "github.com/coterm/coterm/internal/store/memory"
	postgresstore "github.com/coterm/coterm/internal/store/postgres"
	"github.com/coterm/coterm/internal/telemetry"
	"github.com/rs/cors"
)

type ServerCmd struct {
	// Server configuration
	Listen      string   `help:"HTTP server listen address" default:"localhost:8090" env:"COTERM_LISTEN"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"COTERM_CORS_ORIGINS"`

	// Runtime service configuration
	RuntimeURL     string        `help:"runtime service base URL" default:"http://localhost:7070" env:"COTERM_RUNTIME_URL"`
	RuntimeTimeout time.Duration `help:"timeout for runtime service calls" default:"5s" env:"COTERM_RUNTIME_TIMEOUT"`

	// Auth configuration
	NoAuth    bool   `help:"disable ownership enforcement (development/local mode only)" default:"false" env:"COTERM_NO_AUTH"`
	JWTSecret string `help:"shared secret for verifying identity bearer tokens" default:"" env:"COTERM_JWT_SECRET"`

	// Presence configuration
	PresenceTTL           time.Duration `help:"evict participants with no heartbeat for this long" default:"90s" env:"COTERM_PRESENCE_TTL"`
	PresenceSweepInterval time.Duration `help:"interval between stale participant sweeps" default:"30s" env:"COTERM_PRESENCE_SWEEP_INTERVAL"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"COTERM_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"COTERM_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"COTERM_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if !c.NoAuth && c.JWTSecret == "" {
		return errors.New("a JWT secret is required unless --no-auth is set (--jwt-secret or COTERM_JWT_SECRET)")
	}

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "coterm-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	// Create stores based on store type
	var (
		sessionStore store.SessionStore
		tokenStore   store.ShareTokenStore
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create store pool: %w", err)
		}
		defer pool.Close()

		if c.PostgresStore.AutoMigrate {
			if err := postgresstore.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		sessionStore = postgresstore.NewSessionStore(pool)
		tokenStore = postgresstore.NewShareTokenStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

	default:
		sessionStore = memorystore.NewSessionStore()
		tokenStore = memorystore.NewShareTokenStore()
		log.Info().Msg("Using in-memory stores")
	}

	// Presence is in-process only; start its stale sweeper
	presenceManager := presence.NewManager()
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go presenceManager.RunSweeper(sweepCtx, c.PresenceSweepInterval, c.PresenceTTL, log)

	runtimeClient := runtime.NewClient(c.RuntimeURL, c.RuntimeTimeout, log)

	srv := server.NewServer(sessionStore, tokenStore, presenceManager, runtimeClient, c.NoAuth)

	// Identity middleware resolves bearer tokens; no-auth mode skips it
	// entirely and every request bypasses ownership checks
	identityMiddleware := func(next http.Handler) http.Handler { return next }
	if c.NoAuth {
		log.Warn().Msg("Ownership enforcement is disabled (--no-auth). This should only be used in development!")
	} else {
		identityMiddleware = auth.Middleware([]byte(c.JWTSecret))
	}

	handler := httpmiddleware.ClientIPMiddleware()(
		logger.NewHTTPRequests(log)(
			identityMiddleware(srv.Handler())))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   c.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", httpmiddleware.ShareTokenHeader},
		AllowCredentials: true,
	})

	log.Info().
		Str("addr", c.Listen).
		Str("runtime_url", c.RuntimeURL).
		Bool("auth", !c.NoAuth).
		Msg("Starting HTTP server")

	return configureHTTPServer(c.Listen, corsMiddleware.Handler(handler)).ListenAndServe()
}
