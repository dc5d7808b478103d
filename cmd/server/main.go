// Package main is the entry point of the application
package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/chess-sessions/internal/auth"
	"github.com/tecu23/chess-sessions/pkg/archive"
	"github.com/tecu23/chess-sessions/pkg/config"
	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/manager"
	"github.com/tecu23/chess-sessions/pkg/repository"
	"github.com/tecu23/chess-sessions/pkg/rules"
	"github.com/tecu23/chess-sessions/pkg/server"
)

// tokenDuration is the lifetime of tokens minted by the admin route
const tokenDuration = 24 * time.Hour

// application encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	JWT       *auth.JWTManager
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Manager   *manager.Manager
	Store     repository.Store
	Archive   *archive.PostgresArchive
	Hub       *server.Hub
	Server    *http.Server

	StartTime time.Time
}

func main() {
	// A missing .env is fine; the environment and flags still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		cobra.CheckErr(err)
	}

	cfg := &config.Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chess-sessions",
		Short: "Serves live two-player chess sessions over HTTP and websockets.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ApplyEnv(cmd.Flags()); err != nil {
				return err
			}
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	cfg.RegisterFlags(cmd.Flags())
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}

	return app.serve()
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	// Initialize event publisher
	publisher := events.NewPublisher()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := manager.Options{
		InvitationTTL: cfg.InvitationTTL,
		StaleAfter:    cfg.StaleAfter,
		Retention:     cfg.Retention,
	}

	var arch *archive.PostgresArchive
	if cfg.ArchiveDatabaseURL != "" {
		arch, err = archive.Connect(ctx, cfg.ArchiveDatabaseURL, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts.Archive = arch
		logger.Info("Archiving finished games to postgres")
	}

	m := manager.NewManager(logger, publisher, store, rules.NewChessOracle(), opts)

	return &application{
		Auth:      auth.NewAPIKeyAuth(auth.ParseKeys(cfg.APIKeys)),
		JWT:       auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, tokenDuration),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Manager:   m,
		Store:     store,
		Archive:   arch,
		Hub:       server.NewHub(m, publisher, logger),
		StartTime: time.Now(),
	}, nil
}

// openStore picks redis when a url is configured, memory otherwise
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.RedisURL == "" {
		logger.Info("Using in-memory store")
		return repository.NewInMemoryRepository(logger), nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := repository.DialRedis(dialCtx, cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Using redis store")

	return store, nil
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	// Shut down hub
	if app.Hub != nil {
		app.Hub.Shutdown()
	}

	if err := app.Store.Close(); err != nil {
		app.Logger.Warn("Failed to close store", zap.Error(err))
	}

	if app.Archive != nil {
		app.Archive.Close()
	}

	app.Logger.Info("All components shut down successfully")
}
