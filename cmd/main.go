/*
Package main is the entry point for the Parley chat server.

It is responsible for loading configuration, initializing the global logging system,
opening storage, setting up the HTTP server, starting the WebSocket Hub and the presence
sweeper, and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"parley/internal/app/db"
	"parley/internal/app/store"
	"parley/internal/app/store/memstore"
	"parley/internal/configs"
	"parley/internal/handler"
	"parley/internal/pkg/logx"
	"parley/internal/storage"
	"parley/internal/storage/memory"
	"parley/internal/storage/redis"
)

const shutdownTimeout = 5 * time.Second

func main() {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Parley real-time chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and WebSocket server",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:       "migrate [up|down|status|reset]",
			Short:     "Apply or inspect PostgreSQL schema migrations",
			Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"up", "down", "status", "reset"},
			RunE:      runMigrate,
		},
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes the global logger.
func setup() (*configs.AppConfig, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logx.InitGlobalLogger(cfg.LogLevel, cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("storage_driver", cfg.StorageDriver).
		Bool("redis", cfg.RedisURL != "").
		Int("pow_difficulty", cfg.PowDifficulty).
		Msg("Configuration loaded successfully")

	return cfg, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	if cfg.StorageDriver != configs.DriverPostgres {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", configs.DriverPostgres)
	}

	command := "up"
	if len(args) == 1 {
		command = args[0]
	}

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	return db.Migrate(cmd.Context(), pool, command)
}

// openStore opens the configured chat store.
func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	if cfg.StorageDriver == configs.DriverMemory {
		logx.Warn("Using in-memory storage; data is lost on restart")
		return memstore.New(), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool, "up"); err != nil {
		pool.Close()
		return nil, err
	}

	return db.New(pool), nil
}

// openKeyStore opens the proof-of-work challenge store.
func openKeyStore(ctx context.Context, cfg *configs.AppConfig) (storage.KeyStore, error) {
	if cfg.RedisURL == "" {
		return memory.New(), nil
	}
	keys, err := redis.New(ctx, cfg.RedisURL, "parley:")
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := openKeyStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := keys.Close(); err != nil {
			logx.Error(err, "Failed to close challenge store")
		}
	}()

	deps := handler.NewAppDeps(cfg, st, keys)

	hubCtx, stopHub := context.WithCancel(context.Background())
	deps.Start(hubCtx)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logx.Info("Parley server starting", "addr", "http://localhost"+serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	select {
	case <-ctx.Done():
		logx.Info("Received shutdown signal. Starting graceful shutdown...")
	case err := <-serveErr:
		stopHub()
		deps.Wait()
		return fmt.Errorf("server failed to start: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Live WebSocket connections are hijacked and not tracked by Shutdown.
	stopHub()
	deps.Wait()

	logx.Info("Server gracefully stopped.")
	return nil
}
