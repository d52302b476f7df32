/*
main.go - Application entry point

PURPOSE:
  Starts the ledger engine HTTP service and provides the operator commands
  that work on tenant books directly.

COMMANDS:
  serve     Run the HTTP API (default when no command is given)
  seed      Load a demo scenario into an empty tenant
  rebuild   Recompute cached balances from the entry log

STARTUP SEQUENCE (serve):
  1. Load .env and LEDGER_* environment
  2. Build the zerolog logger
  3. Load the chart definition (embedded default or LEDGER_CHART_FILE)
  4. Create the tenant manager (one SQLite file per tenant)
  5. Configure the router and start the server

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close every open tenant database
  4. Exit

EXAMPLES:
  # Run with the defaults (./data, port 8080)
  ./server serve

  # Run on a different port with a different data directory
  ./server serve --port=3000 --data-dir=/var/lib/ledger

  # Load demo data, then check caches for every tenant
  ./server seed --tenant=demo --scenario=pharmacy-month
  ./server rebuild

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - tenant/tenant.go: Per-tenant wiring
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/factory"
	"github.com/warp/ledger-engine/tenant"
)

var envFile string

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Double-entry ledger engine for the pharmacy ERP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), 0, "")
		},
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file to load before reading LEDGER_* variables")

	root.AddCommand(newServeCommand())
	root.AddCommand(newSeedCommand())
	root.AddCommand(newRebuildCommand())
	return root
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCommand() *cobra.Command {
	var (
		port    int
		dataDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, dataDir)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides LEDGER_PORT)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "tenant database directory (overrides LEDGER_DATA_DIR)")
	return cmd
}

func runServe(ctx context.Context, port int, dataDir string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	env, err := setup(cfg)
	if err != nil {
		return err
	}
	defer env.close()
	logger := env.logger

	handler := api.NewHandler(env.tenants, cfg.DefaultTenant)
	router := api.NewRouter(handler, api.RouterOptions{Logger: logger, CORSOrigins: cfg.CORSOrigins})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// =============================================================================
// SEED / REBUILD
// =============================================================================

func newSeedCommand() *cobra.Command {
	var tenantID, scenario string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo scenario into an empty tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			env, err := setup(cfg)
			if err != nil {
				return err
			}
			defer env.close()

			ctx := cmd.Context()
			ws, err := env.tenants.Get(ctx, tenantID)
			if err != nil {
				return err
			}
			if err := api.RunScenario(ctx, ws, scenario); err != nil {
				return fmt.Errorf("seed %s: %w", tenantID, err)
			}
			env.logger.Info().Str("tenant", tenantID).Str("scenario", scenario).Msg("scenario loaded")
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "demo", "tenant to seed")
	cmd.Flags().StringVar(&scenario, "scenario", "pharmacy-month", "scenario id (pharmacy-month, aged-payables)")
	return cmd
}

func newRebuildCommand() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute cached balances from the entry log",
		Long: `Replays every account and counterparty of the tenant (or of every tenant
found in the data directory) and overwrites cached balances that drifted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			env, err := setup(cfg)
			if err != nil {
				return err
			}
			defer env.close()

			ids := []string{tenantID}
			if tenantID == "" {
				if ids, err = env.tenants.IDs(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			for _, id := range ids {
				ws, err := env.tenants.Get(ctx, id)
				if err != nil {
					return err
				}
				drift, err := ws.RebuildCaches(ctx)
				if err != nil {
					return fmt.Errorf("rebuild %s: %w", id, err)
				}
				for _, d := range append(drift.Accounts, drift.Entities...) {
					env.logger.Warn().
						Str("tenant", id).
						Str("kind", d.Kind).
						Str("label", d.Label).
						Stringer("cached", d.Cached).
						Stringer("replayed", d.Replayed).
						Msg("cache corrected")
				}
				env.logger.Info().Str("tenant", id).
					Int("accounts", len(drift.Accounts)).
					Int("entities", len(drift.Entities)).
					Msg("caches rebuilt")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant to rebuild (default: every tenant)")
	return cmd
}

// =============================================================================
// WIRING
// =============================================================================

type environment struct {
	logger  zerolog.Logger
	tenants *tenant.Manager
	closers []io.Closer
}

func setup(cfg *config.Config) (*environment, error) {
	logger, logCloser, err := config.NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	charts := factory.NewChartFactory()
	chart, err := charts.Default()
	if cfg.ChartFile != "" {
		chart, err = charts.LoadFile(cfg.ChartFile)
	}
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	tenants, err := tenant.NewManager(tenant.Options{
		DataDir:         cfg.DataDir,
		Chart:           chart,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
		Logger:          logger,
	})
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	return &environment{logger: logger, tenants: tenants, closers: []io.Closer{tenants, logCloser}}, nil
}

func (e *environment) close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.logger.Error().Err(err).Msg("close")
		}
	}
}
