package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rendis/adaptflow/internal/engine"
	"github.com/rendis/adaptflow/internal/expressions"
	"github.com/rendis/adaptflow/internal/logging"
	"github.com/rendis/adaptflow/internal/metrics"
	"github.com/rendis/adaptflow/internal/store"
	"github.com/rendis/adaptflow/internal/tuning"
	"github.com/rendis/adaptflow/pkg/mcp"
)

var settingsFlag string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "adaptflow",
	Short:        "Context-aware workflow variant selection",
	Long:         "adaptflow picks the execution strategy best suited to the runtime context, plans it, and learns from outcomes.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFlag, "settings", "", "settings file (default: ~/.adaptflow/settings.json)")
	rootCmd.AddCommand(serveCmd, simulateCmd, configCmd, versionCmd)
}

func currentConfig() (Config, error) {
	path := settingsFlag
	if path == "" {
		path = settingsPath()
	}
	return loadConfig(path, os.Getenv)
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the adaptflow tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol; logs go to stderr.
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	rt, err := buildRuntime(ctx, cfg, logger, metrics.New(reg))
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
	}

	server := mcp.NewServer(mcp.ServerDeps{
		Service: rt.engine,
		Version: version,
		Logger:  logger,
	})
	logger.Info("adaptflow serving", "version", version, "persist", cfg.Persist)
	if err := server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runtime bundles the engine with the resources it does not own.
type runtime struct {
	engine *engine.Engine
	store  *store.LibSQLStore
	logger *slog.Logger
}

// Close stops the engine before closing the store so in-flight learner
// writes land first.
func (r *runtime) Close() {
	r.engine.Close()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("close store", "error", err)
		}
	}
}

func buildRuntime(ctx context.Context, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*runtime, error) {
	tables, err := loadTables(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{logger: logger}
	opts := engine.Options{
		Tables:  &tables,
		Metrics: m,
		Logger:  logger,
	}
	if cfg.Persist {
		s, err := store.NewLibSQLStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		rt.store = s
		opts.Persister = s
	}

	e, err := engine.New(ctx, opts)
	if err != nil {
		if rt.store != nil {
			rt.store.Close()
		}
		return nil, err
	}
	rt.engine = e
	return rt, nil
}

// loadTables returns the defaults or the configured tuning file merged over
// them, with the configured pool size applied.
func loadTables(cfg Config) (tuning.Tables, error) {
	tables := tuning.Defaults()
	if cfg.TuningFile != "" {
		cel, err := expressions.NewCELEngine()
		if err != nil {
			return tuning.Tables{}, err
		}
		tables, err = tuning.LoadFile(cfg.TuningFile, tuning.RuleCheckers{
			Alignment: expressions.NewExprEngine(),
			Tiers:     cel,
		})
		if err != nil {
			return tuning.Tables{}, err
		}
	}
	if cfg.PoolSize > 0 {
		tables.Learning.PoolSize = cfg.PoolSize
	}
	return tables, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
