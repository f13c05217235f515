package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/pawseed/internal/cli/config"
	"github.com/leapstack-labs/pawseed/internal/cli/output"
	"github.com/leapstack-labs/pawseed/internal/metrics"
	"github.com/leapstack-labs/pawseed/internal/state"
	"github.com/leapstack-labs/pawseed/internal/symmetry"
	"github.com/leapstack-labs/pawseed/internal/vasp"
	"github.com/leapstack-labs/pawseed/pkg/backend"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
	Provider vasp.DirectoryProvider
}

// NewCommandContext builds a CommandContext from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
		Provider: vasp.DirectoryProvider{Logger: logger},
	}
}

// NewBackend creates the configured numerical backend.
func (c *CommandContext) NewBackend() (backend.Backend, error) {
	b, err := backend.New(c.Cfg.Backend.Core(), c.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return b, nil
}

// SymmetryOptions returns the configured k-point expansion options.
func (c *CommandContext) SymmetryOptions() symmetry.Options {
	return symmetry.Options{Symprec: c.Cfg.Symprec, TimeReversal: c.Cfg.TimeReversal}
}

// OpenStore opens and migrates the state database.
// The returned cleanup function closes it.
func (c *CommandContext) OpenStore() (*state.SQLiteStore, func(), error) {
	store := state.NewSQLiteStore(c.Logger)
	if err := store.Open(c.Cfg.StatePath); err != nil {
		return nil, nil, err
	}
	if err := store.InitSchema(); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// Metrics returns the sink for a run and the accumulator inside it. The
// flush function writes the Prometheus text file when metrics are
// enabled and is a no-op otherwise.
func (c *CommandContext) Metrics() (metrics.Sink, *metrics.Accumulator, func() error, error) {
	acc := metrics.NewAccumulator()
	if !c.Cfg.Metrics.Enabled {
		return acc, acc, func() error { return nil }, nil
	}

	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheus(reg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	flush := func() error {
		if err := prometheus.WriteToTextfile(c.Cfg.Metrics.Textfile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		c.Logger.Debug("metrics written", "path", c.Cfg.Metrics.Textfile)
		return nil
	}
	return metrics.Multi{acc, prom}, acc, flush, nil
}

// getConfig returns the current configuration, falling back to defaults
// when commands run without the root command's pre-run hook.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		Backend:      config.BackendConfig{Type: config.DefaultBackend},
		Symprec:      config.DefaultSymprec,
		StatePath:    config.DefaultStateFile,
		OutputFormat: config.DefaultOutput,
		Workers:      config.DefaultWorkers,
		Metrics:      config.MetricsConfig{Textfile: config.DefaultTextfile},
	}
}

// renderPhaseTotals prints the accumulated phase timings at debug level.
func renderPhaseTotals(logger *slog.Logger, acc *metrics.Accumulator) {
	for _, phase := range metrics.Phases {
		t := acc.Get(phase)
		if t.Count == 0 {
			continue
		}
		logger.Debug("phase timing", "phase", string(phase), "count", t.Count, "elapsed_ms", t.Total.Milliseconds())
	}
}
