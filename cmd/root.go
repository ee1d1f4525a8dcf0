package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/config"
	telem "github.com/timvw/volume-patrol/internal/otel"
	"github.com/timvw/volume-patrol/internal/procinfo"
	"github.com/timvw/volume-patrol/internal/provider"
	"github.com/timvw/volume-patrol/internal/supervisor"
)

var (
	// Global flags.
	flagProvider  string
	flagScenario  string
	flagDirection string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "volume-patrol",
	Short: "Per-application volume mixer for the terminal",
	Long: `volume-patrol tracks audio endpoints and the per-process sessions
playing on them, and lets you select, hide and adjust those sessions.

Devices come from the system audio backend (malgo) or from a YAML
scenario file that is watched for changes. Sessions are identified as
pid:process:direction; any part of that identity can be used to find one.

Configuration is loaded from .volume-patrol.yaml, then
~/.config/volume-patrol/config.yaml, then VOLUME_PATROL_* variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "audio provider: scenario, malgo (default: auto-detect)")
	rootCmd.PersistentFlags().StringVar(&flagScenario, "scenario", "", "YAML topology file for the scenario provider")
	rootCmd.PersistentFlags().StringVar(&flagDirection, "direction", "", "device direction: render, capture, both (default from config)")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "debug logging")
}

// newLogger builds the process logger. Quiet by default: only warnings
// and errors are written unless --verbose is set.
func newLogger(outputPaths ...string) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if flagVerbose {
		zc = zap.NewDevelopmentConfig()
	}
	if len(outputPaths) > 0 {
		zc.OutputPaths = outputPaths
		zc.ErrorOutputPaths = outputPaths
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.Sugar(), nil
}

// session bundles what every command needs: configuration, a logger,
// telemetry and an open provider.
type session struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	tel      *telem.Telemetry
	provider provider.Provider
}

// openSession loads configuration, applies the global flags and opens the
// provider. Callers must call close.
func openSession(ctx context.Context, outputPaths ...string) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagScenario != "" {
		cfg.Scenario = flagScenario
	}
	if flagDirection != "" {
		cfg.Direction = flagDirection
	}

	logger, err := newLogger(outputPaths...)
	if err != nil {
		return nil, err
	}
	if cfg.ConfigFile != "" {
		logger.Infow("config loaded", "path", cfg.ConfigFile)
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
		Provider: cfg.Provider,
	})
	if err != nil {
		logger.Warnw("otel init failed", "error", err)
	}

	p, err := provider.FromName(cfg.Provider, provider.Options{
		Scenario: cfg.Scenario,
		Refresh:  cfg.RefreshDuration,
		Resolver: procinfo.NewResolver(),
		Logger:   logger,
	})
	if err != nil {
		if tel != nil {
			_ = tel.Shutdown(ctx)
		}
		_ = logger.Sync()
		return nil, err
	}
	logger.Debugw("provider ready", "provider", p.Name())

	return &session{cfg: cfg, logger: logger, tel: tel, provider: p}, nil
}

func (s *session) metrics() *telem.Metrics {
	if s.tel == nil {
		return nil
	}
	return s.tel.Metrics
}

// newMixer builds and refreshes a Mixer. A failed refresh is logged; the
// mixer keeps whatever enumerated.
func (s *session) newMixer(ctx context.Context) (*supervisor.Mixer, error) {
	opts, err := supervisor.MixerOptionsFromConfig(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	opts.Metrics = s.metrics()
	opts.Logger = s.logger

	m := supervisor.NewMixer(s.provider, opts)
	if err := m.Refresh(ctx); err != nil {
		s.logger.Warnw("refresh incomplete", "error", err)
	}
	return m, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.provider.Close(); err != nil {
		s.logger.Warnw("closing provider", "error", err)
	}
	if s.tel != nil {
		if err := s.tel.Shutdown(ctx); err != nil {
			s.logger.Warnw("otel shutdown", "error", err)
		}
	}
	_ = s.logger.Sync()
}
