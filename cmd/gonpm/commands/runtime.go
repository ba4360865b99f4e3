// Package commands implements the gonpm subcommands.
package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/willibrandon/gonpm/cmd/gonpm/config"
	"github.com/willibrandon/gonpm/cmd/gonpm/output"
	"github.com/willibrandon/gonpm/cmd/gonpm/version"
	"github.com/willibrandon/gonpm/observability"
)

// projectDir returns --dir or the working directory.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

// loadConfig resolves settings for the command's project directory.
func loadConfig(cmd *cobra.Command) (string, *config.Config, error) {
	dir, err := projectDir(cmd)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(dir, cmd.Flags())
	if err != nil {
		return "", nil, err
	}
	return dir, cfg, nil
}

// newLogger maps console verbosity to a log level. Normal runs only log
// warnings; the console carries the user-facing output.
func newLogger(verbosity string) observability.Logger {
	level := observability.WarnLevel
	switch output.ParseVerbosity(verbosity) {
	case output.VerbosityQuiet:
		level = observability.SilentLevel
	case output.VerbosityDetailed:
		level = observability.DebugLevel
	case output.VerbosityDiagnostic:
		level = observability.VerboseLevel
	}
	return observability.NewLogger(os.Stderr, level)
}

// telemetry holds the tracing provider and metrics server of one command.
type telemetry struct {
	logger  observability.Logger
	tracing bool
	stop    []func(context.Context) error
}

// startTelemetry starts tracing and the metrics endpoint when configured.
// Failures are logged and the command continues without them.
func startTelemetry(ctx context.Context, cfg *config.Config, health *observability.HealthChecker, logger observability.Logger) *telemetry {
	t := &telemetry{logger: logger}

	if cfg.TraceExporter != "" && cfg.TraceExporter != observability.ExporterNone {
		tc := observability.DefaultTracerConfig()
		tc.ServiceVersion = version.Version
		tc.ExporterType = cfg.TraceExporter
		tc.OTLPEndpoint = cfg.OTLPEndpoint
		tp, err := observability.SetupTracing(ctx, tc)
		if err != nil {
			logger.Warn("Tracing disabled: {Error}", err)
		} else {
			t.tracing = true
			t.stop = append(t.stop, func(ctx context.Context) error {
				return observability.ShutdownTracing(ctx, tp)
			})
		}
	}

	if cfg.MetricsAddr != "" {
		ms, err := observability.StartMetricsServer(cfg.MetricsAddr, health)
		if err != nil {
			logger.Warn("Metrics endpoint disabled: {Error}", err)
		} else {
			logger.Info("Serving metrics on {Addr}", ms.Addr())
			t.stop = append(t.stop, ms.Shutdown)
		}
	}
	return t
}

// Stop flushes spans and closes the metrics endpoint.
func (t *telemetry) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(t.stop) - 1; i >= 0; i-- {
		if err := t.stop[i](ctx); err != nil {
			t.logger.Warn("Telemetry shutdown: {Error}", err)
		}
	}
}
