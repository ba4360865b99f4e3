package commands

import (
	"github.com/spf13/cobra"

	"github.com/willibrandon/gonpm/cmd/gonpm/output"
	"github.com/willibrandon/gonpm/install"
	"github.com/willibrandon/gonpm/resilience"
)

// NewInstallCommand creates the install command.
func NewInstallCommand(console *output.Console) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "install",
		Aliases: []string{"i"},
		Short:   "Install the dependencies of package.json",
		Long: `Installs every package reachable from the dependencies and devDependencies
of package.json into node_modules. Each package name is installed once, at
the version its first claimant resolved.

Examples:
  gonpm install
  gonpm install -C ./web --prefix vendor/node_modules
  gonpm install --registry http://localhost:4873 --no-cache
  gonpm install -v diag`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			console.SetVerbosity(output.ParseVerbosity(cfg.Verbosity))
			logger := newLogger(cfg.Verbosity)

			tel := startTelemetry(cmd.Context(), cfg, nil, logger)
			defer tel.Stop()

			opts := &install.Options{
				ProjectDir: dir,
				Prefix:     cfg.Prefix,
				Registry:   cfg.Registry,
				UserAgent:  cfg.UserAgent,
				AuthToken:  cfg.AuthToken,
				LegacyAuth: cfg.LegacyAuth,
				Timeout:    cfg.Timeout,
				MaxRetries: maxRetries(cfg.MaxRetries),
				CacheDir:   cfg.CacheDir,
				NoCache:    cfg.NoCache,
				HTTP3:      cfg.HTTP3,
				Tracing:    tel.tracing,
				Verbosity:  cfg.Verbosity,
				Logger:     logger,
			}
			if cfg.CircuitBreaker {
				cb := resilience.DefaultCircuitBreakerConfig()
				opts.CircuitBreaker = &cb
			}
			if cfg.RateLimit > 0 {
				rl := resilience.DefaultTokenBucketConfig()
				rl.PerSecond = cfg.RateLimit
				opts.RateLimit = &rl
			}

			_, err = install.Run(cmd.Context(), opts, console)
			return err
		},
	}

	cmd.Flags().String("prefix", "", "Install root, relative to the project directory (default node_modules)")
	cmd.Flags().String("user-agent", "", "User-Agent sent to the registry")
	cmd.Flags().Duration("timeout", 0, "Per-request timeout")
	cmd.Flags().Int("max-retries", 0, "Retries for failed registry requests (0 disables)")
	cmd.Flags().String("cache-dir", "", "Tarball cache directory")
	cmd.Flags().Bool("no-cache", false, "Bypass the tarball cache")
	cmd.Flags().Bool("http3", false, "Try HTTP/3 before HTTP/2")
	cmd.Flags().Bool("circuit-breaker", false, "Stop calling a registry host after repeated failures")
	cmd.Flags().Float64("rate-limit", 0, "Maximum requests per second per registry host (0 is unlimited)")
	cmd.Flags().String("trace-exporter", "", "Trace exporter: none, stdout or otlp")
	cmd.Flags().String("otlp-endpoint", "", "OTLP collector endpoint")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	return cmd
}

// maxRetries maps the configured retry count, where 0 means none, onto
// install.Options, where 0 means the default.
func maxRetries(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
