package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/willibrandon/gonpm/cmd/gonpm/output"
	gonpmhttp "github.com/willibrandon/gonpm/http"
	"github.com/willibrandon/gonpm/install"
	"github.com/willibrandon/gonpm/observability"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand(console *output.Console) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the registry and install directories",
		Long: `Runs health checks for the configured registry, the install root and the
tarball cache directory, and exits non-zero when any of them is unhealthy.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			client := gonpmhttp.NewClientWithOptions(
				gonpmhttp.WithUserAgent(cfg.UserAgent),
				gonpmhttp.WithTimeout(cfg.Timeout),
			)
			defer func() { _ = client.Close() }()

			checker := observability.NewHealthChecker()
			checker.Register(observability.RegistryHealthCheck(cfg.Registry, client.StdClient(), cfg.Timeout))
			root := install.InstallRoot(&install.Options{ProjectDir: dir, Prefix: cfg.Prefix})
			checker.Register(observability.DirectoryWritableCheck("install_root", root))
			if cfg.CacheDir != "" && !cfg.NoCache {
				checker.Register(observability.DirectoryWritableCheck("cache_dir", cfg.CacheDir))
			}

			start := time.Now()
			results := checker.Check(cmd.Context())
			printResults(console, results)
			if cfg.File != "" {
				console.Detail("config: %s", cfg.File)
			}
			console.Detail("checked in %s", time.Since(start).Round(time.Millisecond))

			if observability.Overall(results) == observability.HealthStatusUnhealthy {
				return fmt.Errorf("%d check(s) failed", countUnhealthy(results))
			}
			return nil
		},
	}
}

func printResults(console *output.Console, results []observability.NamedResult) {
	for _, r := range results {
		line := fmt.Sprintf("%-13s %-9s %s", r.Name, r.Status, r.Message)
		switch r.Status {
		case observability.HealthStatusHealthy:
			console.Success("%s", line)
		case observability.HealthStatusDegraded:
			console.Warning("%s", line)
		default:
			console.Printf("%s\n", output.ColorError.Sprint(line))
		}

		keys := make([]string, 0, len(r.Details))
		for k := range r.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			console.Detail("    %s: %s", k, r.Details[k])
		}
	}
}

func countUnhealthy(results []observability.NamedResult) int {
	n := 0
	for _, r := range results {
		if r.Status == observability.HealthStatusUnhealthy {
			n++
		}
	}
	return n
}
