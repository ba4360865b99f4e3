// Package config loads gonpm CLI settings.
//
// Sources, lowest precedence first: built-in defaults, gonpm.toml in the
// user config directory, gonpm.toml in the project directory, the
// project's .npmrc "registry=" line, GONPM_* environment variables, and
// finally command-line flags. Registry credentials come from
// GONPM_AUTH_TOKEN / GONPM_AUTH or the .npmrc entries for the resolved
// registry.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/willibrandon/gonpm/cmd/gonpm/version"
	"github.com/willibrandon/gonpm/registry"
)

const (
	// AppName names the user config directory and the env prefix.
	AppName = "gonpm"
	// FileName is the config file name without extension.
	FileName = "gonpm"
	// FileExt is the config file format.
	FileExt = "toml"
	// NpmrcFile is read for the registry setting only.
	NpmrcFile = ".npmrc"
)

// Config holds the resolved settings.
type Config struct {
	Registry       string        `mapstructure:"registry"`
	Prefix         string        `mapstructure:"prefix"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	CacheDir       string        `mapstructure:"cache_dir"`
	NoCache        bool          `mapstructure:"no_cache"`
	Verbosity      string        `mapstructure:"verbosity"`
	HTTP3          bool          `mapstructure:"http3"`
	CircuitBreaker bool          `mapstructure:"circuit_breaker"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	TraceExporter  string        `mapstructure:"trace_exporter"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`

	// Registry credentials; .npmrc supplies them when neither is set.
	AuthToken  string `mapstructure:"auth_token"`
	LegacyAuth string `mapstructure:"auth"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Registry:      registry.DefaultRegistry,
		UserAgent:     version.UserAgent(),
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		CacheDir:      defaultCacheDir(),
		Verbosity:     "normal",
		TraceExporter: "none",
		OTLPEndpoint:  "localhost:4317",
	}
}

// Dir returns the per-user config directory.
func Dir() (string, error) {
	if override := os.Getenv("GONPM_CONFIG_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, AppName, "tarballs")
}

// Load resolves settings for projectDir. Flags, when non-nil, are bound
// under their names with dashes mapped to underscores; only flags the user
// set override lower layers.
func Load(projectDir string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("registry", defaults.Registry)
	v.SetDefault("prefix", defaults.Prefix)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("no_cache", defaults.NoCache)
	v.SetDefault("verbosity", defaults.Verbosity)
	v.SetDefault("http3", defaults.HTTP3)
	v.SetDefault("circuit_breaker", defaults.CircuitBreaker)
	v.SetDefault("rate_limit", defaults.RateLimit)
	v.SetDefault("trace_exporter", defaults.TraceExporter)
	v.SetDefault("otlp_endpoint", defaults.OTLPEndpoint)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)
	v.SetDefault("auth_token", "")
	v.SetDefault("auth", "")

	var files []string
	if dir, err := Dir(); err == nil {
		files = append(files, filepath.Join(dir, FileName+"."+FileExt))
	}
	files = append(files, filepath.Join(projectDir, FileName+"."+FileExt))

	v.SetConfigType(FileExt)
	used := ""
	for _, path := range files {
		if !fileExists(path) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		used = path
	}

	npmrc, err := ReadNpmrc(filepath.Join(projectDir, NpmrcFile))
	if err != nil {
		return nil, err
	}
	if reg := npmrc.Values["registry"]; reg != "" {
		if err := v.MergeConfigMap(map[string]any{"registry": reg}); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", NpmrcFile, err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		known := make(map[string]bool)
		for _, key := range v.AllKeys() {
			known[key] = true
		}
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !known[key] {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.File = used
	if cfg.AuthToken == "" && cfg.LegacyAuth == "" {
		cfg.AuthToken, cfg.LegacyAuth = npmrc.Credentials(cfg.Registry)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no install can run with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Registry, "http://") && !strings.HasPrefix(c.Registry, "https://") {
		return fmt.Errorf("registry must be an http(s) URL, got %q", c.Registry)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	switch c.TraceExporter {
	case "none", "", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown trace_exporter %q (none, stdout, otlp)", c.TraceExporter)
	}
	return nil
}

// Npmrc holds the settings of an .npmrc file gonpm understands.
type Npmrc struct {
	// Values are the plain key=value lines.
	Values map[string]string

	// Scoped maps a "//host/path/" prefix to its per-registry settings
	// such as _authToken.
	Scoped map[string]map[string]string
}

// ReadNpmrc parses an .npmrc file. Plain lines go through godotenv; keys it
// cannot represent ("@scope:registry") are dropped, and "//host/:key" lines
// are collected per registry. ${VAR} references are expanded. A missing
// file yields an empty result.
func ReadNpmrc(path string) (*Npmrc, error) {
	rc := &Npmrc{Values: map[string]string{}, Scoped: map[string]map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return rc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' || trimmed[0] == ';' {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if strings.HasPrefix(key, "//") {
			i := strings.LastIndex(key, ":")
			if i < 0 {
				continue
			}
			scope := key[:i]
			if !strings.HasSuffix(scope, "/") {
				scope += "/"
			}
			if rc.Scoped[scope] == nil {
				rc.Scoped[scope] = map[string]string{}
			}
			rc.Scoped[scope][key[i+1:]] = os.ExpandEnv(strings.TrimSpace(value))
			continue
		}
		if plainKey(key) {
			kept = append(kept, trimmed)
		}
	}

	values, err := godotenv.Unmarshal(strings.Join(kept, "\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	// godotenv has already expanded ${VAR} references.
	for k, v := range values {
		rc.Values[k] = v
	}
	return rc, nil
}

// Credentials returns the auth token and legacy _auth value for registry:
// the longest "//host/path/" scope that prefixes it, else the top-level
// keys.
func (rc *Npmrc) Credentials(registry string) (token, legacy string) {
	target := registry
	if i := strings.Index(target, "//"); i >= 0 {
		target = target[i:]
	}
	if !strings.HasSuffix(target, "/") {
		target += "/"
	}

	best := ""
	for scope := range rc.Scoped {
		if strings.HasPrefix(target, scope) && len(scope) > len(best) {
			best = scope
		}
	}
	if best != "" {
		return rc.Scoped[best]["_authToken"], rc.Scoped[best]["_auth"]
	}
	return rc.Values["_authToken"], rc.Values["_auth"]
}

func plainKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
