package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joshuadavidthomas/dashtext/internal/logger"
	"github.com/joshuadavidthomas/dashtext/internal/version"
)

// Config holds the updater settings shared by the dashtext binaries.
type Config struct {
	// ManifestURL overrides the build-time release feed. Honored only when
	// AllowManifestOverride is set, so a stray settings file cannot redirect
	// a release build to another feed.
	ManifestURL string `yaml:"manifest_url,omitempty"`
	// AllowManifestOverride enables ManifestURL (development and staging builds).
	AllowManifestOverride bool `yaml:"allow_manifest_override,omitempty"`
	// Platform overrides the detected "<os>-<arch>" manifest key.
	Platform string `yaml:"platform,omitempty"`
	// LockPath overrides the machine-wide update lock location.
	LockPath string `yaml:"lock_path,omitempty"`
	// TempDir is where per-attempt session directories are created.
	TempDir string `yaml:"temp_dir,omitempty"`
	// HTTPTimeout bounds the manifest request.
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	// DownloadTimeout bounds the artifact download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	// ProbeTimeout bounds the post-install version probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "dashtext-settings.yaml"

	// EnvPrefix prefixes environment overrides, e.g. DASHTEXT_LOG_LEVEL.
	EnvPrefix = "DASHTEXT"

	// DefaultHTTPTimeout is the default manifest request timeout.
	DefaultHTTPTimeout = 15 * time.Second

	// DefaultDownloadTimeout is the default artifact download timeout.
	DefaultDownloadTimeout = 10 * time.Minute

	// DefaultProbeTimeout is the default timeout for the post-install version probe.
	DefaultProbeTimeout = 10 * time.Second

	// DefaultLogLevel is used when no level is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errOverrideNotAllowed is returned when manifest_url is set without opting in.
	errOverrideNotAllowed = errors.New("manifest_url requires allow_manifest_override")
	// errBadManifestScheme is returned for non-HTTP manifest URLs.
	errBadManifestScheme = errors.New("manifest url must use http or https")
)

// Default returns settings populated with defaults only.
func Default() *Config {
	return &Config{
		HTTPTimeout:     DefaultHTTPTimeout,
		DownloadTimeout: DefaultDownloadTimeout,
		ProbeTimeout:    DefaultProbeTimeout,
		LogLevel:        DefaultLogLevel,
	}
}

// Load reads settings from the provided path, applies DASHTEXT_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("manifest_url", "")
	v.SetDefault("allow_manifest_override", false)
	v.SetDefault("platform", "")
	v.SetDefault("lock_path", "")
	v.SetDefault("temp_dir", "")
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("download_timeout", DefaultDownloadTimeout)
	v.SetDefault("probe_timeout", DefaultProbeTimeout)
	v.SetDefault("log_level", DefaultLogLevel)

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat settings: %w", err)
	}

	cfg := &Config{
		ManifestURL:           strings.TrimSpace(v.GetString("manifest_url")),
		AllowManifestOverride: v.GetBool("allow_manifest_override"),
		Platform:              strings.TrimSpace(v.GetString("platform")),
		LockPath:              v.GetString("lock_path"),
		TempDir:               v.GetString("temp_dir"),
		HTTPTimeout:           v.GetDuration("http_timeout"),
		DownloadTimeout:       v.GetDuration("download_timeout"),
		ProbeTimeout:          v.GetDuration("probe_timeout"),
		LogLevel:              strings.TrimSpace(v.GetString("log_level")),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes Settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.HTTPTimeout <= 0 {
		settings.HTTPTimeout = DefaultHTTPTimeout
	}

	if settings.DownloadTimeout <= 0 {
		settings.DownloadTimeout = DefaultDownloadTimeout
	}

	if settings.ProbeTimeout <= 0 {
		settings.ProbeTimeout = DefaultProbeTimeout
	}

	if settings.LogLevel == "" {
		settings.LogLevel = DefaultLogLevel
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	if settings.ManifestURL == "" {
		return nil
	}

	if !settings.AllowManifestOverride {
		return errOverrideNotAllowed
	}

	parsed, err := url.ParseRequestURI(settings.ManifestURL)
	if err != nil {
		return fmt.Errorf("invalid manifest URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: %s", errBadManifestScheme, settings.ManifestURL)
	}

	return nil
}

// EffectiveManifestURL returns the feed the updater should query.
func (c *Config) EffectiveManifestURL() string {
	if c.AllowManifestOverride && c.ManifestURL != "" {
		return c.ManifestURL
	}

	return version.ManifestURL
}
