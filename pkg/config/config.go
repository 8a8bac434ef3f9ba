// Package config loads chmigrate settings from defaults, a YAML file,
// CHMIGRATE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sharad-Patel1/clickhome-migration/internal/ignore"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "CHMIGRATE"

// FileNames are the config files searched for, in order, in the working
// directory and then the home directory.
var FileNames = []string{".chmigrate.yaml", "chmigrate.yaml"}

// Sentinel validation errors.
var (
	ErrInvalidWorkers       = errors.New("scan workers must not be negative")
	ErrInvalidMaxFileSize   = errors.New("invalid scan max file size")
	ErrInvalidDebounce      = errors.New("watch debounce must be positive")
	ErrInvalidQueueSize     = errors.New("watch queue size must be positive")
	ErrInvalidTick          = errors.New("watch tick must be positive")
	ErrInvalidTreeCacheSize = errors.New("watch tree cache size must be positive")
	ErrInvalidDirs          = errors.New("invalid migration directories")
	ErrInvalidLogLevel      = errors.New("invalid log level")
)

// Config holds all chmigrate settings.
type Config struct {
	Migration MigrationConfig `mapstructure:"migration"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

// MigrationConfig names the tracked directories.
type MigrationConfig struct {
	LegacyDir   string `mapstructure:"legacy_dir"`
	MigratedDir string `mapstructure:"migrated_dir"`
}

// ScanConfig tunes the scanner.
type ScanConfig struct {
	Ignore       []string `mapstructure:"ignore"`
	MaxFileSize  string   `mapstructure:"max_file_size"`
	Workers      int      `mapstructure:"workers"`
	UseGitignore bool     `mapstructure:"use_gitignore"`
	SkipVendor   bool     `mapstructure:"skip_vendor"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	Tick          time.Duration `mapstructure:"tick"`
	QueueSize     int           `mapstructure:"queue_size"`
	TreeCacheSize int           `mapstructure:"tree_cache_size"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// TelemetryConfig holds the optional metrics endpoint.
type TelemetryConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// New returns a viper instance with defaults and environment binding. Flags
// may be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadConfig loads configuration without flag overrides.
func LoadConfig(configPath string) (*Config, error) {
	return Load(New(), configPath)
}

// Load reads configPath, or the first of FileNames found, into v and returns
// the validated configuration. A missing default file is not an error; a
// missing explicit file is.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.File = configPath

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func findConfigFile() string {
	dirs := []string{"."}

	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}

	for _, dir := range dirs {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)

			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p
			}
		}
	}

	return ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("migration.legacy_dir", DefaultLegacyDir)
	v.SetDefault("migration.migrated_dir", DefaultMigratedDir)

	v.SetDefault("scan.workers", DefaultScanWorkers)
	v.SetDefault("scan.ignore", ignore.DefaultPatterns)
	v.SetDefault("scan.use_gitignore", DefaultScanUseGitignore)
	v.SetDefault("scan.skip_vendor", DefaultScanSkipVendor)
	v.SetDefault("scan.max_file_size", DefaultScanMaxFileSize)

	for key, d := range defaultDurations {
		v.SetDefault(key, d)
	}

	v.SetDefault("watch.queue_size", DefaultWatchQueueSize)
	v.SetDefault("watch.tree_cache_size", DefaultWatchTreeCacheSize)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.json", DefaultLogJSON)

	v.SetDefault("telemetry.metrics_addr", DefaultMetricsAddr)
}

func validateConfig(cfg *Config) error {
	if cfg.Scan.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Scan.Workers)
	}

	if _, err := cfg.MaxFileSizeBytes(); err != nil {
		return err
	}

	if cfg.Watch.Debounce <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, cfg.Watch.Debounce)
	}

	if cfg.Watch.Tick <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTick, cfg.Watch.Tick)
	}

	if cfg.Watch.QueueSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQueueSize, cfg.Watch.QueueSize)
	}

	if cfg.Watch.TreeCacheSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTreeCacheSize, cfg.Watch.TreeCacheSize)
	}

	if _, err := cfg.Classifier(); err != nil {
		return err
	}

	if _, err := observability.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLogLevel, err)
	}

	return nil
}

// Classifier builds the import classifier from the migration section.
func (c *Config) Classifier() (migration.Classifier, error) {
	cl, err := migration.NewClassifier(c.Migration.LegacyDir, c.Migration.MigratedDir)
	if err != nil {
		return migration.Classifier{}, fmt.Errorf("%w: %w", ErrInvalidDirs, err)
	}

	return cl, nil
}

// Rules returns the ignore rules from the scan section.
func (c *Config) Rules() ignore.Rules {
	return ignore.Rules{
		Patterns:     append([]string(nil), c.Scan.Ignore...),
		UseGitignore: c.Scan.UseGitignore,
		SkipVendor:   c.Scan.SkipVendor,
	}
}

// MaxFileSizeBytes parses scan.max_file_size, e.g. "4MiB" or "500kB".
func (c *Config) MaxFileSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.Scan.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidMaxFileSize, c.Scan.MaxFileSize, err)
	}

	if n == 0 || n > uint64(1<<40) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMaxFileSize, c.Scan.MaxFileSize)
	}

	return int64(n), nil
}
