// Package commands implements CLI command handlers for chmigrate.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/config"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tracker"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/version"
)

// globals are the persistent flags shared by every command.
type globals struct {
	v          *viper.Viper
	configPath string
	verbose    bool
	quiet      bool
}

// NewRootCommand builds the chmigrate command tree.
func NewRootCommand() *cobra.Command {
	g := &globals{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "chmigrate",
		Short: "Track the migration from shared to shared_2023 models",
		Long: `chmigrate scans an Angular/TypeScript project and reports which files still
import from the legacy shared models directory and which already use the
migrated one.

Commands:
  scan      One-shot scan with a summary table
  watch     Scan, then follow file changes live
  report    Export the analysis as json, csv, yaml or html
  validate  Check a JSON report against the report schema
  mcp       Serve the analysis to AI agents over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&g.quiet, "quiet", "q", false, "suppress output")
	flags.StringVar(&g.configPath, "config", "", "config file (default .chmigrate.yaml in the working or home directory)")
	flags.String("legacy-dir", "", "legacy models directory name (default \"shared\")")
	flags.String("migrated-dir", "", "migrated models directory name (default \"shared_2023\")")
	flags.Bool("log-json", false, "log as JSON")

	g.bind("migration.legacy_dir", flags.Lookup("legacy-dir"))
	g.bind("migration.migrated_dir", flags.Lookup("migrated-dir"))
	g.bind("logging.json", flags.Lookup("log-json"))

	rootCmd.AddCommand(NewScanCommand(g))
	rootCmd.AddCommand(NewWatchCommand(g))
	rootCmd.AddCommand(NewReportCommand(g))
	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewMCPCommand(g))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// bind lets flag override the config key when set on the command line.
func (g *globals) bind(key string, flag *pflag.Flag) {
	// BindPFlag only fails on a nil flag.
	_ = g.v.BindPFlag(key, flag) //nolint:errcheck // flags are registered just above
}

// loadConfig reads the config file and applies flag and env overrides.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.v, g.configPath)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// observe initialises logging, tracing and metrics for mode.
func (g *globals) observe(cmd *cobra.Command, cfg *config.Config, mode observability.AppMode) (observability.Providers, error) {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return observability.Providers{}, err
	}

	switch {
	case g.verbose:
		level = slog.LevelDebug
	case g.quiet:
		level = slog.LevelError
	}

	oc := observability.DefaultConfig()
	oc.ServiceVersion = version.Get().Version
	oc.Mode = mode
	oc.Environment = os.Getenv("CHMIGRATE_ENV")
	oc.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	oc.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	oc.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	oc.PrometheusEnabled = mode == observability.ModeWatch && cfg.Telemetry.MetricsAddr != ""
	oc.LogLevel = level
	oc.LogJSON = cfg.Logging.JSON
	oc.LogOutput = cmd.ErrOrStderr()
	oc.DebugTrace = g.verbose

	providers, err := observability.Init(oc)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

// newTracker builds a tracker from cfg wired to providers.
func newTracker(cfg *config.Config, providers observability.Providers) (*tracker.Tracker, error) {
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, err
	}

	maxSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}

	return tracker.New(tracker.Config{
		Classifier:    classifier,
		Workers:       cfg.Scan.Workers,
		MaxFileSize:   maxSize,
		TreeCacheSize: cfg.Watch.TreeCacheSize,
	}, tracker.Deps{
		Logger:  providers.Logger,
		Tracer:  providers.Tracer,
		Metrics: metrics,
	}), nil
}

func shutdown(providers observability.Providers) {
	if providers.Shutdown == nil {
		return
	}

	if err := providers.Shutdown(context.Background()); err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

func resolvePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}

	return "."
}

// infof writes a progress line unless quiet is set.
func (g *globals) infof(w io.Writer, format string, args ...any) {
	if g.quiet {
		return
	}

	fmt.Fprintf(w, format+"\n", args...)
}
