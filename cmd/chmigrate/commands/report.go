package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
)

// ReportCommand holds the flags of the report command.
type ReportCommand struct {
	g        *globals
	format   string
	output   string
	compress bool
	imports  bool
}

// NewReportCommand creates the export command.
func NewReportCommand(g *globals) *cobra.Command {
	rc := &ReportCommand{g: g}

	formats := make([]string, 0, len(report.Formats()))
	for _, f := range report.Formats() {
		formats = append(formats, string(f))
	}

	cmd := &cobra.Command{
		Use:   "report [path]",
		Short: "Scan a project and export the analysis",
		Long: `Scan path (default: the working directory) and export one row per file with
its status and legacy/migrated import counts, plus the aggregate statistics.`,
		Args: cobra.MaximumNArgs(1),
		RunE: rc.run,
	}

	cmd.Flags().StringVarP(&rc.format, "format", "f", string(report.FormatJSON),
		"Output format: "+strings.Join(formats, ", "))
	cmd.Flags().StringVarP(&rc.output, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().BoolVar(&rc.compress, "compress", false, "wrap the output in an LZ4 frame")
	cmd.Flags().BoolVar(&rc.imports, "imports", false, "include every import of every file (json, yaml)")

	return cmd
}

func (rc *ReportCommand) run(cmd *cobra.Command, args []string) (err error) {
	format, err := report.ParseFormat(rc.format)
	if err != nil {
		return err
	}

	cfg, err := rc.g.loadConfig()
	if err != nil {
		return err
	}

	providers, err := rc.g.observe(cmd, cfg, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer shutdown(providers)

	tr, err := newTracker(cfg, providers)
	if err != nil {
		return err
	}

	snap, err := tr.RunScan(cmd.Context(), resolvePath(args), cfg.Rules())
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()

	if rc.output != "" {
		f, createErr := os.Create(rc.output)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}

		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				err = errors.Join(err, fmt.Errorf("close output: %w", closeErr))
			}
		}()

		w = f
	}

	opts := report.Options{Compress: rc.compress, IncludeImports: rc.imports}

	if err := tr.Export(cmd.Context(), w, format, opts); err != nil {
		return err
	}

	if rc.output != "" {
		rc.g.infof(cmd.ErrOrStderr(), "wrote %s report of %s files to %s",
			format, humanize.Comma(int64(snap.Total)), rc.output)
	}

	return nil
}
