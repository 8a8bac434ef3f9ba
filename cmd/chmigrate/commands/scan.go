package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/observability"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
)

// ScanCommand holds the flags of the scan command.
type ScanCommand struct {
	g        *globals
	detailed bool
}

// NewScanCommand creates the one-shot scan command.
func NewScanCommand(g *globals) *cobra.Command {
	sc := &ScanCommand{g: g}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a project and print the migration summary",
		Long: `Scan every TypeScript file under path (default: the working directory),
classify its model imports and print a summary table. Files that could not be
read or parsed are listed on stderr; they never fail the scan.`,
		Args: cobra.MaximumNArgs(1),
		RunE: sc.run,
	}

	cmd.Flags().BoolVarP(&sc.detailed, "detailed", "d", false, "list legacy and partial files")
	cmd.Flags().Int("workers", 0, "parallel file analyzers (0 = CPU count)")
	g.bind("scan.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func (sc *ScanCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := sc.g.loadConfig()
	if err != nil {
		return err
	}

	providers, err := sc.g.observe(cmd, cfg, observability.ModeCLI)
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

	out := cmd.OutOrStdout()
	files := tr.ListFiles(nil)

	sc.g.infof(cmd.ErrOrStderr(), "scanned %s files under %s", humanize.Comma(int64(snap.Total)), tr.Root())

	report.WriteSummary(out, snap)

	if sc.detailed {
		report.WriteFileList(out, "Legacy files", tr.Root(), files, migration.StatusLegacy)
		report.WriteFileList(out, "Partially migrated files", tr.Root(), files, migration.StatusPartial)
	}

	report.WriteErrors(cmd.ErrOrStderr(), tr.Root(), files)

	return nil
}
