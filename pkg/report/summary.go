package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
)

const (
	progressBarWidth = 30
	percentScale     = 100.0
)

var statusColorAttrs = map[string]color.Attribute{
	migration.StatusLegacy:   color.FgRed,
	migration.StatusPartial:  color.FgYellow,
	migration.StatusMigrated: color.FgGreen,
	migration.StatusNoModels: color.FgCyan,
	migration.StatusError:    color.FgMagenta,
}

// Colorize returns s in the colour used for status.
func Colorize(status, s string) string {
	attr, ok := statusColorAttrs[status]
	if !ok {
		return s
	}

	return color.New(attr).Sprint(s)
}

// WriteSummary prints the aggregate table and a progress bar.
func WriteSummary(w io.Writer, snap stats.Snapshot) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})

	tbl.AppendHeader(table.Row{"Status", "Files", "Share"})

	rows := []struct {
		status string
		count  int
	}{
		{migration.StatusLegacy, snap.Legacy},
		{migration.StatusPartial, snap.Partial},
		{migration.StatusMigrated, snap.Migrated},
		{migration.StatusNoModels, snap.NoModels},
		{migration.StatusError, snap.Errors},
	}

	for _, r := range rows {
		tbl.AppendRow(table.Row{Colorize(r.status, r.status), humanize.Comma(int64(r.count)), share(r.count, snap.Total)})
	}

	tbl.AppendFooter(table.Row{"Total", humanize.Comma(int64(snap.Total)), ""})
	tbl.Render()

	fmt.Fprintf(w, "\nMigration progress %s %.1f%%\n", progressBar(snap.ProgressPct()), snap.ProgressPct())
	fmt.Fprintf(w, "Files needing migration: %s   Success rate: %.1f%%\n",
		humanize.Comma(int64(snap.NeedsMigration())), snap.SuccessRate())
}

// StatusLine renders a one-line snapshot for live watch output.
func StatusLine(snap stats.Snapshot, prev stats.Snapshot) string {
	delta := snap.Delta(prev)

	return fmt.Sprintf("[%s] %s files  %s legacy%s  %s partial%s  %s migrated%s  %s errors  %.1f%%",
		snap.Timestamp.Format(time.TimeOnly),
		humanize.Comma(int64(snap.Total)),
		Colorize(migration.StatusLegacy, humanize.Comma(int64(snap.Legacy))), signed(delta.Legacy),
		Colorize(migration.StatusPartial, humanize.Comma(int64(snap.Partial))), signed(delta.Partial),
		Colorize(migration.StatusMigrated, humanize.Comma(int64(snap.Migrated))), signed(delta.Migrated),
		Colorize(migration.StatusError, humanize.Comma(int64(snap.Errors))),
		snap.ProgressPct(),
	)
}

// WriteFileList prints the files whose status is one of statuses, paths
// shown relative to root.
func WriteFileList(w io.Writer, title, root string, files []migration.FileAnalysis, statuses ...string) int {
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.SetTitle(title)
	tbl.AppendHeader(table.Row{"Path", "Status", "Legacy", "Migrated", "Size"})

	n := 0

	for i := range files {
		f := &files[i]

		status := f.Status()
		if !want[status] {
			continue
		}

		n++

		tbl.AppendRow(table.Row{
			DisplayPath(root, f.Path),
			Colorize(status, status),
			f.CountBySource(migration.SourceLegacy),
			f.CountBySource(migration.SourceMigrated),
			humanize.IBytes(uint64(max(f.Size, 0))),
		})
	}

	if n > 0 {
		tbl.Render()
	}

	return n
}

// WriteErrors prints one line per file recorded with an error.
func WriteErrors(w io.Writer, root string, files []migration.FileAnalysis) int {
	n := 0

	for i := range files {
		f := &files[i]
		if f.Err == nil {
			continue
		}

		n++

		fmt.Fprintf(w, "%s %s: %s\n", Colorize(migration.StatusError, "error"), DisplayPath(root, f.Path), f.Err.Error())
	}

	return n
}

func share(n, total int) string {
	if total == 0 {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*percentScale)
}

func signed(n int) string {
	if n == 0 {
		return ""
	}

	return fmt.Sprintf(" (%+d)", n)
}

func progressBar(pct float64) string {
	filled := min(max(int(pct/percentScale*progressBarWidth), 0), progressBarWidth)

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled) + "]"
}
