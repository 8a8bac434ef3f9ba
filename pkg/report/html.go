package report

import (
	"cmp"
	"fmt"
	"io"
	"path"
	"slices"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
)

const (
	pageTitle        = "Shared model migration"
	chartWidth       = "100%"
	chartHeight      = "480px"
	topDirsLimit     = 20
	xAxisRotate      = 45
	pieRadiusPercent = "60%"
)

var statusColors = map[string]string{
	migration.StatusLegacy:   "#ee6666",
	migration.StatusPartial:  "#fac858",
	migration.StatusMigrated: "#91cc75",
	migration.StatusNoModels: "#73c0de",
	migration.StatusError:    "#9a60b4",
}

var statusOrder = []string{
	migration.StatusLegacy,
	migration.StatusPartial,
	migration.StatusMigrated,
	migration.StatusNoModels,
	migration.StatusError,
}

func writeHTML(w io.Writer, doc Document) error {
	page := components.NewPage()
	page.PageTitle = pageTitle
	page.AddCharts(statusPie(doc), legacyDirsBar(doc))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	return nil
}

func statusPie(doc Document) *charts.Pie {
	s := doc.Stats
	counts := map[string]int{
		migration.StatusLegacy:   s.Legacy,
		migration.StatusPartial:  s.Partial,
		migration.StatusMigrated: s.Migrated,
		migration.StatusNoModels: s.NoModels,
		migration.StatusError:    s.Errors,
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Files by status",
			Subtitle: fmt.Sprintf("%d files, %.1f%% migrated", s.Total, s.ProgressPct),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
	)

	data := make([]opts.PieData, 0, len(statusOrder))

	for _, status := range statusOrder {
		if counts[status] == 0 {
			continue
		}

		data = append(data, opts.PieData{
			Name:      status,
			Value:     counts[status],
			ItemStyle: &opts.ItemStyle{Color: statusColors[status]},
		})
	}

	pie.AddSeries("Status", data).
		SetSeriesOptions(
			charts.WithPieChartOpts(opts.PieChart{Radius: pieRadiusPercent}),
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c} ({d}%)"}),
		)

	return pie
}

type dirCount struct {
	dir     string
	legacy  int
	partial int
}

// legacyDirsBar charts the directories holding the most files that still
// import from the legacy directory.
func legacyDirsBar(doc Document) *charts.Bar {
	dirs := topLegacyDirs(doc.Files, topDirsLimit)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Directories needing migration"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Bottom: "0"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: xAxisRotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Files"}),
	)

	labels := make([]string, len(dirs))
	legacy := make([]opts.BarData, len(dirs))
	partial := make([]opts.BarData, len(dirs))

	for i, d := range dirs {
		labels[i] = d.dir
		legacy[i] = opts.BarData{Value: d.legacy}
		partial[i] = opts.BarData{Value: d.partial}
	}

	bar.SetXAxis(labels).
		AddSeries(migration.StatusLegacy, legacy,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: statusColors[migration.StatusLegacy]})).
		AddSeries(migration.StatusPartial, partial,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: statusColors[migration.StatusPartial]})).
		SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "files"}))

	return bar
}

func topLegacyDirs(files []FileEntry, limit int) []dirCount {
	byDir := make(map[string]*dirCount)

	for _, f := range files {
		if f.Status != migration.StatusLegacy && f.Status != migration.StatusPartial {
			continue
		}

		dir := path.Dir(f.Path)

		dc, ok := byDir[dir]
		if !ok {
			dc = &dirCount{dir: dir}
			byDir[dir] = dc
		}

		if f.Status == migration.StatusLegacy {
			dc.legacy++
		} else {
			dc.partial++
		}
	}

	out := make([]dirCount, 0, len(byDir))
	for _, dc := range byDir {
		out = append(out, *dc)
	}

	slices.SortFunc(out, func(a, b dirCount) int {
		if c := cmp.Compare(b.legacy+b.partial, a.legacy+a.partial); c != 0 {
			return c
		}

		return cmp.Compare(a.dir, b.dir)
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out
}
