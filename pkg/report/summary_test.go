package report_test

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
)

func init() {
	color.NoColor = true //nolint:reassign // deterministic output in tests
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	files := sampleFiles()
	report.WriteSummary(&buf, stats.Aggregate(files, fixedNow))

	out := buf.String()
	assert.Contains(t, out, "Legacy")
	assert.Contains(t, out, "No Models")
	assert.Contains(t, out, "Migration progress")
	assert.Contains(t, out, "0.0%")
	assert.Contains(t, out, "Files needing migration: 2")
}

func TestWriteFileList_FiltersByStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	n := report.WriteFileList(&buf, "Needs migration", "/repo", sampleFiles(),
		migration.StatusLegacy, migration.StatusPartial)

	assert.Equal(t, 2, n)
	assert.Contains(t, buf.String(), "src/b.ts")
	assert.NotContains(t, buf.String(), "broken.ts")
}

func TestWriteErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	n := report.WriteErrors(&buf, "/repo", sampleFiles())

	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "src/broken.ts: parse error at 3:4")
}

func TestStatusLine_ShowsDelta(t *testing.T) {
	t.Parallel()

	prev := stats.Snapshot{Total: 2, Legacy: 2, Timestamp: fixedNow}
	cur := stats.Snapshot{Total: 2, Legacy: 1, Migrated: 1, Timestamp: fixedNow}

	line := report.StatusLine(cur, prev)
	assert.Contains(t, line, "1 legacy (-1)")
	assert.Contains(t, line, "1 migrated (+1)")
	assert.Contains(t, line, "50.0%")
}
