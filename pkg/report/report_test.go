package report_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
)

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func sampleFiles() []migration.FileAnalysis {
	return []migration.FileAnalysis{
		{
			Path:           "/repo/src/b.ts",
			Classification: migration.Both,
			Imports: []migration.ImportInfo{
				{SourcePath: "../shared/a", Line: 1, Source: migration.SourceLegacy, Names: []string{"A"}},
				{SourcePath: "../shared_2023/b", Line: 2, Source: migration.SourceMigrated, Names: []string{"B"}},
			},
		},
		{
			Path:           "/repo/src/a, \"quoted\".ts",
			Classification: migration.Legacy,
			Imports: []migration.ImportInfo{
				{SourcePath: "../shared/a", Line: 1, Source: migration.SourceLegacy},
			},
		},
		{
			Path: "/repo/src/broken.ts",
			Err:  &migration.FileError{Kind: migration.ErrorKindParse, Message: "syntax error", Line: 3, Column: 4},
		},
	}
}

func sampleDoc(opts report.Options) report.Document {
	files := sampleFiles()

	return report.Build(stats.Aggregate(files, fixedNow), files, opts)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want report.Format
	}{
		{"json", report.FormatJSON},
		{"CSV", report.FormatCSV},
		{"yml", report.FormatYAML},
		{" yaml ", report.FormatYAML},
		{"html", report.FormatHTML},
	}

	for _, tt := range tests {
		got, err := report.ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := report.ParseFormat("xml")
	require.ErrorIs(t, err, report.ErrUnknownFormat)
	assert.Equal(t, ".csv", report.FormatCSV.Extension())
}

func TestBuild_SortsAndCounts(t *testing.T) {
	t.Parallel()

	doc := sampleDoc(report.Options{Root: "/repo"})

	require.Len(t, doc.Files, 3)
	assert.Equal(t, "src/a, \"quoted\".ts", doc.Files[0].Path)
	assert.Equal(t, "src/b.ts", doc.Files[1].Path)
	assert.Equal(t, migration.StatusPartial, doc.Files[1].Status)
	assert.Equal(t, 1, doc.Files[1].LegacyImports)
	assert.Equal(t, 1, doc.Files[1].MigratedImports)
	assert.Equal(t, migration.StatusError, doc.Files[2].Status)
	assert.Contains(t, doc.Files[2].Error, "3:4")
	assert.Nil(t, doc.Files[1].Imports)

	assert.Equal(t, 3, doc.Stats.Total)
	assert.Equal(t, 2, doc.Stats.NeedsMigration)
	assert.InDelta(t, 0.0, doc.Stats.ProgressPct, 1e-9)
}

func TestDisplayPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/x/a.ts", report.DisplayPath("", "/x/a.ts"))
	assert.Equal(t, "a/b.ts", report.DisplayPath("/x", "/x/a/b.ts"))
	assert.Equal(t, "/y/a.ts", report.DisplayPath("/x", "/y/a.ts"))
}

func TestWrite_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, report.FormatJSON, sampleDoc(report.Options{IncludeImports: true}), report.Options{}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	statsBlock, ok := decoded["stats"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 3.0, statsBlock["total"], 1e-9)
	assert.InDelta(t, 1.0, statsBlock["errors"], 1e-9)

	files, ok := decoded["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 3)

	first, ok := files[1].(map[string]any)
	require.True(t, ok)

	imports, ok := first["imports"].([]any)
	require.True(t, ok)
	require.Len(t, imports, 2)

	imp, ok := imports[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "legacy", imp["source"])
	assert.Equal(t, "static_named", imp["kind"])
}

func TestWrite_CSVEscaping(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, report.FormatCSV, sampleDoc(report.Options{Root: "/repo"}), report.Options{}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, report.CSVHeader, rows[0])
	assert.Equal(t, []string{"src/a, \"quoted\".ts", "Legacy", "1", "1", "0"}, rows[1])
	assert.Equal(t, []string{"src/b.ts", "Partial", "2", "1", "1"}, rows[2])
	assert.Equal(t, []string{"src/broken.ts", "Error", "0", "0", "0"}, rows[3])
}

func TestWrite_YAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, report.FormatYAML, sampleDoc(report.Options{}), report.Options{}))

	var decoded struct {
		Stats struct {
			Total   int `yaml:"total"`
			Partial int `yaml:"partial"`
		} `yaml:"stats"`
		Files []struct {
			Status string `yaml:"status"`
		} `yaml:"files"`
	}

	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.Stats.Total)
	assert.Equal(t, 1, decoded.Stats.Partial)
	require.Len(t, decoded.Files, 3)
}

func TestWrite_HTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, report.FormatHTML, sampleDoc(report.Options{Root: "/repo"}), report.Options{}))

	out := buf.String()
	assert.Contains(t, out, "<html")
	assert.Contains(t, out, "Files by status")
	assert.Contains(t, out, "Directories needing migration")
}

func TestWrite_Compressed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf, report.FormatCSV, sampleDoc(report.Options{}), report.Options{Compress: true}))

	plain, err := io.ReadAll(lz4.NewReader(&buf))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(plain), "path,status,"))
}

func TestWrite_UnknownFormat(t *testing.T) {
	t.Parallel()

	err := report.Write(io.Discard, report.Format("xml"), report.Document{}, report.Options{})
	require.ErrorIs(t, err, report.ErrUnknownFormat)
}
