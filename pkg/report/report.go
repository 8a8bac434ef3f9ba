// Package report renders the analysis cache as JSON, CSV, YAML or HTML
// documents and as terminal summaries.
package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/stats"
)

// Format is an export format name.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// Sentinel errors.
var (
	ErrUnknownFormat   = errors.New("unknown report format")
	ErrEmptyDocument   = errors.New("report document is empty")
	ErrInvalidDocument = errors.New("invalid report document")
)

// Formats lists the supported formats in display order.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatYAML, FormatHTML}
}

// ParseFormat parses a case-insensitive format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "html":
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, s, formatList())
	}
}

func formatList() string {
	names := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		names = append(names, string(f))
	}

	return strings.Join(names, ", ")
}

// Extension returns the file extension for the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Options control export rendering.
type Options struct {
	// Root, when set, makes file paths relative to it.
	Root string
	// Compress wraps the output in an LZ4 frame.
	Compress bool
	// IncludeImports adds per-import details to JSON and YAML documents.
	IncludeImports bool
}

// Document is the exported form of a scan.
type Document struct {
	Stats Summary     `json:"stats" yaml:"stats"`
	Files []FileEntry `json:"files" yaml:"files"`
}

// Summary is the stats block of a document.
type Summary struct {
	stats.Snapshot `yaml:",inline"`

	ProgressPct    float64 `json:"progress_pct"    yaml:"progress_pct"`
	SuccessRate    float64 `json:"success_rate"    yaml:"success_rate"`
	NeedsMigration int     `json:"needs_migration" yaml:"needs_migration"`
	WithModels     int     `json:"with_models"     yaml:"with_models"`
}

// FileEntry is one file row of a document.
type FileEntry struct {
	Path            string                 `json:"path"              yaml:"path"`
	Status          string                 `json:"status"            yaml:"status"`
	ImportCount     int                    `json:"import_count"      yaml:"import_count"`
	LegacyImports   int                    `json:"legacy_imports"    yaml:"legacy_imports"`
	MigratedImports int                    `json:"migrated_imports"  yaml:"migrated_imports"`
	Error           string                 `json:"error,omitempty"   yaml:"error,omitempty"`
	Imports         []migration.ImportInfo `json:"imports,omitempty" yaml:"imports,omitempty"`
}

// Build assembles a document from a snapshot and the files it covers. Files
// are sorted by path.
func Build(snap stats.Snapshot, files []migration.FileAnalysis, opts Options) Document {
	doc := Document{
		Stats: Summary{
			Snapshot:       snap,
			ProgressPct:    snap.ProgressPct(),
			SuccessRate:    snap.SuccessRate(),
			NeedsMigration: snap.NeedsMigration(),
			WithModels:     snap.WithModels(),
		},
		Files: make([]FileEntry, 0, len(files)),
	}

	for i := range files {
		f := &files[i]

		entry := FileEntry{
			Path:            DisplayPath(opts.Root, f.Path),
			Status:          f.Status(),
			ImportCount:     f.ImportCount(),
			LegacyImports:   f.CountBySource(migration.SourceLegacy),
			MigratedImports: f.CountBySource(migration.SourceMigrated),
		}

		if f.Err != nil {
			entry.Error = f.Err.Error()
		}

		if opts.IncludeImports {
			entry.Imports = f.Clone().Imports
		}

		doc.Files = append(doc.Files, entry)
	}

	slices.SortFunc(doc.Files, func(a, b FileEntry) int { return strings.Compare(a.Path, b.Path) })

	return doc
}

// DisplayPath returns path relative to root with forward slashes, or path
// unchanged when root is empty or path lies outside it.
func DisplayPath(root, path string) string {
	if root == "" {
		return path
	}

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}

	return filepath.ToSlash(rel)
}

// Write renders doc in the given format. With Compress set the output is an
// LZ4 frame.
func Write(w io.Writer, format Format, doc Document, opts Options) (err error) {
	if opts.Compress {
		zw := lz4.NewWriter(w)

		defer func() {
			if closeErr := zw.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close lz4 frame: %w", closeErr)
			}
		}()

		w = zw
	}

	switch format {
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatCSV:
		return writeCSV(w, doc)
	case FormatYAML:
		return writeYAML(w, doc)
	case FormatHTML:
		return writeHTML(w, doc)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

func writeYAML(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) //nolint:mnd // conventional YAML indent

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("close yaml encoder: %w", err)
	}

	return nil
}

// CSVHeader is the header row of CSV exports.
var CSVHeader = []string{"path", "status", "import_count", "legacy_imports", "migrated_imports"}

func writeCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, f := range doc.Files {
		row := []string{
			f.Path,
			f.Status,
			strconv.Itoa(f.ImportCount),
			strconv.Itoa(f.LegacyImports),
			strconv.Itoa(f.MigratedImports),
		}

		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	return nil
}
