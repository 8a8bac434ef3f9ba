// Package migration defines the per-file analysis model and the import
// classifier that decides whether a TypeScript file still depends on the
// legacy shared directory, the migrated one, both or neither.
package migration

import (
	"encoding/json"
	"fmt"
	"time"
)

// ImportKind identifies the syntactic form of an import.
type ImportKind uint8

// Import kinds.
const (
	// KindStaticNamed covers `import { A } from`, `import A from` and bare `import 'x'`.
	KindStaticNamed ImportKind = iota
	// KindStaticNamespace is `import * as X from`.
	KindStaticNamespace
	// KindTypeOnly is `import type ... from`.
	KindTypeOnly
	// KindDynamic is `import('x')` with a literal argument.
	KindDynamic
)

var importKindNames = [...]string{
	KindStaticNamed:     "static_named",
	KindStaticNamespace: "static_namespace",
	KindTypeOnly:        "type_only",
	KindDynamic:         "dynamic",
}

// String returns the snake_case name of the kind.
func (k ImportKind) String() string {
	if int(k) < len(importKindNames) {
		return importKindNames[k]
	}

	return fmt.Sprintf("import_kind(%d)", uint8(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k ImportKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Source records which tracked directory an import specifier points into.
type Source uint8

// Import sources.
const (
	SourceNone Source = iota
	SourceLegacy
	SourceMigrated
)

// String returns the lower-case name of the source.
func (s Source) String() string {
	switch s {
	case SourceLegacy:
		return "legacy"
	case SourceMigrated:
		return "migrated"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ByteRange is a half-open [Start, End) span in the file content.
type ByteRange struct {
	Start uint32 `json:"start" yaml:"start"`
	End   uint32 `json:"end"   yaml:"end"`
}

// ImportInfo is one import statement or dynamic import expression.
// SourcePath is the unquoted specifier exactly as written; it is never resolved.
type ImportInfo struct {
	SourcePath string     `json:"source_path"     yaml:"source_path"`
	Kind       ImportKind `json:"kind"            yaml:"kind"`
	Names      []string   `json:"names,omitempty" yaml:"names,omitempty"`
	Range      ByteRange  `json:"byte_range"      yaml:"byte_range"`
	Line       uint32     `json:"line"            yaml:"line"`
	Column     uint32     `json:"column"          yaml:"column"`
	Source     Source     `json:"source"          yaml:"source"`
}

// Equal reports whether two imports carry the same specifier, kind, names and span.
func (i ImportInfo) Equal(other ImportInfo) bool {
	if i.SourcePath != other.SourcePath || i.Kind != other.Kind || i.Range != other.Range ||
		i.Line != other.Line || i.Column != other.Column || i.Source != other.Source {
		return false
	}

	if len(i.Names) != len(other.Names) {
		return false
	}

	for idx := range i.Names {
		if i.Names[idx] != other.Names[idx] {
			return false
		}
	}

	return true
}

// Classification is the per-file migration status derived from its imports.
type Classification uint8

// Classifications.
const (
	Neither Classification = iota
	Legacy
	Migrated
	Both
)

// String returns the lower-case label. Both is reported as "partial".
func (c Classification) String() string {
	switch c {
	case Legacy:
		return "legacy"
	case Migrated:
		return "migrated"
	case Both:
		return "partial"
	default:
		return "neither"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// NeedsMigration reports whether the file still imports from the legacy directory.
func (c Classification) NeedsMigration() bool {
	return c == Legacy || c == Both
}

// ErrorKind separates unreadable files from malformed ones.
type ErrorKind uint8

// Error kinds.
const (
	ErrorKindIO ErrorKind = iota + 1
	ErrorKindParse
)

// String returns the lower-case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindIO:
		return "io"
	case ErrorKindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// FileError describes why a file could not be classified.
type FileError struct {
	Kind    ErrorKind `json:"kind"             yaml:"kind"`
	Message string    `json:"message"          yaml:"message"`
	Line    uint32    `json:"line,omitempty"   yaml:"line,omitempty"`
	Column  uint32    `json:"column,omitempty" yaml:"column,omitempty"`
}

// Error implements error.
func (e *FileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s error at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
	}

	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Status labels used by reports.
const (
	StatusLegacy   = "Legacy"
	StatusMigrated = "Migrated"
	StatusPartial  = "Partial"
	StatusNoModels = "No Models"
	StatusError    = "Error"
)

// FileAnalysis is the latest analysis result for one file. Records are
// replaced wholesale; a published record is never mutated. See
// fileAnalysisWire for the JSON and YAML form.
type FileAnalysis struct {
	Path           string
	Fingerprint    uint64
	Size           int64
	ModTime        time.Time
	Imports        []ImportInfo
	Classification Classification
	Err            *FileError
	AnalyzedAt     time.Time
}

// fileAnalysisWire is the serialised form of FileAnalysis. A record with an
// error carries no classification, so it never reads as Neither.
type fileAnalysisWire struct {
	Path           string          `json:"path"                     yaml:"path"`
	Fingerprint    uint64          `json:"fingerprint"              yaml:"fingerprint"`
	Size           int64           `json:"size"                     yaml:"size"`
	ModTime        time.Time       `json:"mod_time"                 yaml:"mod_time"`
	Imports        []ImportInfo    `json:"imports"                  yaml:"imports"`
	Classification *Classification `json:"classification,omitempty" yaml:"classification,omitempty"`
	Err            *FileError      `json:"error,omitempty"          yaml:"error,omitempty"`
	AnalyzedAt     time.Time       `json:"analyzed_at"              yaml:"analyzed_at"`
}

func (a FileAnalysis) wire() fileAnalysisWire {
	w := fileAnalysisWire{
		Path:        a.Path,
		Fingerprint: a.Fingerprint,
		Size:        a.Size,
		ModTime:     a.ModTime,
		Imports:     a.Imports,
		Err:         a.Err,
		AnalyzedAt:  a.AnalyzedAt,
	}

	if a.Err == nil {
		c := a.Classification
		w.Classification = &c
	}

	return w
}

// MarshalJSON implements json.Marshaler.
func (a FileAnalysis) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.wire())
}

// MarshalYAML implements yaml.Marshaler.
func (a FileAnalysis) MarshalYAML() (any, error) {
	return a.wire(), nil
}

// HasError reports whether the file failed to read or parse.
func (a *FileAnalysis) HasError() bool {
	return a.Err != nil
}

// Status returns the report label for the file.
func (a *FileAnalysis) Status() string {
	if a.Err != nil {
		return StatusError
	}

	switch a.Classification {
	case Legacy:
		return StatusLegacy
	case Migrated:
		return StatusMigrated
	case Both:
		return StatusPartial
	default:
		return StatusNoModels
	}
}

// ImportCount returns the number of imports found.
func (a *FileAnalysis) ImportCount() int {
	return len(a.Imports)
}

// CountBySource returns how many imports point into the given directory.
func (a *FileAnalysis) CountBySource(src Source) int {
	n := 0

	for i := range a.Imports {
		if a.Imports[i].Source == src {
			n++
		}
	}

	return n
}

// Clone returns a deep copy so callers can hold the record without sharing slices.
func (a FileAnalysis) Clone() FileAnalysis {
	out := a

	if a.Imports != nil {
		out.Imports = make([]ImportInfo, len(a.Imports))
		for i, imp := range a.Imports {
			out.Imports[i] = imp
			if imp.Names != nil {
				out.Imports[i].Names = append([]string(nil), imp.Names...)
			}
		}
	}

	if a.Err != nil {
		errCopy := *a.Err
		out.Err = &errCopy
	}

	return out
}
