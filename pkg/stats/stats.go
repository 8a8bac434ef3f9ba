// Package stats derives aggregate migration counts from a set of file analyses.
package stats

import (
	"time"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
)

const percent = 100.0

// Snapshot is a point-in-time aggregate over the analysis cache.
type Snapshot struct {
	Total     int       `json:"total"     yaml:"total"`
	Legacy    int       `json:"legacy"    yaml:"legacy"`
	Partial   int       `json:"partial"   yaml:"partial"`
	Migrated  int       `json:"migrated"  yaml:"migrated"`
	NoModels  int       `json:"no_models" yaml:"no_models"`
	Errors    int       `json:"errors"    yaml:"errors"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Aggregate counts files per status. Files with an error are counted only as
// errors, never as NoModels.
func Aggregate(files []migration.FileAnalysis, now time.Time) Snapshot {
	s := Snapshot{Total: len(files), Timestamp: now}

	for i := range files {
		f := &files[i]

		if f.HasError() {
			s.Errors++

			continue
		}

		switch f.Classification {
		case migration.Legacy:
			s.Legacy++
		case migration.Both:
			s.Partial++
		case migration.Migrated:
			s.Migrated++
		case migration.Neither:
			s.NoModels++
		}
	}

	return s
}

// WithModels returns the number of files importing from either tracked directory.
func (s Snapshot) WithModels() int {
	return s.Legacy + s.Partial + s.Migrated
}

// NeedsMigration returns the number of files still importing legacy models.
func (s Snapshot) NeedsMigration() int {
	return s.Legacy + s.Partial
}

// ProgressPct returns migrated files as a percentage of files with models,
// or 0 when no file has models.
func (s Snapshot) ProgressPct() float64 {
	denom := s.WithModels()
	if denom == 0 {
		return 0
	}

	return float64(s.Migrated) / float64(denom) * percent
}

// SuccessRate returns the percentage of files that parsed. An empty snapshot is 100.
func (s Snapshot) SuccessRate() float64 {
	if s.Total == 0 {
		return percent
	}

	return float64(s.Total-s.Errors) / float64(s.Total) * percent
}

// Delta returns the change in counts from prev to s.
func (s Snapshot) Delta(prev Snapshot) Snapshot {
	return Snapshot{
		Total:     s.Total - prev.Total,
		Legacy:    s.Legacy - prev.Legacy,
		Partial:   s.Partial - prev.Partial,
		Migrated:  s.Migrated - prev.Migrated,
		NoModels:  s.NoModels - prev.NoModels,
		Errors:    s.Errors - prev.Errors,
		Timestamp: s.Timestamp,
	}
}
