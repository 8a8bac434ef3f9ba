package migration

import (
	"errors"
	"strings"
)

// Default directory names.
const (
	DefaultLegacyDir   = "shared"
	DefaultMigratedDir = "shared_2023"
)

// Sentinel classifier configuration errors.
var (
	ErrEmptyDirName = errors.New("directory name must not be empty")
	ErrSameDirNames = errors.New("legacy and migrated directory names must differ")
	ErrDirNameSlash = errors.New("directory name must be a single path segment")
)

// Classifier matches import specifiers against the legacy and migrated
// directory names. The zero value is not usable; see NewClassifier.
type Classifier struct {
	legacy   string
	migrated string
}

// NewClassifier validates the directory names and returns a classifier.
func NewClassifier(legacyDir, migratedDir string) (Classifier, error) {
	if legacyDir == "" || migratedDir == "" {
		return Classifier{}, ErrEmptyDirName
	}

	if strings.ContainsAny(legacyDir, `/\`) || strings.ContainsAny(migratedDir, `/\`) {
		return Classifier{}, ErrDirNameSlash
	}

	if legacyDir == migratedDir {
		return Classifier{}, ErrSameDirNames
	}

	return Classifier{legacy: legacyDir, migrated: migratedDir}, nil
}

// DefaultClassifier returns a classifier for "shared" and "shared_2023".
func DefaultClassifier() Classifier {
	return Classifier{legacy: DefaultLegacyDir, migrated: DefaultMigratedDir}
}

// LegacyDir returns the legacy directory name.
func (c Classifier) LegacyDir() string { return c.legacy }

// MigratedDir returns the migrated directory name.
func (c Classifier) MigratedDir() string { return c.migrated }

// Match reports which tracked directory the specifier points into. A match is
// any path segment equal to the directory name. The migrated name is checked
// first.
func (c Classifier) Match(sourcePath string) Source {
	var sawLegacy bool

	rest := sourcePath
	for rest != "" {
		var segment string

		idx := strings.IndexAny(rest, `/\`)
		if idx < 0 {
			segment, rest = rest, ""
		} else {
			segment, rest = rest[:idx], rest[idx+1:]
		}

		switch segment {
		case c.migrated:
			return SourceMigrated
		case c.legacy:
			sawLegacy = true
		}
	}

	if sawLegacy {
		return SourceLegacy
	}

	return SourceNone
}

// Classify derives the file classification from its imports. Counts are not
// used; any legacy match plus any migrated match is Both.
func (c Classifier) Classify(imports []ImportInfo) Classification {
	var hasLegacy, hasMigrated bool

	for i := range imports {
		switch c.Match(imports[i].SourcePath) {
		case SourceLegacy:
			hasLegacy = true
		case SourceMigrated:
			hasMigrated = true
		case SourceNone:
		}

		if hasLegacy && hasMigrated {
			return Both
		}
	}

	switch {
	case hasLegacy:
		return Legacy
	case hasMigrated:
		return Migrated
	default:
		return Neither
	}
}

// Annotate sets Source on every import and returns the classification.
// It must run before the imports are published.
func (c Classifier) Annotate(imports []ImportInfo) Classification {
	for i := range imports {
		imports[i].Source = c.Match(imports[i].SourcePath)
	}

	return c.Classify(imports)
}
