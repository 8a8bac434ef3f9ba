// Package ignore decides which directories and files are excluded from
// scanning and watching. It combines built-in skip lists, configured
// gitignore-style patterns, nested .gitignore files and vendor detection.
package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/src-d/enry/v2"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/tsparse"
)

// GitignoreFile is the per-directory ignore file name.
const GitignoreFile = ".gitignore"

// ErrRootNotAbsolute is returned when the matcher root is relative.
var ErrRootNotAbsolute = errors.New("ignore root must be absolute")

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{
	"node_modules", "bower_components", "jspm_packages", "dist", "build",
	".git", ".angular", "coverage", "__pycache__", ".turbo", ".next", ".nuxt",
}

// DefaultPatterns are gitignore-style patterns applied on top of .gitignore files.
var DefaultPatterns = []string{
	"*.spec.ts", "*.test.ts", "*.d.ts", "__tests__/", "__mocks__/",
}

// Rules configures a Matcher.
type Rules struct {
	// Patterns are gitignore-style patterns relative to the root.
	Patterns []string
	// UseGitignore enables reading .gitignore files in every visited directory.
	UseGitignore bool
	// SkipVendor also prunes directories that enry classifies as vendored.
	// enry's heuristics match first-party names such as cache/ and external/,
	// so it is opt-in.
	SkipVendor bool
}

// DefaultRules returns the built-in patterns with .gitignore enabled.
func DefaultRules() Rules {
	return Rules{
		Patterns:     append([]string(nil), DefaultPatterns...),
		UseGitignore: true,
	}
}

// Matcher answers ignore queries for paths under a single root. It is safe for
// concurrent use.
type Matcher struct {
	root     string
	rules    Rules
	skipDirs map[string]struct{}
	patterns *gitignore.GitIgnore

	mu     sync.RWMutex
	nested map[string]*gitignore.GitIgnore // slash-separated dir relative to root
}

// New builds a matcher rooted at the absolute directory root. When
// rules.UseGitignore is set the root's own .gitignore is loaded immediately.
func New(root string, rules Rules) (*Matcher, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("%w: %s", ErrRootNotAbsolute, root)
	}

	m := &Matcher{
		root:     filepath.Clean(root),
		rules:    rules,
		skipDirs: make(map[string]struct{}, len(DefaultSkipDirs)),
		patterns: gitignore.CompileIgnoreLines(rules.Patterns...),
		nested:   make(map[string]*gitignore.GitIgnore),
	}

	for _, d := range DefaultSkipDirs {
		m.skipDirs[d] = struct{}{}
	}

	if err := m.LoadDir(m.root); err != nil {
		return nil, err
	}

	return m, nil
}

// Root returns the matcher root.
func (m *Matcher) Root() string {
	return m.root
}

// LoadDir reads dir/.gitignore if present. A missing file is not an error.
func (m *Matcher) LoadDir(dir string) error {
	if !m.rules.UseGitignore {
		return nil
	}

	rel, ok := m.rel(dir)
	if !ok {
		return nil
	}

	compiled, err := gitignore.CompileIgnoreFile(filepath.Join(dir, GitignoreFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.forget(rel)

			return nil
		}

		return fmt.Errorf("load %s: %w", filepath.Join(dir, GitignoreFile), err)
	}

	m.mu.Lock()
	m.nested[rel] = compiled
	m.mu.Unlock()

	return nil
}

func (m *Matcher) forget(rel string) {
	m.mu.Lock()
	delete(m.nested, rel)
	m.mu.Unlock()
}

// IgnoredDir reports whether the directory should be pruned.
func (m *Matcher) IgnoredDir(path string) bool {
	return m.ignored(path, true)
}

// IgnoredFile reports whether the file is excluded by any rule.
func (m *Matcher) IgnoredFile(path string) bool {
	return m.ignored(path, false)
}

// Tracked reports whether path is a TypeScript file that is not ignored.
// Ancestor directories are checked too, so a file under a pruned directory is
// never tracked.
func (m *Matcher) Tracked(path string) bool {
	if !tsparse.IsTypeScriptPath(path) || m.IgnoredFile(path) {
		return false
	}

	for dir := filepath.Dir(path); len(dir) > len(m.root); dir = filepath.Dir(dir) {
		if m.IgnoredDir(dir) {
			return false
		}
	}

	return true
}

// IsTempFile reports whether name looks like an editor swap or backup file.
func IsTempFile(path string) bool {
	base := filepath.Base(path)

	return strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, "~") ||
		strings.HasPrefix(base, ".#") ||
		base == ".DS_Store"
}

func (m *Matcher) ignored(path string, isDir bool) bool {
	rel, ok := m.rel(path)
	if !ok {
		return true
	}

	if rel == "" {
		return false
	}

	if isDir {
		if _, skip := m.skipDirs[filepath.Base(path)]; skip {
			return true
		}

		if m.rules.SkipVendor && enry.IsVendor(rel+"/") {
			return true
		}
	}

	if matches(m.patterns, rel, isDir) {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for dir, gi := range m.nested {
		sub := rel

		if dir != "" {
			if !strings.HasPrefix(rel, dir+"/") {
				continue
			}

			sub = strings.TrimPrefix(rel, dir+"/")
		}

		if matches(gi, sub, isDir) {
			return true
		}
	}

	return false
}

// rel converts path to a slash-separated path relative to the root. The root
// itself maps to "". Paths outside the root report false.
func (m *Matcher) rel(path string) (string, bool) {
	r, err := filepath.Rel(m.root, filepath.Clean(path))
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}

	if r == "." {
		return "", true
	}

	return filepath.ToSlash(r), true
}

func matches(gi *gitignore.GitIgnore, rel string, isDir bool) bool {
	if gi == nil {
		return false
	}

	if isDir {
		return gi.MatchesPath(rel + "/")
	}

	return gi.MatchesPath(rel)
}
