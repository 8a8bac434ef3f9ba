// Package cache holds the process-wide analysis store and the retained syntax
// trees used for incremental reparse.
package cache

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
)

// slot is the per-path cell. Writers hold mu; readers load value without locking.
type slot struct {
	mu      sync.Mutex
	value   atomic.Pointer[migration.FileAnalysis]
	deleted bool
}

// Store maps canonical file paths to their latest analysis. Reads never block,
// writers to the same path serialize, writers to different paths do not
// contend. The zero value is ready to use.
type Store struct {
	slots sync.Map // string -> *slot
	size  atomic.Int64
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Get returns a copy of the analysis stored for path.
func (s *Store) Get(path string) (migration.FileAnalysis, bool) {
	v, ok := s.slots.Load(path)
	if !ok {
		return migration.FileAnalysis{}, false
	}

	a := v.(*slot).value.Load() //nolint:errcheck // only *slot is stored
	if a == nil {
		return migration.FileAnalysis{}, false
	}

	return a.Clone(), true
}

// Put replaces the record for a.Path. The store keeps its own copy.
func (s *Store) Put(a migration.FileAnalysis) {
	rec := a.Clone()

	for {
		v, _ := s.slots.LoadOrStore(rec.Path, &slot{})
		sl := v.(*slot) //nolint:errcheck // only *slot is stored

		sl.mu.Lock()

		if sl.deleted {
			// Lost a race with Remove; the slot is already unlinked.
			sl.mu.Unlock()

			continue
		}

		if sl.value.Swap(&rec) == nil {
			s.size.Add(1)
		}

		sl.mu.Unlock()

		return
	}
}

// Remove deletes the record for path and reports whether one existed.
func (s *Store) Remove(path string) bool {
	v, ok := s.slots.Load(path)
	if !ok {
		return false
	}

	sl := v.(*slot) //nolint:errcheck // only *slot is stored

	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.deleted {
		return false
	}

	sl.deleted = true
	existed := sl.value.Swap(nil) != nil

	s.slots.CompareAndDelete(path, sl)

	if existed {
		s.size.Add(-1)
	}

	return existed
}

// Under reports whether path is dir or lies below it.
func Under(dir, path string) bool {
	if path == dir {
		return true
	}

	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)

	return strings.HasPrefix(path, prefix)
}

// RemoveUnder deletes every record whose path is dir or lies below it and
// returns how many were removed.
func (s *Store) RemoveUnder(dir string) int {
	var victims []string

	s.slots.Range(func(k, _ any) bool {
		p := k.(string) //nolint:errcheck // keys are strings
		if Under(dir, p) {
			victims = append(victims, p)
		}

		return true
	})

	removed := 0

	for _, p := range victims {
		if s.Remove(p) {
			removed++
		}
	}

	return removed
}

// Snapshot returns copies of all committed records sorted by path. Concurrent
// writes may or may not be reflected, but every record is complete.
func (s *Store) Snapshot() []migration.FileAnalysis {
	return s.ListFiles(nil)
}

// ListFiles returns the records accepted by pred, sorted by path. A nil
// predicate accepts everything.
func (s *Store) ListFiles(pred func(*migration.FileAnalysis) bool) []migration.FileAnalysis {
	out := make([]migration.FileAnalysis, 0, s.Len())

	s.slots.Range(func(_, v any) bool {
		a := v.(*slot).value.Load() //nolint:errcheck // only *slot is stored
		if a == nil {
			return true
		}

		if pred == nil || pred(a) {
			out = append(out, a.Clone())
		}

		return true
	})

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out
}

// Paths returns the stored paths under root in sorted order.
func (s *Store) Paths(root string) []string {
	var out []string

	s.slots.Range(func(k, v any) bool {
		p := k.(string) //nolint:errcheck // keys are strings
		if v.(*slot).value.Load() != nil && Under(root, p) {
			out = append(out, p)
		}

		return true
	})

	sort.Strings(out)

	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return int(s.size.Load())
}
