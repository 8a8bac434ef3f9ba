package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/tsparse"
)

// DefaultTreeCacheSize bounds how many syntax trees are retained for incremental reparse.
const DefaultTreeCacheSize = 512

type treeEntry struct {
	tree *tsparse.Tree
}

// TreeStore retains the most recently used syntax trees by path. Evicted and
// replaced trees are closed.
type TreeStore struct {
	mu    sync.Mutex
	trees *lru.Cache[string, *treeEntry]
}

// NewTreeStore creates a store holding at most size trees.
func NewTreeStore(size int) (*TreeStore, error) {
	if size <= 0 {
		size = DefaultTreeCacheSize
	}

	trees, err := lru.NewWithEvict(size, func(_ string, e *treeEntry) {
		e.tree.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("create tree cache: %w", err)
	}

	return &TreeStore{trees: trees}, nil
}

// Take removes the tree for path and hands ownership to the caller.
func (s *TreeStore) Take(path string) (*tsparse.Tree, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.trees.Peek(path)
	if !ok {
		return nil, false
	}

	tree := e.tree
	e.tree = nil

	s.trees.Remove(path)

	return tree, tree != nil
}

// Put stores tree for path, taking ownership. A previous tree is closed.
func (s *TreeStore) Put(path string, tree *tsparse.Tree) {
	if tree == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.trees.Peek(path); ok && old.tree != tree {
		old.tree.Close()
	}

	s.trees.Add(path, &treeEntry{tree: tree})
}

// Drop closes and forgets the tree for path.
func (s *TreeStore) Drop(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trees.Remove(path)
}

// DropUnder closes and forgets every tree at or below dir.
func (s *TreeStore) DropUnder(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.trees.Keys() {
		if Under(dir, p) {
			s.trees.Remove(p)
		}
	}
}

// Len returns the number of retained trees.
func (s *TreeStore) Len() int {
	return s.trees.Len()
}

// Close releases every retained tree.
func (s *TreeStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trees.Purge()
}
