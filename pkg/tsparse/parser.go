// Package tsparse extracts import records from TypeScript and TSX source with
// tree-sitter, either from scratch or incrementally from a previous tree.
package tsparse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
)

// Sentinel errors.
var (
	// ErrParseFailed is returned when tree-sitter produces no tree.
	ErrParseFailed = errors.New("tree-sitter parse failed")
	// ErrNoPriorTree is returned by Reparse when the previous tree is missing or closed.
	ErrNoPriorTree = errors.New("no prior tree to reparse")
)

// Dialect selects the grammar.
type Dialect uint8

// Supported dialects.
const (
	TypeScript Dialect = iota
	TSX
)

// String returns the dialect name.
func (d Dialect) String() string {
	if d == TSX {
		return "tsx"
	}

	return "typescript"
}

var grammarFuncs = map[Dialect]func() unsafe.Pointer{ //nolint:gochecknoglobals // grammar registry
	TypeScript: typescript.GetLanguage,
	TSX:        tsx.GetLanguage,
}

var grammarCache sync.Map

// language returns the grammar for d, loading it once per process.
func (d Dialect) language() *sitter.Language {
	if cached, ok := grammarCache.Load(d); ok {
		if lang, castOK := cached.(*sitter.Language); castOK {
			return lang
		}
	}

	lang := sitter.NewLanguage(grammarFuncs[d]())
	actual, _ := grammarCache.LoadOrStore(d, lang)

	return actual.(*sitter.Language) //nolint:forcetypeassert // only *sitter.Language is stored
}

// DialectForPath returns the dialect for a .ts or .tsx path.
func DialectForPath(path string) (Dialect, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return TypeScript, true
	case ".tsx":
		return TSX, true
	default:
		return TypeScript, false
	}
}

// IsTypeScriptPath reports whether the path has a tracked extension.
func IsTypeScriptPath(path string) bool {
	_, ok := DialectForPath(path)

	return ok
}

// Tree is a parsed syntax tree together with the source it was built from.
// It must be closed when no longer needed.
type Tree struct {
	tree    *sitter.Tree
	source  []byte
	dialect Dialect
}

// Source returns the content the tree was parsed from. Callers must not modify it.
func (t *Tree) Source() []byte {
	if t == nil {
		return nil
	}

	return t.source
}

// Dialect returns the grammar the tree was parsed with.
func (t *Tree) Dialect() Dialect {
	return t.dialect
}

// Close releases the underlying tree-sitter tree. It is safe to call more than once.
func (t *Tree) Close() {
	if t == nil || t.tree == nil {
		return
	}

	t.tree.Close()
	t.tree = nil
	t.source = nil
}

// SyntaxError reports the first malformed region of a file.
type SyntaxError struct {
	Line    uint32
	Column  uint32
	Missing bool
}

// Error implements error.
func (e *SyntaxError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing token at line %d, column %d", e.Line, e.Column)
	}

	return fmt.Sprintf("syntax error at line %d, column %d", e.Line, e.Column)
}

// Result is the outcome of one parse. Imports are sorted by position and share
// no memory with the parser. When Syntax is set the import list may be partial.
type Result struct {
	Imports []migration.ImportInfo
	Syntax  *SyntaxError
}

// Parse builds a fresh tree for src. The returned tree owns a copy of src.
func Parse(ctx context.Context, dialect Dialect, src []byte) (*Tree, Result, error) {
	return parse(ctx, dialect, nil, src)
}

// Reparse applies edit to old and reparses newSrc incrementally. The import
// list equals the one Parse would produce for newSrc. Reparse takes ownership
// of old and closes it.
func Reparse(ctx context.Context, old *Tree, newSrc []byte, edit Edit) (*Tree, Result, error) {
	if old == nil || old.tree == nil {
		return nil, Result{}, ErrNoPriorTree
	}

	defer old.Close()

	old.tree.Edit(edit.input())

	return parse(ctx, old.dialect, old.tree, newSrc)
}

// ReparseSource computes the edit between old's source and newSrc and reparses
// incrementally when the change is a usable single region, falling back to a
// full parse otherwise. The boolean reports whether the incremental path ran.
// It takes ownership of old.
func ReparseSource(ctx context.Context, old *Tree, newSrc []byte) (*Tree, Result, bool, error) {
	if old == nil || old.tree == nil {
		return nil, Result{}, false, ErrNoPriorTree
	}

	if bytes.Equal(old.source, newSrc) {
		return old, Result{Imports: extractImports(old.tree.RootNode(), old.source), Syntax: syntaxError(old.tree.RootNode())}, true, nil
	}

	edit, ok := ComputeEdit(old.source, newSrc)
	if !ok || int(edit.StartByte) == len(old.source) {
		dialect := old.dialect
		old.Close()

		tree, res, err := Parse(ctx, dialect, newSrc)

		return tree, res, false, err
	}

	tree, res, err := Reparse(ctx, old, newSrc, edit)

	return tree, res, true, err
}

// ExtractImports parses src and discards the tree.
func ExtractImports(ctx context.Context, dialect Dialect, src []byte) (Result, error) {
	tree, res, err := Parse(ctx, dialect, src)
	if err != nil {
		return Result{}, err
	}

	tree.Close()

	return res, nil
}

func parse(ctx context.Context, dialect Dialect, old *sitter.Tree, src []byte) (*Tree, Result, error) {
	parser := sitter.NewParser()
	if !parser.SetLanguage(dialect.language()) {
		return nil, Result{}, fmt.Errorf("%w: %s grammar rejected", ErrParseFailed, dialect)
	}

	owned := bytes.Clone(src)
	if owned == nil {
		owned = []byte{}
	}

	tree, err := parser.ParseString(ctx, old, owned)
	if err != nil {
		return nil, Result{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	if tree == nil {
		return nil, Result{}, ErrParseFailed
	}

	root := tree.RootNode()
	res := Result{
		Imports: extractImports(root, owned),
		Syntax:  syntaxError(root),
	}

	return &Tree{tree: tree, source: owned, dialect: dialect}, res, nil
}

func syntaxError(root sitter.Node) *SyntaxError {
	if root.IsNull() || !root.HasError() {
		return nil
	}

	bad, ok := firstErrorNode(root)
	if !ok {
		return &SyntaxError{Line: 1}
	}

	pos := bad.StartPoint()

	return &SyntaxError{
		Line:    uint32(pos.Row) + 1, //nolint:gosec // bounded by file size
		Column:  uint32(pos.Column), //nolint:gosec // bounded by file size
		Missing: bad.IsMissing(),
	}
}

func firstErrorNode(n sitter.Node) (sitter.Node, bool) {
	if n.IsError() || n.IsMissing() {
		return n, true
	}

	for i := range n.ChildCount() {
		child := n.Child(i)
		if child.IsNull() || (!child.HasError() && !child.IsMissing()) {
			continue
		}

		if found, ok := firstErrorNode(child); ok {
			return found, true
		}
	}

	return sitter.Node{}, false
}
