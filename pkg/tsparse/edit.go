package tsparse

import (
	"bytes"
	"unicode/utf8"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Point is a zero-based row and byte column.
type Point struct {
	Row    uint32
	Column uint32
}

// Edit describes a single contiguous replacement between two versions of a file.
// Offsets are in bytes.
type Edit struct {
	StartByte   uint32
	OldEndByte  uint32
	NewEndByte  uint32
	StartPoint  Point
	OldEndPoint Point
	NewEndPoint Point
}

func (p Point) toSitter() sitter.Point {
	return sitter.Point{Row: uint(p.Row), Column: uint(p.Column)}
}

func (e Edit) input() sitter.InputEdit {
	return sitter.InputEdit{
		StartIndex:  uint(e.StartByte),
		OldEndIndex: uint(e.OldEndByte),
		NewEndIndex: uint(e.NewEndByte),
		StartPoint:  e.StartPoint.toSitter(),
		OldEndPoint: e.OldEndPoint.toSitter(),
		NewEndPoint: e.NewEndPoint.toSitter(),
	}
}

// ComputeEdit finds the single region that differs between oldSrc and newSrc
// by trimming their common prefix and suffix. It returns false when the inputs
// are identical or either is not valid UTF-8.
func ComputeEdit(oldSrc, newSrc []byte) (Edit, bool) {
	if bytes.Equal(oldSrc, newSrc) || !utf8.Valid(oldSrc) || !utf8.Valid(newSrc) {
		return Edit{}, false
	}

	oldText, newText := string(oldSrc), string(newSrc)
	dmp := diffmatchpatch.New()

	start := runeOffset(oldText, dmp.DiffCommonPrefix(oldText, newText))
	oldRest, newRest := oldText[start:], newText[start:]
	suffix := suffixBytes(oldRest, dmp.DiffCommonSuffix(oldRest, newRest))

	oldEnd := len(oldText) - suffix
	newEnd := len(newText) - suffix

	return Edit{
		StartByte:   uint32(start),  //nolint:gosec // source files are far below 4 GiB
		OldEndByte:  uint32(oldEnd), //nolint:gosec // source files are far below 4 GiB
		NewEndByte:  uint32(newEnd), //nolint:gosec // source files are far below 4 GiB
		StartPoint:  pointAt(oldSrc, start),
		OldEndPoint: pointAt(oldSrc, oldEnd),
		NewEndPoint: pointAt(newSrc, newEnd),
	}, true
}

// runeOffset returns the byte offset of the first n runes of s.
func runeOffset(s string, n int) int {
	off := 0
	for i := 0; i < n && off < len(s); i++ {
		_, size := utf8.DecodeRuneInString(s[off:])
		off += size
	}

	return off
}

// suffixBytes returns the byte length of the last n runes of s.
func suffixBytes(s string, n int) int {
	end := len(s)
	for i := 0; i < n && end > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}

	return len(s) - end
}

func pointAt(src []byte, offset int) Point {
	head := src[:offset]
	row := bytes.Count(head, []byte{'\n'})

	col := offset
	if nl := bytes.LastIndexByte(head, '\n'); nl >= 0 {
		col = offset - nl - 1
	}

	return Point{Row: uint32(row), Column: uint32(col)} //nolint:gosec // bounded by file size
}
