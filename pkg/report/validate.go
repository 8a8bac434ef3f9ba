package report

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON []byte

// lz4Magic is the LZ4 frame magic number in little-endian byte order.
var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

// Schema returns the JSON schema of exported JSON documents.
func Schema() []byte {
	return bytes.Clone(schemaJSON)
}

// ValidationResult lists schema violations of a document.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// OpenReader returns r, transparently decompressing an LZ4 frame.
func OpenReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(len(lz4Magic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read report header: %w", err)
	}

	if bytes.Equal(head, lz4Magic) {
		return lz4.NewReader(br), nil
	}

	return br, nil
}

// Validate checks a JSON document, optionally LZ4-compressed, against the
// report schema. Malformed input is an error; schema violations are not.
func Validate(r io.Reader) (ValidationResult, error) {
	in, err := OpenReader(r)
	if err != nil {
		return ValidationResult{}, err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("read report: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return ValidationResult{}, ErrEmptyDocument
	}

	if !json.Valid(data) {
		return ValidationResult{}, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
	}

	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return ValidationResult{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	out := ValidationResult{Valid: res.Valid()}

	for _, e := range res.Errors() {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}

	return out, nil
}
