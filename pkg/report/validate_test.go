package report_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
)

func TestValidate_ExportedDocuments(t *testing.T) {
	t.Parallel()

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer

		opts := report.Options{Root: "/repo", IncludeImports: true, Compress: compress}
		require.NoError(t, report.Write(&buf, report.FormatJSON, sampleDoc(opts), opts))

		res, err := report.Validate(&buf)
		require.NoError(t, err)
		assert.True(t, res.Valid, "compress=%v errors=%v", compress, res.Errors)
		assert.Empty(t, res.Errors)
	}
}

func TestValidate_SchemaViolations(t *testing.T) {
	t.Parallel()

	doc := `{"stats": {"total": -1}, "files": [{"path": "a.ts", "status": "Unknown"}]}`

	res, err := report.Validate(strings.NewReader(doc))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)
}

func TestValidate_MalformedInput(t *testing.T) {
	t.Parallel()

	_, err := report.Validate(strings.NewReader(""))
	require.ErrorIs(t, err, report.ErrEmptyDocument)

	_, err = report.Validate(strings.NewReader("{not json"))
	require.ErrorIs(t, err, report.ErrInvalidDocument)
}

func TestSchema_IsJSON(t *testing.T) {
	t.Parallel()

	assert.Contains(t, string(report.Schema()), `"required"`)
}
