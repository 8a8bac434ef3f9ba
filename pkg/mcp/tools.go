package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sharad-Patel1/clickhome-migration/pkg/migration"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/report"
	"github.com/Sharad-Patel1/clickhome-migration/pkg/tracker"
)

// Tool name constants.
const (
	ToolNameStats     = "migration_stats"
	ToolNameGetFile   = "migration_get_file"
	ToolNameListFiles = "migration_list_files"
	ToolNameRescan    = "migration_rescan"
)

// List limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Sentinel errors for tool input validation.
var (
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrFileNotTracked indicates the file is not in the analysis cache.
	ErrFileNotTracked = errors.New("file is not tracked")
	// ErrUnknownStatus indicates an unrecognised status filter.
	ErrUnknownStatus = errors.New("unknown status filter")
	// ErrInvalidLimit indicates a negative or oversized limit.
	ErrInvalidLimit = errors.New("limit out of range")
)

// Input types (auto-generate JSON schemas via struct tags).

// StatsInput is the input schema for the migration_stats tool.
type StatsInput struct{}

// GetFileInput is the input schema for the migration_get_file tool.
type GetFileInput struct {
	Path string `json:"path" jsonschema:"file path, absolute or relative to the scanned root"`
}

// ListFilesInput is the input schema for the migration_list_files tool.
type ListFilesInput struct {
	Status string `json:"status,omitempty" jsonschema:"optional filter: legacy, partial, migrated, no_models or error"`
	Limit  int    `json:"limit,omitempty"  jsonschema:"maximum number of files to return (default 100, max 1000)"`
}

// RescanInput is the input schema for the migration_rescan tool.
type RescanInput struct{}

// Output types.

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// FileResult is the migration_get_file payload.
type FileResult struct {
	Status string                 `json:"status"`
	File   migration.FileAnalysis `json:"file"`
}

// ListResult is the migration_list_files payload.
type ListResult struct {
	Matched int                `json:"matched"`
	Files   []report.FileEntry `json:"files"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func (s *Server) requireScan() error {
	if s.tracker.Root() == "" {
		return tracker.ErrNoScan
	}

	return nil
}

func (s *Server) summary() report.Summary {
	return report.Build(s.tracker.Snapshot(), nil, report.Options{}).Stats
}

func (s *Server) handleStats(
	_ context.Context, _ *mcpsdk.CallToolRequest, _ StatsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := s.requireScan(); err != nil {
		return errorResult(err)
	}

	return jsonResult(s.summary())
}

func (s *Server) handleGetFile(
	_ context.Context, _ *mcpsdk.CallToolRequest, input GetFileInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := s.requireScan(); err != nil {
		return errorResult(err)
	}

	path := strings.TrimSpace(input.Path)
	if path == "" {
		return errorResult(ErrEmptyPath)
	}

	fa, ok := s.tracker.GetFile(path)
	if !ok {
		return errorResult(fmt.Errorf("%w: %s", ErrFileNotTracked, path))
	}

	return jsonResult(FileResult{Status: fa.Status(), File: fa})
}

func (s *Server) handleListFiles(
	_ context.Context, _ *mcpsdk.CallToolRequest, input ListFilesInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if err := s.requireScan(); err != nil {
		return errorResult(err)
	}

	status, err := parseStatus(input.Status)
	if err != nil {
		return errorResult(err)
	}

	limit := input.Limit
	if limit == 0 {
		limit = DefaultListLimit
	}

	if limit < 0 || limit > MaxListLimit {
		return errorResult(fmt.Errorf("%w: %d (max %d)", ErrInvalidLimit, input.Limit, MaxListLimit))
	}

	files := s.tracker.ListFiles(func(a *migration.FileAnalysis) bool {
		return status == "" || a.Status() == status
	})

	doc := report.Build(s.tracker.Snapshot(), files, report.Options{Root: s.tracker.Root()})
	out := ListResult{Matched: len(doc.Files), Files: doc.Files}

	if len(out.Files) > limit {
		out.Files = out.Files[:limit]
	}

	return jsonResult(out)
}

func (s *Server) handleRescan(
	ctx context.Context, _ *mcpsdk.CallToolRequest, _ RescanInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if _, err := s.tracker.Rescan(ctx); err != nil {
		return errorResult(fmt.Errorf("rescan: %w", err))
	}

	return jsonResult(s.summary())
}

var statusFilters = map[string]string{
	"legacy":    migration.StatusLegacy,
	"partial":   migration.StatusPartial,
	"migrated":  migration.StatusMigrated,
	"no_models": migration.StatusNoModels,
	"no models": migration.StatusNoModels,
	"error":     migration.StatusError,
}

func parseStatus(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}

	status, ok := statusFilters[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}

	return status, nil
}

// Tool description constants.
const (
	statsToolDescription = "Report shared-model migration progress for the scanned project: " +
		"file counts per status, progress percentage and success rate."

	getFileToolDescription = "Return the latest analysis of one TypeScript file: " +
		"its status and every import with its kind, names, position and tracked directory."

	listFilesToolDescription = "List analyzed files, optionally filtered by status, " +
		"with import counts per tracked directory."

	rescanToolDescription = "Rescan the project root and return the refreshed migration statistics."
)
