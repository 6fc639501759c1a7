package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/manager"
)

// GetMetricsInput is empty.
type GetMetricsInput struct{}

// ExportContextInput defines the input schema for the export_context tool.
type ExportContextInput struct {
	Snapshot string `json:"snapshot,omitempty" jsonschema:"Store the export under this name instead of returning it"`
}

// ImportContextInput defines the input schema for the import_context tool.
type ImportContextInput struct {
	Data     string `json:"data,omitempty" jsonschema:"Export document as JSON"`
	Snapshot string `json:"snapshot,omitempty" jsonschema:"Name of a stored snapshot to import"`
}

// ClearContextInput is empty.
type ClearContextInput struct{}

// NewGetMetricsHandler returns the session statistics.
func NewGetMetricsHandler(deps *Dependencies) mcp.ToolHandlerFor[GetMetricsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetMetricsInput) (*mcp.CallToolResult, any, error) {
		return JSONResult(deps.Manager.GetMetrics()), nil, nil
	}
}

// NewExportContextHandler returns the session export or stores it as a
// snapshot.
func NewExportContextHandler(deps *Dependencies) mcp.ToolHandlerFor[ExportContextInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ExportContextInput) (*mcp.CallToolResult, any, error) {
		doc, err := deps.Manager.ExportAllContext(ctx)
		if err != nil {
			return ErrorResult("Failed to export context", err.Error()), nil, nil
		}
		if input.Snapshot == "" {
			return JSONResult(doc), nil, nil
		}
		if deps.Snapshots == nil {
			return ErrorResult("Snapshot store is not configured", "Omit snapshot to receive the export inline"), nil, nil
		}
		info, err := deps.Snapshots.SaveSnapshot(ctx, input.Snapshot, doc)
		if err != nil {
			deps.Logger.Error("save snapshot failed", "name", input.Snapshot, "error", err)
			return ErrorResult("Failed to save snapshot "+input.Snapshot, "Database may be unavailable"), nil, nil
		}
		return JSONResult(info), nil, nil
	}
}

// NewImportContextHandler replaces the session with an export.
func NewImportContextHandler(deps *Dependencies) mcp.ToolHandlerFor[ImportContextInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ImportContextInput) (*mcp.CallToolResult, any, error) {
		var err error
		switch {
		case strings.TrimSpace(input.Data) != "":
			err = deps.Manager.UnmarshalImport(ctx, []byte(input.Data))
		case input.Snapshot != "":
			if deps.Snapshots == nil {
				return ErrorResult("Snapshot store is not configured", "Pass the export as data"), nil, nil
			}
			var doc *manager.Export
			if doc, err = deps.Snapshots.LoadSnapshot(ctx, input.Snapshot); err == nil {
				err = deps.Manager.ImportAllContext(ctx, doc)
			}
		default:
			return ErrorResult("Nothing to import", "Provide data or snapshot"), nil, nil
		}
		if err != nil {
			return failure(deps, "import_context", err), nil, nil
		}
		return JSONResult(deps.Manager.Summary()), nil, nil
	}
}

// NewClearContextHandler drops all session state.
func NewClearContextHandler(deps *Dependencies) mcp.ToolHandlerFor[ClearContextInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClearContextInput) (*mcp.CallToolResult, any, error) {
		if err := deps.Manager.ClearAllContext(ctx); err != nil {
			return ErrorResult("Failed to clear context", err.Error()), nil, nil
		}
		return TextResult("context cleared"), nil, nil
	}
}
