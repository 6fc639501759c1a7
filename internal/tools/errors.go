package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/capture"
	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/manager"
)

// ErrorResult returns an IsError result reading "{msg}. {hint}", or just
// msg when hint is empty.
func ErrorResult(msg, hint string) *mcp.CallToolResult {
	if hint != "" {
		msg += ". " + hint
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// TextResult wraps text in a success result.
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// JSONResult renders v as indented JSON text.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ErrorResult("Failed to encode result", err.Error())
	}
	return TextResult(string(data))
}

// failure maps a session error onto a result the caller can act on.
// Errors without a known cause are logged.
func failure(deps *Dependencies, op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, manager.ErrNoActiveResearch):
		return ErrorResult("No active research session", "Call start_research first")
	case errors.Is(err, manager.ErrResearchActive):
		return ErrorResult("A research session is already active", "Call end_research first")
	case errors.Is(err, manager.ErrCrossPageDisabled):
		return ErrorResult("Cross-page context is disabled", "Enable it in the configuration")
	case errors.Is(err, manager.ErrIncompatibleVersion):
		return ErrorResult("Incompatible export version", "Only version "+manager.ExportVersion+" can be imported")
	case errors.Is(err, db.ErrNotFound):
		return ErrorResult("Snapshot not found", "List snapshots with the pagewise CLI")
	case errors.Is(err, capture.ErrUnsupportedContent):
		return ErrorResult("Unsupported page content", "Only HTML and Markdown pages can be analyzed")
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResult("Timed out during "+strings.ReplaceAll(op, "_", " "), "Try again or pass the page html")
	}
	deps.Logger.Error(op+" failed", "error", err)
	return ErrorResult("Failed to "+strings.ReplaceAll(op, "_", " "), err.Error())
}
