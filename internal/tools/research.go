package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StartResearchInput defines the input schema for the start_research tool.
type StartResearchInput struct {
	Name string `json:"name,omitempty" jsonschema:"Session name. Derived from session topics when empty"`
	Goal string `json:"goal,omitempty" jsonschema:"What the research should answer"`
}

// AddFindingInput defines the input schema for the add_finding tool.
type AddFindingInput struct {
	Content string `json:"content" jsonschema:"required,Finding text, attributed to the current page"`
}

// EndResearchInput is empty.
type EndResearchInput struct{}

// NewStartResearchHandler opens a research session.
func NewStartResearchHandler(deps *Dependencies) mcp.ToolHandlerFor[StartResearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StartResearchInput) (*mcp.CallToolResult, any, error) {
		s, err := deps.Manager.StartResearchSession(ctx, input.Name, input.Goal)
		if err != nil {
			return failure(deps, "start_research", err), nil, nil
		}
		deps.Logger.Info("research started", "session_id", s.ID, "name", s.Name)
		return JSONResult(s), nil, nil
	}
}

// NewAddFindingHandler records a finding in the active session.
func NewAddFindingHandler(deps *Dependencies) mcp.ToolHandlerFor[AddFindingInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AddFindingInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(input.Content) == "" {
			return ErrorResult("Finding content is required", ""), nil, nil
		}
		f, err := deps.Manager.AddResearchFinding(ctx, input.Content)
		if err != nil {
			return failure(deps, "add_finding", err), nil, nil
		}
		return JSONResult(f), nil, nil
	}
}

// NewEndResearchHandler closes the active session.
func NewEndResearchHandler(deps *Dependencies) mcp.ToolHandlerFor[EndResearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EndResearchInput) (*mcp.CallToolResult, any, error) {
		s, err := deps.Manager.EndResearchSession(ctx)
		if err != nil {
			return failure(deps, "end_research", err), nil, nil
		}
		return JSONResult(s), nil, nil
	}
}
