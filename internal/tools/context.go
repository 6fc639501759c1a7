package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/manager"
)

// BuildContextInput defines the input schema for the build_context tool.
type BuildContextInput struct {
	Query            string `json:"query,omitempty" jsonschema:"Question the context should answer"`
	TargetModel      string `json:"targetModel,omitempty" jsonschema:"Target model id (chat or reasoner)"`
	MaxTokens        int    `json:"maxTokens,omitempty" jsonschema:"Token budget. Defaults to the model limit"`
	IncludeMemory    *bool  `json:"includeMemory,omitempty" jsonschema:"Include memory insights (default true)"`
	IncludeCrossPage *bool  `json:"includeCrossPage,omitempty" jsonschema:"Include cross-page context (default true)"`
}

// NewBuildContextHandler returns the assembled prompt with a one-line
// header describing its size.
func NewBuildContextHandler(deps *Dependencies) mcp.ToolHandlerFor[BuildContextInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input BuildContextInput) (*mcp.CallToolResult, any, error) {
		if input.MaxTokens < 0 {
			return ErrorResult("maxTokens must not be negative", ""), nil, nil
		}
		built, err := deps.Manager.BuildContext(ctx, manager.BuildRequest{
			Query:            input.Query,
			Model:            input.TargetModel,
			MaxTokens:        input.MaxTokens,
			IncludeMemory:    input.IncludeMemory,
			IncludeCrossPage: input.IncludeCrossPage,
		})
		if err != nil {
			deps.Logger.Error("build context failed", "error", err)
			return ErrorResult("Failed to build context", err.Error()), nil, nil
		}

		header := fmt.Sprintf("model=%s tokens=%d/%d intent=%s",
			built.Model, built.Tokens, built.TokenLimit, built.Session.Meta.Intent)
		if built.PrivacyApplied {
			header += " privacy=on"
		}
		return TextResult(header + "\n\n" + built.Prompt), nil, nil
	}
}
