package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// PingInput defines the input schema for the ping tool.
type PingInput struct {
	Echo string `json:"echo,omitempty" jsonschema:"Text to echo back"`
}

// PingResult reports liveness and the session size.
type PingResult struct {
	Reply         string `json:"reply"`
	Pages         int    `json:"pages"`
	Conversations int    `json:"conversations"`
}

// NewPingHandler answers with "pong", or the echo text, plus session counts.
func NewPingHandler(deps *Dependencies) mcp.ToolHandlerFor[PingInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input PingInput) (*mcp.CallToolResult, any, error) {
		deps.Logger.Debug("ping tool called", "echo", input.Echo)

		res := PingResult{Reply: "pong"}
		if input.Echo != "" {
			res.Reply = input.Echo
		}
		if deps.Manager != nil {
			s := deps.Manager.Summary()
			res.Pages, res.Conversations = s.PageCount, s.ConversationCount
		}
		return JSONResult(res), nil, nil
	}
}
