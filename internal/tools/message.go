package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// ProcessMessageInput defines the input schema for the process_message tool.
type ProcessMessageInput struct {
	Role    string `json:"role,omitempty" jsonschema:"Message author: user (default) or assistant"`
	Content string `json:"content" jsonschema:"required,Message text"`
}

// ProcessMessageResult summarizes what the message changed.
type ProcessMessageResult struct {
	ConversationID string                  `json:"conversationId"`
	Extracted      []models.MemoryItem  `json:"extracted,omitempty"`
	OpenQuestions  []models.Question    `json:"openQuestions,omitempty"`
	ResearchMode   manager.ResearchMode `json:"researchMode"`
	Tokens         int                  `json:"contextTokens"`
}

// NewProcessMessageHandler records a chat message against the current page.
func NewProcessMessageHandler(deps *Dependencies) mcp.ToolHandlerFor[ProcessMessageInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ProcessMessageInput) (*mcp.CallToolResult, any, error) {
		if strings.TrimSpace(input.Content) == "" {
			return ErrorResult("Message content is required", ""), nil, nil
		}
		role := models.Role(strings.ToLower(input.Role))
		switch role {
		case "":
			role = models.RoleUser
		case models.RoleUser, models.RoleAssistant:
		default:
			return ErrorResult("Invalid role "+input.Role, "Use user or assistant"), nil, nil
		}

		res, err := deps.Manager.ProcessMessage(ctx, models.Message{Role: role, Content: input.Content})
		if err != nil {
			deps.Logger.Error("process message failed", "error", err)
			return ErrorResult("Failed to process message", err.Error()), nil, nil
		}

		out := ProcessMessageResult{
			ConversationID: res.ConversationID,
			ResearchMode:   res.ResearchMode,
			Tokens:         res.Context.Tokens,
		}
		if ins := res.MemoryInsights; ins != nil {
			out.Extracted = ins.Extracted
			out.OpenQuestions = ins.OpenQuestions
		}
		return JSONResult(out), nil, nil
	}
}
