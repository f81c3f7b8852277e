package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// AskInput defines the input schema for the ask_ai_act tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"The question, ideally in Slovenian"`
	ChatID   string `json:"chat_id,omitempty" jsonschema:"Conversation to continue; omit to start a new one"`
}

// AskResult is the JSON payload returned by ask_ai_act.
type AskResult struct {
	ChatID    string            `json:"chat_id"`
	ChatName  string            `json:"chat_name"`
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"relevant_part_texts"`
	Path      []workflow.Stage  `json:"path"`
}

// NewAskHandler creates the ask_ai_act tool handler.
func NewAskHandler(deps *Dependencies) mcp.ToolHandlerFor[AskInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.Question) == "" {
			return ErrorResult("Question cannot be empty", "Provide a question about the AI Act"), nil, nil
		}

		res, err := deps.Chat.Ask(ctx, strings.TrimSpace(input.ChatID), input.Question)
		switch {
		case errors.Is(err, workflow.ErrConversationNotFound):
			return ErrorResult("Chat not found", hintNewChat), nil, nil
		case err != nil:
			deps.Logger.Error("ask failed", "error", err)
			return ErrorResult("Failed to answer the question", "The language model may be unavailable"), nil, nil
		}

		citations := res.Turn.Assistant.Citations
		if citations == nil {
			citations = []models.Citation{}
		}
		deps.Logger.Info("ask completed",
			"question", truncate(input.Question, 30),
			"chat_id", res.Conversation.ID,
			"citations", len(citations))

		return JSONResult(AskResult{
			ChatID:    res.Conversation.ID,
			ChatName:  res.Conversation.Name,
			Answer:    res.Turn.Assistant.Content,
			Citations: citations,
			Path:      res.Path,
		}), nil, nil
	}
}
