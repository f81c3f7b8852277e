package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/store"
)

// ListChatsInput takes no arguments.
type ListChatsInput struct{}

// ChatHistoryInput defines the input schema for the chat_history tool.
type ChatHistoryInput struct {
	ChatID string `json:"chat_id" jsonschema:"Conversation id from list_chats"`
}

// NewListChatsHandler creates the list_chats tool handler.
func NewListChatsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListChatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListChatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		chats, err := deps.Chat.Conversations(ctx)
		if err != nil {
			deps.Logger.Error("list chats failed", "error", err)
			return ErrorResult("Failed to list chats", "The conversation store may be unavailable"), nil, nil
		}
		if chats == nil {
			chats = []models.Conversation{}
		}
		return JSONResult(chats), nil, nil
	}
}

// NewChatHistoryHandler creates the chat_history tool handler.
func NewChatHistoryHandler(deps *Dependencies) mcp.ToolHandlerFor[ChatHistoryInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ChatHistoryInput) (
		*mcp.CallToolResult, any, error,
	) {
		if input.ChatID == "" {
			return ErrorResult("chat_id cannot be empty", hintListChats), nil, nil
		}
		turns, err := deps.Chat.Turns(ctx, input.ChatID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrorResult("Chat not found", hintListChats), nil, nil
		}
		if err != nil {
			deps.Logger.Error("chat history failed", "chat_id", input.ChatID, "error", err)
			return ErrorResult("Failed to load chat history", ""), nil, nil
		}
		return JSONResult(turns), nil, nil
	}
}
