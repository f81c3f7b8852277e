package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiact-go/internal/service"
)

// GetPartInput defines the input schema for the get_ai_act_part tool.
type GetPartInput struct {
	ID string `json:"id" jsonschema:"Article number (e.g. 5) or recital id (e.g. uvodna_1)"`
}

// NewGetPartHandler creates the get_ai_act_part tool handler.
func NewGetPartHandler(deps *Dependencies) mcp.ToolHandlerFor[GetPartInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetPartInput) (
		*mcp.CallToolResult, any, error,
	) {
		if strings.TrimSpace(input.ID) == "" {
			return ErrorResult("ID cannot be empty", hintSearchParts), nil, nil
		}

		part, err := deps.Chat.Part(ctx, input.ID)
		if errors.Is(err, service.ErrPartNotFound) {
			return ErrorResult("Part not found: "+input.ID, hintSearchParts), nil, nil
		}
		if err != nil {
			deps.Logger.Error("part lookup failed", "id", input.ID, "error", err)
			return ErrorResult("Failed to read the corpus", ""), nil, nil
		}
		return JSONResult(part), nil, nil
	}
}
