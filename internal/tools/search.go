package tools

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiact-go/internal/models"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"The search query text"`
	Limit int    `json:"limit,omitempty" jsonschema:"Max results 1-100, default 10"`
}

// SearchResult is the JSON payload returned by search_ai_act.
type SearchResult struct {
	Passages []models.ScoredPassage `json:"passages"`
	Count    int                    `json:"count"`
}

// NewSearchHandler creates the search_ai_act tool handler.
func NewSearchHandler(deps *Dependencies) mcp.ToolHandlerFor[SearchInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, any, error,
	) {
		// Input validation
		if strings.TrimSpace(input.Query) == "" {
			return ErrorResult("Query cannot be empty", "Provide a search query"), nil, nil
		}

		// Set defaults and validate limit
		limit := input.Limit
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			return ErrorResult("Limit must be 1-100", "Reduce limit value"), nil, nil
		}

		hits, err := deps.Chat.Search(ctx, input.Query, limit)
		if err != nil {
			deps.Logger.Error("search failed", "error", err)
			return ErrorResult("Search failed", "The index may be missing; run `aiact index build`"), nil, nil
		}

		deps.Logger.Info("search completed", "query", truncate(input.Query, 30), "results", len(hits))
		return JSONResult(SearchResult{Passages: hits, Count: len(hits)}), nil, nil
	}
}
