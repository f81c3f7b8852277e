package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/service"
)

// StatsInput takes no arguments.
type StatsInput struct{}

// StatsResult is the JSON payload returned by the stats tool.
type StatsResult struct {
	metrics.Snapshot
	Index *service.IndexStats `json:"index,omitempty"`
}

// NewStatsHandler creates the stats tool handler.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (
		*mcp.CallToolResult, any, error,
	) {
		result := StatsResult{Snapshot: deps.Metrics.Snapshot()}
		if deps.Index != nil {
			if stats, err := deps.Index.Stats(ctx); err != nil {
				deps.Logger.Warn("index stats unavailable", "error", err)
			} else {
				result.Index = &stats
			}
		}
		return JSONResult(result), nil, nil
	}
}
