package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_ai_act",
		Description: "Ask a question about the EU AI Act (Slovenian text). Answers are grounded in retrieved articles and list the cited fragments. Pass chat_id to continue a conversation.",
	}, NewAskHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_ai_act",
		Description: "Rank AI Act articles and recitals by lexical similarity to a query",
	}, NewSearchHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_ai_act_part",
		Description: "Retrieve the raw AI Act record (article or recital) by its id",
	}, NewGetPartHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_chats",
		Description: "List stored conversations, oldest first",
	}, NewListChatsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat_history",
		Description: "Return the question and answer pairs of a conversation",
	}, NewChatHistoryHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Show runtime statistics: index size, stage timings, LLM token usage",
	}, NewStatsHandler(deps))
}
