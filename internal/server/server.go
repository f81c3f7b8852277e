// Package server wraps the MCP server that exposes the AI Act tools to agents.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Name is the implementation name reported during initialization.
const Name = "aiact"

const instructions = `Tools for the EU Artificial Intelligence Act (Uredba (EU) 2024/1689) in Slovenian.
ask_ai_act answers a question from the regulation text and returns the cited fragments; pass chat_id to continue a conversation.
search_ai_act ranks articles and recitals by keyword, get_ai_act_part returns one part verbatim.
Ask in Slovenian for the best retrieval results.`

// Server owns the MCP server and its transports.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates the MCP server with the given version.
func New(version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	impl := &mcp.Implementation{Name: Name, Version: version}
	return &Server{
		mcp:    mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		logger: logger,
	}
}

// Setup installs the request logging middleware.
func (s *Server) Setup() {
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(s.logger))
}

// MCPServer returns the underlying MCP server for tool registration.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves one client over stdio until it disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the same tools over the streamable HTTP transport.
// Every session shares this server and its tools.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}
