// Package mcp implements the Model Context Protocol server for Kioku.
//
// The MCP server exposes the knowledge API through MCP tools, resources,
// and prompts so MCP-compatible agents can record facts and decisions and
// ask whether they contradict each other.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/kioku/internal/service/knowledge"
)

// Server wraps the MCP server with Kioku's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	knowledge *knowledge.Service
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools,
// and prompts.
func New(svc *knowledge.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		knowledge: svc,
		logger:    logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kioku",
		version,
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithRecovery(),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("failed to encode result: " + err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}
