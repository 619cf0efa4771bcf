package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kioku/internal/ctxutil"
)

const (
	uriFacts     = "kioku://facts"
	uriDecisions = "kioku://decisions"
)

func (s *Server) registerResources() {
	// kioku://facts: every fact in the caller's project, oldest first.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriFacts,
			"Project Facts",
			mcplib.WithResourceDescription("All facts recorded in the caller's project, oldest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleFactsResource,
	)

	// kioku://decisions: every decision in the caller's project, oldest first.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			uriDecisions,
			"Project Decisions",
			mcplib.WithResourceDescription("All decisions recorded in the caller's project, oldest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDecisionsResource,
	)
}

func (s *Server) handleFactsResource(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, fmt.Errorf("mcp: facts: authentication required")
	}
	facts, err := s.knowledge.ListFacts(ctx, claims.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("mcp: facts: %w", err)
	}
	return jsonResource(uriFacts, facts)
}

func (s *Server) handleDecisionsResource(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, fmt.Errorf("mcp: decisions: authentication required")
	}
	decisions, err := s.knowledge.ListDecisions(ctx, claims.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("mcp: decisions: %w", err)
	}
	return jsonResource(uriDecisions, decisions)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal %s: %w", uri, err)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
