package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kioku/internal/model"
)

func (s *Server) registerPrompts() {
	// record-and-check: guides the agent through recording an item and
	// checking the collection for contradictions.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("record-and-check",
			mcplib.WithPromptDescription("Record a fact or decision, then check the collection for contradictions"),
			mcplib.WithArgument("item_type",
				mcplib.ArgumentDescription("fact or decision"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleRecordAndCheckPrompt,
	)
}

func (s *Server) handleRecordAndCheckPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	kind, err := model.ParseItemKind(request.Params.Arguments["item_type"])
	if err != nil {
		return nil, err
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Record a %s and check for contradictions", kind),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Follow these steps:

1. RECORD the %[1]s by calling kioku_record_%[1]s. Keep the content to one
   specific statement.

2. CHECK by calling kioku_check_conflicts with item_type="%[1]s".

3. REVIEW the response:
   - If "error" is set, detection did not run to completion. Do not treat
     the empty conflict list as a clean bill of health.
   - For each entry in "conflicts", read item_1 and item_2 and the
     description. Decide which one is current and tell the user.
   - If "conflicts" is empty and there is no error, nothing contradicts.`, kind),
				},
			},
		},
	}, nil
}
