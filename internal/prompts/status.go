package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the vibe-status MCP prompt.
// It instructs the AI to read and present the server's health.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("vibe-status",
		mcp.WithPromptDescription(
			"Check the health of the Vibe Check server: "+
				"component health, async analysis availability and response telemetry.",
		),
	)
}

// Handle processes the vibe-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Vibe Check Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `vibe_check_system_status` and then:\n" +
						"1. Show the overall health and any component that is not healthy\n" +
						"2. Explain what the current system availability means for PR analysis\n" +
						"3. Summarize response telemetry: success rate, cache hits and circuit breaker state\n" +
						"4. Suggest what to do about any warning or critical component",
				),
			},
		},
	}, nil
}
