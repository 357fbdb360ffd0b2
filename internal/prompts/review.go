// Package prompts implements the MCP prompts of the Vibe Check server.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tool calls.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPRPrompt handles the vibe-review-pr MCP prompt.
// It walks the AI through an async PR analysis from start to result.
type ReviewPRPrompt struct{}

// NewReviewPRPrompt creates a ReviewPRPrompt.
func NewReviewPRPrompt() *ReviewPRPrompt {
	return &ReviewPRPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPRPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("vibe-review-pr",
		mcp.WithPromptDescription(
			"Review a pull request for engineering anti-patterns. "+
				"Large PRs are analyzed in the background and polled until done.",
		),
		mcp.WithArgument("repository",
			mcp.ArgumentDescription("Repository as owner/repo"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("pr_number",
			mcp.ArgumentDescription("Pull request number"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the vibe-review-pr prompt request.
func (p *ReviewPRPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	repo := strings.TrimSpace(req.Params.Arguments["repository"])
	pr := strings.TrimSpace(req.Params.Arguments["pr_number"])
	if repo == "" || pr == "" {
		return nil, fmt.Errorf("repository and pr_number are required")
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Vibe check %s#%s", repo, pr),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please vibe check pull request #%s in %s.\n\n"+
						"1. Fetch the PR title, body, additions, deletions and changed file count\n"+
						"2. Run `start_async_analysis` with repository='%s', pr_number=%s and that data as pr_data\n"+
						"3. Summarize the immediate_analysis right away\n"+
						"4. If the status is not_suitable, review the diff directly and run `vibe_check_mentor` on your main concerns\n"+
						"5. If a job was queued, poll `check_analysis_status` with the job_id until it is completed or failed, then summarize the findings\n"+
						"6. If the status is queue_full or resource_limited, tell me when to retry",
					pr, repo, repo, pr,
				)),
			},
		},
	}, nil
}
