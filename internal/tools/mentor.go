package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/vibe-check/internal/mentor"
)

// Mentor answers mentor queries.
type Mentor interface {
	Mentor(ctx context.Context, req mentor.Request) (*mentor.Result, error)
}

// MentorTool handles the vibe_check_mentor MCP tool.
type MentorTool struct {
	engine            Mentor
	maxWorkspaceBytes int
}

// NewMentorTool creates a MentorTool. Workspace files named in file_paths
// are read up to maxWorkspaceBytes in total.
func NewMentorTool(engine Mentor, maxWorkspaceBytes int) *MentorTool {
	return &MentorTool{engine: engine, maxWorkspaceBytes: maxWorkspaceBytes}
}

// Definition returns the MCP tool definition for registration.
func (t *MentorTool) Definition() mcp.Tool {
	return mcp.NewTool("vibe_check_mentor",
		mcp.WithDescription(
			"Get senior-engineer feedback on a plan, question or change. "+
				"Flags engineering anti-patterns (building infrastructure before it is needed, "+
				"patching symptoms, escalating complexity) and returns coaching guidance. "+
				"Common questions are answered instantly; novel ones are answered by the host model.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question, plan or decision to review"),
		),
		mcp.WithString("context",
			mcp.Description("Additional context: constraints, what was already tried, related code"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session id from a previous answer, to continue the conversation"),
		),
		mcp.WithString("reasoning_depth",
			mcp.Description("How thorough the guidance should be"),
			mcp.Enum("quick", "standard", "comprehensive"),
			mcp.DefaultString("standard"),
		),
		mcp.WithString("mode",
			mcp.Description("Mentoring style"),
			mcp.DefaultString("standard"),
		),
		mcp.WithString("phase",
			mcp.Description("Project phase: planning, implementation or review"),
			mcp.DefaultString("planning"),
		),
		mcp.WithArray("file_paths",
			mcp.Description("Files relevant to the query, relative to working_directory"),
			mcp.WithStringItems(),
		),
		mcp.WithString("working_directory",
			mcp.Description("Workspace root used to resolve file_paths"),
		),
		mcp.WithBoolean("force_dynamic",
			mcp.Description("Always generate a fresh answer with the host model"),
		),
	)
}

// Handle processes the vibe_check_mentor tool call.
func (t *MentorTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	mreq := mentor.Request{
		Query:            query,
		Context:          req.GetString("context", ""),
		SessionID:        req.GetString("session_id", ""),
		ReasoningDepth:   req.GetString("reasoning_depth", "standard"),
		Mode:             req.GetString("mode", "standard"),
		Phase:            req.GetString("phase", "planning"),
		FilePaths:        req.GetStringSlice("file_paths", nil),
		WorkingDirectory: req.GetString("working_directory", ""),
		ForceDynamic:     req.GetBool("force_dynamic", false),
	}
	if mreq.WorkingDirectory != "" && len(mreq.FilePaths) > 0 {
		data, err := mentor.ReadWorkspace(mreq.WorkingDirectory, mreq.FilePaths, t.maxWorkspaceBytes)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		mreq.WorkspaceData = data
	}

	res, err := t.engine.Mentor(ctx, mreq)
	if errors.Is(err, mentor.ErrEmptyQuery) {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	if err != nil {
		return jsonResult(map[string]any{"status": "error", "error": err.Error()})
	}
	return jsonResult(res)
}
