package sampling

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPSampler sends sampling/createMessage to the client that issued the
// current tool call. The server must have sampling enabled.
type MCPSampler struct{}

// Available reports whether ctx carries an MCP server and client session.
func (MCPSampler) Available(ctx context.Context) bool {
	return server.ServerFromContext(ctx) != nil && server.ClientSessionFromContext(ctx) != nil
}

// CreateMessage implements Sampler.
func (MCPSampler) CreateMessage(ctx context.Context, msg Message) (Reply, error) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return Reply{}, ErrUnavailable
	}

	req := mcp.CreateMessageRequest{
		CreateMessageParams: mcp.CreateMessageParams{
			Messages: []mcp.SamplingMessage{{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: msg.Prompt},
			}},
			SystemPrompt: msg.SystemPrompt,
			MaxTokens:    msg.MaxTokens,
			Temperature:  msg.Temperature,
		},
	}
	if msg.ModelHint != "" {
		req.ModelPreferences = &mcp.ModelPreferences{
			Hints:                []mcp.ModelHint{{Name: msg.ModelHint}},
			IntelligencePriority: 0.8,
			SpeedPriority:        0.5,
		}
	}

	res, err := srv.RequestSampling(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	if res == nil {
		return Reply{}, errEmptyReply
	}
	text, err := textOf(res.Content)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Model: res.Model}, nil
}

func textOf(content any) (string, error) {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text, nil
	case *mcp.TextContent:
		return c.Text, nil
	case string:
		return c, nil
	case map[string]any:
		if t, ok := c["text"].(string); ok {
			return t, nil
		}
	}
	return "", fmt.Errorf("sampling: unsupported reply content %T", content)
}
