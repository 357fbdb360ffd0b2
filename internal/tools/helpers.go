// Package tools implements the MCP tool handlers of the Vibe Check server.
//
// Each tool is a struct holding its dependencies behind small interfaces,
// with a Definition for registration and a Handle compatible with mcp-go's
// CallToolRequest signature. Domain outcomes, including rejections, are
// JSON payloads; tool errors are reserved for malformed calls.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// jsonResult renders v as an indented JSON text result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
