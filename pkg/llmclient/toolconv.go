package llmclient

import (
	"encoding/json"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolDefinitionsFromMCP translates the dispatcher's advertised MCP tools
// into this package's ToolDefinition vocabulary, the conversion
// pkg/tools.Connection.ListTools deliberately leaves to its caller.
func ToolDefinitionsFromMCP(tools []*mcpsdk.Tool) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, ToolDefinition{
			Name:             t.Name,
			Description:      t.Description,
			ParametersSchema: string(t.InputSchema),
		})
	}
	return out
}

// ToolResultMessage builds the "tool" conversation message fed back after
// a dispatcher call, extracting the text payload from an MCP
// CallToolResult and appending it as a tool message with the structured
// result.
func ToolResultMessage(call ToolCall, result *mcpsdk.CallToolResult) Message {
	return Message{
		Role:       RoleTool,
		Content:    mcpResultText(result),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

func mcpResultText(result *mcpsdk.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	if text, ok := result.Content[0].(*mcpsdk.TextContent); ok {
		return text.Text
	}
	data, err := json.Marshal(result.Content[0])
	if err != nil {
		return ""
	}
	return string(data)
}
