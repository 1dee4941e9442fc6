package hub

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flowlane/agentd/internal/sdk"
)

// MCPServerStatus enriches sdk.MCPServerStatus with the concrete tool
// descriptors the server advertises, so the config surface naming MCP
// servers (§3.1, §6 `config.mcp.*`) has a typed shape instead of an
// untyped map. Grounded on the teacher's mcpserver/tools.go, which builds
// its tool catalogue from mcp.NewTool/mcp.Tool.
type MCPServerStatus struct {
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	ToolCount int        `json:"toolCount"`
	Tools     []mcp.Tool `json:"tools,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// BuildMCPServerStatus adapts a query's raw status list, attaching the tool
// descriptors registered for each named server in catalogue (if any). A
// server absent from catalogue keeps an empty Tools slice — §4.2.8's
// getMcpServerStatus never fails on an unknown server, it just reports
// what it has.
func BuildMCPServerStatus(base []sdk.MCPServerStatus, catalogue map[string][]mcp.Tool) []MCPServerStatus {
	out := make([]MCPServerStatus, 0, len(base))
	for _, s := range base {
		out = append(out, MCPServerStatus{
			Name:      s.Name,
			Connected: s.Connected,
			ToolCount: s.ToolCount,
			Tools:     catalogue[s.Name],
			Error:     s.Error,
		})
	}
	return out
}
