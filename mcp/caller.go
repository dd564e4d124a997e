package mcp

import (
	"context"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow"
)

// NodeCaller serves mcp nodes from a Registry.
type NodeCaller struct {
	registry    *Registry
	autoConnect bool
}

// NewNodeCaller adapts r to workflow.ToolCaller. With autoConnect, a node
// naming an unknown server connects it over stdio on first use.
func NewNodeCaller(r *Registry, autoConnect bool) *NodeCaller {
	return &NodeCaller{registry: r, autoConnect: autoConnect}
}

var _ workflow.ToolCaller = (*NodeCaller)(nil)

// CallTool implements workflow.ToolCaller. An empty tool selects the
// server's first tool. When the arguments carry only the default "input"
// and the tool requires a single string property, input is bound to it.
func (c *NodeCaller) CallTool(ctx context.Context, call workflow.ToolCall) (any, error) {
	server, ok := c.registry.FindServer(call.Server)
	if !ok {
		if !c.autoConnect || call.Server == "" {
			return nil, types.Errorf(types.ErrToolNotFound, "MCP server %s not found", call.Server)
		}
		var err error
		server, err = c.registry.ConnectServer(ctx, ConnectRequest{
			Name:     call.Server,
			URL:      "stdio://" + call.Server,
			Protocol: ProtocolStdio,
		})
		if err != nil {
			return nil, err
		}
	}

	tools := c.registry.ToolsByServer(server.ID)
	name := call.Tool
	if name == "" {
		if len(tools) == 0 {
			return nil, types.Errorf(types.ErrToolNotFound, "MCP server %s exposes no tools", server.Name)
		}
		name = tools[0].Name
	}
	args := call.Arguments
	if tool, ok := findTool(tools, name); ok {
		args = bindInput(tool, args)
	}
	return c.registry.CallServerTool(ctx, server.ID, name, args)
}

func bindInput(tool Tool, args map[string]any) map[string]any {
	input, ok := args["input"]
	if len(args) != 1 || !ok || tool.InputSchema == nil {
		return args
	}
	if _, declared := tool.InputSchema.Properties["input"]; declared {
		return args
	}
	required := tool.InputSchema.Required
	if len(required) != 1 {
		return args
	}
	prop := tool.InputSchema.Properties[required[0]]
	if prop == nil || prop.Type != types.SchemaTypeString {
		return args
	}
	return map[string]any{required[0]: input}
}
