package mcp

import (
	"context"
	"strings"

	"github.com/BaSui01/agentcanvas/types"
)

// Tool is one callable operation exposed by a server.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	InputSchema *types.JSONSchema `json:"inputSchema"`
	ServerID    string            `json:"serverId"`
}

// serverKind classifies a server by name for tool discovery.
type serverKind string

const (
	kindFilesystem serverKind = "filesystem"
	kindMemory     serverKind = "memory"
	kindDatabase   serverKind = "database"
	kindWeb        serverKind = "web"
)

func kindOf(name string) serverKind {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "filesystem") || strings.Contains(lower, "file"):
		return kindFilesystem
	case strings.Contains(lower, "memory"):
		return kindMemory
	case strings.Contains(lower, "database") || strings.Contains(lower, "sql"):
		return kindDatabase
	case strings.Contains(lower, "web") || strings.Contains(lower, "search"):
		return kindWeb
	}
	return ""
}

func stringProp(desc string) *types.JSONSchema {
	return types.NewStringSchema().WithDescription(desc)
}

// discoverTools lists the tools a server with the given name offers.
// Servers of an unrecognised kind expose none.
func discoverTools(serverID, name string) []Tool {
	tool := func(name, desc string, schema *types.JSONSchema) Tool {
		return Tool{Name: name, Description: desc, InputSchema: schema, ServerID: serverID}
	}

	switch kindOf(name) {
	case kindFilesystem:
		return []Tool{
			tool("read_file", "Read contents of a file",
				types.NewObjectSchema().
					AddProperty("path", stringProp("File path to read")).
					AddRequired("path")),
			tool("write_file", "Write contents to a file",
				types.NewObjectSchema().
					AddProperty("path", stringProp("File path to write")).
					AddProperty("content", stringProp("Content to write")).
					AddRequired("path", "content")),
			tool("list_directory", "List files in a directory",
				types.NewObjectSchema().
					AddProperty("path", stringProp("Directory path")).
					AddRequired("path")),
		}
	case kindMemory:
		return []Tool{
			tool("store_memory", "Store information in memory",
				types.NewObjectSchema().
					AddProperty("key", stringProp("Memory key")).
					AddProperty("value", stringProp("Value to store")).
					AddProperty("metadata", types.NewObjectSchema().WithDescription("Optional metadata")).
					AddRequired("key", "value")),
			tool("recall_memory", "Retrieve information from memory",
				types.NewObjectSchema().
					AddProperty("query", stringProp("Search query")).
					AddRequired("query")),
			tool("create_relation", "Create a relation between entities",
				types.NewObjectSchema().
					AddProperty("from", stringProp("Source entity")).
					AddProperty("relation", stringProp("Relation type")).
					AddProperty("to", stringProp("Target entity")).
					AddRequired("from", "relation", "to")),
		}
	case kindDatabase:
		return []Tool{
			tool("query", "Run a read-only query",
				types.NewObjectSchema().
					AddProperty("sql", stringProp("SQL statement")).
					AddProperty("input", stringProp("Natural language question"))),
		}
	case kindWeb:
		return []Tool{
			tool("web_search", "Search the web",
				types.NewObjectSchema().
					AddProperty("query", stringProp("Search terms")).
					AddProperty("limit", types.NewIntegerSchema().WithDescription("Maximum results")).
					AddRequired("query")),
		}
	}
	return nil
}

// Invoker performs a validated tool call against a connected server.
type Invoker interface {
	Invoke(ctx context.Context, server Server, tool string, args map[string]any) (any, error)
}

// SimulatedInvoker answers every call with canned data.
type SimulatedInvoker struct{}

// Invoke implements Invoker.
func (SimulatedInvoker) Invoke(ctx context.Context, _ Server, tool string, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch tool {
	case "read_file":
		return map[string]any{"content": "File content from MCP server", "mimeType": "text/plain"}, nil
	case "write_file":
		return map[string]any{"success": true, "path": args["path"]}, nil
	case "list_directory":
		return map[string]any{"files": []string{"file1.txt", "file2.txt", "subdirectory/"}}, nil
	case "store_memory":
		return map[string]any{"success": true, "key": args["key"]}, nil
	case "recall_memory":
		return map[string]any{"results": []map[string]any{
			{"key": "example", "value": "stored information", "relevance": 0.95},
			{"key": "another", "value": "more data", "relevance": 0.82},
		}}, nil
	case "create_relation":
		return map[string]any{
			"success":  true,
			"relation": strings.Join([]string{str(args["from"]), str(args["relation"]), str(args["to"])}, " -> "),
		}, nil
	case "query":
		return map[string]any{
			"columns":  []string{"metric", "value"},
			"rows":     [][]any{{"orders", 1280}, {"revenue", 45210.5}},
			"rowCount": 2,
		}, nil
	case "web_search":
		return map[string]any{"results": []map[string]any{
			{"title": "Search result", "url": "https://example.com/result", "snippet": "Result for " + str(args["query"])},
		}}, nil
	}
	return map[string]any{"success": true}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
