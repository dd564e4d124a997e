package workflow

import (
	"time"

	"github.com/BaSui01/agentcanvas/types"
)

// NodeType identifies the behavior a node has when it is executed.
type NodeType string

const (
	NodeTypeStart        NodeType = "start"
	NodeTypeEnd          NodeType = "end"
	NodeTypeAgent        NodeType = "agent"
	NodeTypeGuardrail    NodeType = "guardrail"
	NodeTypeCondition    NodeType = "condition"
	NodeTypeMCP          NodeType = "mcp"
	NodeTypeUserApproval NodeType = "user-approval"
	NodeTypeFileSearch   NodeType = "file-search"
)

// NodeTypes lists every known node type in palette order.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeEnd,
	NodeTypeAgent,
	NodeTypeGuardrail,
	NodeTypeCondition,
	NodeTypeMCP,
	NodeTypeUserApproval,
	NodeTypeFileSearch,
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// GuardrailType selects which check a guardrail node runs.
type GuardrailType string

const (
	GuardrailJailbreak  GuardrailType = "jailbreak"
	GuardrailPII        GuardrailType = "pii"
	GuardrailModeration GuardrailType = "moderation"
	GuardrailMaxLength  GuardrailType = "max-length"
	GuardrailCustom     GuardrailType = "custom"
)

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeData is the type-specific payload of a node. Only the fields relevant
// to the node's type are meaningful; the rest stay at their zero value.
type NodeData struct {
	Label       string `json:"label" yaml:"label" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// agent
	Model        string   `json:"model,omitempty" yaml:"model,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
	Tools        []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	// guardrail
	GuardrailType GuardrailType `json:"guardrailType,omitempty" yaml:"guardrailType,omitempty"`

	// condition
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// mcp
	MCPServer string         `json:"mcpServer,omitempty" yaml:"mcpServer,omitempty"`
	Tool      string         `json:"tool,omitempty" yaml:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	// file-search
	Query     string   `json:"query,omitempty" yaml:"query,omitempty"`
	FileTypes []string `json:"fileTypes,omitempty" yaml:"fileTypes,omitempty"`
}

// Node is a single step on the canvas.
type Node struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Type     NodeType `json:"type" yaml:"type" validate:"required,nodetype"`
	Position Position `json:"position" yaml:"position"`
	Data     NodeData `json:"data" yaml:"data"`
}

// Connection is a directed edge between two nodes. Label is meaningful on
// edges leaving a condition node, where "true" and "false" select a branch.
type Connection struct {
	ID       string `json:"id" yaml:"id" validate:"required"`
	SourceID string `json:"sourceId" yaml:"sourceId" validate:"required"`
	TargetID string `json:"targetId" yaml:"targetId" validate:"required"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Workflow is a named graph of nodes and connections.
type Workflow struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description" yaml:"description"`
	Nodes       []Node       `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" yaml:"connections" validate:"dive"`
	Version     int          `json:"version" yaml:"version"`
	CreatedAt   time.Time    `json:"createdAt" yaml:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" yaml:"updatedAt"`
}

// ExecutionStatus is the lifecycle state of a run.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusPaused    ExecutionStatus = "paused"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// LogType classifies an execution log entry.
type LogType string

const (
	LogInfo       LogType = "info"
	LogSuccess    LogType = "success"
	LogError      LogType = "error"
	LogToolCall   LogType = "tool-call"
	LogToolResult LogType = "tool-result"
)

// SystemNodeID is the node id used for log entries not tied to a real node.
const SystemNodeID = "system"

// ExecutionLog is one entry of a run's append-only trail.
type ExecutionLog struct {
	ID        string         `json:"id"`
	NodeID    string         `json:"nodeId"`
	Timestamp time.Time      `json:"timestamp"`
	Type      LogType        `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	// Duration is the node handler's wall time in milliseconds.
	Duration int64 `json:"duration,omitempty"`
}

// ExecutionContext is the state that flows between nodes of a run.
type ExecutionContext struct {
	Input     string          `json:"input"`
	Variables map[string]any  `json:"variables"`
	Messages  []types.Message `json:"messages"`
}

// WorkflowExecution is the record of one run of a workflow.
type WorkflowExecution struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflowId"`
	Status         ExecutionStatus  `json:"status"`
	StartedAt      time.Time        `json:"startedAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
	CurrentNodeID  string           `json:"currentNodeId,omitempty"`
	AwaitingNodeID string           `json:"awaitingNodeId,omitempty"`
	Error          string           `json:"error,omitempty"`
	ErrorCode      types.ErrorCode  `json:"errorCode,omitempty"`
	Context        ExecutionContext `json:"context"`
	Logs           []ExecutionLog   `json:"logs"`
	// Steps 累计节点访问次数，跨 Resume 延续
	Steps int `json:"steps,omitempty"`
}

// WorkflowVersion is an immutable snapshot of a workflow's graph.
type WorkflowVersion struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflowId"`
	Version     int          `json:"version"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	CreatedAt   time.Time    `json:"createdAt"`
	CreatedBy   string       `json:"createdBy,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}
