// =============================================================================
// 📦 测试数据工厂 - 工作流图
// =============================================================================
// 每次调用返回新的副本，测试可以随意修改
// =============================================================================
package fixtures

import (
	"time"

	"github.com/BaSui01/agentcanvas/workflow"
)

// FixedTime 是所有预置工作流的创建时间
var FixedTime = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

// Node 构造一个带标签的节点
func Node(id string, typ workflow.NodeType) workflow.Node {
	return workflow.Node{ID: id, Type: typ, Data: workflow.NodeData{Label: id}}
}

// Connect 构造 source → target 的连线，ID 为 source-target
func Connect(source, target, label string) workflow.Connection {
	return workflow.Connection{ID: source + "-" + target, SourceID: source, TargetID: target, Label: label}
}

func build(id, name string, nodes []workflow.Node, conns []workflow.Connection) *workflow.Workflow {
	return &workflow.Workflow{
		ID:          id,
		Name:        name,
		Nodes:       nodes,
		Connections: conns,
		Version:     1,
		CreatedAt:   FixedTime,
		UpdatedAt:   FixedTime,
	}
}

// Chain 把 nodes 按顺序首尾相连
func Chain(id string, nodes ...workflow.Node) *workflow.Workflow {
	conns := make([]workflow.Connection, 0, len(nodes))
	for i := 1; i < len(nodes); i++ {
		conns = append(conns, Connect(nodes[i-1].ID, nodes[i].ID, ""))
	}
	return build(id, id, nodes, conns)
}

// LinearWorkflow start → agent → end
func LinearWorkflow() *workflow.Workflow {
	return Chain("linear",
		Node("start", workflow.NodeTypeStart),
		Node("agent", workflow.NodeTypeAgent),
		Node("end", workflow.NodeTypeEnd),
	)
}

// BranchingWorkflow start → condition ─true→ yes(agent) → end
//
//	└false→ no(agent) → end
func BranchingWorkflow(condition string) *workflow.Workflow {
	cond := Node("cond", workflow.NodeTypeCondition)
	cond.Data.Condition = condition
	yes := Node("yes", workflow.NodeTypeAgent)
	yes.Data.SystemPrompt = "branch yes"
	no := Node("no", workflow.NodeTypeAgent)
	no.Data.SystemPrompt = "branch no"
	return build("branching", "branching",
		[]workflow.Node{Node("start", workflow.NodeTypeStart), cond, yes, no, Node("end", workflow.NodeTypeEnd)},
		[]workflow.Connection{
			Connect("start", "cond", ""),
			Connect("cond", "yes", "true"),
			Connect("cond", "no", "false"),
			Connect("yes", "end", ""),
			Connect("no", "end", ""),
		})
}

// ApprovalWorkflow start → draft(agent) → approve(user-approval) → end
func ApprovalWorkflow() *workflow.Workflow {
	return Chain("approval",
		Node("start", workflow.NodeTypeStart),
		Node("draft", workflow.NodeTypeAgent),
		Node("approve", workflow.NodeTypeUserApproval),
		Node("end", workflow.NodeTypeEnd),
	)
}

// GuardedWorkflow start → guard(guardrail) → agent → end
func GuardedWorkflow(typ workflow.GuardrailType) *workflow.Workflow {
	guard := Node("guard", workflow.NodeTypeGuardrail)
	guard.Data.GuardrailType = typ
	return Chain("guarded",
		Node("start", workflow.NodeTypeStart),
		guard,
		Node("agent", workflow.NodeTypeAgent),
		Node("end", workflow.NodeTypeEnd),
	)
}

// MCPWorkflow start → tool(mcp server/tool) → end
func MCPWorkflow(server, tool string, args map[string]any) *workflow.Workflow {
	n := Node("tool", workflow.NodeTypeMCP)
	n.Data.MCPServer = server
	n.Data.Tool = tool
	n.Data.Arguments = args
	return Chain("mcp",
		Node("start", workflow.NodeTypeStart),
		n,
		Node("end", workflow.NodeTypeEnd),
	)
}

// CyclicWorkflow start → a ⇄ b，永远不会到达 end
func CyclicWorkflow() *workflow.Workflow {
	return build("cyclic", "cyclic",
		[]workflow.Node{
			Node("start", workflow.NodeTypeStart),
			Node("a", workflow.NodeTypeAgent),
			Node("b", workflow.NodeTypeAgent),
		},
		[]workflow.Connection{
			Connect("start", "a", ""),
			Connect("a", "b", ""),
			Connect("b", "a", ""),
		})
}
