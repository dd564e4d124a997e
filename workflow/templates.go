package workflow

import (
	"slices"
	"strconv"
	"strings"

	"github.com/BaSui01/agentcanvas/types"
)

// TemplateCategory groups templates in the catalog.
type TemplateCategory string

const (
	CategoryCustomerSupport TemplateCategory = "customer-support"
	CategoryDataAnalysis    TemplateCategory = "data-analysis"
	CategoryContentCreation TemplateCategory = "content-creation"
	CategoryAutomation      TemplateCategory = "automation"
	CategoryResearch        TemplateCategory = "research"
)

// Template is a reusable workflow skeleton. Template nodes carry no id;
// connection endpoints are "node-<index>" placeholders into Nodes.
type Template struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Category    TemplateCategory `json:"category"`
	Tags        []string         `json:"tags"`
	UsageCount  int              `json:"usageCount"`
	Nodes       []Node           `json:"nodes"`
	Connections []Connection     `json:"connections"`
}

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	out := *t
	out.Tags = slices.Clone(t.Tags)
	out.Nodes = CloneNodes(t.Nodes)
	out.Connections = CloneConnections(t.Connections)
	return &out
}

// Instantiate turns the template into a live workflow with fresh ids. An
// empty name falls back to the template's. A placeholder that does not
// name a template node fails the whole instantiation.
func (t *Template) Instantiate(name string, opts ImportOptions) (*Workflow, error) {
	opts = opts.withDefaults()

	ids := make([]string, len(t.Nodes))
	nodes := make([]Node, len(t.Nodes))
	for i, n := range t.Nodes {
		ids[i] = opts.NewID()
		nodes[i] = n.Clone()
		nodes[i].ID = ids[i]
	}

	resolve := func(ref string) (string, error) {
		idx, ok := strings.CutPrefix(ref, "node-")
		if !ok {
			return "", types.Errorf(types.ErrInvalidRequest, "template %s: malformed node reference %q", t.ID, ref)
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 || i >= len(ids) {
			return "", types.Errorf(types.ErrInvalidRequest, "template %s: node reference %q out of range", t.ID, ref)
		}
		return ids[i], nil
	}

	conns := make([]Connection, len(t.Connections))
	for i, c := range t.Connections {
		src, err := resolve(c.SourceID)
		if err != nil {
			return nil, err
		}
		dst, err := resolve(c.TargetID)
		if err != nil {
			return nil, err
		}
		conns[i] = Connection{ID: opts.NewID(), SourceID: src, TargetID: dst, Label: c.Label}
	}

	if name == "" {
		name = t.Name
	}
	now := opts.Now()
	return &Workflow{
		ID:          opts.NewID(),
		Name:        name,
		Description: t.Description,
		Nodes:       nodes,
		Connections: conns,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Templates returns a copy of the built-in catalog.
func Templates() []*Template {
	out := make([]*Template, len(catalog))
	for i := range catalog {
		out[i] = catalog[i].Clone()
	}
	return out
}

// TemplateByID looks a template up by id.
func TemplateByID(id string) (*Template, bool) {
	for i := range catalog {
		if catalog[i].ID == id {
			return catalog[i].Clone(), true
		}
	}
	return nil, false
}

// TemplatesByCategory filters the catalog by category.
func TemplatesByCategory(category TemplateCategory) []*Template {
	var out []*Template
	for i := range catalog {
		if catalog[i].Category == category {
			out = append(out, catalog[i].Clone())
		}
	}
	return out
}

// SearchTemplates matches query case-insensitively against name,
// description and tags.
func SearchTemplates(query string) []*Template {
	q := strings.ToLower(query)
	var out []*Template
	for i := range catalog {
		t := &catalog[i]
		if strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Description), q) ||
			slices.ContainsFunc(t.Tags, func(tag string) bool { return strings.Contains(strings.ToLower(tag), q) }) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// PopularTemplates returns up to limit templates by descending usage. A
// non-positive limit means 5.
func PopularTemplates(limit int) []*Template {
	if limit <= 0 {
		limit = 5
	}
	out := Templates()
	slices.SortStableFunc(out, func(a, b *Template) int { return b.UsageCount - a.UsageCount })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tnode(typ NodeType, x, y float64, data NodeData) Node {
	return Node{Type: typ, Position: Position{X: x, Y: y}, Data: data}
}

func tconn(src, dst int, label string) Connection {
	return Connection{
		SourceID: "node-" + strconv.Itoa(src),
		TargetID: "node-" + strconv.Itoa(dst),
		Label:    label,
	}
}

var catalog = []Template{
	{
		ID:          "customer-support-routing",
		Name:        "Customer Support Routing",
		Description: "Intelligent routing system that classifies customer inquiries and routes them to specialized agents",
		Category:    CategoryCustomerSupport,
		Tags:        []string{"support", "classification", "routing", "multi-agent"},
		UsageCount:  245,
		Nodes: []Node{
			tnode(NodeTypeStart, 100, 200, NodeData{Label: "Customer Inquiry"}),
			tnode(NodeTypeAgent, 350, 150, NodeData{
				Label:        "Classifier Agent",
				Description:  "Classifies inquiry type",
				Model:        "openai/gpt-4o",
				SystemPrompt: "You are a customer inquiry classifier. Analyze the customer message and classify it as: technical, billing, or general. Respond with only one word.",
			}),
			tnode(NodeTypeCondition, 600, 200, NodeData{
				Label:     "Route by Type",
				Condition: "classification === 'technical'",
			}),
			tnode(NodeTypeAgent, 850, 100, NodeData{
				Label:        "Technical Support Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "You are a technical support specialist. Help customers resolve technical issues.",
				Tools:        []string{"web-search"},
			}),
			tnode(NodeTypeAgent, 850, 250, NodeData{
				Label:        "Billing Support Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "You are a billing support specialist. Help customers with payment and billing questions.",
			}),
			tnode(NodeTypeEnd, 1100, 200, NodeData{Label: "Response Sent"}),
		},
		Connections: []Connection{
			tconn(0, 1, ""),
			tconn(1, 2, ""),
			tconn(2, 3, "technical"),
			tconn(2, 4, "billing"),
			tconn(3, 5, ""),
			tconn(4, 5, ""),
		},
	},
	{
		ID:          "content-moderation",
		Name:        "Content Moderation Pipeline",
		Description: "Multi-stage content moderation with guardrails and human approval for edge cases",
		Category:    CategoryAutomation,
		Tags:        []string{"moderation", "guardrails", "approval", "safety"},
		UsageCount:  189,
		Nodes: []Node{
			tnode(NodeTypeStart, 100, 200, NodeData{Label: "Content Submitted"}),
			tnode(NodeTypeGuardrail, 350, 200, NodeData{Label: "PII Detection", GuardrailType: GuardrailPII}),
			tnode(NodeTypeGuardrail, 600, 200, NodeData{Label: "Jailbreak Detection", GuardrailType: GuardrailJailbreak}),
			tnode(NodeTypeAgent, 850, 200, NodeData{
				Label:        "Content Analyzer",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Analyze content for policy violations. Rate as: safe, review-needed, or unsafe. Provide reasoning.",
			}),
			tnode(NodeTypeCondition, 1100, 200, NodeData{Label: "Check Safety", Condition: "rating === 'safe'"}),
			tnode(NodeTypeUserApproval, 1350, 120, NodeData{Label: "Human Review", Description: "Requires manual approval"}),
			tnode(NodeTypeEnd, 1600, 200, NodeData{Label: "Decision Made"}),
		},
		Connections: []Connection{
			tconn(0, 1, ""),
			tconn(1, 2, ""),
			tconn(2, 3, ""),
			tconn(3, 4, ""),
			tconn(4, 6, "safe"),
			tconn(4, 5, "review"),
			tconn(5, 6, ""),
		},
	},
	{
		ID:          "research-assistant",
		Name:        "Research & Analysis Assistant",
		Description: "Comprehensive research workflow with web search, file analysis, and report generation",
		Category:    CategoryResearch,
		Tags:        []string{"research", "analysis", "web-search", "file-search"},
		UsageCount:  312,
		Nodes: []Node{
			tnode(NodeTypeStart, 100, 200, NodeData{Label: "Research Query"}),
			tnode(NodeTypeAgent, 350, 150, NodeData{
				Label:        "Research Planner",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Create a research plan with specific search queries and analysis steps.",
			}),
			tnode(NodeTypeAgent, 600, 100, NodeData{
				Label:        "Web Researcher",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Search the web and summarize findings.",
				Tools:        []string{"web-search"},
			}),
			tnode(NodeTypeFileSearch, 600, 250, NodeData{Label: "Document Search", FileTypes: []string{"pdf", "docx"}}),
			tnode(NodeTypeAgent, 850, 175, NodeData{
				Label:        "Report Generator",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Synthesize research findings into a comprehensive report.",
			}),
			tnode(NodeTypeEnd, 1100, 200, NodeData{Label: "Report Complete"}),
		},
		Connections: []Connection{
			tconn(0, 1, ""),
			tconn(1, 2, ""),
			tconn(1, 3, ""),
			tconn(2, 4, ""),
			tconn(3, 4, ""),
			tconn(4, 5, ""),
		},
	},
	{
		ID:          "data-analysis-pipeline",
		Name:        "Data Analysis Pipeline",
		Description: "Automated data processing with MCP integration for database queries and visualization",
		Category:    CategoryDataAnalysis,
		Tags:        []string{"data", "analysis", "mcp", "automation"},
		UsageCount:  156,
		Nodes: []Node{
			tnode(NodeTypeStart, 100, 200, NodeData{Label: "Analysis Request"}),
			tnode(NodeTypeMCP, 350, 200, NodeData{Label: "Fetch Data", MCPServer: "database-server"}),
			tnode(NodeTypeAgent, 600, 200, NodeData{
				Label:        "Data Analyzer",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Analyze data patterns, trends, and anomalies. Provide insights.",
			}),
			tnode(NodeTypeAgent, 850, 200, NodeData{
				Label:        "Visualization Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Generate visualization recommendations and create chart specifications.",
			}),
			tnode(NodeTypeEnd, 1100, 200, NodeData{Label: "Analysis Complete"}),
		},
		Connections: []Connection{
			tconn(0, 1, ""),
			tconn(1, 2, ""),
			tconn(2, 3, ""),
			tconn(3, 4, ""),
		},
	},
	{
		ID:          "content-creation-workflow",
		Name:        "Content Creation Workflow",
		Description: "Multi-agent content creation with research, writing, editing, and approval stages",
		Category:    CategoryContentCreation,
		Tags:        []string{"content", "writing", "editing", "approval"},
		UsageCount:  423,
		Nodes: []Node{
			tnode(NodeTypeStart, 100, 200, NodeData{Label: "Content Brief"}),
			tnode(NodeTypeAgent, 350, 200, NodeData{
				Label:        "Research Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Research the topic and gather relevant information and sources.",
				Tools:        []string{"web-search"},
			}),
			tnode(NodeTypeAgent, 600, 200, NodeData{
				Label:        "Writer Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Write engaging, well-structured content based on research and brief.",
			}),
			tnode(NodeTypeAgent, 850, 200, NodeData{
				Label:        "Editor Agent",
				Model:        "openai/gpt-4o",
				SystemPrompt: "Review and improve content for clarity, grammar, and style.",
			}),
			tnode(NodeTypeUserApproval, 1100, 200, NodeData{Label: "Final Approval"}),
			tnode(NodeTypeEnd, 1350, 200, NodeData{Label: "Content Published"}),
		},
		Connections: []Connection{
			tconn(0, 1, ""),
			tconn(1, 2, ""),
			tconn(2, 3, ""),
			tconn(3, 4, ""),
			tconn(4, 5, ""),
		},
	},
}
