package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentcanvas/types"
	"github.com/BaSui01/agentcanvas/workflow/expr"
)

// Document is the portable form of a workflow: everything but identity and
// timestamps.
type Document struct {
	Name        string       `json:"name" yaml:"name" validate:"required"`
	Description string       `json:"description" yaml:"description"`
	Version     int          `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       []Node       `json:"nodes" yaml:"nodes" validate:"dive"`
	Connections []Connection `json:"connections" yaml:"connections" validate:"dive"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Field paths in errors use the json names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
			return NodeType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate checks the structural rules shared by import and the service
// layer: required fields, known node types and unique ids. Connections to
// missing nodes are allowed; they are ignored when the graph is walked.
func (d *Document) Validate() error {
	if err := structValidator().Struct(d); err != nil {
		return types.WrapError(err, types.ErrInvalidImport, describeValidation(err))
	}
	return checkUniqueIDs(d.Nodes, d.Connections)
}

// Validate runs Document validation against the workflow's graph.
func (w *Workflow) Validate() error {
	doc := w.Document()
	return doc.Validate()
}

func checkUniqueIDs(nodes []Node, conns []Connection) error {
	seen := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if _, dup := seen[n.ID]; dup {
			return types.Errorf(types.ErrInvalidImport, "duplicate node id: %s", n.ID)
		}
		seen[n.ID] = struct{}{}
	}
	seen = make(map[string]struct{}, len(conns))
	for _, c := range conns {
		if _, dup := seen[c.ID]; dup {
			return types.Errorf(types.ErrInvalidImport, "duplicate connection id: %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid workflow document"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Namespace()))
		case "nodetype":
			parts = append(parts, fmt.Sprintf("%s: unknown node type %q", fe.Namespace(), fe.Value()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}

// Document returns the portable form of the workflow.
func (w *Workflow) Document() Document {
	return Document{
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Nodes:       CloneNodes(w.Nodes),
		Connections: CloneConnections(w.Connections),
	}
}

// Export renders the workflow as indented JSON.
func Export(w *Workflow) ([]byte, error) {
	doc := w.Document()
	if doc.Nodes == nil {
		doc.Nodes = []Node{}
	}
	if doc.Connections == nil {
		doc.Connections = []Connection{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow to JSON: %w", err)
	}
	return data, nil
}

// ExportYAML renders the workflow as YAML.
func ExportYAML(w *Workflow) ([]byte, error) {
	data, err := yaml.Marshal(w.Document())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow to YAML: %w", err)
	}
	return data, nil
}

// ImportOptions controls how an imported document becomes a workflow.
type ImportOptions struct {
	NewID func() string
	Now   func() time.Time
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Import parses a JSON document into a new workflow with a fresh id and
// version 1. Nothing is returned unless the whole document is valid.
func Import(data []byte, opts ImportOptions) (*Workflow, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(err, types.ErrInvalidImport, "failed to parse workflow JSON")
	}
	return fromDocument(&doc, opts)
}

// ImportYAML is Import for YAML documents.
func ImportYAML(data []byte, opts ImportOptions) (*Workflow, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.WrapError(err, types.ErrInvalidImport, "failed to parse workflow YAML")
	}
	return fromDocument(&doc, opts)
}

func fromDocument(doc *Document, opts ImportOptions) (*Workflow, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	now := opts.Now()
	w := &Workflow{
		ID:          opts.NewID(),
		Name:        doc.Name,
		Description: doc.Description,
		Nodes:       CloneNodes(doc.Nodes),
		Connections: CloneConnections(doc.Connections),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if w.Nodes == nil {
		w.Nodes = []Node{}
	}
	if w.Connections == nil {
		w.Connections = []Connection{}
	}
	return w, nil
}

var whitespace = regexp.MustCompile(`\s+`)

// ExportFilename is the download name for an exported workflow.
func ExportFilename(name string) string {
	slug := strings.ToLower(whitespace.ReplaceAllString(name, "-"))
	if slug == "" {
		slug = "workflow"
	}
	return slug + ".json"
}

// IssueLevel grades a lint finding.
type IssueLevel string

const (
	IssueError   IssueLevel = "error"
	IssueWarning IssueLevel = "warning"
)

// Issue is one finding of Lint.
type Issue struct {
	Level   IssueLevel `json:"level"`
	NodeID  string     `json:"nodeId,omitempty"`
	Message string     `json:"message"`
}

// Lint reports problems that make a structurally valid workflow unlikely to
// run as intended.
func Lint(w *Workflow) []Issue {
	var issues []Issue
	add := func(level IssueLevel, nodeID, format string, args ...any) {
		issues = append(issues, Issue{Level: level, NodeID: nodeID, Message: fmt.Sprintf(format, args...)})
	}

	if err := w.Validate(); err != nil {
		msg := err.Error()
		if e, ok := types.AsError(err); ok {
			msg = e.Message
		}
		add(IssueError, "", "%s", msg)
	}

	starts, ends := 0, 0
	for _, n := range w.Nodes {
		switch n.Type {
		case NodeTypeStart:
			starts++
		case NodeTypeEnd:
			ends++
		}
	}
	switch {
	case starts == 0:
		add(IssueError, "", "workflow has no start node")
	case starts > 1:
		add(IssueWarning, "", "workflow has %d start nodes, only the first is used", starts)
	}
	if ends == 0 {
		add(IssueWarning, "", "workflow has no end node")
	}

	for _, c := range w.Connections {
		src, dst := w.Endpoints(c)
		if src == nil || dst == nil {
			add(IssueWarning, "", "connection %s references a missing node", c.ID)
		}
	}

	eval := expr.New()
	for _, n := range w.Nodes {
		if n.Type == NodeTypeCondition {
			if err := eval.Check(n.Data.Condition); err != nil {
				add(IssueError, n.ID, "invalid condition: %v", err)
			}
		}
	}

	if start, ok := w.StartNode(); ok {
		reached := map[string]bool{start.ID: true}
		queue := []string{start.ID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, c := range w.Outgoing(id) {
				if !reached[c.TargetID] {
					reached[c.TargetID] = true
					queue = append(queue, c.TargetID)
				}
			}
		}
		for _, n := range w.Nodes {
			if !reached[n.ID] {
				add(IssueWarning, n.ID, "node %s is unreachable from the start node", n.ID)
			}
		}
	}
	return issues
}
