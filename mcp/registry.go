package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcanvas/types"
)

// Protocol is the transport a server is reached over.
type Protocol string

const (
	ProtocolStdio Protocol = "stdio"
	ProtocolHTTP  Protocol = "http"
)

// ServerStatus is the connection state of a server.
type ServerStatus string

const (
	StatusConnected    ServerStatus = "connected"
	StatusDisconnected ServerStatus = "disconnected"
	StatusError        ServerStatus = "error"
)

// Capability is one feature family a server advertises.
type Capability struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Server is a registered MCP server.
type Server struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	URL          string            `json:"url"`
	Protocol     Protocol          `json:"protocol"`
	Capabilities []Capability      `json:"capabilities"`
	Status       ServerStatus      `json:"status"`
	Environment  map[string]string `json:"-"`
	ConnectedAt  time.Time         `json:"connectedAt"`
}

// ConnectRequest describes a server to connect.
type ConnectRequest struct {
	Name        string            `json:"name" validate:"required"`
	URL         string            `json:"url" validate:"required"`
	Protocol    Protocol          `json:"protocol" validate:"omitempty,oneof=stdio http"`
	Environment map[string]string `json:"environment,omitempty"`
}

var defaultCapabilities = []Capability{
	{Type: "tools", Description: "Execute tools via MCP protocol"},
	{Type: "resources", Description: "Access resources via MCP protocol"},
	{Type: "prompts", Description: "Use prompt templates via MCP protocol"},
}

// Option configures a Registry.
type Option func(*Registry)

// WithInvoker replaces the simulated tool backend.
func WithInvoker(inv Invoker) Option {
	return func(r *Registry) { r.invoker = inv }
}

// WithClock sets the clock used for timestamps and breaker timing.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithIDGenerator sets the server id generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithBreakerConfig sets the per-server circuit breaker thresholds.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(r *Registry) { r.breakerCfg = cfg }
}

// CallRecorder observes tool invocations that reached the backend.
type CallRecorder interface {
	RecordToolCall(server, tool string, success bool, duration time.Duration)
}

// WithCallRecorder sets the tool call metrics sink.
func WithCallRecorder(rec CallRecorder) Option {
	return func(r *Registry) { r.recorder = rec }
}

// Registry tracks connected servers and their tools. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	servers  map[string]*Server
	order    []string
	tools    map[string][]Tool
	breakers map[string]*breaker

	invoker    Invoker
	breakerCfg BreakerConfig
	validate   *validator.Validate
	clock      clock.Clock
	newID      func() string
	recorder   CallRecorder
	logger     *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		servers:    make(map[string]*Server),
		tools:      make(map[string][]Tool),
		breakers:   make(map[string]*breaker),
		invoker:    SimulatedInvoker{},
		breakerCfg: DefaultBreakerConfig(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		clock:      clock.New(),
		newID:      func() string { return "mcp-" + uuid.NewString() },
		logger:     logger.With(zap.String("component", "mcp_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ConnectServer registers a server and discovers its tools.
func (r *Registry) ConnectServer(_ context.Context, req ConnectRequest) (*Server, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, types.WrapError(err, types.ErrInvalidRequest, "invalid server config")
	}
	if req.Protocol == "" {
		req.Protocol = ProtocolHTTP
	}

	s := &Server{
		ID:           r.newID(),
		Name:         req.Name,
		URL:          req.URL,
		Protocol:     req.Protocol,
		Capabilities: append([]Capability(nil), defaultCapabilities...),
		Status:       StatusConnected,
		Environment:  req.Environment,
		ConnectedAt:  r.clock.Now(),
	}
	tools := discoverTools(s.ID, s.Name)

	r.mu.Lock()
	r.servers[s.ID] = s
	r.order = append(r.order, s.ID)
	r.tools[s.ID] = tools
	r.breakers[s.ID] = newBreaker(s.ID, r.breakerCfg, r.clock, r.logger)
	r.mu.Unlock()

	r.logger.Info("mcp server connected",
		zap.String("server_id", s.ID),
		zap.String("name", s.Name),
		zap.Int("tools", len(tools)))
	return cloneServer(s), nil
}

// DisconnectServer marks a server disconnected and drops its tools.
func (r *Registry) DisconnectServer(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.servers[id]
	if !ok {
		return types.Errorf(types.ErrToolNotFound, "MCP server %s not found", id)
	}
	s.Status = StatusDisconnected
	delete(r.tools, id)
	delete(r.breakers, id)
	r.logger.Info("mcp server disconnected", zap.String("server_id", id))
	return nil
}

// Servers returns every registered server in connection order.
func (r *Registry) Servers() []Server {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Server, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *cloneServer(r.servers[id]))
	}
	return out
}

// Server returns the server with the given id.
func (r *Registry) Server(id string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[id]
	if !ok {
		return nil, false
	}
	return cloneServer(s), true
}

// FindServer resolves a server by id, then by case-insensitive name,
// preferring connected servers.
func (r *Registry) FindServer(ref string) (*Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.servers[ref]; ok {
		return cloneServer(s), true
	}
	var fallback *Server
	for _, id := range r.order {
		s := r.servers[id]
		if !strings.EqualFold(s.Name, ref) {
			continue
		}
		if s.Status == StatusConnected {
			return cloneServer(s), true
		}
		if fallback == nil {
			fallback = s
		}
	}
	if fallback != nil {
		return cloneServer(fallback), true
	}
	return nil, false
}

// ToolsByServer lists the tools of one server.
func (r *Registry) ToolsByServer(id string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools[id]...)
}

// AllTools lists the tools of every connected server, sorted by name.
func (r *Registry) AllTools() []Tool {
	r.mu.RLock()
	var out []Tool
	for _, id := range r.order {
		out = append(out, r.tools[id]...)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BreakerStates reports the circuit state per connected server.
func (r *Registry) BreakerStates() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make(map[string]CircuitState, len(r.breakers))
	for id, b := range r.breakers {
		states[id] = b.current()
	}
	return states
}

// CallTool calls the named tool on the first connected server exposing it.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	serverID := ""
	for _, id := range r.order {
		if _, ok := findTool(r.tools[id], name); ok {
			serverID = id
			break
		}
	}
	r.mu.RUnlock()

	if serverID == "" {
		return nil, types.Errorf(types.ErrToolNotFound, "Tool %s not found", name)
	}
	return r.CallServerTool(ctx, serverID, name, args)
}

// CallServerTool validates args against the tool's schema and invokes it.
func (r *Registry) CallServerTool(ctx context.Context, serverID, name string, args map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	s, ok := r.servers[serverID]
	var (
		server Server
		tool   Tool
		found  bool
		br     *breaker
	)
	if ok {
		server = *cloneServer(s)
		tool, found = findTool(r.tools[serverID], name)
		br = r.breakers[serverID]
	}
	r.mu.RUnlock()

	switch {
	case !ok:
		return nil, types.Errorf(types.ErrToolNotFound, "MCP server %s not found", serverID)
	case server.Status != StatusConnected:
		return nil, types.NewError(types.ErrUpstreamError, "MCP server not connected")
	case !found:
		return nil, types.Errorf(types.ErrToolNotFound, "Tool %s not found", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(tool, args); err != nil {
		return nil, err
	}
	if err := br.allow(); err != nil {
		return nil, types.WrapError(err, types.ErrUpstreamError, "MCP server unavailable").WithRetryable(true)
	}

	start := r.clock.Now()
	result, err := r.invoker.Invoke(ctx, server, name, args)
	if r.recorder != nil {
		r.recorder.RecordToolCall(server.Name, name, err == nil, r.clock.Since(start))
	}
	if err != nil {
		br.recordFailure()
		r.logger.Warn("mcp tool call failed",
			zap.String("server_id", serverID),
			zap.String("tool", name),
			zap.Error(err))
		return nil, types.WrapError(err, types.ErrUpstreamError, fmt.Sprintf("tool %s failed", name))
	}
	br.recordSuccess()
	r.logger.Debug("mcp tool call",
		zap.String("server_id", serverID),
		zap.String("tool", name),
		zap.Duration("duration", r.clock.Since(start)))
	return result, nil
}

func findTool(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func validateArgs(tool Tool, args map[string]any) error {
	if tool.InputSchema == nil {
		return nil
	}
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema of %s: %w", tool.Name, err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return types.WrapError(err, types.ErrToolValidation, fmt.Sprintf("invalid arguments for %s", tool.Name))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return types.Errorf(types.ErrToolValidation, "invalid arguments for %s: %s", tool.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func cloneServer(s *Server) *Server {
	cp := *s
	cp.Capabilities = append([]Capability(nil), s.Capabilities...)
	if s.Environment != nil {
		cp.Environment = make(map[string]string, len(s.Environment))
		for k, v := range s.Environment {
			cp.Environment[k] = v
		}
	}
	return &cp
}
