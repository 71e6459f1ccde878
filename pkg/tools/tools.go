// Package tools implements the tool registry: named tools exposed to the
// LLM via JSON schema, executed with a hard per-tool timeout.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/callcore-ai/callcore/internal/metrics"
	"github.com/callcore-ai/callcore/pkg/ports"
)

// Definition describes one tool's identity, schema, and execution
// budget. Parameters is a literal JSON-schema object, matching how the
// pack's own MCP-style tool definitions are constructed; the registry
// compiles it into a *jsonschema.Schema at Register time to validate
// incoming arguments before the handler ever sees them.
type Definition struct {
	Name                string
	Description         string
	Parameters          map[string]any
	EstimatedDurationMs int
	MaxDurationMs       int
	Idempotent          bool
	CacheableSeconds    int
}

// Handler executes a tool call and returns a JSON-encodable result.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool pairs a Definition with its Handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Request mirrors spec.md's ToolRequest.
type Request struct {
	Tool      string
	Args      json.RawMessage
	TraceID   string
	TimeoutMs int
}

// Response mirrors spec.md's ToolResponse.
type Response struct {
	Tool      string
	Result    any
	OK        bool
	Error     string
	ElapsedMs int64
	TraceID   string
}

type registered struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry holds named tools and exposes them to the LLM processor.
type Registry struct {
	tools map[string]registered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register compiles the tool's Parameters into a JSON schema and adds it
// to the registry. Returns an error if the schema fails to compile.
func (r *Registry) Register(t Tool) error {
	raw, err := json.Marshal(t.Definition.Parameters)
	if err != nil {
		return fmt.Errorf("tools: marshal parameters for %q: %w", t.Definition.Name, err)
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return fmt.Errorf("tools: compile schema for %q: %w", t.Definition.Name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("tools: resolve schema for %q: %w", t.Definition.Name, err)
	}
	r.tools[t.Definition.Name] = registered{tool: t, resolved: resolved}
	return nil
}

// Schemas returns the ports.ToolSchema list for every registered tool,
// for handing to an LLMPort.Stream call.
func (r *Registry) Schemas() []ports.ToolSchema {
	out := make([]ports.ToolSchema, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, ports.ToolSchema{
			Name:        reg.tool.Definition.Name,
			Description: reg.tool.Definition.Description,
			Parameters:  reg.tool.Definition.Parameters,
		})
	}
	return out
}

// Execute runs the named tool with the request's args, bounded by the
// tool's declared MaxDurationMs (or req.TimeoutMs if set and smaller).
// A tool failure never returns a Go error — it is always encoded as a
// failed Response per spec.md §7.
func (r *Registry) Execute(ctx context.Context, req Request) Response {
	start := time.Now()
	reg, ok := r.tools[req.Tool]
	if !ok {
		metrics.ToolInvocations.WithLabelValues(req.Tool, "not_found").Inc()
		return Response{Tool: req.Tool, OK: false, Error: "tool not found", TraceID: req.TraceID}
	}

	if reg.resolved != nil {
		if err := reg.resolved.Validate(decodeArgs(req.Args)); err != nil {
			metrics.ToolInvocations.WithLabelValues(req.Tool, "invalid_args").Inc()
			return Response{Tool: req.Tool, OK: false, Error: fmt.Sprintf("invalid arguments: %v", err), TraceID: req.TraceID}
		}
	}

	timeoutMs := reg.tool.Definition.MaxDurationMs
	if req.TimeoutMs > 0 && req.TimeoutMs < timeoutMs {
		timeoutMs = req.TimeoutMs
	}
	if timeoutMs <= 0 {
		timeoutMs = 10_000
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	result, err := reg.tool.Handler(execCtx, req.Args)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		outcome := "error"
		if execCtx.Err() != nil {
			outcome = "timeout"
		}
		metrics.ToolInvocations.WithLabelValues(req.Tool, outcome).Inc()
		return Response{Tool: req.Tool, OK: false, Error: err.Error(), ElapsedMs: elapsed, TraceID: req.TraceID}
	}

	metrics.ToolInvocations.WithLabelValues(req.Tool, "ok").Inc()
	return Response{Tool: req.Tool, Result: result, OK: true, ElapsedMs: elapsed, TraceID: req.TraceID}
}

func decodeArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}
