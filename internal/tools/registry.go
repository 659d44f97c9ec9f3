// Package tools exposes engine/store/governor capabilities as a plain
// registry of named, schema-described tools (spec §4.I). The registry has
// no opinion on transport: callers look a tool up by name and invoke it
// with a JSON input, the same shape an RPC, MCP, or HTTP handler would pass
// through unchanged.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/topolane/topolane/internal/logging"
)

var logger = logging.GetLogger("tools")

// Tool is a single named, schema-described capability.
type Tool interface {
	// Name returns the tool's unique identifier.
	Name() string

	// Description returns a human-readable description for the caller.
	Description() string

	// InputSchema returns a JSON Schema object describing valid input.
	InputSchema() map[string]interface{}

	// Execute runs the tool against the given JSON input.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result is the output of a tool execution.
type Result struct {
	Success         bool        `json:"success"`
	Data            interface{} `json:"data,omitempty"`
	Error           string      `json:"error,omitempty"`
	Summary         string      `json:"summary,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
}

// Registry is an in-process, name-keyed lookup table of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any existing tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	logger.Debug("registered tool", "name", tool.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute looks up name and runs it, timing the call and applying the
// large-response truncation guard. A missing tool is reported as a failed
// Result rather than an error, so a caller driving many tool names off one
// loop doesn't need a type switch to tell "not found" from "tool failed".
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *Result {
	tool, ok := r.Get(name)
	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("tool %q not found", name)}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, input)
	if err != nil {
		return &Result{Success: false, Error: err.Error(), ExecutionTimeMs: time.Since(start).Milliseconds()}
	}
	if result == nil {
		result = &Result{Success: true}
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return truncateResult(result, MaxToolResponseBytes)
}
