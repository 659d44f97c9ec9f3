package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoTool struct {
	name string
}

func (e *echoTool) Name() string                        { return e.name }
func (e *echoTool) Description() string                 { return "echoes its input back" }
func (e *echoTool) InputSchema() map[string]interface{} { return map[string]interface{}{"type": "object"} }

func (e *echoTool) Execute(ctx context.Context, input json.RawMessage) (*Result, error) {
	return &Result{Success: true, Data: json.RawMessage(input), Summary: "echoed"}, nil
}

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	tool, ok := r.Get("echo")
	require.True(t, ok)
	require.Equal(t, "echo", tool.Name())
	require.Len(t, r.List(), 1)

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestRegistryExecuteReturnsNotFoundAsFailedResult(t *testing.T) {
	r := NewRegistry()
	result := r.Execute(t.Context(), "missing", nil)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "not found")
}

func TestRegistryExecuteRunsTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	result := r.Execute(t.Context(), "echo", json.RawMessage(`{"a":1}`))
	require.True(t, result.Success)
	require.GreaterOrEqual(t, result.ExecutionTimeMs, int64(0))
}
