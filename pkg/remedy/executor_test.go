package remedy

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/types"
)

func restartTool() mcp.Tool {
	return mcp.Tool{
		Name:        "restart_container",
		Description: "Restart a container by name",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"container_name": map[string]interface{}{"type": "string"},
				"reason":         map[string]interface{}{"type": "string"},
			},
			Required: []string{"container_name"},
		},
	}
}

// sessionWith builds an in-memory session with a discovered catalog, without
// a live gateway connection
func sessionWith(t *testing.T, tools ...mcp.Tool) *session {
	t.Helper()
	s := &session{
		tools:   make(map[string]mcp.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, tool := range tools {
		s.tools[tool.Name] = tool
		schema, err := compileSchema(tool)
		require.NoError(t, err)
		s.schemas[tool.Name] = schema
	}
	return s
}

func TestHasTool(t *testing.T) {
	e := New("http://gateway.invalid")
	assert.True(t, e.HasTool("anything"), "optimistic before first handshake")

	e.sess = sessionWith(t, restartTool())
	assert.True(t, e.HasTool("restart_container"))
	assert.False(t, e.HasTool("unknown_tool"))
}

func TestExecuteAction_ToolNotFound(t *testing.T) {
	e := New("http://gateway.invalid")
	e.sess = sessionWith(t, restartTool())

	outcome := e.executeAction(context.Background(), types.RemediationAction{
		Tool:     "unknown_tool",
		Priority: 1,
	})
	assert.False(t, outcome.Success)
	assert.Equal(t, types.ErrToolNotFound, outcome.ErrorKind)
	assert.Equal(t, 1, outcome.Attempt)
}

func TestExecuteAction_SchemaViolation(t *testing.T) {
	e := New("http://gateway.invalid")
	e.sess = sessionWith(t, restartTool())

	// required container_name missing
	outcome := e.executeAction(context.Background(), types.RemediationAction{
		Tool:     "restart_container",
		Params:   map[string]interface{}{"reason": "DB unreachable"},
		Priority: 1,
	})
	assert.False(t, outcome.Success)
	assert.Equal(t, types.ErrSchemaViolation, outcome.ErrorKind)

	// wrong parameter type
	outcome = e.executeAction(context.Background(), types.RemediationAction{
		Tool:     "restart_container",
		Params:   map[string]interface{}{"container_name": 42},
		Priority: 1,
	})
	assert.Equal(t, types.ErrSchemaViolation, outcome.ErrorKind)
}

func TestSessionValidate_AcceptsGoodParams(t *testing.T) {
	s := sessionWith(t, restartTool())
	err := s.validate("restart_container", map[string]interface{}{
		"container_name": "demo-postgres",
		"reason":         "DB unreachable",
	})
	assert.NoError(t, err)
}

func TestExecute_FatalAbortsPlan(t *testing.T) {
	e := New("http://gateway.invalid")
	e.sess = sessionWith(t, restartTool())

	inc := &types.Incident{
		ID: "INC-1",
		Plan: &types.RemediationPlan{Actions: []types.RemediationAction{
			{Tool: "unknown_tool", Priority: 1},
			{Tool: "restart_container", Priority: 3, Params: map[string]interface{}{"container_name": "x"}},
		}},
	}

	var recorded []types.ActionOutcome
	fatal, err := e.Execute(context.Background(), inc, func(o types.ActionOutcome) {
		recorded = append(recorded, o)
	})

	assert.True(t, fatal)
	require.Error(t, err)
	require.Len(t, recorded, 1, "remainder of the plan is skipped")
	assert.Equal(t, types.ErrToolNotFound, recorded[0].ErrorKind)
	assert.Equal(t, "INC-1", recorded[0].IncidentID)
}

func TestExecute_LowPriorityFatalContinues(t *testing.T) {
	e := New("http://gateway.invalid")
	e.sess = sessionWith(t, restartTool())

	// both actions fail structurally, but neither is priority <= 2
	inc := &types.Incident{
		ID: "INC-2",
		Plan: &types.RemediationPlan{Actions: []types.RemediationAction{
			{Tool: "unknown_tool", Priority: 3},
			{Tool: "another_unknown", Priority: 4},
		}},
	}

	var recorded []types.ActionOutcome
	fatal, err := e.Execute(context.Background(), inc, func(o types.ActionOutcome) {
		recorded = append(recorded, o)
	})

	assert.False(t, fatal)
	assert.NoError(t, err)
	assert.Len(t, recorded, 2, "soft failures let the plan run to completion")
}

func TestExecute_EmptyPlanIsNoop(t *testing.T) {
	e := New("http://gateway.invalid")

	fatal, err := e.Execute(context.Background(), &types.Incident{ID: "INC-3"}, func(types.ActionOutcome) {
		t.Fatal("nothing should be recorded")
	})
	assert.False(t, fatal)
	assert.NoError(t, err)
}

func TestOrderActions(t *testing.T) {
	actions := []types.RemediationAction{
		{Tool: "c", Priority: 3},
		{Tool: "a1", Priority: 1},
		{Tool: "b", Priority: 2},
		{Tool: "a2", Priority: 1},
	}
	ordered := orderActions(actions)

	got := make([]string, len(ordered))
	for i, a := range ordered {
		got[i] = a.Tool
	}
	assert.Equal(t, []string{"a1", "a2", "b", "c"}, got, "priority order, plan order on ties")
}

func TestPayloadSuccess(t *testing.T) {
	ok, _ := payloadSuccess("restart_container", `{"success": true, "message": "restarted"}`)
	assert.True(t, ok)

	ok, reason := payloadSuccess("restart_container", `{"success": false, "error": "no such container"}`)
	assert.False(t, ok)
	assert.Equal(t, "no such container", reason)

	ok, _ = payloadSuccess("get_container_logs", `{"lines": ["a", "b"]}`)
	assert.True(t, ok, "read-only probes succeed on any payload")

	ok, _ = payloadSuccess("restart_container", `not json at all`)
	assert.False(t, ok, "mutating tools must indicate success explicitly")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(errTest("connection reset by peer")))
	assert.True(t, isTransient(errTest("request failed: status 503")))
	assert.True(t, isTransient(errTest("context deadline exceeded")))
	assert.False(t, isTransient(errTest("invalid params")))
	assert.False(t, isTransient(nil))
}

func TestIsSessionLost(t *testing.T) {
	assert.True(t, isSessionLost(errTest("HTTP 404: session not found")))
	assert.True(t, isSessionLost(errTest("invalid session id")))
	assert.False(t, isSessionLost(errTest("tool execution failed")))
}

type errTest string

func (e errTest) Error() string { return string(e) }
