package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sre-sentinel/sentinel/pkg/types"
)

// chatServer returns an inference endpoint whose reply content is fixed
func chatServer(t *testing.T, content string, capture *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(capture))
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassify_HappyPath(t *testing.T) {
	var captured chatRequest
	server := chatServer(t, `{"is_anomaly": true, "severity": "high", "confidence": 0.92, "pattern": "connection_refused"}`, &captured)
	defer server.Close()

	client := NewClassifier(Endpoint{URL: server.URL, Model: "fast-1"})
	verdict, err := client.Classify(context.Background(), ClassifyRequest{
		Service:   "api",
		Lines:     []string{"connection refused to demo-postgres"},
		WindowSeq: 7,
	})
	require.NoError(t, err)

	assert.True(t, verdict.IsAnomaly)
	assert.Equal(t, types.SeverityHigh, verdict.Severity)
	assert.InDelta(t, 0.92, verdict.Confidence, 0.001)
	assert.Equal(t, "connection_refused", verdict.Pattern)
	assert.Equal(t, uint64(7), verdict.WindowSeq)

	assert.Equal(t, "fast-1", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[1].Content, "connection refused")
}

func TestClassify_FencedContentAccepted(t *testing.T) {
	server := chatServer(t, "```json\n{\"is_anomaly\": false, \"severity\": \"low\", \"confidence\": 0.1, \"pattern\": \"\"}\n```", nil)
	defer server.Close()

	client := NewClassifier(Endpoint{URL: server.URL})
	verdict, err := client.Classify(context.Background(), ClassifyRequest{})
	require.NoError(t, err)
	assert.False(t, verdict.IsAnomaly)
}

func TestClassify_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `{"is_anomaly": true, "severity": "high", "confidence": 0.9, "pattern": "x", "extra": 1}`},
		{"unknown severity", `{"is_anomaly": true, "severity": "catastrophic", "confidence": 0.9, "pattern": "x"}`},
		{"confidence out of range", `{"is_anomaly": true, "severity": "high", "confidence": 1.4, "pattern": "x"}`},
		{"not json", `the service is fine`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.content, nil)
			defer server.Close()

			client := NewClassifier(Endpoint{URL: server.URL})
			_, err := client.Classify(context.Background(), ClassifyRequest{})
			require.Error(t, err)
			assert.Equal(t, types.ErrClassifier, types.KindOf(err))
		})
	}
}

func TestClassify_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClassifier(Endpoint{URL: server.URL})
	_, err := client.Classify(context.Background(), ClassifyRequest{})
	require.Error(t, err)
	assert.Equal(t, types.ErrClassifier, types.KindOf(err))
}

func TestClassify_LineTruncation(t *testing.T) {
	var captured chatRequest
	server := chatServer(t, `{"is_anomaly": false, "severity": "low", "confidence": 0.0, "pattern": ""}`, &captured)
	defer server.Close()

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}

	client := NewClassifier(Endpoint{URL: server.URL})
	_, err := client.Classify(context.Background(), ClassifyRequest{Lines: []string{string(long)}})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(captured.Messages[1].Content), maxLineLength+100,
		"window lines are truncated before sending")
}

func TestComplete_RedactsOutboundPrompt(t *testing.T) {
	var captured chatRequest
	server := chatServer(t, `{}`, &captured)
	defer server.Close()

	client := NewClassifier(Endpoint{URL: server.URL})
	_, err := client.Complete(context.Background(),
		"system", "connecting with sk-abcdefghij1234567890abcd", time.Second)
	require.NoError(t, err)
	assert.NotContains(t, captured.Messages[1].Content, "sk-abcdefghij1234567890abcd")
}

func TestAnalyze_HappyPath(t *testing.T) {
	content := `{
		"root_cause": "demo-postgres is down",
		"explanation": "the database container exited and connections are refused",
		"affected_components": ["api", "postgres"],
		"recommended_actions": [
			{"tool": "restart_container", "params": {"container_name": "demo-postgres", "reason": "DB unreachable"}, "priority": 1, "rationale": "bring the database back"}
		]
	}`
	server := chatServer(t, content, nil)
	defer server.Close()

	client := NewAnalyzer(Endpoint{URL: server.URL, Model: "deep-1"})
	result, err := client.Analyze(context.Background(), AnalyzeRequest{Service: "api"})
	require.NoError(t, err)

	assert.Equal(t, "demo-postgres is down", result.RootCause)
	assert.Equal(t, []string{"api", "postgres"}, result.AffectedComponents)
	require.Len(t, result.Actions, 1)
	assert.Equal(t, "restart_container", result.Actions[0].Tool)
	assert.Equal(t, 1, result.Actions[0].Priority)
	assert.Equal(t, "demo-postgres", result.Actions[0].Params["container_name"])
}

func TestAnalyze_RejectsInvalidActions(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing root cause", `{"root_cause": "", "explanation": "x", "affected_components": [], "recommended_actions": []}`},
		{"missing tool", `{"root_cause": "x", "explanation": "x", "affected_components": [], "recommended_actions": [{"tool": "", "params": {}, "priority": 1, "rationale": ""}]}`},
		{"priority out of range", `{"root_cause": "x", "explanation": "x", "affected_components": [], "recommended_actions": [{"tool": "restart_container", "params": {}, "priority": 9, "rationale": ""}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := chatServer(t, tt.content, nil)
			defer server.Close()

			client := NewAnalyzer(Endpoint{URL: server.URL})
			_, err := client.Analyze(context.Background(), AnalyzeRequest{})
			require.Error(t, err)
			assert.Equal(t, types.ErrAnalyzer, types.KindOf(err))
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
