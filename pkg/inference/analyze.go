package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// PeerSummary describes one monitored container for cross-container context
type PeerSummary struct {
	Name       string
	Service    string
	Status     string
	CPUPercent float64
	MemPercent float64
	Restarts   int
}

// AnalyzeRequest is the enriched context handed to the deep analyzer
type AnalyzeRequest struct {
	Service       string
	ContainerName string
	Verdict       types.AnomalyVerdict
	WindowLines   []string
	RecentLogs    []string
	Peers         []PeerSummary
	Environment   []string
}

// RecommendedAction is one analyzer-suggested remediation step
type RecommendedAction struct {
	Tool      string                 `json:"tool"`
	Params    map[string]interface{} `json:"params"`
	Priority  int                    `json:"priority"`
	Rationale string                 `json:"rationale"`
}

// AnalyzeResult is the analyzer's full response
type AnalyzeResult struct {
	RootCause          string              `json:"root_cause"`
	Explanation        string              `json:"explanation"`
	AffectedComponents []string            `json:"affected_components"`
	Actions            []RecommendedAction `json:"recommended_actions"`
}

// Analyze submits the enriched incident context to the deep analyzer
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AnalyzerDuration)

	content, err := c.Complete(ctx, analyzerSystemPrompt, buildAnalyzePrompt(req), AnalyzeTimeout)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	var result AnalyzeResult
	if err := dec.Decode(&result); err != nil {
		return nil, types.NewError(types.ErrAnalyzer, "analyze.decode", err)
	}
	if result.RootCause == "" {
		return nil, types.NewError(types.ErrAnalyzer, "analyze.decode",
			fmt.Errorf("missing root_cause"))
	}
	for i, a := range result.Actions {
		if a.Tool == "" {
			return nil, types.NewError(types.ErrAnalyzer, "analyze.decode",
				fmt.Errorf("action %d missing tool name", i))
		}
		if a.Priority < 1 || a.Priority > 5 {
			return nil, types.NewError(types.ErrAnalyzer, "analyze.decode",
				fmt.Errorf("action %d priority %d outside 1-5", i, a.Priority))
		}
	}
	return &result, nil
}

func buildAnalyzePrompt(req AnalyzeRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Incident\nService: %s\nContainer: %s\nSeverity: %s (confidence %.2f)\nPattern: %s\n\n",
		req.Service, req.ContainerName, req.Verdict.Severity, req.Verdict.Confidence, req.Verdict.Pattern)

	b.WriteString("## Triggering log window\n")
	for _, line := range req.WindowLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if len(req.RecentLogs) > 0 {
		b.WriteString("\n## Recent logs\n")
		for _, line := range req.RecentLogs {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if len(req.Peers) > 0 {
		b.WriteString("\n## Monitored containers\n")
		for _, p := range req.Peers {
			fmt.Fprintf(&b, "- %s (service=%s, status=%s, cpu=%.1f%%, mem=%.1f%%, restarts=%d)\n",
				p.Name, p.Service, p.Status, p.CPUPercent, p.MemPercent, p.Restarts)
		}
	}

	if len(req.Environment) > 0 {
		b.WriteString("\n## Environment (sensitive values redacted)\n")
		for _, kv := range req.Environment {
			b.WriteString(kv)
			b.WriteByte('\n')
		}
	}

	return b.String()
}
