package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// maxLineLength truncates each window line sent to the classifier
const maxLineLength = 500

// ClassifyRequest carries one log window plus optional descriptor metadata
type ClassifyRequest struct {
	Service      string
	Lines        []string
	WindowSeq    uint64
	CPUPercent   float64
	MemPercent   float64
	RestartCount int
	HasMetadata  bool
}

// verdictDoc is the classifier's wire schema. Unknown fields are rejected so
// a drifting service contract surfaces as an error instead of a silent
// default.
type verdictDoc struct {
	IsAnomaly  bool    `json:"is_anomaly"`
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
	Pattern    string  `json:"pattern"`
}

// Classify submits a window to the fast classifier and decodes the verdict
func (c *Client) Classify(ctx context.Context, req ClassifyRequest) (*types.AnomalyVerdict, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ClassifierDuration)

	content, err := c.Complete(ctx, classifierSystemPrompt, buildClassifyPrompt(req), ClassifyTimeout)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(content))
	dec.DisallowUnknownFields()
	var doc verdictDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, types.NewError(types.ErrClassifier, "classify.decode", err)
	}

	severity, err := parseSeverity(doc.Severity)
	if err != nil {
		return nil, types.NewError(types.ErrClassifier, "classify.decode", err)
	}
	if doc.Confidence < 0 || doc.Confidence > 1 {
		return nil, types.NewError(types.ErrClassifier, "classify.decode",
			fmt.Errorf("confidence %v outside [0,1]", doc.Confidence))
	}

	return &types.AnomalyVerdict{
		IsAnomaly:  doc.IsAnomaly,
		Severity:   severity,
		Confidence: doc.Confidence,
		Pattern:    doc.Pattern,
		WindowSeq:  req.WindowSeq,
		DetectedAt: time.Now(),
	}, nil
}

func parseSeverity(s string) (types.Severity, error) {
	switch types.Severity(strings.ToLower(s)) {
	case types.SeverityLow:
		return types.SeverityLow, nil
	case types.SeverityMedium:
		return types.SeverityMedium, nil
	case types.SeverityHigh:
		return types.SeverityHigh, nil
	case types.SeverityCritical:
		return types.SeverityCritical, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

func buildClassifyPrompt(req ClassifyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Service: %s\n", req.Service)
	if req.HasMetadata {
		fmt.Fprintf(&b, "Current CPU: %.1f%%  Memory: %.1f%%  Restarts: %d\n",
			req.CPUPercent, req.MemPercent, req.RestartCount)
	}
	b.WriteString("\nRecent log lines:\n")
	for _, line := range req.Lines {
		if len(line) > maxLineLength {
			line = line[:maxLineLength]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
