package rootcause

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/engine"
	"github.com/sre-sentinel/sentinel/pkg/inference"
	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/redact"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// recentLogLines is how much history is gathered from the engine,
// best-effort, beyond the triggering window
const recentLogLines = 500

// DeepAnalyzer is the inference call. Implemented by inference.Client.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, req inference.AnalyzeRequest) (*inference.AnalyzeResult, error)
}

// Registry supplies descriptors for cross-container context
type Registry interface {
	Get(id string) (*types.Container, bool)
	Snapshot() []*types.Container
}

// Catalog answers whether a tool exists in the gateway's discovered catalog.
// Implemented by the remediation executor.
type Catalog interface {
	HasTool(name string) bool
}

// Engine gathers enriched incident context, calls the deep analyzer, and
// translates the response into a remediation plan. Implements
// incident.Analyzer.
type Engine struct {
	analyzer DeepAnalyzer
	eng      engine.Engine
	registry Registry
	catalog  Catalog
	logger   zerolog.Logger
}

// New creates a root-cause Engine
func New(analyzer DeepAnalyzer, eng engine.Engine, registry Registry, catalog Catalog) *Engine {
	return &Engine{
		analyzer: analyzer,
		eng:      eng,
		registry: registry,
		catalog:  catalog,
		logger:   log.WithComponent("rootcause"),
	}
}

// Analyze builds the analyzer request from the incident, its window, the
// affected container's recent logs and environment, and every monitored
// peer. Transport failures surface to the driver, which parks the incident
// as unresolved.
func (e *Engine) Analyze(ctx context.Context, inc *types.Incident, window types.LogWindow) (*types.RootCauseAnalysis, *types.RemediationPlan, error) {
	req := inference.AnalyzeRequest{
		Service:       inc.Service,
		ContainerName: window.ContainerName,
		Verdict:       inc.Verdict,
	}
	for _, line := range window.Lines {
		req.WindowLines = append(req.WindowLines, line.Message)
	}

	// recent history is best-effort: a restarting container may have none
	if lines, err := e.eng.TailLogs(ctx, inc.ContainerID, recentLogLines); err == nil {
		for _, line := range lines {
			req.RecentLogs = append(req.RecentLogs, redact.String(line))
		}
	} else {
		e.logger.Debug().Err(err).Msg("recent log tail unavailable")
	}

	for _, peer := range e.registry.Snapshot() {
		summary := inference.PeerSummary{
			Name:     peer.Name,
			Service:  peer.Service,
			Status:   string(peer.Status),
			Restarts: peer.RestartCount,
		}
		if peer.LastSample != nil {
			summary.CPUPercent = peer.LastSample.CPUPercent
			summary.MemPercent = peer.LastSample.MemoryPercent
		}
		req.Peers = append(req.Peers, summary)
	}

	if detail, err := e.eng.Inspect(ctx, inc.ContainerID); err == nil {
		req.Environment = redact.EnvVars(detail.Env)
	} else {
		e.logger.Debug().Err(err).Msg("environment unavailable")
	}

	result, err := e.analyzer.Analyze(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	analysis := &types.RootCauseAnalysis{
		RootCause:          result.RootCause,
		Explanation:        result.Explanation,
		AffectedComponents: result.AffectedComponents,
	}
	return analysis, e.translate(inc, result.Actions), nil
}

// translate converts recommended actions into a plan, dropping actions that
// reference tools missing from the discovered catalog. The resulting plan
// may be empty.
func (e *Engine) translate(inc *types.Incident, recommended []inference.RecommendedAction) *types.RemediationPlan {
	plan := &types.RemediationPlan{}
	for _, rec := range recommended {
		if !e.catalog.HasTool(rec.Tool) {
			e.logger.Warn().
				Str("tool", rec.Tool).
				Str("incident_id", inc.ID).
				Msg("analyzer recommended unknown tool, action dropped")
			continue
		}
		plan.Actions = append(plan.Actions, types.RemediationAction{
			Tool:        rec.Tool,
			ContainerID: e.targetContainer(inc, rec.Params),
			Params:      rec.Params,
			Priority:    rec.Priority,
			Rationale:   rec.Rationale,
		})
	}
	return plan
}

// targetContainer resolves the action target: an explicit container_name
// parameter naming a monitored container wins, otherwise the incident's own
// container.
func (e *Engine) targetContainer(inc *types.Incident, params map[string]interface{}) string {
	name, _ := params["container_name"].(string)
	if name == "" {
		return inc.ContainerID
	}
	for _, c := range e.registry.Snapshot() {
		if c.Name == name {
			return c.ID
		}
	}
	return inc.ContainerID
}
