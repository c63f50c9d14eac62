package remedy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/metrics"
	"github.com/sre-sentinel/sentinel/pkg/retry"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

const (
	// defaultCallTimeout bounds an ordinary tool invocation
	defaultCallTimeout = 30 * time.Second
	// recreateCallTimeout bounds tools that destroy and recreate containers
	recreateCallTimeout = 120 * time.Second

	// fatalPriorityCeiling: a fatal failure on an action at or below this
	// priority aborts the remainder of the plan
	fatalPriorityCeiling = 2
)

// recreateTools run long because the gateway commits, destroys, and
// recreates the target container
var recreateTools = map[string]struct{}{
	"restart_container":   {},
	"recreate_container":  {},
	"update_env_vars":     {},
	"rollback_deployment": {},
}

// readOnlyPrefixes mark probe tools whose bare payload counts as success
var readOnlyPrefixes = []string{"get_", "list_", "read_", "describe_"}

// Executor drives the tool gateway session and runs remediation plans. It
// owns the session exclusively; concurrent plans serialize through its
// mutex because the gateway's session model is not documented as
// concurrency-safe. Implements incident.Executor and rootcause.Catalog.
type Executor struct {
	gatewayURL string
	logger     zerolog.Logger

	mu   sync.Mutex
	sess *session
}

// New creates an Executor for the gateway at gatewayURL. The session is
// opened lazily on first use.
func New(gatewayURL string) *Executor {
	return &Executor{
		gatewayURL: gatewayURL,
		logger:     log.WithComponent("executor"),
	}
}

// Close tears down the gateway session
func (e *Executor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != nil {
		e.sess.close()
		e.sess = nil
	}
}

// HasTool reports whether the discovered catalog advertises name. Before
// the first handshake the catalog is unknown and the answer is optimistic;
// execution resolves the tool authoritatively.
func (e *Executor) HasTool(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return true
	}
	_, ok := e.sess.tools[name]
	return ok
}

// Execute runs the incident's plan in priority order, recording an outcome
// per action. It returns fatal=true when a fatal failure on a priority <= 2
// action aborted the plan.
func (e *Executor) Execute(ctx context.Context, inc *types.Incident, record func(types.ActionOutcome)) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if inc.Plan == nil || len(inc.Plan.Actions) == 0 {
		return false, nil
	}

	actions := orderActions(inc.Plan.Actions)
	logger := e.logger.With().Str("incident_id", inc.ID).Logger()

	for idx, action := range actions {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		outcome := e.executeAction(ctx, action)
		outcome.IncidentID = inc.ID
		record(outcome)

		metrics.GatewayCallsTotal.WithLabelValues(action.Tool, outcomeLabel(outcome)).Inc()
		metrics.ActionDuration.WithLabelValues(action.Tool).Observe(outcome.Duration.Seconds())

		if outcome.Success {
			logger.Info().
				Str("tool", action.Tool).
				Int("attempt", outcome.Attempt).
				Msg("remediation action succeeded")
			continue
		}

		logger.Warn().
			Str("tool", action.Tool).
			Str("kind", string(outcome.ErrorKind)).
			Str("error", outcome.Error).
			Msg("remediation action failed")

		if fatalKind(outcome.ErrorKind) && action.Priority <= fatalPriorityCeiling {
			skipped := len(actions) - idx - 1
			if skipped > 0 {
				logger.Warn().Int("skipped", skipped).Msg("aborting remainder of plan")
			}
			return true, fmt.Errorf("action %s failed: %s", action.Tool, outcome.Error)
		}
	}
	return false, nil
}

// executeAction resolves, validates, and invokes one action with retries
func (e *Executor) executeAction(ctx context.Context, action types.RemediationAction) types.ActionOutcome {
	timer := metrics.NewTimer()
	outcome := types.ActionOutcome{
		Tool:    action.Tool,
		Attempt: 1,
	}
	finish := func(o types.ActionOutcome) types.ActionOutcome {
		o.Duration = timer.Duration()
		o.FinishedAt = time.Now()
		return o
	}

	if err := e.ensureSession(ctx); err != nil {
		outcome.ErrorKind = types.ErrGatewayUnavailable
		outcome.Error = err.Error()
		return finish(outcome)
	}

	if _, ok := e.sess.tools[action.Tool]; !ok {
		outcome.ErrorKind = types.ErrToolNotFound
		outcome.Error = fmt.Sprintf("tool %q not in discovered catalog", action.Tool)
		return finish(outcome)
	}

	if err := e.sess.validate(action.Tool, action.Params); err != nil {
		outcome.ErrorKind = types.ErrSchemaViolation
		outcome.Error = fmt.Sprintf("parameters rejected by tool schema: %v", err)
		return finish(outcome)
	}

	attempt := 0
	var result *mcp.CallToolResult
	err := retry.Do(ctx, retry.Config{
		Attempts:   3,
		BaseDelay:  time.Second,
		Multiplier: 3.0,
		MaxDelay:   30 * time.Second,
		Jitter:     0.1,
	}, "gateway.call", func(ctx context.Context) error {
		attempt++
		var callErr error
		result, callErr = e.call(ctx, action)
		if callErr == nil {
			return nil
		}
		if isSessionLost(callErr) {
			// one re-handshake, then the retry loop re-issues the call
			if hsErr := e.rehandshake(ctx); hsErr != nil {
				return retry.Stop(hsErr)
			}
			return callErr
		}
		if isTransient(callErr) {
			return callErr
		}
		return retry.Stop(callErr)
	})
	outcome.Attempt = attempt

	if err != nil {
		outcome.ErrorKind = types.ErrGatewayUnavailable
		outcome.Error = err.Error()
		return finish(outcome)
	}

	text := contentText(result)
	outcome.Output = text

	if result.IsError {
		outcome.ErrorKind = types.ErrToolExecution
		outcome.Error = firstLine(text)
		return finish(outcome)
	}

	success, reason := payloadSuccess(action.Tool, text)
	outcome.Success = success
	if !success {
		outcome.ErrorKind = types.ErrToolExecution
		outcome.Error = reason
	}
	return finish(outcome)
}

// call invokes the tool with its per-call timeout
func (e *Executor) call(ctx context.Context, action types.RemediationAction) (*mcp.CallToolResult, error) {
	timeout := defaultCallTimeout
	if _, ok := recreateTools[action.Tool]; ok {
		timeout = recreateCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = action.Tool
	req.Params.Arguments = action.Params
	return e.sess.mcp.CallTool(ctx, req)
}

// ensureSession opens the gateway session on first use
func (e *Executor) ensureSession(ctx context.Context) error {
	if e.sess != nil {
		return nil
	}
	sess, err := connect(ctx, e.gatewayURL)
	if err != nil {
		return err
	}
	e.sess = sess
	return nil
}

// rehandshake replaces an expired session
func (e *Executor) rehandshake(ctx context.Context) error {
	e.logger.Info().Msg("gateway session lost, re-handshaking")
	if e.sess != nil {
		e.sess.close()
		e.sess = nil
	}
	return e.ensureSession(ctx)
}

// payloadSuccess applies the success contract: the payload must indicate
// success=true, except for read-only probes where any payload counts.
func payloadSuccess(tool, text string) (bool, string) {
	var payload toolPayload
	if err := json.Unmarshal([]byte(text), &payload); err == nil && payload.Success != nil {
		if *payload.Success {
			return true, ""
		}
		reason := payload.Error
		if reason == "" {
			reason = payload.Message
		}
		if reason == "" {
			reason = "tool reported success=false"
		}
		return false, reason
	}

	if isReadOnlyTool(tool) && strings.TrimSpace(text) != "" {
		return true, ""
	}
	return false, "tool payload did not indicate success"
}

func isReadOnlyTool(name string) bool {
	for _, prefix := range readOnlyPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// orderActions sorts by priority, ties broken by plan order
func orderActions(actions []types.RemediationAction) []types.RemediationAction {
	out := append([]types.RemediationAction(nil), actions...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

func fatalKind(kind types.ErrorKind) bool {
	switch kind {
	case types.ErrToolNotFound, types.ErrSchemaViolation, types.ErrGatewayUnavailable:
		return true
	}
	return false
}

func outcomeLabel(o types.ActionOutcome) string {
	if o.Success {
		return "success"
	}
	if o.ErrorKind != "" {
		return string(o.ErrorKind)
	}
	return "error"
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
