package incident

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sre-sentinel/sentinel/pkg/log"
	"github.com/sre-sentinel/sentinel/pkg/types"
)

// Analyzer produces a root-cause analysis and remediation plan for an
// incident, given the triggering log window. Implemented by the root-cause
// engine.
type Analyzer interface {
	Analyze(ctx context.Context, inc *types.Incident, window types.LogWindow) (*types.RootCauseAnalysis, *types.RemediationPlan, error)
}

// Executor runs a remediation plan, recording each outcome through record as
// it completes. It returns fatal=true when the plan was aborted by a fatal
// failure on a priority <= 2 action.
type Executor interface {
	Execute(ctx context.Context, inc *types.Incident, record func(types.ActionOutcome)) (fatal bool, err error)
}

// Verifier decides whether a container returned to health after remediation
type Verifier interface {
	Verify(ctx context.Context, containerID string) error
}

// Manager owns incident lifecycles: it accepts verdicts from the anomaly
// gate and drives each incident through the state machine on its own
// goroutine. All state mutation goes through the store, which serializes
// per-incident updates.
type Manager struct {
	store    *Store
	analyzer Analyzer
	executor Executor
	verifier Verifier
	autoHeal bool
	logger   zerolog.Logger

	ctx context.Context
	wg  sync.WaitGroup
}

// NewManager wires the incident pipeline. ctx bounds every driver; on
// shutdown in-flight drivers stop at their next suspension point and leave
// their incidents non-terminal.
func NewManager(ctx context.Context, store *Store, analyzer Analyzer, executor Executor, verifier Verifier, autoHeal bool) *Manager {
	return &Manager{
		store:    store,
		analyzer: analyzer,
		executor: executor,
		verifier: verifier,
		autoHeal: autoHeal,
		logger:   log.WithComponent("incidents"),
		ctx:      ctx,
	}
}

// Store exposes the underlying store for snapshot readers
func (m *Manager) Store() *Store {
	return m.store
}

// HandleVerdict applies gating and, when a new incident opens, launches its
// driver. Implements the anomaly gate's sink.
func (m *Manager) HandleVerdict(c *types.Container, verdict types.AnomalyVerdict, window types.LogWindow) {
	inc, reason := m.store.Accept(c, verdict)
	if inc == nil {
		if reason == RejectDebounced {
			m.logger.Info().
				Str("container", c.Name).
				Msg("verdict suppressed by debounce window")
		}
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.drive(inc.ID, window)
	}()
}

// Wait blocks until every running driver has exited
func (m *Manager) Wait() {
	m.wg.Wait()
}

// drive walks one incident through analysis, remediation, and verification.
// Each transition publishes incident_update through the store.
func (m *Manager) drive(id string, window types.LogWindow) {
	logger := log.WithIncident(id)

	if err := m.store.Transition(id, types.IncidentStateAnalyzing, nil); err != nil {
		logger.Error().Err(err).Msg("could not start analysis")
		return
	}

	inc, ok := m.store.Get(id)
	if !ok {
		return
	}

	analysis, plan, err := m.analyzer.Analyze(m.ctx, inc, window)
	if err != nil {
		logger.Warn().Err(err).Msg("root-cause analysis failed")
		m.transitionOrLog(id, types.IncidentStateUnresolved, func(i *types.Incident) {
			i.Explanation = "root-cause analysis failed: " + err.Error()
		})
		return
	}

	if plan == nil || len(plan.Actions) == 0 {
		logger.Info().Msg("analyzer produced no actionable plan")
		m.transitionOrLog(id, types.IncidentStateUnresolved, func(i *types.Incident) {
			i.Analysis = analysis
			i.Explanation = analysis.Explanation
		})
		return
	}

	if !m.autoHeal {
		logger.Info().Msg("auto-heal disabled, leaving incident for manual review")
		m.transitionOrLog(id, types.IncidentStateUnresolved, func(i *types.Incident) {
			i.Analysis = analysis
			i.Plan = plan
			i.Explanation = analysis.Explanation
		})
		return
	}

	if err := m.store.Transition(id, types.IncidentStateRemediating, func(i *types.Incident) {
		i.Analysis = analysis
		i.Plan = plan
	}); err != nil {
		logger.Error().Err(err).Msg("could not start remediation")
		return
	}

	inc, _ = m.store.Get(id)
	record := func(outcome types.ActionOutcome) {
		if err := m.store.AppendOutcome(id, outcome); err != nil {
			logger.Error().Err(err).Msg("could not record action outcome")
		}
	}

	fatal, execErr := m.executor.Execute(m.ctx, inc, record)
	if fatal {
		m.transitionOrLog(id, types.IncidentStateFailed, func(i *types.Incident) {
			if execErr != nil {
				i.Explanation = "remediation aborted: " + execErr.Error()
			} else {
				i.Explanation = "remediation aborted by fatal action failure"
			}
		})
		return
	}
	if m.ctx.Err() != nil {
		// shutdown mid-plan: leave the incident in its current state
		return
	}

	if err := m.store.Transition(id, types.IncidentStateVerifying, nil); err != nil {
		logger.Error().Err(err).Msg("could not start verification")
		return
	}

	if err := m.verifier.Verify(m.ctx, inc.ContainerID); err != nil {
		m.transitionOrLog(id, types.IncidentStateFailed, func(i *types.Incident) {
			i.Explanation = err.Error()
		})
		return
	}

	m.transitionOrLog(id, types.IncidentStateResolved, func(i *types.Incident) {
		if i.Analysis != nil {
			i.Explanation = i.Analysis.Explanation
		}
	})
	logger.Info().Msg("incident resolved")
}

func (m *Manager) transitionOrLog(id string, to types.IncidentState, mutate func(*types.Incident)) {
	if err := m.store.Transition(id, to, mutate); err != nil {
		failLogger := log.WithIncident(id)
		failLogger.Error().Err(err).Str("target", string(to)).Msg("transition failed")
	}
}
