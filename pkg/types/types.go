package types

import (
	"time"
)

// Label keys consumed from container metadata
const (
	LabelMonitor = "sre-sentinel.monitor"
	LabelService = "sre-sentinel.service"
)

// ContainerStatus represents the engine-reported lifecycle state of a container
type ContainerStatus string

const (
	ContainerStatusRunning  ContainerStatus = "running"
	ContainerStatusStarting ContainerStatus = "starting"
	ContainerStatusExited   ContainerStatus = "exited"
	ContainerStatusUnknown  ContainerStatus = "unknown"
)

// HealthState is the engine-reported healthcheck result, when one is declared
type HealthState string

const (
	HealthStateHealthy   HealthState = "healthy"
	HealthStateUnhealthy HealthState = "unhealthy"
	HealthStateStarting  HealthState = "starting"
	HealthStateNone      HealthState = "none"
)

// Container describes a monitored container as last observed by discovery
type Container struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Service      string          `json:"service"`
	Monitored    bool            `json:"monitored"`
	Status       ContainerStatus `json:"status"`
	Health       HealthState     `json:"health"`
	RestartCount int             `json:"restart_count"`
	LastSample   *ResourceSample `json:"last_sample,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LogLevel is the severity inferred for a single log line
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// LogLine is a single redacted log line from a container stream
type LogLine struct {
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	Service       string    `json:"service"`
	Timestamp     time.Time `json:"timestamp"`
	Level         LogLevel  `json:"level"`
	Message       string    `json:"message"`
}

// LogWindow is an ordered batch of log lines from a single container.
// Windows are immutable once emitted; Seq increases monotonically per container.
type LogWindow struct {
	ContainerID   string    `json:"container_id"`
	ContainerName string    `json:"container_name"`
	Service       string    `json:"service"`
	Seq           uint64    `json:"seq"`
	Lines         []LogLine `json:"lines"`
	First         time.Time `json:"first"`
	Last          time.Time `json:"last"`
}

// ResourceSample is a point-in-time resource reading for one container.
// Rate fields are derived from cumulative counter deltas between samples.
type ResourceSample struct {
	ContainerID    string    `json:"container_id"`
	Timestamp      time.Time `json:"timestamp"`
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	MemoryUsage    uint64    `json:"memory_usage"`
	MemoryLimit    uint64    `json:"memory_limit"`
	NetRxBytesSec  float64   `json:"net_rx_bytes_sec"`
	NetTxBytesSec  float64   `json:"net_tx_bytes_sec"`
	BlockReadSec   float64   `json:"block_read_sec"`
	BlockWriteSec  float64   `json:"block_write_sec"`
	RatesSuppressed bool     `json:"rates_suppressed,omitempty"`
}

// Severity grades an anomaly verdict
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyVerdict is the classifier's judgement on one log window
type AnomalyVerdict struct {
	IsAnomaly  bool      `json:"is_anomaly"`
	Severity   Severity  `json:"severity"`
	Confidence float64   `json:"confidence"`
	Pattern    string    `json:"pattern"`
	WindowSeq  uint64    `json:"window_seq"`
	DetectedAt time.Time `json:"detected_at"`
}

// ConfidenceThreshold is the minimum classifier confidence forwarded to the
// incident store. Verdicts strictly below it are discarded.
const ConfidenceThreshold = 0.7

// IncidentState is a node in the incident state machine
type IncidentState string

const (
	IncidentStateNew         IncidentState = "new"
	IncidentStateAnalyzing   IncidentState = "analyzing"
	IncidentStateRemediating IncidentState = "remediating"
	IncidentStateVerifying   IncidentState = "verifying"
	IncidentStateResolved    IncidentState = "resolved"
	IncidentStateFailed      IncidentState = "failed"
	IncidentStateUnresolved  IncidentState = "unresolved"
)

// Terminal reports whether no further transitions are permitted from s
func (s IncidentState) Terminal() bool {
	switch s {
	case IncidentStateResolved, IncidentStateFailed, IncidentStateUnresolved:
		return true
	}
	return false
}

// Open reports whether the incident still counts against the one-open-incident
// per container rule
func (s IncidentState) Open() bool {
	return !s.Terminal()
}

// RootCauseAnalysis is the deep analyzer's conclusion for an incident
type RootCauseAnalysis struct {
	RootCause          string   `json:"root_cause"`
	Explanation        string   `json:"explanation"`
	AffectedComponents []string `json:"affected_components"`
}

// RemediationAction is one step of a remediation plan. Actions are ordered by
// Priority (lower first), ties broken by plan order.
type RemediationAction struct {
	Tool        string                 `json:"tool"`
	ContainerID string                 `json:"container_id"`
	Params      map[string]interface{} `json:"params"`
	Priority    int                    `json:"priority"`
	Rationale   string                 `json:"rationale"`
}

// RemediationPlan is an immutable ordered list of actions for one incident
type RemediationPlan struct {
	Actions []RemediationAction `json:"actions"`
}

// ActionOutcome records the result of executing one remediation action
type ActionOutcome struct {
	IncidentID string          `json:"incident_id"`
	Tool       string          `json:"tool"`
	Success    bool            `json:"success"`
	Output     string          `json:"output,omitempty"`
	ErrorKind  ErrorKind       `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
	Attempt    int             `json:"attempt"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Incident tracks one fault from detection through resolution. Incidents are
// mutated only through the store's state machine and retained for process
// lifetime so dashboard clients can bootstrap from history.
type Incident struct {
	ID          string             `json:"id"`
	ContainerID string             `json:"container_id"`
	Service     string             `json:"service"`
	DetectedAt  time.Time          `json:"detected_at"`
	State       IncidentState      `json:"state"`
	Verdict     AnomalyVerdict     `json:"verdict"`
	Analysis    *RootCauseAnalysis `json:"analysis,omitempty"`
	Plan        *RemediationPlan   `json:"plan,omitempty"`
	Outcomes    []ActionOutcome    `json:"outcomes,omitempty"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
	Explanation string             `json:"explanation,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to readers outside the store
func (i *Incident) Clone() *Incident {
	c := *i
	if i.Analysis != nil {
		a := *i.Analysis
		a.AffectedComponents = append([]string(nil), i.Analysis.AffectedComponents...)
		c.Analysis = &a
	}
	if i.Plan != nil {
		p := RemediationPlan{Actions: append([]RemediationAction(nil), i.Plan.Actions...)}
		c.Plan = &p
	}
	c.Outcomes = append([]ActionOutcome(nil), i.Outcomes...)
	if i.ResolvedAt != nil {
		t := *i.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}
