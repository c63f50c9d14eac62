package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Discovery metrics
	ContainersMonitored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_containers_monitored",
			Help: "Number of containers currently tracked by discovery",
		},
	)

	DiscoveryCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_discovery_cycles_total",
			Help: "Total number of discovery passes completed",
		},
	)

	DiscoveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_discovery_duration_seconds",
			Help:    "Time taken for a discovery pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Log pipeline metrics
	LogLinesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_log_lines_total",
			Help: "Total log lines ingested by level",
		},
		[]string{"level"},
	)

	LogWindowsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_log_windows_emitted_total",
			Help: "Total log windows emitted to the anomaly gate",
		},
	)

	StreamReattachesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_log_stream_reattaches_total",
			Help: "Total log stream re-attach attempts after engine errors",
		},
	)

	// Classification metrics
	WindowsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_windows_classified_total",
			Help: "Total log windows classified by outcome",
		},
		[]string{"outcome"},
	)

	ClassifierDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_classifier_duration_seconds",
			Help:    "Fast classifier call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AnalyzerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_analyzer_duration_seconds",
			Help:    "Deep analyzer call duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	// Incident metrics
	IncidentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_incidents_total",
			Help: "Total incidents opened by service",
		},
		[]string{"service"},
	)

	IncidentsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_incidents_by_state",
			Help: "Current incidents by state",
		},
		[]string{"state"},
	)

	VerdictsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_verdicts_suppressed_total",
			Help: "Anomaly verdicts suppressed by the debounce window",
		},
	)

	// Remediation metrics
	GatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_gateway_calls_total",
			Help: "Tool gateway calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_action_duration_seconds",
			Help:    "Remediation action duration in seconds by tool",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"tool"},
	)

	GatewayHandshakesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_gateway_handshakes_total",
			Help: "Total gateway session handshakes, including re-handshakes",
		},
	)

	// Verification metrics
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_verifications_total",
			Help: "Post-remediation verifications by result",
		},
		[]string{"result"},
	)

	// Event bus metrics
	BusEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_events_published_total",
			Help: "Events published to the bus by topic",
		},
		[]string{"topic"},
	)

	BusEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_events_dropped_total",
			Help: "Events dropped from slow subscriber queues by topic",
		},
		[]string{"topic"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	WSClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentinel_ws_clients_connected",
			Help: "Currently connected WebSocket subscribers",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ContainersMonitored)
	prometheus.MustRegister(DiscoveryCyclesTotal)
	prometheus.MustRegister(DiscoveryDuration)
	prometheus.MustRegister(LogLinesTotal)
	prometheus.MustRegister(LogWindowsEmitted)
	prometheus.MustRegister(StreamReattachesTotal)
	prometheus.MustRegister(WindowsClassified)
	prometheus.MustRegister(ClassifierDuration)
	prometheus.MustRegister(AnalyzerDuration)
	prometheus.MustRegister(IncidentsTotal)
	prometheus.MustRegister(IncidentsByState)
	prometheus.MustRegister(VerdictsSuppressed)
	prometheus.MustRegister(GatewayCallsTotal)
	prometheus.MustRegister(ActionDuration)
	prometheus.MustRegister(GatewayHandshakesTotal)
	prometheus.MustRegister(VerificationsTotal)
	prometheus.MustRegister(BusEventsPublished)
	prometheus.MustRegister(BusEventsDropped)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(WSClientsConnected)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
