package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests,
// transmission lifecycle events, push fan-out outcomes, and media server
// calls. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for active transmission tracking.
type Recorder struct {
	mu                  sync.RWMutex
	requestCount        map[requestLabel]uint64
	requestDuration     map[requestLabel]time.Duration
	transmissionEvents  map[string]uint64
	pushOutcomes        map[string]uint64
	gatewayAttempts     map[string]uint64
	gatewayFailures     map[string]uint64
	activeTransmissions atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:       make(map[requestLabel]uint64),
		requestDuration:    make(map[requestLabel]time.Duration),
		transmissionEvents: make(map[string]uint64),
		pushOutcomes:       make(map[string]uint64),
		gatewayAttempts:    make(map[string]uint64),
		gatewayFailures:    make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// TransmissionStarted records a start lifecycle event and increments the
// active transmission gauge.
func (r *Recorder) TransmissionStarted() {
	r.incrementTransmissionEvent("start")
	r.activeTransmissions.Add(1)
}

// TransmissionStopped records a stop lifecycle event and decrements the
// active transmission gauge, guarding against negative counts.
func (r *Recorder) TransmissionStopped() {
	r.incrementTransmissionEvent("stop")
	r.decrementGauge(&r.activeTransmissions)
}

// TransmissionFailed records a start attempt that ended in the error status.
func (r *Recorder) TransmissionFailed() {
	r.incrementTransmissionEvent("error")
}

func (r *Recorder) incrementTransmissionEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.transmissionEvents[normalized]++
	r.mu.Unlock()
}

// ObservePushOutcome records one platform fan-out result.
func (r *Recorder) ObservePushOutcome(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.mu.Lock()
	r.pushOutcomes[outcome]++
	r.mu.Unlock()
}

// ObserveGatewayAttempt records a media server operation attempt keyed by
// operation name (e.g. "ensure_application", "create_stream").
func (r *Recorder) ObserveGatewayAttempt(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.gatewayAttempts[op]++
	r.mu.Unlock()
}

// ObserveGatewayFailure records a failed media server operation keyed by
// operation name. The caller should also record the attempt separately.
func (r *Recorder) ObserveGatewayFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.gatewayFailures[op]++
	r.mu.Unlock()
}

// ActiveTransmissions exposes the current gauge of live transmissions.
func (r *Recorder) ActiveTransmissions() int64 {
	return r.activeTransmissions.Load()
}

// GatewayCounts returns copies of gateway attempt and failure counters for
// testing and reporting purposes.
func (r *Recorder) GatewayCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.gatewayAttempts))
	for k, v := range r.gatewayAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.gatewayFailures))
	for k, v := range r.gatewayFailures {
		failures[k] = v
	}
	return attempts, failures
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.transmissionEvents = make(map[string]uint64)
	r.pushOutcomes = make(map[string]uint64)
	r.gatewayAttempts = make(map[string]uint64)
	r.gatewayFailures = make(map[string]uint64)
	r.activeTransmissions.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	transmissionEvents := sortedKeys(r.transmissionEvents)
	pushOutcomes := sortedKeys(r.pushOutcomes)
	gatewayOps := r.sortedGatewayOperations()

	fmt.Fprintln(w, "# HELP samhost_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE samhost_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "samhost_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP samhost_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE samhost_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "samhost_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP samhost_transmission_events_total Transmission lifecycle events by type")
	fmt.Fprintln(w, "# TYPE samhost_transmission_events_total counter")
	for _, event := range transmissionEvents {
		fmt.Fprintf(w, "samhost_transmission_events_total{event=\"%s\"} %d\n", event, r.transmissionEvents[event])
	}

	fmt.Fprintln(w, "# HELP samhost_active_transmissions Current number of live transmissions")
	fmt.Fprintln(w, "# TYPE samhost_active_transmissions gauge")
	fmt.Fprintf(w, "samhost_active_transmissions %d\n", r.activeTransmissions.Load())

	fmt.Fprintln(w, "# HELP samhost_push_results_total Platform push fan-out results by outcome")
	fmt.Fprintln(w, "# TYPE samhost_push_results_total counter")
	for _, outcome := range pushOutcomes {
		fmt.Fprintf(w, "samhost_push_results_total{outcome=\"%s\"} %d\n", outcome, r.pushOutcomes[outcome])
	}

	fmt.Fprintln(w, "# HELP samhost_gateway_attempts_total Media server operations attempted by action")
	fmt.Fprintln(w, "# TYPE samhost_gateway_attempts_total counter")
	for _, op := range gatewayOps {
		fmt.Fprintf(w, "samhost_gateway_attempts_total{operation=\"%s\"} %d\n", op, r.gatewayAttempts[op])
	}

	fmt.Fprintln(w, "# HELP samhost_gateway_failures_total Media server operation failures by action")
	fmt.Fprintln(w, "# TYPE samhost_gateway_failures_total counter")
	for _, op := range gatewayOps {
		fmt.Fprintf(w, "samhost_gateway_failures_total{operation=\"%s\"} %d\n", op, r.gatewayFailures[op])
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedGatewayOperations() []string {
	seen := make(map[string]struct{}, len(r.gatewayAttempts)+len(r.gatewayFailures))
	for op := range r.gatewayAttempts {
		seen[op] = struct{}{}
	}
	for op := range r.gatewayFailures {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
