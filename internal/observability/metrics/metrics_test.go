package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/":                      "/",
		"/api/streaming/status":  "/api/streaming/status",
		"/api/commercials/":      "/api/commercials",
		"/api/commercials/7c33a0d14b5e4f2a9d01b6c8e4f5a7b9": "/api/commercials/:id",
		"/api/commercials/cfg-123456":                       "/api/commercials/:id",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveRequestAggregatesByLabel(t *testing.T) {
	r := New()
	r.ObserveRequest("get", "/api/streaming/status", 200, 10*time.Millisecond)
	r.ObserveRequest("GET", "/api/streaming/status", 200, 20*time.Millisecond)
	r.ObserveRequest("POST", "/api/streaming/start", 201, 5*time.Millisecond)

	var out strings.Builder
	r.Write(&out)
	body := out.String()

	if !strings.Contains(body, `samhost_http_requests_total{method="GET",path="/api/streaming/status",status="200"} 2`) {
		t.Fatalf("GET counter missing or wrong:\n%s", body)
	}
	if !strings.Contains(body, `samhost_http_requests_total{method="POST",path="/api/streaming/start",status="201"} 1`) {
		t.Fatalf("POST counter missing:\n%s", body)
	}
}

func TestTransmissionGaugeNeverNegative(t *testing.T) {
	r := New()
	r.TransmissionStopped()
	if got := r.ActiveTransmissions(); got != 0 {
		t.Fatalf("gauge went negative: %d", got)
	}

	r.TransmissionStarted()
	r.TransmissionStarted()
	r.TransmissionStopped()
	if got := r.ActiveTransmissions(); got != 1 {
		t.Fatalf("gauge %d, want 1", got)
	}
}

func TestGatewayCounters(t *testing.T) {
	r := New()
	r.ObserveGatewayAttempt("create_stream")
	r.ObserveGatewayAttempt("create_stream")
	r.ObserveGatewayFailure("create_stream")
	r.ObserveGatewayAttempt("ensure_application")

	attempts, failures := r.GatewayCounts()
	if attempts["create_stream"] != 2 || attempts["ensure_application"] != 1 {
		t.Fatalf("unexpected attempts %v", attempts)
	}
	if failures["create_stream"] != 1 {
		t.Fatalf("unexpected failures %v", failures)
	}
}

func TestPushOutcomes(t *testing.T) {
	r := New()
	r.ObservePushOutcome(true)
	r.ObservePushOutcome(true)
	r.ObservePushOutcome(false)

	var out strings.Builder
	r.Write(&out)
	body := out.String()
	if !strings.Contains(body, `samhost_push_results_total{outcome="success"} 2`) {
		t.Fatalf("success counter missing:\n%s", body)
	}
	if !strings.Contains(body, `samhost_push_results_total{outcome="failure"} 1`) {
		t.Fatalf("failure counter missing:\n%s", body)
	}
}

func TestHandlerServesPrometheusText(t *testing.T) {
	r := New()
	r.TransmissionStarted()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics handler: %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "samhost_active_transmissions 1") {
		t.Fatalf("gauge missing:\n%s", rec.Body.String())
	}
}

func TestReset(t *testing.T) {
	r := New()
	r.TransmissionStarted()
	r.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
	r.Reset()

	if r.ActiveTransmissions() != 0 {
		t.Fatalf("gauge survived reset: %d", r.ActiveTransmissions())
	}
	var out strings.Builder
	r.Write(&out)
	if strings.Contains(out.String(), "/healthz") {
		t.Fatalf("request counters survived reset:\n%s", out.String())
	}
}
