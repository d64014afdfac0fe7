package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record emitted at warn level:\n%s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn record missing:\n%s", out)
	}
}

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Writer: &buf}).Info("hello")
	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("default format is not JSON: %v (%s)", err, buf.String())
	}

	buf.Reset()
	New(Config{Writer: &buf, Format: "text"}).Info("hello")
	if json.Unmarshal(buf.Bytes(), &record) == nil {
		t.Fatalf("text format produced JSON: %s", buf.String())
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(New(Config{Writer: &buf}), "orchestrator")
	logger.Info("ready")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["component"] != "orchestrator" {
		t.Fatalf("component missing: %+v", record)
	}

	if WithComponent(nil, "x") != nil {
		t.Fatal("nil logger should stay nil")
	}
}

func TestContextCarriesIDs(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), " req-1 ")
	ctx = ContextWithTransmissionID(ctx, "tm-1")

	if id, ok := RequestIDFromContext(ctx); !ok || id != "req-1" {
		t.Fatalf("request id %q ok=%v", id, ok)
	}
	if id, ok := TransmissionIDFromContext(ctx); !ok || id != "tm-1" {
		t.Fatalf("transmission id %q ok=%v", id, ok)
	}

	if _, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), "  ")); ok {
		t.Fatal("blank request id stored")
	}
}

func TestWithContextAnnotatesLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Writer: &buf})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTransmissionID(ctx, "tm-1")
	WithContext(ctx, base).Info("annotated")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["request_id"] != "req-1" || record["transmission_id"] != "tm-1" {
		t.Fatalf("ids missing from record: %+v", record)
	}
}

func TestLoggerFromContext(t *testing.T) {
	logger := slog.Default()
	ctx := ContextWithLogger(context.Background(), logger)
	if LoggerFromContext(ctx) != logger {
		t.Fatal("logger not retrievable from context")
	}
	if LoggerFromContext(context.Background()) != nil {
		t.Fatal("empty context returned a logger")
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	middleware := RequestLogger(RequestLoggerConfig{Logger: New(Config{Writer: &buf})})
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/streaming/status", nil)
	req = req.WithContext(ContextWithRequestID(req.Context(), "req-9"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["status"] != float64(http.StatusTeapot) {
		t.Fatalf("status missing: %+v", record)
	}
	if record["request_id"] != "req-9" {
		t.Fatalf("request id missing: %+v", record)
	}
	if record["path"] != "/api/streaming/status" {
		t.Fatalf("path missing: %+v", record)
	}
}
