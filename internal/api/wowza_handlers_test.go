package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"samhost/internal/wowza"
)

type failingServers struct{}

func (failingServers) TestConnection(context.Context) (bool, error) {
	return false, nil
}
func (failingServers) ListApplications(context.Context) (wowza.Result, error) {
	return wowza.Result{StatusCode: http.StatusUnauthorized, Data: "unauthorized"}, nil
}
func (failingServers) ServerInfo(context.Context) (wowza.Result, error) {
	return wowza.Result{StatusCode: http.StatusServiceUnavailable}, nil
}

func TestServerConnectionEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.TestServerConnection(rec, authed(http.MethodGet, "/api/wowza/test-connection", "", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Connected bool `json:"connected"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Connected {
		t.Fatalf("expected connected=true, got %s", rec.Body.String())
	}

	handler.Servers = failingServers{}
	rec = httptest.NewRecorder()
	handler.TestServerConnection(rec, authed(http.MethodGet, "/api/wowza/test-connection", "", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Connected {
		t.Fatalf("expected connected=false, got %s", rec.Body.String())
	}
}

func TestServerApplicationsEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServerApplications(rec, authed(http.MethodGet, "/api/wowza/applications", "", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Applications []map[string]any `json:"applications"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Applications) != 1 || resp.Applications[0]["name"] != "live" {
		t.Fatalf("unexpected applications payload: %s", rec.Body.String())
	}

	handler.Servers = failingServers{}
	rec = httptest.NewRecorder()
	handler.ServerApplications(rec, authed(http.MethodGet, "/api/wowza/applications", "", "user-1"))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("non-success listing status %d", rec.Code)
	}
}

func TestServerInfoEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServerInfo(rec, authed(http.MethodGet, "/api/wowza/server-info", "", "user-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Server map[string]any `json:"server"`
	}
	decodeBody(t, rec, &resp)
	if resp.Server["name"] != "_defaultServer_" {
		t.Fatalf("unexpected server payload: %s", rec.Body.String())
	}
}

func TestServerEndpointsRejectWritesAndAnonymous(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	handler.ServerInfo(rec, authed(http.MethodPost, "/api/wowza/server-info", "", "user-1"))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.TestServerConnection(rec, httptest.NewRequest(http.MethodGet, "/api/wowza/test-connection", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", rec.Code)
	}
}
