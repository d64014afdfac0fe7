package api

import (
	"context"
	"errors"
	"net/http"

	"samhost/internal/wowza"
)

// MediaServer is the management surface of the media server exposed to the
// dashboard servers view. Implemented by wowza.Client.
type MediaServer interface {
	TestConnection(ctx context.Context) (bool, error)
	ListApplications(ctx context.Context) (wowza.Result, error)
	ServerInfo(ctx context.Context) (wowza.Result, error)
}

// TestServerConnection handles GET /api/wowza/test-connection.
func (h *Handler) TestServerConnection(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireServers(w, r); !ok {
		return
	}
	connected, err := h.Servers.TestConnection(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connected": connected})
}

// ServerApplications handles GET /api/wowza/applications.
func (h *Handler) ServerApplications(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireServers(w, r); !ok {
		return
	}
	result, err := h.Servers.ListApplications(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusBadGateway, errors.New(result.Detail()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": result.Data})
}

// ServerInfo handles GET /api/wowza/server-info.
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireServers(w, r); !ok {
		return
	}
	result, err := h.Servers.ServerInfo(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !result.Success {
		writeError(w, http.StatusBadGateway, errors.New(result.Detail()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"server": result.Data})
}

func (h *Handler) requireServers(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return "", false
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return "", false
	}
	if h.Servers == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("media server is not configured"))
		return "", false
	}
	return userID, true
}
