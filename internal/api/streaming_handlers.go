package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"samhost/internal/models"
	"samhost/internal/orchestrator"
)

type startRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Kind        string   `json:"kind"`
	PlaylistID  string   `json:"playlistId"`
	ServerID    string   `json:"serverId"`
	PlatformIDs []string `json:"platformIds"`
}

type startResponse struct {
	Transmission       models.Transmission         `json:"transmission"`
	URLs               urlsPayload                 `json:"urls"`
	PushResults        []models.PlatformPushResult `json:"pushResults"`
	PlatformsSucceeded int                         `json:"platformsSucceeded"`
}

type urlsPayload struct {
	RTMP string `json:"rtmpUrl"`
	HLS  string `json:"hlsUrl"`
	DASH string `json:"dashUrl"`
}

// StartTransmission handles POST /api/streaming/start.
func (h *Handler) StartTransmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind := models.TransmissionKind(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = models.TransmissionPlaylist
	}

	result, err := h.Lifecycle.Start(r.Context(), orchestrator.StartParams{
		UserID:      userID,
		ServerID:    req.ServerID,
		PlaylistID:  req.PlaylistID,
		Title:       req.Title,
		Description: req.Description,
		Kind:        kind,
		PlatformIDs: req.PlatformIDs,
	})
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrValidation):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, orchestrator.ErrTransmissionActive):
			writeError(w, http.StatusConflict, err)
		default:
			writeError(w, http.StatusBadGateway, err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		Transmission: result.Transmission,
		URLs: urlsPayload{
			RTMP: result.Endpoints.RTMP,
			HLS:  result.Endpoints.HLS,
			DASH: result.Endpoints.DASH,
		},
		PushResults:        result.PushResults,
		PlatformsSucceeded: result.PlatformsSucceeded,
	})
}

type stopRequest struct {
	TransmissionID string `json:"transmissionId"`
}

// StopTransmission handles POST /api/streaming/stop. The transmission ID is
// optional; when omitted the user's current transmission is stopped.
func (h *Handler) StopTransmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req stopRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	transmissionID := strings.TrimSpace(req.TransmissionID)
	if transmissionID == "" {
		active, exists, err := h.Lifecycle.Active(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !exists {
			writeJSON(w, http.StatusOK, map[string]any{
				"stopped": false,
				"message": "no active transmission",
			})
			return
		}
		transmissionID = active.ID
	}

	tm, err := h.Lifecycle.Stop(r.Context(), userID, transmissionID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTransmissionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped":      true,
		"transmission": tm,
	})
}

type statusResponse struct {
	IsLive       bool                        `json:"isLive"`
	Transmission *models.Transmission        `json:"transmission,omitempty"`
	Uptime       string                      `json:"uptime,omitempty"`
	Viewers      int                         `json:"viewers"`
	BitrateKbps  int                         `json:"bitrateKbps"`
	CurrentVideo *models.Video               `json:"currentVideo,omitempty"`
	PushResults  []models.PlatformPushResult `json:"pushResults,omitempty"`
	URLs         *urlsPayload                `json:"urls,omitempty"`
}

// StreamingStatus handles GET /api/streaming/status. Without an id query
// parameter it reports on the user's current transmission.
func (h *Handler) StreamingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	transmissionID := strings.TrimSpace(r.URL.Query().Get("id"))
	if transmissionID == "" {
		active, exists, err := h.Lifecycle.Active(r.Context(), userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !exists {
			writeJSON(w, http.StatusOK, statusResponse{IsLive: false})
			return
		}
		transmissionID = active.ID
	}

	report, err := h.Lifecycle.Status(r.Context(), userID, transmissionID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTransmissionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := statusResponse{
		IsLive:       report.IsLive,
		Transmission: &report.Transmission,
		Uptime:       report.Uptime,
		Viewers:      report.Viewers,
		BitrateKbps:  report.BitrateKbps,
		CurrentVideo: report.CurrentVideo,
		PushResults:  report.PushResults,
	}
	if report.IsLive {
		resp.URLs = &urlsPayload{
			RTMP: report.Endpoints.RTMP,
			HLS:  report.Endpoints.HLS,
			DASH: report.Endpoints.DASH,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// StreamingHistory handles GET /api/streaming/history with limit/offset
// paging.
func (h *Handler) StreamingHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	transmissions, err := h.Lifecycle.History(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transmissions": transmissions,
		"limit":         limit,
		"offset":        offset,
	})
}

type platformPayload struct {
	ID           string `json:"id"`
	PlatformName string `json:"platformName"`
	PlatformCode string `json:"platformCode"`
	IngestURL    string `json:"ingestUrl"`
	Active       bool   `json:"active"`
}

// StreamingPlatforms handles GET /api/streaming/platforms. Stream keys are
// never echoed back.
func (h *Handler) StreamingPlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	platforms, err := h.Store.ListUserPlatforms(r.Context(), userID, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	payload := make([]platformPayload, 0, len(platforms))
	for _, up := range platforms {
		payload = append(payload, platformPayload{
			ID:           up.ID,
			PlatformName: up.Platform.Name,
			PlatformCode: up.Platform.Code,
			IngestURL:    up.Ingest(),
			Active:       up.Active,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": payload})
}

type advanceRequest struct {
	TransmissionID string `json:"transmissionId"`
}

// AdvancePlaylist handles POST /api/streaming/next, moving the informational
// playlist cursor.
func (h *Handler) AdvancePlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req advanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	session, err := h.Lifecycle.Advance(r.Context(), userID, strings.TrimSpace(req.TransmissionID))
	if err != nil {
		if errors.Is(err, orchestrator.ErrTransmissionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var current *models.Video
	if len(session.Videos) > 0 && session.CurrentIndex < len(session.Videos) {
		video := session.Videos[session.CurrentIndex]
		current = &video
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"currentIndex": session.CurrentIndex,
		"currentVideo": current,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
