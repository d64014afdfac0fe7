package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"samhost/internal/models"
	"samhost/internal/storage"
)

type commercialConfigRequest struct {
	PlaylistID string `json:"playlistId"`
	FolderID   string `json:"folderId"`
	Quantity   int    `json:"quantity"`
	Interval   int    `json:"interval"`
	Active     *bool  `json:"active"`
}

// Commercials handles /api/commercials (list and create).
func (h *Handler) Commercials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCommercialConfigs(w, r)
	case http.MethodPost:
		h.createCommercialConfig(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (h *Handler) listCommercialConfigs(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	configs, err := h.Store.ListCommercialConfigs(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configs": configs})
}

func (h *Handler) createCommercialConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req commercialConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.validateCommercialConfig(r, userID, req.PlaylistID, req.FolderID, req.Quantity, req.Interval); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cfg, err := h.Store.CreateCommercialConfig(r.Context(), models.CommercialConfig{
		UserID:     userID,
		PlaylistID: req.PlaylistID,
		FolderID:   req.FolderID,
		Quantity:   req.Quantity,
		Interval:   req.Interval,
		Active:     active,
	})
	if err != nil {
		if errors.Is(err, storage.ErrConfigExists) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if cfg.Active {
		if _, err := h.Applier.Apply(r.Context(), cfg); err != nil {
			h.Logger.Error("commercial apply failed", "config_id", cfg.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// CommercialByID handles /api/commercials/{id} (update and delete).
func (h *Handler) CommercialByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/commercials/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("commercial configuration not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, found, err := h.Store.GetCommercialConfig(r.Context(), id, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, errors.New("commercial configuration not found"))
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		h.updateCommercialConfig(w, r, userID, id)
	case http.MethodDelete:
		h.deleteCommercialConfig(w, r, userID, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

func (h *Handler) updateCommercialConfig(w http.ResponseWriter, r *http.Request, userID, id string) {
	var req commercialConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	update := storage.CommercialConfigUpdate{Active: req.Active}
	if req.FolderID != "" {
		owned, err := h.Store.FolderOwned(r.Context(), req.FolderID, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !owned {
			writeError(w, http.StatusBadRequest, errors.New("commercial folder not found"))
			return
		}
		update.FolderID = &req.FolderID
	}
	if req.Quantity != 0 {
		if req.Quantity < 1 {
			writeError(w, http.StatusBadRequest, errors.New("quantity must be at least 1"))
			return
		}
		update.Quantity = &req.Quantity
	}
	if req.Interval != 0 {
		if req.Interval < 1 {
			writeError(w, http.StatusBadRequest, errors.New("interval must be at least 1"))
			return
		}
		update.Interval = &req.Interval
	}

	cfg, err := h.Store.UpdateCommercialConfig(r.Context(), id, userID, update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if cfg.Active {
		if _, err := h.Applier.Apply(r.Context(), cfg); err != nil {
			h.Logger.Error("commercial apply failed", "config_id", cfg.ID, "error", err)
		}
	} else {
		if _, err := h.Applier.Remove(r.Context(), cfg.PlaylistID); err != nil {
			h.Logger.Error("commercial removal failed", "config_id", cfg.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) deleteCommercialConfig(w http.ResponseWriter, r *http.Request, userID, id string) {
	cfg, found, err := h.Store.GetCommercialConfig(r.Context(), id, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errors.New("commercial configuration not found"))
		return
	}
	if err := h.Store.DeleteCommercialConfig(r.Context(), id, userID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := h.Applier.Remove(r.Context(), cfg.PlaylistID); err != nil {
		h.Logger.Error("commercial removal failed", "config_id", cfg.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) validateCommercialConfig(r *http.Request, userID, playlistID, folderID string, quantity, interval int) error {
	if strings.TrimSpace(playlistID) == "" {
		return errors.New("playlist id is required")
	}
	if strings.TrimSpace(folderID) == "" {
		return errors.New("folder id is required")
	}
	if quantity < 1 {
		return errors.New("quantity must be at least 1")
	}
	if interval < 1 {
		return errors.New("interval must be at least 1")
	}
	owned, err := h.Store.PlaylistOwned(r.Context(), playlistID, userID)
	if err != nil {
		return fmt.Errorf("check playlist: %w", err)
	}
	if !owned {
		return errors.New("playlist not found")
	}
	owned, err = h.Store.FolderOwned(r.Context(), folderID, userID)
	if err != nil {
		return fmt.Errorf("check folder: %w", err)
	}
	if !owned {
		return errors.New("commercial folder not found")
	}
	return nil
}
