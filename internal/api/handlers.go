// Package api exposes the transmission orchestration surface over HTTP for
// the dashboard frontend.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"samhost/internal/auth"
	"samhost/internal/orchestrator"
	"samhost/internal/playlist"
	"samhost/internal/storage"
)

type Handler struct {
	Store     storage.Repository
	Lifecycle *orchestrator.Orchestrator
	Applier   *playlist.Applier
	Tokens    *auth.Manager
	Servers   MediaServer
	Logger    *slog.Logger
}

func NewHandler(store storage.Repository, lifecycle *orchestrator.Orchestrator, applier *playlist.Applier, tokens *auth.Manager, servers MediaServer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:     store,
		Lifecycle: lifecycle,
		Applier:   applier,
		Tokens:    tokens,
		Servers:   servers,
		Logger:    logger,
	}
}

type contextKey string

const userIDKey contextKey = "user_id"

// ContextWithUserID stores the authenticated user on the request context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user stored on the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// ExtractToken pulls the bearer credential from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// AuthenticateRequest resolves the request's bearer token to a user ID.
func (h *Handler) AuthenticateRequest(r *http.Request) (string, error) {
	token := ExtractToken(r)
	if token == "" {
		return "", errors.New("missing api token")
	}
	return h.Tokens.Authenticate(r.Context(), token)
}

// requireUser fetches the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
	}
	return userID, ok
}
