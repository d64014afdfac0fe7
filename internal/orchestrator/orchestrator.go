// Package orchestrator drives the transmission lifecycle: provisioning the
// media server, fanning pushes out to external platforms, and keeping the
// persisted record and the in-memory session registry in step.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"samhost/internal/models"
	"samhost/internal/observability/metrics"
	"samhost/internal/push"
	"samhost/internal/registry"
	"samhost/internal/storage"
	"samhost/internal/userlock"
	"samhost/internal/wowza"
)

// ErrValidation wraps request validation failures so the API layer can map
// them to 400 responses.
var ErrValidation = errors.New("validation failed")

// ErrTransmissionActive is returned when the user already has a transmission
// in a non-terminal state.
var ErrTransmissionActive = errors.New("user already has an active transmission")

// ErrTransmissionNotFound is returned when the referenced transmission does
// not exist or belongs to another user.
var ErrTransmissionNotFound = errors.New("transmission not found")

// Gateway is the media server surface the orchestrator drives.
type Gateway interface {
	EnsureApplication(ctx context.Context) (wowza.EnsureResult, error)
	CreateIncomingStream(ctx context.Context, streamName string) error
	DeleteIncomingStream(ctx context.Context, streamName string) error
	StreamStats(ctx context.Context, streamName string) (wowza.StreamStats, error)
	Endpoints(streamName string) wowza.Endpoints
	Application() string
}

// Pusher configures and removes per-platform push mappings.
type Pusher interface {
	Configure(ctx context.Context, streamName string, targets []push.Target) []models.PlatformPushResult
	Teardown(ctx context.Context, results []models.PlatformPushResult)
}

// Orchestrator owns transmission lifecycle transitions. All lifecycle entry
// points serialize per user through the locker so the one-active-transmission
// invariant holds under concurrent requests.
type Orchestrator struct {
	store    storage.Repository
	gateway  Gateway
	pusher   Pusher
	sessions *registry.Registry
	locks    userlock.Locker
	logger   *slog.Logger
	recorder *metrics.Recorder
	now      func() time.Time
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store    storage.Repository
	Gateway  Gateway
	Pusher   Pusher
	Sessions *registry.Registry
	Locks    userlock.Locker
	Logger   *slog.Logger
	Recorder *metrics.Recorder
	Clock    func() time.Time
}

// New constructs an orchestrator. Logger, recorder, and clock fall back to
// sane defaults when unset.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = metrics.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	locks := cfg.Locks
	if locks == nil {
		locks = userlock.NewMemoryLocker()
	}
	return &Orchestrator{
		store:    cfg.Store,
		gateway:  cfg.Gateway,
		pusher:   cfg.Pusher,
		sessions: cfg.Sessions,
		locks:    locks,
		logger:   logger,
		recorder: recorder,
		now:      clock,
	}
}

// StartParams describes a start request after authentication.
type StartParams struct {
	UserID      string
	ServerID    string
	PlaylistID  string
	Title       string
	Description string
	Kind        models.TransmissionKind
	PlatformIDs []string
}

// StartResult is the caller-facing outcome of a successful start.
type StartResult struct {
	Transmission       models.Transmission
	Endpoints          wowza.Endpoints
	PushResults        []models.PlatformPushResult
	PlatformsSucceeded int
}

// Start provisions a new transmission end to end. On a gateway provisioning
// failure after the record exists, the record transitions to the error status
// and the partial setup is torn down. Platform push registration failures do
// not abort the start: the transmission activates with whatever subset of
// pushes succeeded, possibly none.
func (o *Orchestrator) Start(ctx context.Context, params StartParams) (StartResult, error) {
	if err := validateStart(params); err != nil {
		return StartResult{}, err
	}

	release, err := o.locks.Acquire(ctx, params.UserID)
	if err != nil {
		return StartResult{}, err
	}
	defer release()

	if _, exists, err := o.store.ActiveTransmission(ctx, params.UserID); err != nil {
		return StartResult{}, fmt.Errorf("check active transmission: %w", err)
	} else if exists {
		return StartResult{}, ErrTransmissionActive
	}

	targets, err := o.resolveTargets(ctx, params.UserID, params.PlatformIDs)
	if err != nil {
		return StartResult{}, err
	}
	if len(targets) == 0 {
		return StartResult{}, fmt.Errorf("%w: no active platform configurations resolved", ErrValidation)
	}

	var videos []models.Video
	if params.Kind == models.TransmissionPlaylist {
		owned, err := o.store.PlaylistOwned(ctx, params.PlaylistID, params.UserID)
		if err != nil {
			return StartResult{}, fmt.Errorf("check playlist ownership: %w", err)
		}
		if !owned {
			return StartResult{}, fmt.Errorf("%w: playlist not found", ErrValidation)
		}
		videos, err = o.store.PlaylistVideos(ctx, params.PlaylistID)
		if err != nil {
			return StartResult{}, fmt.Errorf("load playlist videos: %w", err)
		}
		if len(videos) == 0 {
			return StartResult{}, fmt.Errorf("%w: playlist has no videos", ErrValidation)
		}
	}

	tm, err := o.store.CreateTransmission(ctx, storage.CreateTransmissionParams{
		UserID:      params.UserID,
		ServerID:    params.ServerID,
		PlaylistID:  params.PlaylistID,
		Title:       params.Title,
		Description: params.Description,
		Kind:        params.Kind,
		Application: o.gateway.Application(),
		Settings:    models.TransmissionSettings{PlatformIDs: params.PlatformIDs},
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("create transmission record: %w", err)
	}
	logger := o.logger.With("transmission_id", tm.ID, "user_id", params.UserID)

	o.recorder.ObserveGatewayAttempt("ensure_application")
	if _, err := o.gateway.EnsureApplication(ctx); err != nil {
		o.recorder.ObserveGatewayFailure("ensure_application")
		return StartResult{}, o.failStart(ctx, logger, tm.ID, fmt.Errorf("ensure application: %w", err))
	}

	streamName := fmt.Sprintf("stream_%s_%d", tm.ID, o.now().UnixMilli())

	o.recorder.ObserveGatewayAttempt("create_stream")
	if err := o.gateway.CreateIncomingStream(ctx, streamName); err != nil {
		o.recorder.ObserveGatewayFailure("create_stream")
		return StartResult{}, o.failStart(ctx, logger, tm.ID, fmt.Errorf("create incoming stream: %w", err))
	}

	results := o.pusher.Configure(ctx, streamName, targets)
	succeeded := 0
	for _, result := range results {
		o.recorder.ObservePushOutcome(result.Success)
		if result.Success {
			succeeded++
		}
	}
	if err := o.store.SavePushResults(ctx, tm.ID, results); err != nil {
		logger.Error("persist push results failed", "error", err)
	}
	// Push registration failures never abort the start, even when every
	// platform refused: the incoming stream still serves its own HLS/DASH
	// playback, and the per-platform outcomes are on the record.
	if succeeded == 0 {
		logger.Warn("no platform push registrations succeeded", "platforms", len(targets))
	}

	startedAt := o.now()
	o.sessions.Put(registry.Session{
		TransmissionID: tm.ID,
		StreamName:     streamName,
		Videos:         videos,
		StartedAt:      startedAt,
		PushResults:    results,
	})

	transmissionID := tm.ID
	active := models.TransmissionActive
	tm, err = o.store.UpdateTransmission(ctx, transmissionID, storage.TransmissionUpdate{
		Status:     &active,
		StreamName: &streamName,
		StartedAt:  &startedAt,
	})
	if err != nil {
		o.sessions.Delete(transmissionID)
		o.pusher.Teardown(ctx, results)
		if cleanupErr := o.gateway.DeleteIncomingStream(ctx, streamName); cleanupErr != nil {
			logger.Warn("incoming stream cleanup failed", "stream", streamName, "error", cleanupErr)
		}
		return StartResult{}, fmt.Errorf("activate transmission: %w", err)
	}

	o.recorder.TransmissionStarted()
	logger.Info("transmission started",
		"stream", streamName, "platforms", len(targets), "platforms_succeeded", succeeded)

	return StartResult{
		Transmission:       tm,
		Endpoints:          o.gateway.Endpoints(streamName),
		PushResults:        results,
		PlatformsSucceeded: succeeded,
	}, nil
}

// failStart transitions the record to the error status. The original failure
// is returned; the status update is best-effort.
func (o *Orchestrator) failStart(ctx context.Context, logger *slog.Logger, transmissionID string, cause error) error {
	o.recorder.TransmissionFailed()
	status := models.TransmissionError
	detail := cause.Error()
	if _, err := o.store.UpdateTransmission(ctx, transmissionID, storage.TransmissionUpdate{
		Status:      &status,
		ErrorDetail: &detail,
	}); err != nil {
		logger.Error("mark transmission errored failed", "error", err)
	}
	logger.Error("transmission start failed", "error", cause)
	return cause
}

func validateStart(params StartParams) error {
	if strings.TrimSpace(params.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(params.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if len(params.PlatformIDs) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrValidation)
	}
	switch params.Kind {
	case models.TransmissionPlaylist:
		if strings.TrimSpace(params.PlaylistID) == "" {
			return fmt.Errorf("%w: playlist id is required", ErrValidation)
		}
	case models.TransmissionManual:
	default:
		return fmt.Errorf("%w: unknown transmission kind %q", ErrValidation, params.Kind)
	}
	return nil
}

func (o *Orchestrator) resolveTargets(ctx context.Context, userID string, platformIDs []string) ([]push.Target, error) {
	platforms, err := o.store.ListUserPlatforms(ctx, userID, platformIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve platforms: %w", err)
	}
	targets := make([]push.Target, 0, len(platforms))
	for _, up := range platforms {
		targets = append(targets, push.Target{
			PlatformCode: up.Platform.Code,
			PlatformName: up.Platform.Name,
			IngestURL:    up.Ingest(),
			StreamKey:    up.StreamKey,
		})
	}
	return targets, nil
}

// Stop finishes the user's transmission. Stopping an already-terminal
// transmission is a no-op returning the current record, so repeated stop
// requests are safe. Teardown of server-side state is best-effort.
func (o *Orchestrator) Stop(ctx context.Context, userID, transmissionID string) (models.Transmission, error) {
	release, err := o.locks.Acquire(ctx, userID)
	if err != nil {
		return models.Transmission{}, err
	}
	defer release()

	tm, ok, err := o.store.GetTransmission(ctx, transmissionID)
	if err != nil {
		return models.Transmission{}, fmt.Errorf("load transmission: %w", err)
	}
	if !ok || tm.UserID != userID {
		return models.Transmission{}, ErrTransmissionNotFound
	}
	if tm.Status.Terminal() {
		return tm, nil
	}
	logger := o.logger.With("transmission_id", tm.ID, "user_id", userID)

	session, live := o.sessions.Get(tm.ID)
	pushResults := session.PushResults
	if !live {
		stored, err := o.store.ListPushResults(ctx, tm.ID)
		if err != nil {
			logger.Warn("load push results failed", "error", err)
		} else {
			pushResults = stored
		}
	}
	o.pusher.Teardown(ctx, pushResults)

	streamName := tm.StreamName
	if live && session.StreamName != "" {
		streamName = session.StreamName
	}
	if streamName != "" {
		o.recorder.ObserveGatewayAttempt("delete_stream")
		if err := o.gateway.DeleteIncomingStream(ctx, streamName); err != nil {
			o.recorder.ObserveGatewayFailure("delete_stream")
			logger.Warn("incoming stream removal failed", "stream", streamName, "error", err)
		}
	}

	o.sessions.Delete(tm.ID)

	finished := models.TransmissionFinished
	endedAt := o.now()
	tm, err = o.store.UpdateTransmission(ctx, tm.ID, storage.TransmissionUpdate{
		Status:  &finished,
		EndedAt: &endedAt,
	})
	if err != nil {
		return models.Transmission{}, fmt.Errorf("finish transmission: %w", err)
	}

	o.recorder.TransmissionStopped()
	logger.Info("transmission stopped", "stream", streamName)
	return tm, nil
}

// StatusReport is the point-in-time view of a transmission returned to the
// dashboard.
type StatusReport struct {
	Transmission models.Transmission
	IsLive       bool
	Uptime       string
	Viewers      int
	BitrateKbps  int
	CurrentVideo *models.Video
	PushResults  []models.PlatformPushResult
	Endpoints    wowza.Endpoints
}

// Status reports the live state of a transmission. The in-memory registry is
// authoritative for liveness: a record still marked active without a session
// (for example after a restart) is reported as not live, and the record is
// left untouched for the operator to inspect.
func (o *Orchestrator) Status(ctx context.Context, userID, transmissionID string) (StatusReport, error) {
	tm, ok, err := o.store.GetTransmission(ctx, transmissionID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("load transmission: %w", err)
	}
	if !ok || tm.UserID != userID {
		return StatusReport{}, ErrTransmissionNotFound
	}

	report := StatusReport{Transmission: tm}
	session, live := o.sessions.Get(tm.ID)
	if !live || tm.Status != models.TransmissionActive {
		results, err := o.store.ListPushResults(ctx, tm.ID)
		if err == nil {
			report.PushResults = results
		}
		return report, nil
	}

	report.IsLive = true
	report.Uptime = formatUptime(o.now().Sub(session.StartedAt))
	report.PushResults = session.PushResults
	report.Endpoints = o.gateway.Endpoints(session.StreamName)
	if len(session.Videos) > 0 && session.CurrentIndex < len(session.Videos) {
		video := session.Videos[session.CurrentIndex]
		report.CurrentVideo = &video
	}

	// Stats fetches fail soft: keep the last snapshot rather than zeroing
	// the dashboard on a transient server hiccup.
	report.Viewers = session.Viewers
	report.BitrateKbps = session.BitrateKbps
	stats, err := o.gateway.StreamStats(ctx, session.StreamName)
	if err != nil {
		o.logger.Warn("stream stats fetch failed", "transmission_id", tm.ID, "error", err)
	} else if stats.OK {
		report.Viewers = stats.Viewers
		report.BitrateKbps = stats.BitrateKbps
		o.sessions.UpdateStats(tm.ID, stats.Viewers, stats.BitrateKbps)
	}
	return report, nil
}

// Active returns the user's current non-terminal transmission, if any.
func (o *Orchestrator) Active(ctx context.Context, userID string) (models.Transmission, bool, error) {
	return o.store.ActiveTransmission(ctx, userID)
}

// History lists the user's past and present transmissions, newest first.
func (o *Orchestrator) History(ctx context.Context, userID string, limit, offset int) ([]models.Transmission, error) {
	return o.store.ListTransmissions(ctx, userID, limit, offset)
}

// Advance moves the informational playlist cursor for a live transmission.
func (o *Orchestrator) Advance(ctx context.Context, userID, transmissionID string) (registry.Session, error) {
	tm, ok, err := o.store.GetTransmission(ctx, transmissionID)
	if err != nil {
		return registry.Session{}, fmt.Errorf("load transmission: %w", err)
	}
	if !ok || tm.UserID != userID {
		return registry.Session{}, ErrTransmissionNotFound
	}
	session, ok := o.sessions.Advance(transmissionID)
	if !ok {
		return registry.Session{}, ErrTransmissionNotFound
	}
	return session, nil
}

// formatUptime renders a duration as HH:MM:SS, the format the dashboard
// expects.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
