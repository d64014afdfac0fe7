// Package registry holds the in-memory session state for transmissions that
// are currently provisioned on the media server. It is process-lifetime only:
// a restart drops every session, which downstream status logic treats as
// "not live" regardless of the persisted record.
package registry

import (
	"sync"
	"time"

	"samhost/internal/models"
)

// Session is the transient state for one active transmission.
type Session struct {
	TransmissionID string
	StreamName     string
	Videos         []models.Video
	CurrentIndex   int
	StartedAt      time.Time
	PushResults    []models.PlatformPushResult
	Viewers        int
	BitrateKbps    int
}

// Registry maps transmission IDs to live sessions. Only the lifecycle
// manager mutates it; readers receive point-in-time copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Put records the session for its transmission, replacing any previous entry.
func (r *Registry) Put(session Session) {
	r.mu.Lock()
	r.sessions[session.TransmissionID] = cloneSession(session)
	r.mu.Unlock()
}

// Get returns a copy of the session for the transmission, if present.
func (r *Registry) Get(transmissionID string) (Session, bool) {
	r.mu.RLock()
	session, ok := r.sessions[transmissionID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	return cloneSession(session), true
}

// Delete evicts the session. Deleting an absent entry is a no-op.
func (r *Registry) Delete(transmissionID string) {
	r.mu.Lock()
	delete(r.sessions, transmissionID)
	r.mu.Unlock()
}

// UpdateStats stores the latest observed viewer count and bitrate for the
// session, if it still exists.
func (r *Registry) UpdateStats(transmissionID string, viewers, bitrateKbps int) {
	r.mu.Lock()
	if session, ok := r.sessions[transmissionID]; ok {
		session.Viewers = viewers
		session.BitrateKbps = bitrateKbps
		r.sessions[transmissionID] = session
	}
	r.mu.Unlock()
}

// Advance moves the informational play cursor to the next video, wrapping at
// the end of the queue.
func (r *Registry) Advance(transmissionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[transmissionID]
	if !ok || len(session.Videos) == 0 {
		return Session{}, false
	}
	session.CurrentIndex = (session.CurrentIndex + 1) % len(session.Videos)
	r.sessions[transmissionID] = session
	return cloneSession(session), true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func cloneSession(session Session) Session {
	clone := session
	clone.Videos = append([]models.Video(nil), session.Videos...)
	clone.PushResults = append([]models.PlatformPushResult(nil), session.PushResults...)
	return clone
}
