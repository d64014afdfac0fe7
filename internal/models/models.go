package models

import "time"

// TransmissionStatus tracks the lifecycle of a broadcast attempt.
type TransmissionStatus string

const (
	TransmissionPreparing TransmissionStatus = "preparing"
	TransmissionActive    TransmissionStatus = "active"
	TransmissionFinished  TransmissionStatus = "finished"
	TransmissionError     TransmissionStatus = "error"
)

// Terminal reports whether the status permits no further transitions.
func (s TransmissionStatus) Terminal() bool {
	return s == TransmissionFinished || s == TransmissionError
}

// TransmissionKind distinguishes playlist-driven broadcasts from manual ones.
type TransmissionKind string

const (
	TransmissionPlaylist TransmissionKind = "playlist"
	TransmissionManual   TransmissionKind = "manual"
)

// TransmissionSettings is the free-form configuration blob stored with a
// transmission record.
type TransmissionSettings struct {
	PlatformIDs []string `json:"platformIds"`
	AutoStart   bool     `json:"autoStart"`
}

// Transmission is the persisted record of one broadcast attempt by a user.
// Records are never deleted; they transition to a terminal status and remain
// available for the history view.
type Transmission struct {
	ID          string               `json:"id"`
	UserID      string               `json:"userId"`
	ServerID    string               `json:"serverId,omitempty"`
	PlaylistID  string               `json:"playlistId,omitempty"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	Kind        TransmissionKind     `json:"kind"`
	Application string               `json:"application"`
	StreamName  string               `json:"streamName,omitempty"`
	Settings    TransmissionSettings `json:"settings"`
	Status      TransmissionStatus   `json:"status"`
	ErrorDetail string               `json:"errorDetail,omitempty"`
	StartedAt   *time.Time           `json:"startedAt,omitempty"`
	EndedAt     *time.Time           `json:"endedAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// PlatformPushResult records the outcome of registering one push-publish
// mapping for a transmission. Immutable after creation.
type PlatformPushResult struct {
	Platform    string `json:"platform"`
	MappingName string `json:"mappingName,omitempty"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// Platform describes an external streaming destination (YouTube, Twitch, ...).
type Platform struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	IngestBaseURL string `json:"ingestBaseUrl"`
}

// UserPlatform is a user's stored push configuration for one platform.
type UserPlatform struct {
	ID        string   `json:"id"`
	UserID    string   `json:"userId"`
	Platform  Platform `json:"platform"`
	StreamKey string   `json:"streamKey"`
	IngestURL string   `json:"ingestUrl,omitempty"`
	Active    bool     `json:"active"`
}

// Ingest returns the RTMP URL pushes should target, preferring the user's
// override over the platform default.
func (p UserPlatform) Ingest() string {
	if p.IngestURL != "" {
		return p.IngestURL
	}
	return p.Platform.IngestBaseURL
}

// Video is a media asset stored in a user folder.
type Video struct {
	ID              string `json:"id"`
	FolderID        string `json:"folderId"`
	Title           string `json:"title"`
	Path            string `json:"path"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// PlaylistEntryKind marks how an entry joined the playlist.
type PlaylistEntryKind string

const (
	EntryVideo      PlaylistEntryKind = "video"
	EntryCommercial PlaylistEntryKind = "commercial"
)

// PlaylistEntry ties a video into a playlist at a position. Position is the
// zero-based final play order.
type PlaylistEntry struct {
	ID         string            `json:"id,omitempty"`
	PlaylistID string            `json:"playlistId"`
	VideoID    string            `json:"videoId"`
	Position   int               `json:"position"`
	Kind       PlaylistEntryKind `json:"kind"`
}

// Playlist is an ordered collection of videos owned by a user.
type Playlist struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Folder groups videos, including the commercial pools referenced by
// commercial configurations.
type Folder struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// CommercialConfig controls advertisement interleaving for one playlist.
// At most one configuration exists per playlist.
type CommercialConfig struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	PlaylistID string    `json:"playlistId"`
	FolderID   string    `json:"folderId"`
	Quantity   int       `json:"quantity"`
	Interval   int       `json:"interval"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
