// Package storage persists transmissions, push results, platform
// configurations, playlists, and commercial configurations. Two drivers are
// provided: a mutex-guarded JSON/memory store and a Postgres store.
package storage

import (
	"context"
	"errors"
	"time"

	"samhost/internal/models"
)

// ErrNotFound is returned when a record does not exist or is not visible to
// the requesting user.
var ErrNotFound = errors.New("record not found")

// ErrConfigExists is returned when a second commercial configuration is
// created for the same playlist.
var ErrConfigExists = errors.New("commercial configuration already exists for playlist")

// CreateTransmissionParams captures the attributes set when a start request
// is accepted.
type CreateTransmissionParams struct {
	UserID      string
	ServerID    string
	PlaylistID  string
	Title       string
	Description string
	Kind        models.TransmissionKind
	Application string
	StreamName  string
	Settings    models.TransmissionSettings
}

// TransmissionUpdate describes the mutable fields of a transmission record.
// Nil fields are left untouched.
type TransmissionUpdate struct {
	Status      *models.TransmissionStatus
	ErrorDetail *string
	StreamName  *string
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// CommercialConfigUpdate describes the mutable fields of a commercial
// configuration.
type CommercialConfigUpdate struct {
	FolderID *string
	Quantity *int
	Interval *int
	Active   *bool
}

// APITokenRecord is a stored API credential. Secret holds the pbkdf2
// encoding, never the token itself.
type APITokenRecord struct {
	TokenID   string    `json:"tokenId"`
	UserID    string    `json:"userId"`
	Secret    string    `json:"secret"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository exposes the datastore operations required by the lifecycle
// manager, the commercial applier, and the API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateTransmission(ctx context.Context, params CreateTransmissionParams) (models.Transmission, error)
	GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error)
	// ActiveTransmission returns the user's transmission in preparing or
	// active state, if any. At most one such record exists per user.
	ActiveTransmission(ctx context.Context, userID string) (models.Transmission, bool, error)
	UpdateTransmission(ctx context.Context, id string, update TransmissionUpdate) (models.Transmission, error)
	ListTransmissions(ctx context.Context, userID string, limit, offset int) ([]models.Transmission, error)

	SavePushResults(ctx context.Context, transmissionID string, results []models.PlatformPushResult) error
	ListPushResults(ctx context.Context, transmissionID string) ([]models.PlatformPushResult, error)

	// ListUserPlatforms resolves the user's active push configurations for
	// the given configuration IDs. A nil or empty ids slice returns all of
	// the user's active configurations.
	ListUserPlatforms(ctx context.Context, userID string, ids []string) ([]models.UserPlatform, error)

	PlaylistOwned(ctx context.Context, playlistID, userID string) (bool, error)
	FolderOwned(ctx context.Context, folderID, userID string) (bool, error)
	// PlaylistVideos returns the playlist flattened to videos ordered by
	// entry position.
	PlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error)
	ListPlaylistEntries(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error)
	DeleteCommercialEntries(ctx context.Context, playlistID string) error
	UpdateEntryPosition(ctx context.Context, entryID string, position int) error
	InsertPlaylistEntry(ctx context.Context, entry models.PlaylistEntry) (models.PlaylistEntry, error)
	ListFolderVideos(ctx context.Context, folderID string) ([]models.Video, error)

	CreateCommercialConfig(ctx context.Context, cfg models.CommercialConfig) (models.CommercialConfig, error)
	GetCommercialConfig(ctx context.Context, id, userID string) (models.CommercialConfig, bool, error)
	UpdateCommercialConfig(ctx context.Context, id, userID string, update CommercialConfigUpdate) (models.CommercialConfig, error)
	DeleteCommercialConfig(ctx context.Context, id, userID string) error
	ListCommercialConfigs(ctx context.Context, userID string) ([]models.CommercialConfig, error)

	SaveAPIToken(ctx context.Context, record APITokenRecord) error
	LookupAPIToken(ctx context.Context, tokenID string) (APITokenRecord, bool, error)
}

var _ Repository = (*Storage)(nil)
var _ Repository = (*postgresRepository)(nil)
