package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"samhost/internal/models"
)

type dataset struct {
	Transmissions     map[string]models.Transmission          `json:"transmissions"`
	PushResults       map[string][]models.PlatformPushResult  `json:"pushResults"`
	UserPlatforms     map[string]models.UserPlatform          `json:"userPlatforms"`
	Playlists         map[string]models.Playlist              `json:"playlists"`
	Folders           map[string]models.Folder                `json:"folders"`
	Videos            map[string]models.Video                 `json:"videos"`
	PlaylistEntries   map[string]models.PlaylistEntry         `json:"playlistEntries"`
	CommercialConfigs map[string]models.CommercialConfig      `json:"commercialConfigs"`
	APITokens         map[string]APITokenRecord               `json:"apiTokens"`
}

func newDataset() dataset {
	return dataset{
		Transmissions:     make(map[string]models.Transmission),
		PushResults:       make(map[string][]models.PlatformPushResult),
		UserPlatforms:     make(map[string]models.UserPlatform),
		Playlists:         make(map[string]models.Playlist),
		Folders:           make(map[string]models.Folder),
		Videos:            make(map[string]models.Video),
		PlaylistEntries:   make(map[string]models.PlaylistEntry),
		CommercialConfigs: make(map[string]models.CommercialConfig),
		APITokens:         make(map[string]APITokenRecord),
	}
}

// Storage is the JSON-file-backed repository driver. An empty path keeps the
// dataset purely in memory, which tests and development setups rely on.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	now      func() time.Time
}

// StorageOption customizes a Storage instance.
type StorageOption func(*Storage)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) StorageOption {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStorage opens (or initializes) the JSON datastore at path. An empty
// path disables persistence.
func NewStorage(path string, opts ...StorageOption) (*Storage, error) {
	s := &Storage{filePath: path, data: newDataset(), now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Storage) load() error {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read datastore: %w", err)
	}
	var data dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("decode datastore: %w", err)
	}
	merged := newDataset()
	if data.Transmissions != nil {
		merged.Transmissions = data.Transmissions
	}
	if data.PushResults != nil {
		merged.PushResults = data.PushResults
	}
	if data.UserPlatforms != nil {
		merged.UserPlatforms = data.UserPlatforms
	}
	if data.Playlists != nil {
		merged.Playlists = data.Playlists
	}
	if data.Folders != nil {
		merged.Folders = data.Folders
	}
	if data.Videos != nil {
		merged.Videos = data.Videos
	}
	if data.PlaylistEntries != nil {
		merged.PlaylistEntries = data.PlaylistEntries
	}
	if data.CommercialConfigs != nil {
		merged.CommercialConfigs = data.CommercialConfigs
	}
	if data.APITokens != nil {
		merged.APITokens = data.APITokens
	}
	s.data = merged
	return nil
}

// persist writes the dataset atomically. Callers must hold the write lock.
func (s *Storage) persist() error {
	if s.filePath == "" {
		return nil
	}
	encoded, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode datastore: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create datastore directory: %w", err)
	}
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("write datastore: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replace datastore: %w", err)
	}
	return nil
}

// Ping reports readiness. The memory driver is always ready.
func (s *Storage) Ping(ctx context.Context) error {
	return ctx.Err()
}

// NormalizeTitle trims and NFC-normalizes user-supplied titles before they
// are persisted or compared.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

func (s *Storage) CreateTransmission(ctx context.Context, params CreateTransmissionParams) (models.Transmission, error) {
	id, err := generateID()
	if err != nil {
		return models.Transmission{}, err
	}
	now := s.now()
	tm := models.Transmission{
		ID:          id,
		UserID:      params.UserID,
		ServerID:    params.ServerID,
		PlaylistID:  params.PlaylistID,
		Title:       NormalizeTitle(params.Title),
		Description: strings.TrimSpace(params.Description),
		Kind:        params.Kind,
		Application: params.Application,
		StreamName:  params.StreamName,
		Settings:    params.Settings,
		Status:      models.TransmissionPreparing,
		CreatedAt:   now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Transmissions[id] = tm
	if err := s.persist(); err != nil {
		delete(s.data.Transmissions, id)
		return models.Transmission{}, err
	}
	return tm, nil
}

func (s *Storage) GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tm, ok := s.data.Transmissions[id]
	return tm, ok, nil
}

func (s *Storage) ActiveTransmission(ctx context.Context, userID string) (models.Transmission, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tm := range s.data.Transmissions {
		if tm.UserID != userID {
			continue
		}
		if tm.Status == models.TransmissionPreparing || tm.Status == models.TransmissionActive {
			return tm, true, nil
		}
	}
	return models.Transmission{}, false, nil
}

func (s *Storage) UpdateTransmission(ctx context.Context, id string, update TransmissionUpdate) (models.Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.data.Transmissions[id]
	if !ok {
		return models.Transmission{}, fmt.Errorf("transmission %s: %w", id, ErrNotFound)
	}
	original := tm
	if update.Status != nil {
		tm.Status = *update.Status
	}
	if update.ErrorDetail != nil {
		tm.ErrorDetail = *update.ErrorDetail
	}
	if update.StreamName != nil {
		tm.StreamName = *update.StreamName
	}
	if update.StartedAt != nil {
		tm.StartedAt = update.StartedAt
	}
	if update.EndedAt != nil {
		tm.EndedAt = update.EndedAt
	}
	s.data.Transmissions[id] = tm
	if err := s.persist(); err != nil {
		s.data.Transmissions[id] = original
		return models.Transmission{}, err
	}
	return tm, nil
}

func (s *Storage) ListTransmissions(ctx context.Context, userID string, limit, offset int) ([]models.Transmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]models.Transmission, 0)
	for _, tm := range s.data.Transmissions {
		if tm.UserID == userID {
			list = append(list, tm)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	if offset >= len(list) {
		return []models.Transmission{}, nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (s *Storage) SavePushResults(ctx context.Context, transmissionID string, results []models.PlatformPushResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.Transmissions[transmissionID]; !ok {
		return fmt.Errorf("transmission %s: %w", transmissionID, ErrNotFound)
	}
	s.data.PushResults[transmissionID] = append([]models.PlatformPushResult(nil), results...)
	return s.persist()
}

func (s *Storage) ListPushResults(ctx context.Context, transmissionID string) ([]models.PlatformPushResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.PlatformPushResult(nil), s.data.PushResults[transmissionID]...), nil
}

func (s *Storage) ListUserPlatforms(ctx context.Context, userID string, ids []string) ([]models.UserPlatform, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	platforms := make([]models.UserPlatform, 0, len(ids))
	for _, up := range s.data.UserPlatforms {
		if up.UserID != userID || !up.Active {
			continue
		}
		if _, ok := wanted[up.ID]; ok || len(wanted) == 0 {
			platforms = append(platforms, up)
		}
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i].ID < platforms[j].ID })
	return platforms, nil
}

func (s *Storage) PlaylistOwned(ctx context.Context, playlistID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	playlist, ok := s.data.Playlists[playlistID]
	return ok && playlist.UserID == userID, nil
}

func (s *Storage) FolderOwned(ctx context.Context, folderID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	folder, ok := s.data.Folders[folderID]
	return ok && folder.UserID == userID, nil
}

func (s *Storage) PlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	entries, err := s.ListPlaylistEntries(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	videos := make([]models.Video, 0, len(entries))
	for _, entry := range entries {
		if video, ok := s.data.Videos[entry.VideoID]; ok {
			videos = append(videos, video)
		}
	}
	return videos, nil
}

func (s *Storage) ListPlaylistEntries(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]models.PlaylistEntry, 0)
	for _, entry := range s.data.PlaylistEntries {
		if entry.PlaylistID == playlistID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

func (s *Storage) DeleteCommercialEntries(ctx context.Context, playlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.data.PlaylistEntries {
		if entry.PlaylistID == playlistID && entry.Kind == models.EntryCommercial {
			delete(s.data.PlaylistEntries, id)
		}
	}
	return s.persist()
}

func (s *Storage) UpdateEntryPosition(ctx context.Context, entryID string, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data.PlaylistEntries[entryID]
	if !ok {
		return fmt.Errorf("playlist entry %s: %w", entryID, ErrNotFound)
	}
	entry.Position = position
	s.data.PlaylistEntries[entryID] = entry
	return s.persist()
}

func (s *Storage) InsertPlaylistEntry(ctx context.Context, entry models.PlaylistEntry) (models.PlaylistEntry, error) {
	id, err := generateID()
	if err != nil {
		return models.PlaylistEntry{}, err
	}
	entry.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.PlaylistEntries[id] = entry
	if err := s.persist(); err != nil {
		delete(s.data.PlaylistEntries, id)
		return models.PlaylistEntry{}, err
	}
	return entry, nil
}

func (s *Storage) ListFolderVideos(ctx context.Context, folderID string) ([]models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	videos := make([]models.Video, 0)
	for _, video := range s.data.Videos {
		if video.FolderID == folderID {
			videos = append(videos, video)
		}
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	return videos, nil
}

func (s *Storage) CreateCommercialConfig(ctx context.Context, cfg models.CommercialConfig) (models.CommercialConfig, error) {
	id, err := generateID()
	if err != nil {
		return models.CommercialConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.CommercialConfigs {
		if existing.PlaylistID == cfg.PlaylistID {
			return models.CommercialConfig{}, ErrConfigExists
		}
	}
	now := s.now()
	cfg.ID = id
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	s.data.CommercialConfigs[id] = cfg
	if err := s.persist(); err != nil {
		delete(s.data.CommercialConfigs, id)
		return models.CommercialConfig{}, err
	}
	return cfg, nil
}

func (s *Storage) GetCommercialConfig(ctx context.Context, id, userID string) (models.CommercialConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.data.CommercialConfigs[id]
	if !ok || cfg.UserID != userID {
		return models.CommercialConfig{}, false, nil
	}
	return cfg, true, nil
}

func (s *Storage) UpdateCommercialConfig(ctx context.Context, id, userID string, update CommercialConfigUpdate) (models.CommercialConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.data.CommercialConfigs[id]
	if !ok || cfg.UserID != userID {
		return models.CommercialConfig{}, fmt.Errorf("commercial config %s: %w", id, ErrNotFound)
	}
	original := cfg
	if update.FolderID != nil {
		cfg.FolderID = *update.FolderID
	}
	if update.Quantity != nil {
		cfg.Quantity = *update.Quantity
	}
	if update.Interval != nil {
		cfg.Interval = *update.Interval
	}
	if update.Active != nil {
		cfg.Active = *update.Active
	}
	cfg.UpdatedAt = s.now()
	s.data.CommercialConfigs[id] = cfg
	if err := s.persist(); err != nil {
		s.data.CommercialConfigs[id] = original
		return models.CommercialConfig{}, err
	}
	return cfg, nil
}

func (s *Storage) DeleteCommercialConfig(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.data.CommercialConfigs[id]
	if !ok || cfg.UserID != userID {
		return fmt.Errorf("commercial config %s: %w", id, ErrNotFound)
	}
	delete(s.data.CommercialConfigs, id)
	if err := s.persist(); err != nil {
		s.data.CommercialConfigs[id] = cfg
		return err
	}
	return nil
}

func (s *Storage) ListCommercialConfigs(ctx context.Context, userID string) ([]models.CommercialConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	configs := make([]models.CommercialConfig, 0)
	for _, cfg := range s.data.CommercialConfigs {
		if cfg.UserID == userID {
			configs = append(configs, cfg)
		}
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].CreatedAt.After(configs[j].CreatedAt)
	})
	return configs, nil
}

func (s *Storage) SaveAPIToken(ctx context.Context, record APITokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	s.data.APITokens[record.TokenID] = record
	return s.persist()
}

func (s *Storage) LookupAPIToken(ctx context.Context, tokenID string) (APITokenRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.APITokens[tokenID]
	return record, ok, nil
}

// PutUserPlatform stores a user's platform push configuration. The dashboard
// CRUD surface owns these rows; this setter exists for seeding and the JSON
// driver's import path.
func (s *Storage) PutUserPlatform(up models.UserPlatform) (models.UserPlatform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if up.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.UserPlatform{}, err
		}
		up.ID = id
	}
	s.data.UserPlatforms[up.ID] = up
	return up, s.persist()
}

// PutPlaylist stores a playlist row.
func (s *Storage) PutPlaylist(playlist models.Playlist) (models.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if playlist.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Playlist{}, err
		}
		playlist.ID = id
	}
	s.data.Playlists[playlist.ID] = playlist
	return playlist, s.persist()
}

// PutFolder stores a folder row.
func (s *Storage) PutFolder(folder models.Folder) (models.Folder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if folder.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Folder{}, err
		}
		folder.ID = id
	}
	s.data.Folders[folder.ID] = folder
	return folder, s.persist()
}

// PutVideo stores a video row.
func (s *Storage) PutVideo(video models.Video) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if video.ID == "" {
		id, err := generateID()
		if err != nil {
			return models.Video{}, err
		}
		video.ID = id
	}
	s.data.Videos[video.ID] = video
	return video, s.persist()
}
