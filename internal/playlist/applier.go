package playlist

import (
	"context"
	"fmt"
	"log/slog"

	"samhost/internal/models"
)

// Store is the persistence surface the applier needs. Implemented by
// storage.Repository.
type Store interface {
	ListPlaylistEntries(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error)
	DeleteCommercialEntries(ctx context.Context, playlistID string) error
	UpdateEntryPosition(ctx context.Context, entryID string, position int) error
	InsertPlaylistEntry(ctx context.Context, entry models.PlaylistEntry) (models.PlaylistEntry, error)
	ListFolderVideos(ctx context.Context, folderID string) ([]models.Video, error)
}

// Applier re-runs the interleaver against the live playlist ordering whenever
// a commercial configuration is created, changed, or removed.
type Applier struct {
	store  Store
	logger *slog.Logger
}

// NewApplier wires an applier against the given store.
func NewApplier(store Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{store: store, logger: logger}
}

// Apply strips previously injected commercials and recomputes the playlist
// ordering from the configuration. It returns the resulting ordered entries.
func (a *Applier) Apply(ctx context.Context, cfg models.CommercialConfig) ([]models.PlaylistEntry, error) {
	if err := a.store.DeleteCommercialEntries(ctx, cfg.PlaylistID); err != nil {
		return nil, fmt.Errorf("strip commercials: %w", err)
	}

	main, err := a.store.ListPlaylistEntries(ctx, cfg.PlaylistID)
	if err != nil {
		return nil, fmt.Errorf("load playlist entries: %w", err)
	}
	pool, err := a.store.ListFolderVideos(ctx, cfg.FolderID)
	if err != nil {
		return nil, fmt.Errorf("load commercial pool: %w", err)
	}

	ordered := Interleave(main, pool, cfg.Quantity, cfg.Interval)
	if len(pool) == 0 || len(main) == 0 {
		// The strip above already ran, so close any position gaps it left
		// behind before bailing out.
		for i := range ordered {
			ordered[i].Position = i
		}
		if err := a.persist(ctx, ordered); err != nil {
			return nil, err
		}
		a.logger.Info("commercial interleave skipped",
			"playlist_id", cfg.PlaylistID, "main_videos", len(main), "pool_size", len(pool))
		return ordered, nil
	}

	if err := a.persist(ctx, ordered); err != nil {
		return nil, err
	}
	a.logger.Info("commercials applied",
		"playlist_id", cfg.PlaylistID, "entries", len(ordered), "quantity", cfg.Quantity, "interval", cfg.Interval)
	return ordered, nil
}

// Remove strips every injected commercial from the playlist and renumbers the
// remaining entries. Invoked when a configuration is deleted.
func (a *Applier) Remove(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	if err := a.store.DeleteCommercialEntries(ctx, playlistID); err != nil {
		return nil, fmt.Errorf("strip commercials: %w", err)
	}
	main, err := a.store.ListPlaylistEntries(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("load playlist entries: %w", err)
	}
	for i := range main {
		main[i].Position = i
	}
	if err := a.persist(ctx, main); err != nil {
		return nil, err
	}
	return main, nil
}

func (a *Applier) persist(ctx context.Context, entries []models.PlaylistEntry) error {
	for i, entry := range entries {
		if entry.ID != "" {
			if err := a.store.UpdateEntryPosition(ctx, entry.ID, entry.Position); err != nil {
				return fmt.Errorf("update entry %s: %w", entry.ID, err)
			}
			continue
		}
		inserted, err := a.store.InsertPlaylistEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("insert commercial entry: %w", err)
		}
		entries[i] = inserted
	}
	return nil
}
