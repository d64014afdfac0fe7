package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"samhost/internal/models"
)

// tickingClock hands out strictly increasing timestamps so ordering
// assertions are deterministic.
func tickingClock() func() time.Time {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	return func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
}

func newMemoryStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage("", WithClock(tickingClock()))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	return store
}

func TestCreateAndGetTransmission(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{
		UserID:      "user-1",
		Title:       "  Evening Show  ",
		Description: " first run ",
		Kind:        models.TransmissionPlaylist,
		Application: "live",
		Settings:    models.TransmissionSettings{PlatformIDs: []string{"up-1"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tm.ID == "" {
		t.Fatal("created transmission has no ID")
	}
	if tm.Status != models.TransmissionPreparing {
		t.Fatalf("new transmission status %q", tm.Status)
	}
	if tm.Title != "Evening Show" {
		t.Fatalf("title not normalized: %q", tm.Title)
	}
	if tm.Description != "first run" {
		t.Fatalf("description not trimmed: %q", tm.Description)
	}

	got, ok, err := store.GetTransmission(ctx, tm.ID)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("unexpected record %+v", got)
	}

	if _, ok, _ := store.GetTransmission(ctx, "missing"); ok {
		t.Fatal("missing transmission reported as found")
	}
}

func TestActiveTransmissionOnlyLiveStatuses(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-1", Title: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	active, ok, err := store.ActiveTransmission(ctx, "user-1")
	if err != nil || !ok {
		t.Fatalf("preparing record should count as active: ok=%v err=%v", ok, err)
	}
	if active.ID != tm.ID {
		t.Fatalf("wrong record %+v", active)
	}
	if _, ok, _ := store.ActiveTransmission(ctx, "someone-else"); ok {
		t.Fatal("active lookup leaked across users")
	}

	status := models.TransmissionFinished
	if _, err := store.UpdateTransmission(ctx, tm.ID, TransmissionUpdate{Status: &status}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok, _ := store.ActiveTransmission(ctx, "user-1"); ok {
		t.Fatal("finished record reported as active")
	}
}

func TestUpdateTransmissionPartial(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-1", Title: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := models.TransmissionActive
	streamName := "stream_x_1"
	startedAt := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	updated, err := store.UpdateTransmission(ctx, tm.ID, TransmissionUpdate{
		Status:     &status,
		StreamName: &streamName,
		StartedAt:  &startedAt,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != models.TransmissionActive || updated.StreamName != "stream_x_1" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.StartedAt == nil || !updated.StartedAt.Equal(startedAt) {
		t.Fatalf("started at not applied: %+v", updated.StartedAt)
	}
	if updated.Title != "a" {
		t.Fatalf("untouched field changed: %+v", updated)
	}

	if _, err := store.UpdateTransmission(ctx, "missing", TransmissionUpdate{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransmissionsNewestFirstWithPaging(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-1", Title: title})
		if err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
		ids = append(ids, tm.ID)
	}
	if _, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-2", Title: "other"}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := store.ListTransmissions(ctx, "user-1", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Fatalf("record %d out of order: got %s, want %s", i, list[i].ID, want)
		}
	}

	page, err := store.ListTransmissions(ctx, "user-1", 1, 1)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("unexpected page %+v", page)
	}

	empty, err := store.ListTransmissions(ctx, "user-1", 10, 10)
	if err != nil {
		t.Fatalf("page past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty page, got %d records", len(empty))
	}
}

func TestPushResults(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	if err := store.SavePushResults(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-1", Title: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	results := []models.PlatformPushResult{
		{Platform: "youtube", MappingName: "s_youtube", Success: true},
		{Platform: "twitch", MappingName: "s_twitch", Success: false, Error: "refused"},
	}
	if err := store.SavePushResults(ctx, tm.ID, results); err != nil {
		t.Fatalf("save: %v", err)
	}

	listed, err := store.ListPushResults(ctx, tm.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 || listed[0].Platform != "youtube" || listed[1].Error != "refused" {
		t.Fatalf("unexpected results %+v", listed)
	}

	listed[0].Success = false
	again, _ := store.ListPushResults(ctx, tm.ID)
	if !again[0].Success {
		t.Fatal("caller mutation leaked into the store")
	}
}

func TestListUserPlatforms(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	youtube, err := store.PutUserPlatform(models.UserPlatform{UserID: "user-1", Active: true, Platform: models.Platform{Code: "youtube"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	twitch, err := store.PutUserPlatform(models.UserPlatform{UserID: "user-1", Active: true, Platform: models.Platform{Code: "twitch"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	disabled, err := store.PutUserPlatform(models.UserPlatform{UserID: "user-1", Active: false, Platform: models.Platform{Code: "facebook"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.PutUserPlatform(models.UserPlatform{UserID: "user-2", Active: true, Platform: models.Platform{Code: "youtube"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	all, err := store.ListUserPlatforms(ctx, "user-1", nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected the 2 active configs, got %d", len(all))
	}

	picked, err := store.ListUserPlatforms(ctx, "user-1", []string{twitch.ID, youtube.ID})
	if err != nil {
		t.Fatalf("list picked: %v", err)
	}
	if len(picked) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(picked))
	}

	inactive, err := store.ListUserPlatforms(ctx, "user-1", []string{disabled.ID})
	if err != nil {
		t.Fatalf("list inactive: %v", err)
	}
	if len(inactive) != 0 {
		t.Fatal("inactive config returned even when requested by ID")
	}
}

func TestPlaylistEntriesAndVideos(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	videoA, err := store.PutVideo(models.Video{FolderID: "f1", Title: "A"})
	if err != nil {
		t.Fatalf("put video: %v", err)
	}
	videoB, err := store.PutVideo(models.Video{FolderID: "f1", Title: "B"})
	if err != nil {
		t.Fatalf("put video: %v", err)
	}

	second, err := store.InsertPlaylistEntry(ctx, models.PlaylistEntry{PlaylistID: "pl-1", VideoID: videoB.ID, Position: 1, Kind: models.EntryCommercial})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := store.InsertPlaylistEntry(ctx, models.PlaylistEntry{PlaylistID: "pl-1", VideoID: videoA.ID, Position: 0, Kind: models.EntryVideo}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	entries, err := store.ListPlaylistEntries(ctx, "pl-1")
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 || entries[0].VideoID != videoA.ID || entries[1].VideoID != videoB.ID {
		t.Fatalf("entries not sorted by position: %+v", entries)
	}

	videos, err := store.PlaylistVideos(ctx, "pl-1")
	if err != nil {
		t.Fatalf("playlist videos: %v", err)
	}
	if len(videos) != 2 || videos[0].Title != "A" || videos[1].Title != "B" {
		t.Fatalf("unexpected videos %+v", videos)
	}

	if err := store.DeleteCommercialEntries(ctx, "pl-1"); err != nil {
		t.Fatalf("delete commercials: %v", err)
	}
	entries, _ = store.ListPlaylistEntries(ctx, "pl-1")
	if len(entries) != 1 || entries[0].Kind != models.EntryVideo {
		t.Fatalf("commercial entry survived: %+v", entries)
	}

	if err := store.UpdateEntryPosition(ctx, second.ID, 5); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a deleted entry, got %v", err)
	}
}

func TestOwnershipChecks(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	playlist, err := store.PutPlaylist(models.Playlist{UserID: "user-1", Name: "main"})
	if err != nil {
		t.Fatalf("put playlist: %v", err)
	}
	folder, err := store.PutFolder(models.Folder{UserID: "user-1", Name: "ads"})
	if err != nil {
		t.Fatalf("put folder: %v", err)
	}

	if owned, _ := store.PlaylistOwned(ctx, playlist.ID, "user-1"); !owned {
		t.Fatal("owner denied")
	}
	if owned, _ := store.PlaylistOwned(ctx, playlist.ID, "user-2"); owned {
		t.Fatal("stranger granted playlist access")
	}
	if owned, _ := store.FolderOwned(ctx, folder.ID, "user-2"); owned {
		t.Fatal("stranger granted folder access")
	}
	if owned, _ := store.FolderOwned(ctx, "missing", "user-1"); owned {
		t.Fatal("missing folder reported as owned")
	}
}

func TestCommercialConfigUniquePerPlaylist(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	first, err := store.CreateCommercialConfig(ctx, models.CommercialConfig{
		UserID: "user-1", PlaylistID: "pl-1", FolderID: "f1", Quantity: 1, Interval: 3, Active: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatalf("created config incomplete: %+v", first)
	}

	if _, err := store.CreateCommercialConfig(ctx, models.CommercialConfig{
		UserID: "user-1", PlaylistID: "pl-1", FolderID: "f2", Quantity: 2, Interval: 2,
	}); !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}
}

func TestCommercialConfigLifecycle(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	cfg, err := store.CreateCommercialConfig(ctx, models.CommercialConfig{
		UserID: "user-1", PlaylistID: "pl-1", FolderID: "f1", Quantity: 1, Interval: 3, Active: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, ok, _ := store.GetCommercialConfig(ctx, cfg.ID, "user-2"); ok {
		t.Fatal("config visible to another user")
	}

	quantity := 2
	active := false
	updated, err := store.UpdateCommercialConfig(ctx, cfg.ID, "user-1", CommercialConfigUpdate{Quantity: &quantity, Active: &active})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 2 || updated.Active {
		t.Fatalf("update not applied: %+v", updated)
	}
	if updated.Interval != 3 {
		t.Fatalf("untouched field changed: %+v", updated)
	}
	if !updated.UpdatedAt.After(cfg.UpdatedAt) {
		t.Fatalf("updatedAt not advanced: %v -> %v", cfg.UpdatedAt, updated.UpdatedAt)
	}

	if _, err := store.UpdateCommercialConfig(ctx, cfg.ID, "user-2", CommercialConfigUpdate{Quantity: &quantity}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign update, got %v", err)
	}

	if err := store.DeleteCommercialConfig(ctx, cfg.ID, "user-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteCommercialConfig(ctx, cfg.ID, "user-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	configs, err := store.ListCommercialConfigs(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(configs) != 0 {
		t.Fatalf("expected no configs, got %d", len(configs))
	}
}

func TestAPITokenRoundTrip(t *testing.T) {
	store := newMemoryStorage(t)
	ctx := context.Background()

	if err := store.SaveAPIToken(ctx, APITokenRecord{TokenID: "tok1", UserID: "user-1", Secret: "pbkdf2$sha256$1$a$b"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	record, ok, err := store.LookupAPIToken(ctx, "tok1")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if record.UserID != "user-1" || record.CreatedAt.IsZero() {
		t.Fatalf("unexpected record %+v", record)
	}

	if _, ok, _ := store.LookupAPIToken(ctx, "unknown"); ok {
		t.Fatal("unknown token reported as found")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "samhost.json")
	ctx := context.Background()

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	tm, err := store.CreateTransmission(ctx, CreateTransmissionParams{UserID: "user-1", Title: "persisted"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.PutUserPlatform(models.UserPlatform{UserID: "user-1", Active: true, Platform: models.Platform{Code: "youtube"}}); err != nil {
		t.Fatalf("put platform: %v", err)
	}
	if err := store.SaveAPIToken(ctx, APITokenRecord{TokenID: "tok1", UserID: "user-1", Secret: "enc"}); err != nil {
		t.Fatalf("save token: %v", err)
	}

	reopened, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := reopened.GetTransmission(ctx, tm.ID)
	if err != nil || !ok {
		t.Fatalf("reopened get: ok=%v err=%v", ok, err)
	}
	if got.Title != "persisted" {
		t.Fatalf("unexpected record %+v", got)
	}
	platforms, err := reopened.ListUserPlatforms(ctx, "user-1", nil)
	if err != nil || len(platforms) != 1 {
		t.Fatalf("reopened platforms: %v (%d)", err, len(platforms))
	}
	if _, ok, _ := reopened.LookupAPIToken(ctx, "tok1"); !ok {
		t.Fatal("token lost across reopen")
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("  Café Live  "); got != "Café Live" {
		t.Fatalf("unexpected normalization %q", got)
	}
	if got := NormalizeTitle("plain"); got != "plain" {
		t.Fatalf("unexpected normalization %q", got)
	}
}
