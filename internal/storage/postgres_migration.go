package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS transmissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		server_id TEXT NOT NULL DEFAULT '',
		playlist_id TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		application TEXT NOT NULL,
		stream_name TEXT NOT NULL DEFAULT '',
		settings JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL,
		error_detail TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS transmissions_user_status_idx ON transmissions (user_id, status)`,
	`CREATE TABLE IF NOT EXISTS push_results (
		transmission_id TEXT NOT NULL REFERENCES transmissions (id) ON DELETE CASCADE,
		position INT NOT NULL,
		platform TEXT NOT NULL,
		mapping_name TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (transmission_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS user_platforms (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		platform_id TEXT NOT NULL,
		platform_name TEXT NOT NULL,
		platform_code TEXT NOT NULL,
		platform_ingest TEXT NOT NULL DEFAULT '',
		stream_key TEXT NOT NULL,
		ingest_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS user_platforms_user_idx ON user_platforms (user_id)`,
	`CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		folder_id TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT NOT NULL,
		duration_seconds INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS videos_folder_idx ON videos (folder_id)`,
	`CREATE TABLE IF NOT EXISTS playlist_entries (
		id TEXT PRIMARY KEY,
		playlist_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		position INT NOT NULL,
		kind TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS playlist_entries_playlist_idx ON playlist_entries (playlist_id, position)`,
	`CREATE TABLE IF NOT EXISTS commercial_configs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		playlist_id TEXT NOT NULL UNIQUE,
		folder_id TEXT NOT NULL,
		quantity INT NOT NULL,
		interval_videos INT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS api_tokens (
		token_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		secret TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables the repository expects. Statements are
// idempotent so the call is safe on every boot.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
