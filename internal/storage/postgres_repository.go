package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"samhost/internal/models"
)

type postgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository opens a Postgres-backed repository and applies the
// schema.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckInterval > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckInterval
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &postgresRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (r *postgresRepository) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
	}
}

func (r *postgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

const transmissionColumns = `id, user_id, server_id, playlist_id, title, description, kind, application, stream_name, settings, status, error_detail, started_at, ended_at, created_at`

func scanTransmission(row pgx.Row) (models.Transmission, error) {
	var (
		tm       models.Transmission
		settings []byte
	)
	err := row.Scan(&tm.ID, &tm.UserID, &tm.ServerID, &tm.PlaylistID, &tm.Title, &tm.Description,
		&tm.Kind, &tm.Application, &tm.StreamName, &settings, &tm.Status, &tm.ErrorDetail,
		&tm.StartedAt, &tm.EndedAt, &tm.CreatedAt)
	if err != nil {
		return models.Transmission{}, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &tm.Settings); err != nil {
			return models.Transmission{}, fmt.Errorf("decode transmission settings: %w", err)
		}
	}
	return tm, nil
}

func (r *postgresRepository) CreateTransmission(ctx context.Context, params CreateTransmissionParams) (models.Transmission, error) {
	id, err := generateID()
	if err != nil {
		return models.Transmission{}, err
	}
	settings, err := json.Marshal(params.Settings)
	if err != nil {
		return models.Transmission{}, fmt.Errorf("encode transmission settings: %w", err)
	}
	now := r.now()
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
	_, err = r.pool.Exec(ctx,
		`INSERT INTO transmissions (id, user_id, server_id, playlist_id, title, description, kind, application, stream_name, settings, status, error_detail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, '', $12)`,
		tm.ID, tm.UserID, tm.ServerID, tm.PlaylistID, tm.Title, tm.Description, tm.Kind, tm.Application, tm.StreamName, settings, tm.Status, tm.CreatedAt)
	if err != nil {
		return models.Transmission{}, fmt.Errorf("insert transmission: %w", err)
	}
	return tm, nil
}

func (r *postgresRepository) GetTransmission(ctx context.Context, id string) (models.Transmission, bool, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transmissionColumns+` FROM transmissions WHERE id = $1`, id)
	tm, err := scanTransmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transmission{}, false, nil
	}
	if err != nil {
		return models.Transmission{}, false, fmt.Errorf("query transmission: %w", err)
	}
	return tm, true, nil
}

func (r *postgresRepository) ActiveTransmission(ctx context.Context, userID string) (models.Transmission, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transmissionColumns+` FROM transmissions
		 WHERE user_id = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC LIMIT 1`,
		userID, models.TransmissionPreparing, models.TransmissionActive)
	tm, err := scanTransmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transmission{}, false, nil
	}
	if err != nil {
		return models.Transmission{}, false, fmt.Errorf("query active transmission: %w", err)
	}
	return tm, true, nil
}

func (r *postgresRepository) UpdateTransmission(ctx context.Context, id string, update TransmissionUpdate) (models.Transmission, error) {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)
	args = append(args, id)
	next := 2
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.ErrorDetail != nil {
		add("error_detail", *update.ErrorDetail)
	}
	if update.StreamName != nil {
		add("stream_name", *update.StreamName)
	}
	if update.StartedAt != nil {
		add("started_at", *update.StartedAt)
	}
	if update.EndedAt != nil {
		add("ended_at", *update.EndedAt)
	}
	if len(sets) == 0 {
		tm, ok, err := r.GetTransmission(ctx, id)
		if err != nil {
			return models.Transmission{}, err
		}
		if !ok {
			return models.Transmission{}, fmt.Errorf("transmission %s: %w", id, ErrNotFound)
		}
		return tm, nil
	}

	query := `UPDATE transmissions SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + transmissionColumns
	tm, err := scanTransmission(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transmission{}, fmt.Errorf("transmission %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Transmission{}, fmt.Errorf("update transmission: %w", err)
	}
	return tm, nil
}

func (r *postgresRepository) ListTransmissions(ctx context.Context, userID string, limit, offset int) ([]models.Transmission, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+transmissionColumns+` FROM transmissions
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query transmissions: %w", err)
	}
	defer rows.Close()

	list := make([]models.Transmission, 0)
	for rows.Next() {
		tm, err := scanTransmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transmission: %w", err)
		}
		list = append(list, tm)
	}
	return list, rows.Err()
}

func (r *postgresRepository) SavePushResults(ctx context.Context, transmissionID string, results []models.PlatformPushResult) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin push results transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM push_results WHERE transmission_id = $1`, transmissionID); err != nil {
		return fmt.Errorf("clear push results: %w", err)
	}
	for i, result := range results {
		_, err := tx.Exec(ctx,
			`INSERT INTO push_results (transmission_id, position, platform, mapping_name, success, error)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			transmissionID, i, result.Platform, result.MappingName, result.Success, result.Error)
		if err != nil {
			return fmt.Errorf("insert push result: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit push results: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListPushResults(ctx context.Context, transmissionID string) ([]models.PlatformPushResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT platform, mapping_name, success, error FROM push_results
		 WHERE transmission_id = $1 ORDER BY position`, transmissionID)
	if err != nil {
		return nil, fmt.Errorf("query push results: %w", err)
	}
	defer rows.Close()

	results := make([]models.PlatformPushResult, 0)
	for rows.Next() {
		var result models.PlatformPushResult
		if err := rows.Scan(&result.Platform, &result.MappingName, &result.Success, &result.Error); err != nil {
			return nil, fmt.Errorf("scan push result: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (r *postgresRepository) ListUserPlatforms(ctx context.Context, userID string, ids []string) ([]models.UserPlatform, error) {
	query := `SELECT id, user_id, platform_id, platform_name, platform_code, platform_ingest, stream_key, ingest_url, active
		 FROM user_platforms WHERE user_id = $1 AND active`
	args := []any{userID}
	if len(ids) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, ids)
	}
	query += ` ORDER BY id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query user platforms: %w", err)
	}
	defer rows.Close()

	platforms := make([]models.UserPlatform, 0, len(ids))
	for rows.Next() {
		var up models.UserPlatform
		err := rows.Scan(&up.ID, &up.UserID, &up.Platform.ID, &up.Platform.Name, &up.Platform.Code,
			&up.Platform.IngestBaseURL, &up.StreamKey, &up.IngestURL, &up.Active)
		if err != nil {
			return nil, fmt.Errorf("scan user platform: %w", err)
		}
		platforms = append(platforms, up)
	}
	return platforms, rows.Err()
}

func (r *postgresRepository) PlaylistOwned(ctx context.Context, playlistID, userID string) (bool, error) {
	var owned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM playlists WHERE id = $1 AND user_id = $2)`,
		playlistID, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("query playlist ownership: %w", err)
	}
	return owned, nil
}

func (r *postgresRepository) FolderOwned(ctx context.Context, folderID, userID string) (bool, error) {
	var owned bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1 AND user_id = $2)`,
		folderID, userID).Scan(&owned)
	if err != nil {
		return false, fmt.Errorf("query folder ownership: %w", err)
	}
	return owned, nil
}

func (r *postgresRepository) PlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT v.id, v.folder_id, v.title, v.path, v.duration_seconds
		 FROM playlist_entries e JOIN videos v ON v.id = e.video_id
		 WHERE e.playlist_id = $1 ORDER BY e.position`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("query playlist videos: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func (r *postgresRepository) ListPlaylistEntries(ctx context.Context, playlistID string) ([]models.PlaylistEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, playlist_id, video_id, position, kind FROM playlist_entries
		 WHERE playlist_id = $1 ORDER BY position`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("query playlist entries: %w", err)
	}
	defer rows.Close()

	entries := make([]models.PlaylistEntry, 0)
	for rows.Next() {
		var entry models.PlaylistEntry
		if err := rows.Scan(&entry.ID, &entry.PlaylistID, &entry.VideoID, &entry.Position, &entry.Kind); err != nil {
			return nil, fmt.Errorf("scan playlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *postgresRepository) DeleteCommercialEntries(ctx context.Context, playlistID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM playlist_entries WHERE playlist_id = $1 AND kind = $2`,
		playlistID, models.EntryCommercial)
	if err != nil {
		return fmt.Errorf("delete commercial entries: %w", err)
	}
	return nil
}

func (r *postgresRepository) UpdateEntryPosition(ctx context.Context, entryID string, position int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE playlist_entries SET position = $2 WHERE id = $1`, entryID, position)
	if err != nil {
		return fmt.Errorf("update entry position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("playlist entry %s: %w", entryID, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) InsertPlaylistEntry(ctx context.Context, entry models.PlaylistEntry) (models.PlaylistEntry, error) {
	id, err := generateID()
	if err != nil {
		return models.PlaylistEntry{}, err
	}
	entry.ID = id
	_, err = r.pool.Exec(ctx,
		`INSERT INTO playlist_entries (id, playlist_id, video_id, position, kind)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.PlaylistID, entry.VideoID, entry.Position, entry.Kind)
	if err != nil {
		return models.PlaylistEntry{}, fmt.Errorf("insert playlist entry: %w", err)
	}
	return entry, nil
}

func (r *postgresRepository) ListFolderVideos(ctx context.Context, folderID string) ([]models.Video, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, folder_id, title, path, duration_seconds FROM videos
		 WHERE folder_id = $1 ORDER BY id`, folderID)
	if err != nil {
		return nil, fmt.Errorf("query folder videos: %w", err)
	}
	defer rows.Close()
	return scanVideos(rows)
}

func scanVideos(rows pgx.Rows) ([]models.Video, error) {
	videos := make([]models.Video, 0)
	for rows.Next() {
		var video models.Video
		if err := rows.Scan(&video.ID, &video.FolderID, &video.Title, &video.Path, &video.DurationSeconds); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	return videos, rows.Err()
}

const commercialConfigColumns = `id, user_id, playlist_id, folder_id, quantity, interval_videos, active, created_at, updated_at`

func scanCommercialConfig(row pgx.Row) (models.CommercialConfig, error) {
	var cfg models.CommercialConfig
	err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.PlaylistID, &cfg.FolderID, &cfg.Quantity,
		&cfg.Interval, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt)
	return cfg, err
}

func (r *postgresRepository) CreateCommercialConfig(ctx context.Context, cfg models.CommercialConfig) (models.CommercialConfig, error) {
	id, err := generateID()
	if err != nil {
		return models.CommercialConfig{}, err
	}
	now := r.now()
	cfg.ID = id
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	_, err = r.pool.Exec(ctx,
		`INSERT INTO commercial_configs (id, user_id, playlist_id, folder_id, quantity, interval_videos, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cfg.ID, cfg.UserID, cfg.PlaylistID, cfg.FolderID, cfg.Quantity, cfg.Interval, cfg.Active, cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.CommercialConfig{}, ErrConfigExists
		}
		return models.CommercialConfig{}, fmt.Errorf("insert commercial config: %w", err)
	}
	return cfg, nil
}

func isUniqueViolation(err error) bool {
	// 23505 is the Postgres unique_violation code.
	return err != nil && strings.Contains(err.Error(), "23505")
}

func (r *postgresRepository) GetCommercialConfig(ctx context.Context, id, userID string) (models.CommercialConfig, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+commercialConfigColumns+` FROM commercial_configs WHERE id = $1 AND user_id = $2`,
		id, userID)
	cfg, err := scanCommercialConfig(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CommercialConfig{}, false, nil
	}
	if err != nil {
		return models.CommercialConfig{}, false, fmt.Errorf("query commercial config: %w", err)
	}
	return cfg, true, nil
}

func (r *postgresRepository) UpdateCommercialConfig(ctx context.Context, id, userID string, update CommercialConfigUpdate) (models.CommercialConfig, error) {
	sets := []string{"updated_at = $3"}
	args := []any{id, userID, r.now()}
	next := 4
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}
	if update.FolderID != nil {
		add("folder_id", *update.FolderID)
	}
	if update.Quantity != nil {
		add("quantity", *update.Quantity)
	}
	if update.Interval != nil {
		add("interval_videos", *update.Interval)
	}
	if update.Active != nil {
		add("active", *update.Active)
	}

	query := `UPDATE commercial_configs SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND user_id = $2 RETURNING ` + commercialConfigColumns
	cfg, err := scanCommercialConfig(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CommercialConfig{}, fmt.Errorf("commercial config %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.CommercialConfig{}, fmt.Errorf("update commercial config: %w", err)
	}
	return cfg, nil
}

func (r *postgresRepository) DeleteCommercialConfig(ctx context.Context, id, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM commercial_configs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete commercial config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commercial config %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *postgresRepository) ListCommercialConfigs(ctx context.Context, userID string) ([]models.CommercialConfig, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+commercialConfigColumns+` FROM commercial_configs
		 WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query commercial configs: %w", err)
	}
	defer rows.Close()

	configs := make([]models.CommercialConfig, 0)
	for rows.Next() {
		cfg, err := scanCommercialConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commercial config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (r *postgresRepository) SaveAPIToken(ctx context.Context, record APITokenRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_tokens (token_id, user_id, secret, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (token_id) DO UPDATE SET user_id = EXCLUDED.user_id, secret = EXCLUDED.secret`,
		record.TokenID, record.UserID, record.Secret, createdAt)
	if err != nil {
		return fmt.Errorf("save api token: %w", err)
	}
	return nil
}

func (r *postgresRepository) LookupAPIToken(ctx context.Context, tokenID string) (APITokenRecord, bool, error) {
	var record APITokenRecord
	err := r.pool.QueryRow(ctx,
		`SELECT token_id, user_id, secret, created_at FROM api_tokens WHERE token_id = $1`,
		tokenID).Scan(&record.TokenID, &record.UserID, &record.Secret, &record.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APITokenRecord{}, false, nil
	}
	if err != nil {
		return APITokenRecord{}, false, fmt.Errorf("query api token: %w", err)
	}
	return record, true, nil
}
