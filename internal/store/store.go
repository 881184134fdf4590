package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidrelay/vidrelay/internal/model"
)

// Verify at compile time that Store implements all interfaces.
var (
	_ VideoReader   = (*Store)(nil)
	_ VideoWriter   = (*Store)(nil)
	_ AttemptReader = (*Store)(nil)
	_ AttemptWriter = (*Store)(nil)
)

// Store provides data access to the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and initialises the schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (s *Store) migrate() error {
	// Ensure the schema_version table exists.
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		// Fresh database: initialize to version 0.
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// migrations is an ordered list of migration functions.
	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		s.migrateV1, // v0 → v1: initial schema
		s.migrateV2, // v1 → v2: add playlist_item_id for source cleanup
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

// migrateV1 creates the initial schema (v0 → v1).
func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id                   TEXT PRIMARY KEY,
		title                TEXT,
		duration_seconds     INTEGER NOT NULL DEFAULT 0,
		stage                TEXT NOT NULL,
		media_path           TEXT,
		subtitle_path        TEXT,
		content_path         TEXT,
		publish_confirmation TEXT,
		error_info           TEXT,
		terminal             INTEGER NOT NULL DEFAULT 0,
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_videos_stage ON videos(stage, created_at);
	CREATE INDEX IF NOT EXISTS idx_videos_active ON videos(terminal, created_at);

	CREATE TABLE IF NOT EXISTS attempts (
		id             TEXT PRIMARY KEY,
		video_id       TEXT NOT NULL REFERENCES videos(id),
		step           TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		started_at     TEXT NOT NULL,
		ended_at       TEXT,
		outcome        TEXT NOT NULL DEFAULT '',
		error_detail   TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_unique ON attempts(video_id, step, attempt_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 adds the playlist_item_id column (v1 → v2).
func (s *Store) migrateV2() error {
	_, err := s.db.Exec(`ALTER TABLE videos ADD COLUMN playlist_item_id TEXT NOT NULL DEFAULT ''`)
	return err
}

// ---------------------------------------------------------------------------
// Videos
// ---------------------------------------------------------------------------

const videoColumns = `id, title, playlist_item_id, duration_seconds, stage, media_path, subtitle_path, content_path, publish_confirmation, error_info, terminal, created_at, updated_at`

// UpsertVideo atomically creates or replaces the record for v.ID.
// The single statement keeps a crash from ever leaving a half-written row.
func (s *Store) UpsertVideo(ctx context.Context, v model.Video) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO videos (id, title, playlist_item_id, duration_seconds, stage, media_path, subtitle_path, content_path, publish_confirmation, error_info, terminal, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			playlist_item_id = excluded.playlist_item_id,
			duration_seconds = excluded.duration_seconds,
			stage = excluded.stage,
			media_path = excluded.media_path,
			subtitle_path = excluded.subtitle_path,
			content_path = excluded.content_path,
			publish_confirmation = excluded.publish_confirmation,
			error_info = excluded.error_info,
			terminal = excluded.terminal,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		v.ID, v.Title, v.PlaylistItemID, v.DurationSeconds, v.Stage, v.MediaPath, v.SubtitlePath,
		v.ContentPath, v.PublishConfirmation, v.ErrorInfo, boolToInt(v.Terminal), v.CreatedAt, v.UpdatedAt,
	)
	return err
}

// GetVideo returns the record for the given id, or (nil, nil) when absent.
func (s *Store) GetVideo(ctx context.Context, id string) (*model.Video, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

// ListByStage returns videos in the given stage, oldest first.
func (s *Store) ListByStage(ctx context.Context, stage string) ([]model.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE stage = ? ORDER BY created_at ASC, rowid ASC`, stage)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// ListVideos returns videos newest first, optionally restricted to the given
// stages. An empty filter returns everything.
func (s *Store) ListVideos(ctx context.Context, stages []string) ([]model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos`
	args := make([]interface{}, 0, len(stages))
	if len(stages) > 0 {
		query += ` WHERE stage IN (?` + strings.Repeat(", ?", len(stages)-1) + `)`
		for _, stage := range stages {
			args = append(args, stage)
		}
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// ListActive returns all non-terminal videos, oldest first.
func (s *Store) ListActive(ctx context.Context) ([]model.Video, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE terminal = 0 ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// CountByStage returns the number of videos per stage.
func (s *Store) CountByStage(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(*) FROM videos GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Attempts
// ---------------------------------------------------------------------------

// AppendAttempt opens the next attempt for (video, step) and returns its
// number. Numbers are assigned inside one transaction so they stay contiguous,
// and a new attempt is refused while the prior one is still open.
func (s *Store) AppendAttempt(ctx context.Context, videoID, step string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var open int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE video_id = ? AND step = ? AND outcome = ''`,
		videoID, step).Scan(&open); err != nil {
		return 0, fmt.Errorf("check open attempt: %w", err)
	}
	if open > 0 {
		return 0, fmt.Errorf("attempt for video %s step %s is still open", videoID, step)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM attempts WHERE video_id = ? AND step = ?`,
		videoID, step).Scan(&next); err != nil {
		return 0, fmt.Errorf("next attempt number: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempts (id, video_id, step, attempt_number, started_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), videoID, step, next, now); err != nil {
		return 0, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// CloseAttempt finalizes the open attempt with an outcome.
func (s *Store) CloseAttempt(ctx context.Context, videoID, step string, attemptNumber int, outcome, errorDetail string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET outcome = ?, error_detail = ?, ended_at = ?
		 WHERE video_id = ? AND step = ? AND attempt_number = ? AND outcome = ''`,
		outcome, errorDetail, now, videoID, step, attemptNumber)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no open attempt %d for video %s step %s", attemptNumber, videoID, step)
	}
	return nil
}

// ListAttempts returns all attempts for (video, step), ordered by number.
func (s *Store) ListAttempts(ctx context.Context, videoID, step string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, step, attempt_number, started_at, COALESCE(ended_at, ''), outcome, error_detail
		 FROM attempts WHERE video_id = ? AND step = ? ORDER BY attempt_number ASC`,
		videoID, step)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ListVideoAttempts returns every attempt for one video across all steps, in
// execution order.
func (s *Store) ListVideoAttempts(ctx context.Context, videoID string) ([]model.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, video_id, step, attempt_number, started_at, COALESCE(ended_at, ''), outcome, error_detail
		 FROM attempts WHERE video_id = ? ORDER BY started_at ASC, rowid ASC`,
		videoID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// CloseDanglingAttempts finalizes attempts left open by a crashed run so the
// per-pair contiguity invariant holds across restarts. The interrupted
// attempt counts toward the retry budget.
func (s *Store) CloseDanglingAttempts(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET outcome = ?, error_detail = ?, ended_at = ? WHERE outcome = ''`,
		model.OutcomeFailure, "interrupted: process exited before the attempt finished", now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row scanner) (*model.Video, error) {
	var v model.Video
	var terminal int
	err := row.Scan(&v.ID, &v.Title, &v.PlaylistItemID, &v.DurationSeconds, &v.Stage, &v.MediaPath,
		&v.SubtitlePath, &v.ContentPath, &v.PublishConfirmation, &v.ErrorInfo, &terminal, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	v.Terminal = terminal != 0
	return &v, nil
}

func collectVideos(rows *sql.Rows) ([]model.Video, error) {
	defer rows.Close()
	var videos []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

func collectAttempts(rows *sql.Rows) ([]model.Attempt, error) {
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.VideoID, &a.Step, &a.AttemptNumber, &a.StartedAt, &a.EndedAt, &a.Outcome, &a.ErrorDetail); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
