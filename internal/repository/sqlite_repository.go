package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/talecraft/api/internal/model"
)

// SQLiteRepository implements FairytaleRepository on an embedded SQLite file.
// Timestamps are stored as unix milliseconds.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fairytales (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		theme TEXT NOT NULL,
		characters TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		text_content TEXT NOT NULL DEFAULT '',
		audio_ref TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		text_attempts INTEGER NOT NULL DEFAULT 0,
		used_fallback_text INTEGER NOT NULL DEFAULT 0,
		used_fallback_voice INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fairytales_owner ON fairytales(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_fairytales_status ON fairytales(status, created_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, owner_id, theme, characters, duration_seconds, text_content, audio_ref,
	       status, error, text_attempts, used_fallback_text, used_fallback_voice,
	       version, created_at, updated_at
	FROM fairytales
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFairytale(row rowScanner) (*model.Fairytale, error) {
	var f model.Fairytale
	var createdAt, updatedAt int64

	err := row.Scan(
		&f.ID,
		&f.OwnerID,
		&f.Brief.Theme,
		&f.Brief.Characters,
		&f.Brief.DurationSeconds,
		&f.TextContent,
		&f.AudioRef,
		&f.Status,
		&f.Error,
		&f.TextAttempts,
		&f.UsedFallbackText,
		&f.UsedFallbackVoice,
		&f.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.CreatedAt = time.UnixMilli(createdAt).UTC()
	f.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &f, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, f *model.Fairytale) error {
	if !f.Status.IsValid() {
		return fmt.Errorf("failed to create fairytale: unknown status %q", f.Status)
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = f.CreatedAt
	}
	f.Version = 1

	query := `
		INSERT INTO fairytales (id, owner_id, theme, characters, duration_seconds, text_content, audio_ref,
		                        status, error, text_attempts, used_fallback_text, used_fallback_voice,
		                        version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		f.ID,
		f.OwnerID,
		f.Brief.Theme,
		f.Brief.Characters,
		f.Brief.DurationSeconds,
		f.TextContent,
		f.AudioRef,
		f.Status,
		f.Error,
		f.TextAttempts,
		f.UsedFallbackText,
		f.UsedFallbackVoice,
		f.Version,
		f.CreatedAt.UnixMilli(),
		f.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create fairytale: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*model.Fairytale, error) {
	f, err := scanFairytale(r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get fairytale: %w", err)
	}
	return f, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, f *model.Fairytale) error {
	query := `
		UPDATE fairytales
		SET text_content = ?, audio_ref = ?, status = ?, error = ?, text_attempts = ?,
		    used_fallback_text = ?, used_fallback_voice = ?, version = version + 1, updated_at = ?
		WHERE id = ?
		RETURNING version
	`

	now := time.Now().UTC()
	var version int64
	err := r.db.QueryRowContext(ctx, query,
		f.TextContent,
		f.AudioRef,
		f.Status,
		f.Error,
		f.TextAttempts,
		f.UsedFallbackText,
		f.UsedFallbackVoice,
		now.UnixMilli(),
		f.ID,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save fairytale: %w", err)
	}

	f.Version = version
	f.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

func (r *SQLiteRepository) CompareAndSetStatus(ctx context.Context, id string, from, to model.Status, reason string) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE fairytales
		SET status = ?, error = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, reason, time.Now().UTC().UnixMilli(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Fairytale, error) {
	return r.query(ctx, selectColumns+` WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
}

func (r *SQLiteRepository) FindStuck(ctx context.Context, status model.Status, before time.Time) ([]*model.Fairytale, error) {
	return r.query(ctx, selectColumns+` WHERE status = ? AND created_at < ? ORDER BY created_at ASC`,
		status, before.UnixMilli())
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...interface{}) ([]*model.Fairytale, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fairytales: %w", err)
	}
	defer rows.Close()

	records := []*model.Fairytale{}
	for rows.Next() {
		f, err := scanFairytale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fairytale: %w", err)
		}
		records = append(records, f)
	}
	return records, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM fairytales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fairytale: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
