package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps audit rows in a local database for the development server.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, timestamp, model_id, prompt, mode,
			image_size_bytes, mask_size_bytes, output_size_bytes,
			generation_time_ms, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.ModelID, rec.Prompt, rec.Mode,
		rec.ImageSizeBytes, rec.MaskSizeBytes, rec.OutputSizeBytes,
		rec.GenerationTimeMS, rec.Success, toNullString(rec.ErrorMessage),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// Get returns nil, nil when no record has the id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	var (
		rec    Record
		ts     int64
		errMsg sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, model_id, prompt, mode,
			image_size_bytes, mask_size_bytes, output_size_bytes,
			generation_time_ms, success, error_message
		FROM audit_records WHERE id = ?`, id,
	).Scan(
		&rec.ID, &ts, &rec.ModelID, &rec.Prompt, &rec.Mode,
		&rec.ImageSizeBytes, &rec.MaskSizeBytes, &rec.OutputSizeBytes,
		&rec.GenerationTimeMS, &rec.Success, &errMsg,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record: %w", err)
	}
	rec.Timestamp = time.Unix(0, ts).UTC()
	rec.ErrorMessage = errMsg.String
	return &rec, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count audit records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Shutdown() error {
	return s.Close()
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
