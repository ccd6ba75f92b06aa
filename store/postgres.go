package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ViVse/ecg-v2/ecg"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ecg_overrides (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	recording_id TEXT NOT NULL,
	beat_id TEXT NOT NULL,
	is_normal BOOLEAN NOT NULL,
	classification TEXT,
	saved_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ecg_overrides_recording
	ON ecg_overrides (project_id, recording_id, saved_at);
`

// PostgresStore implements OverrideStore on PostgreSQL. Rows are scoped by
// project so several review projects can share one database.
type PostgresStore struct {
	pool      *pgxpool.Pool
	projectID string
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn, projectID string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s := &PostgresStore{pool: pool, projectID: projectID}
	if err := s.Load(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Load pings the server and creates the table if missing.
func (s *PostgresStore) Load(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveOverride(ctx context.Context, recordingID string, o ecg.Override) (OverrideRecord, error) {
	if err := o.Validate(); err != nil {
		return OverrideRecord{}, err
	}
	rec := newRecord(recordingID, o)
	var class *string
	if o.Classification != "" {
		c := string(o.Classification)
		class = &c
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ecg_overrides (id, project_id, recording_id, beat_id, is_normal, classification, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, s.projectID, recordingID, o.ID, o.IsNormal, class, rec.SavedAt)
	if err != nil {
		return OverrideRecord{}, fmt.Errorf("failed to insert override: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, recordingID string) ([]OverrideRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, beat_id, is_normal, COALESCE(classification, ''), saved_at
		 FROM ecg_overrides
		 WHERE project_id = $1 AND recording_id = $2
		 ORDER BY saved_at, id`,
		s.projectID, recordingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var out []OverrideRecord
	for rows.Next() {
		var (
			rec   OverrideRecord
			class string
		)
		if err := rows.Scan(&rec.ID, &rec.Override.ID, &rec.Override.IsNormal, &class, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		rec.RecordingID = recordingID
		rec.Override.Classification = ecg.AnomalyClass(class)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overrides: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListRecordings(ctx context.Context) ([]RecordingStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recording_id, COUNT(*), MAX(saved_at)
		 FROM ecg_overrides
		 WHERE project_id = $1
		 GROUP BY recording_id
		 ORDER BY recording_id`,
		s.projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	var out []RecordingStats
	for rows.Next() {
		var rs RecordingStats
		if err := rows.Scan(&rs.RecordingID, &rs.Overrides, &rs.LastSaved); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recordings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Backend: "postgres"}
	var last *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT recording_id), MAX(saved_at)
		 FROM ecg_overrides WHERE project_id = $1`,
		s.projectID).Scan(&stats.Overrides, &stats.Recordings, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if last != nil {
		stats.LastSaved = *last
	}
	return stats, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
