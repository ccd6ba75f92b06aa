// Package store persists clinician overrides so they survive restarts and
// are replayed the next time a recording is reviewed.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ViVse/ecg-v2/ecg"
)

// OverrideRecord is one saved override.
type OverrideRecord struct {
	ID          string
	RecordingID string
	Override    ecg.Override
	SavedAt     time.Time
}

// RecordingStats summarizes the overrides of one recording.
type RecordingStats struct {
	RecordingID string
	Overrides   int
	LastSaved   time.Time
}

// Stats summarizes a store.
type Stats struct {
	Backend    string
	Recordings int
	Overrides  int
	LastSaved  time.Time
}

// OverrideStore is implemented by every persistence backend.
type OverrideStore interface {
	// Load prepares the store for use.
	Load(ctx context.Context) error
	// SaveOverride appends o for recordingID.
	SaveOverride(ctx context.Context, recordingID string, o ecg.Override) (OverrideRecord, error)
	// ListOverrides returns every record of recordingID in save order.
	ListOverrides(ctx context.Context, recordingID string) ([]OverrideRecord, error)
	// ListRecordings returns one entry per recording with overrides.
	ListRecordings(ctx context.Context) ([]RecordingStats, error)
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

func newRecord(recordingID string, o ecg.Override) OverrideRecord {
	return OverrideRecord{
		ID:          uuid.NewString(),
		RecordingID: recordingID,
		Override:    o,
		SavedAt:     time.Now().UTC(),
	}
}

// Latest collapses records to the last override per beat, ordered by the
// time each beat was last saved.
func Latest(records []OverrideRecord) []ecg.Override {
	last := make(map[string]int, len(records))
	for i, r := range records {
		last[r.Override.ID] = i
	}
	out := make([]ecg.Override, 0, len(last))
	for i, r := range records {
		if last[r.Override.ID] == i {
			out = append(out, r.Override)
		}
	}
	return out
}

// Replay applies stored overrides to preds. Overrides for beats outside
// 1..beats are skipped.
func Replay(preds *ecg.PredictionSet, records []OverrideRecord, beats int) (*ecg.PredictionSet, int, error) {
	applied := 0
	for _, o := range Latest(records) {
		n, ok := (ecg.Prediction{ID: o.ID}).Ordinal()
		if !ok || n > beats {
			continue
		}
		next, err := preds.Apply(o)
		if err != nil {
			return preds, applied, fmt.Errorf("replay override %s: %w", o.ID, err)
		}
		preds = next
		applied++
	}
	if applied > 0 {
		preds = preds.WithComputedAggregate(beats)
	}
	return preds, applied, nil
}

// ReplayStored applies the overrides st holds for recordingID to preds.
// The original set is returned untouched when nothing applies.
func ReplayStored(ctx context.Context, st OverrideStore, recordingID string, preds *ecg.PredictionSet, beats int) (*ecg.PredictionSet, int, error) {
	if st == nil {
		return preds, 0, nil
	}
	records, err := st.ListOverrides(ctx, recordingID)
	if err != nil {
		return preds, 0, err
	}
	if len(records) == 0 {
		return preds, 0, nil
	}
	replayed, applied, err := Replay(preds, records, beats)
	if err != nil || applied == 0 {
		return preds, 0, err
	}
	return replayed, applied, nil
}

// NopStore keeps nothing. It backs store.backend "none".
type NopStore struct{}

func (NopStore) Load(context.Context) error { return nil }

func (NopStore) SaveOverride(_ context.Context, recordingID string, o ecg.Override) (OverrideRecord, error) {
	return newRecord(recordingID, o), nil
}

func (NopStore) ListOverrides(context.Context, string) ([]OverrideRecord, error) { return nil, nil }

func (NopStore) ListRecordings(context.Context) ([]RecordingStats, error) { return nil, nil }

func (NopStore) GetStats(context.Context) (*Stats, error) { return &Stats{Backend: "none"}, nil }

func (NopStore) Close() error { return nil }

// ensureParentDir creates parent directories if missing.
func ensureParentDir(filePath string) error {
	return os.MkdirAll(filepath.Dir(filePath), 0o755)
}
