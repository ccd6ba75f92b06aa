package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ViVse/ecg-v2/ecg"
)

// GOBStore implements OverrideStore using GOB encoding.
type GOBStore struct {
	path    string
	records map[string][]OverrideRecord
	mu      sync.RWMutex
}

type gobOverrideData struct {
	Records map[string][]OverrideRecord
}

// NewGOBStore creates a new GOB-based override store.
func NewGOBStore(path string) *GOBStore {
	return &GOBStore{
		path:    path,
		records: make(map[string][]OverrideRecord),
	}
}

// Load reads overrides from disk. A missing file is an empty store.
func (s *GOBStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open override store: %w", err)
	}
	defer file.Close()

	var data gobOverrideData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode override store: %w", err)
	}
	s.records = data.Records
	if s.records == nil {
		s.records = make(map[string][]OverrideRecord)
	}
	return nil
}

// Persist writes every override to disk.
func (s *GOBStore) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked()
}

func (s *GOBStore) persistLocked() error {
	if err := ensureParentDir(s.path); err != nil {
		return fmt.Errorf("failed to prepare override store directory: %w", err)
	}
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create override store file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(gobOverrideData{Records: s.records}); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode override store: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close override store file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// SaveOverride appends o and persists the store.
func (s *GOBStore) SaveOverride(ctx context.Context, recordingID string, o ecg.Override) (OverrideRecord, error) {
	if err := o.Validate(); err != nil {
		return OverrideRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := newRecord(recordingID, o)
	s.records[recordingID] = append(s.records[recordingID], rec)
	if err := s.persistLocked(); err != nil {
		s.records[recordingID] = s.records[recordingID][:len(s.records[recordingID])-1]
		return OverrideRecord{}, err
	}
	return rec, nil
}

// ListOverrides returns the records of recordingID in save order.
func (s *GOBStore) ListOverrides(ctx context.Context, recordingID string) ([]OverrideRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]OverrideRecord(nil), s.records[recordingID]...), nil
}

// ListRecordings returns per-recording counts sorted by recording id.
func (s *GOBStore) ListRecordings(ctx context.Context) ([]RecordingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RecordingStats, 0, len(s.records))
	for id, recs := range s.records {
		rs := RecordingStats{RecordingID: id, Overrides: len(recs)}
		for _, r := range recs {
			if r.SavedAt.After(rs.LastSaved) {
				rs.LastSaved = r.SavedAt
			}
		}
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordingID < out[j].RecordingID
	})
	return out, nil
}

// GetStats returns store statistics.
func (s *GOBStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{Backend: "gob", Recordings: len(s.records)}
	for _, recs := range s.records {
		stats.Overrides += len(recs)
		for _, r := range recs {
			if r.SavedAt.After(stats.LastSaved) {
				stats.LastSaved = r.SavedAt
			}
		}
	}
	return stats, nil
}

// Close cleanly shuts down the store by persisting data.
func (s *GOBStore) Close() error {
	return s.Persist(context.Background())
}
