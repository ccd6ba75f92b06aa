// Package recording reads ECG recordings and prediction files from disk.
package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ViVse/ecg-v2/ecg"
)

var ErrMissingSignal = errors.New("recording has no ecg_clean samples")

// Recording is one loaded recording with its optional predictions.
type Recording struct {
	ID                string
	Path              string
	SamplingFrequency float64
	Signal            ecg.Signal
	Predictions       *ecg.PredictionSet
}

// Flags decodes a peak flag array written either as 0/1 numbers or as
// booleans.
type Flags []bool

func (f *Flags) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]bool, len(raw))
	for i, v := range raw {
		switch s := string(bytes.TrimSpace(v)); s {
		case "1", "true", "1.0":
			out[i] = true
		case "0", "false", "0.0", "null":
		default:
			return fmt.Errorf("flag %d: unexpected value %s", i, s)
		}
	}
	*f = out
	return nil
}

// MarshalJSON writes flags as 0/1 numbers.
func (f Flags) MarshalJSON() ([]byte, error) {
	out := make([]int, len(f))
	for i, v := range f {
		if v {
			out[i] = 1
		}
	}
	return json.Marshal(out)
}

// File is the on-disk recording document.
type File struct {
	ID                string           `json:"id,omitempty"`
	SamplingFrequency float64          `json:"sampling_frequency,omitempty"`
	Clean             []float64        `json:"ecg_clean"`
	PPeaks            Flags            `json:"p_peaks"`
	QPeaks            Flags            `json:"q_peaks"`
	RPeaks            Flags            `json:"r_peaks"`
	SPeaks            Flags            `json:"s_peaks"`
	TPeaks            Flags            `json:"t_peaks"`
	Predictions       []ecg.Prediction `json:"predictions,omitempty"`
}

// Signal converts the document into the indexer input.
func (f File) Signal() ecg.Signal {
	return ecg.Signal{
		Clean: f.Clean,
		P:     f.PPeaks,
		Q:     f.QPeaks,
		R:     f.RPeaks,
		S:     f.SPeaks,
		T:     f.TPeaks,
	}
}

// FromSignal builds a document for sig.
func FromSignal(id string, sig ecg.Signal) File {
	return File{
		ID:     id,
		Clean:  sig.Clean,
		PPeaks: sig.P,
		QPeaks: sig.Q,
		RPeaks: sig.R,
		SPeaks: sig.S,
		TPeaks: sig.T,
	}
}

// ID derives a recording id from a file path.
func ID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load reads a recording and, when predictionsPath is set, its predictions
// file. Both files are read concurrently. Predictions embedded in the
// recording are used when no separate file is given.
func Load(ctx context.Context, signalPath, predictionsPath string) (*Recording, error) {
	var (
		file  File
		preds []ecg.Prediction
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return readJSON(ctx, signalPath, &file)
	})
	if predictionsPath != "" {
		g.Go(func() error {
			return readJSON(ctx, predictionsPath, &preds)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(file.Clean) == 0 {
		return nil, fmt.Errorf("%s: %w", signalPath, ErrMissingSignal)
	}
	if predictionsPath == "" {
		preds = file.Predictions
	}
	for _, p := range preds {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
	}

	id := file.ID
	if id == "" {
		id = ID(signalPath)
	}
	rec := &Recording{
		ID:                id,
		Path:              signalPath,
		SamplingFrequency: file.SamplingFrequency,
		Signal:            file.Signal(),
	}
	if len(preds) > 0 {
		rec.Predictions = ecg.NewPredictionSet(preds)
	}
	return rec, nil
}

// LoadPredictions reads a standalone predictions file.
func LoadPredictions(ctx context.Context, path string) (*ecg.PredictionSet, error) {
	var preds []ecg.Prediction
	if err := readJSON(ctx, path, &preds); err != nil {
		return nil, err
	}
	return ecg.NewPredictionSet(preds), nil
}

// Save writes f as indented JSON.
func Save(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
