package view

import "github.com/ViVse/ecg-v2/ecg"

// PeakToggles are the independent visibility switches of the point series.
type PeakToggles struct {
	P bool `json:"p" yaml:"p"`
	Q bool `json:"q" yaml:"q"`
	S bool `json:"s" yaml:"s"`
	T bool `json:"t" yaml:"t"`
}

// AllPeaks has every series visible.
func AllPeaks() PeakToggles {
	return PeakToggles{P: true, Q: true, S: true, T: true}
}

// Visible reports the switch for kind.
func (t PeakToggles) Visible(kind ecg.PeakKind) bool {
	switch kind {
	case ecg.PeakP:
		return t.P
	case ecg.PeakQ:
		return t.Q
	case ecg.PeakS:
		return t.S
	case ecg.PeakT:
		return t.T
	}
	return false
}

// With returns a copy with kind set to visible.
func (t PeakToggles) With(kind ecg.PeakKind, visible bool) PeakToggles {
	switch kind {
	case ecg.PeakP:
		t.P = visible
	case ecg.PeakQ:
		t.Q = visible
	case ecg.PeakS:
		t.S = visible
	case ecg.PeakT:
		t.T = visible
	}
	return t
}

// State is the per-recording view record. It is plain data so hosts can
// serialize it; it changes only through the methods below.
type State struct {
	RecordingID string         `json:"recording_id"`
	Selection   string         `json:"selection,omitempty"`
	Peaks       PeakToggles    `json:"peaks"`
	Viewport    ViewportBounds `json:"viewport"`
}

// NewState returns the state of a freshly loaded recording.
func NewState(recordingID string, peaks PeakToggles) State {
	return State{RecordingID: recordingID, Peaks: peaks}
}

// Select highlights the marker with label. It reports whether the
// selection changed.
func (s *State) Select(label string) bool {
	if s.Selection == label {
		return false
	}
	s.Selection = label
	return true
}

// ClearSelection drops the highlight.
func (s *State) ClearSelection() bool {
	return s.Select("")
}

// SetPeakVisible flips one series switch.
func (s *State) SetPeakVisible(kind ecg.PeakKind, visible bool) bool {
	if s.Peaks.Visible(kind) == visible {
		return false
	}
	s.Peaks = s.Peaks.With(kind, visible)
	return true
}

// TogglePeak inverts one series switch.
func (s *State) TogglePeak(kind ecg.PeakKind) {
	s.Peaks = s.Peaks.With(kind, !s.Peaks.Visible(kind))
}
