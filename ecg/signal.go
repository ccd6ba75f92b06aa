package ecg

import (
	"fmt"
	"strconv"
	"strings"
)

// PeakKind names a fiducial point drawn as its own point series.
type PeakKind string

const (
	PeakP PeakKind = "P"
	PeakQ PeakKind = "Q"
	PeakS PeakKind = "S"
	PeakT PeakKind = "T"
)

// PeakKinds lists the drawable fiducials in display order.
var PeakKinds = []PeakKind{PeakP, PeakQ, PeakS, PeakT}

// Signal is a cleaned recording with one detection flag per sample and
// fiducial kind. All series must have the same length.
type Signal struct {
	Clean []float64
	P     []bool
	Q     []bool
	R     []bool
	S     []bool
	T     []bool
}

// LengthMismatchError reports a flag series whose length differs from the
// amplitude series.
type LengthMismatchError struct {
	Series string
	Want   int
	Got    int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("signal series %s has %d samples, want %d", e.Series, e.Got, e.Want)
}

// Len returns the number of amplitude samples.
func (s Signal) Len() int { return len(s.Clean) }

// Validate checks that every flag series matches the amplitude length.
func (s Signal) Validate() error {
	want := len(s.Clean)
	series := []struct {
		name  string
		flags []bool
	}{
		{"r_peaks", s.R},
		{"p_peaks", s.P},
		{"q_peaks", s.Q},
		{"s_peaks", s.S},
		{"t_peaks", s.T},
	}
	for _, sr := range series {
		if len(sr.flags) != want {
			return &LengthMismatchError{Series: sr.name, Want: want, Got: len(sr.flags)}
		}
	}
	return nil
}

func (s Signal) flags(kind PeakKind) []bool {
	switch kind {
	case PeakP:
		return s.P
	case PeakQ:
		return s.Q
	case PeakS:
		return s.S
	case PeakT:
		return s.T
	}
	return nil
}

// Point is a drawable (sample index, amplitude) pair.
type Point struct {
	Index     int
	Amplitude float64
}

// Beat is one heartbeat anchored at its R peak. Peak amplitudes are nil
// unless the matching flag is set at the same sample index.
type Beat struct {
	Ordinal     int
	SampleIndex int
	Amplitude   float64
	P           *float64
	Q           *float64
	S           *float64
	T           *float64
}

// Label returns the marker label, e.g. "R3".
func (b Beat) Label() string {
	return BeatLabel(b.Ordinal)
}

// ID returns the prediction id of the beat.
func (b Beat) ID() string {
	return strconv.Itoa(b.Ordinal)
}

// Peak returns the amplitude attached to the beat for kind.
func (b Beat) Peak(kind PeakKind) *float64 {
	switch kind {
	case PeakP:
		return b.P
	case PeakQ:
		return b.Q
	case PeakS:
		return b.S
	case PeakT:
		return b.T
	}
	return nil
}

// BeatLabel formats a marker label for an ordinal.
func BeatLabel(ordinal int) string {
	return "R" + strconv.Itoa(ordinal)
}

// ParseLabel extracts the ordinal from a marker label.
func ParseLabel(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, "R")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Indexed holds everything derived from one (signal, flags) pair.
type Indexed struct {
	Samples []float64
	Beats   []Beat
	Peaks   map[PeakKind][]Point
}

// Len returns the number of samples covered.
func (ix Indexed) Len() int { return len(ix.Samples) }

// Empty reports whether nothing can be drawn.
func (ix Indexed) Empty() bool { return len(ix.Samples) == 0 }

// Beat returns the beat with the given ordinal.
func (ix Indexed) Beat(ordinal int) (Beat, bool) {
	if ordinal < 1 || ordinal > len(ix.Beats) {
		return Beat{}, false
	}
	return ix.Beats[ordinal-1], true
}

// Index derives beats and fiducial point lists from sig. On a length
// mismatch it returns an empty result together with the mismatch so the
// caller can warn and render nothing.
func Index(sig Signal) (Indexed, error) {
	if err := sig.Validate(); err != nil {
		return Indexed{Peaks: map[PeakKind][]Point{}}, err
	}

	out := Indexed{
		Samples: append([]float64(nil), sig.Clean...),
		Beats:   make([]Beat, 0),
		Peaks:   make(map[PeakKind][]Point, len(PeakKinds)),
	}
	for _, kind := range PeakKinds {
		out.Peaks[kind] = make([]Point, 0)
	}

	ordinal := 0
	for i, v := range sig.Clean {
		for _, kind := range PeakKinds {
			if sig.flags(kind)[i] {
				out.Peaks[kind] = append(out.Peaks[kind], Point{Index: i, Amplitude: v})
			}
		}
		if !sig.R[i] {
			continue
		}
		ordinal++
		out.Beats = append(out.Beats, Beat{
			Ordinal:     ordinal,
			SampleIndex: i,
			Amplitude:   v,
			P:           peakAt(sig.P, sig.Clean, i),
			Q:           peakAt(sig.Q, sig.Clean, i),
			S:           peakAt(sig.S, sig.Clean, i),
			T:           peakAt(sig.T, sig.Clean, i),
		})
	}
	return out, nil
}

func peakAt(flags []bool, clean []float64, i int) *float64 {
	if !flags[i] {
		return nil
	}
	v := clean[i]
	return &v
}
