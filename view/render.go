package view

import "github.com/ViVse/ecg-v2/ecg"

// SeriesKind tells the backend how to draw a series.
type SeriesKind int

const (
	SeriesLine SeriesKind = iota
	SeriesPoints
)

// Series is one drawable dataset.
type Series struct {
	Name   string
	Kind   SeriesKind
	Peak   ecg.PeakKind
	Color  string
	Points []ecg.Point
}

// Marker is a vertical line at a beat's R sample with its label.
type Marker struct {
	Label           string
	Ordinal         int
	Index           int
	Color           string
	LabelBackground string
	LabelColor      string
}

// Palette holds every color the renderer assigns.
type Palette struct {
	Waveform        string            `yaml:"waveform"`
	Peaks           map[string]string `yaml:"peaks"`
	Marker          string            `yaml:"marker"`
	MarkerLabel     string            `yaml:"marker_label"`
	MarkerLabelText string            `yaml:"marker_label_text"`
	Selected        string            `yaml:"selected"`
	Correct         string            `yaml:"correct"`
	Anomaly         string            `yaml:"anomaly"`
}

// DefaultPalette mirrors the colors the review chart has always used.
func DefaultPalette() Palette {
	return Palette{
		Waveform: "red",
		Peaks: map[string]string{
			string(ecg.PeakP): "blue",
			string(ecg.PeakQ): "red",
			string(ecg.PeakS): "green",
			string(ecg.PeakT): "black",
		},
		Marker:          "lightgray",
		MarkerLabel:     "rgba(0, 0, 0, 0.5)",
		MarkerLabelText: "white",
		Selected:        "blue",
		Correct:         "green",
		Anomaly:         "red",
	}
}

// PeakColor returns the point color for kind, falling back to the default
// palette.
func (p Palette) PeakColor(kind ecg.PeakKind) string {
	if c, ok := p.Peaks[string(kind)]; ok && c != "" {
		return c
	}
	return DefaultPalette().Peaks[string(kind)]
}

var seriesNames = map[ecg.PeakKind]string{
	ecg.PeakP: "P Peaks",
	ecg.PeakQ: "Q Peaks",
	ecg.PeakS: "S Peaks",
	ecg.PeakT: "T Peaks",
}

// BuildSeries returns the ECG line followed by every enabled peak series.
// An empty recording yields no series at all.
func BuildSeries(ix ecg.Indexed, peaks PeakToggles, palette Palette) []Series {
	if ix.Empty() {
		return nil
	}
	line := make([]ecg.Point, len(ix.Samples))
	for i, v := range ix.Samples {
		line[i] = ecg.Point{Index: i, Amplitude: v}
	}
	series := []Series{{
		Name:   "ECG",
		Kind:   SeriesLine,
		Color:  palette.Waveform,
		Points: line,
	}}
	for _, kind := range ecg.PeakKinds {
		if !peaks.Visible(kind) {
			continue
		}
		series = append(series, Series{
			Name:   seriesNames[kind],
			Kind:   SeriesPoints,
			Peak:   kind,
			Color:  palette.PeakColor(kind),
			Points: append([]ecg.Point(nil), ix.Peaks[kind]...),
		})
	}
	return series
}

// BuildMarkers returns one marker per beat. When predictions are supplied
// the marker shows the prediction outcome; selection only colors markers
// that have no prediction to show.
func BuildMarkers(beats []ecg.Beat, preds *ecg.PredictionSet, selection string, palette Palette) []Marker {
	markers := make([]Marker, 0, len(beats))
	usePredictions := !preds.Empty()
	for _, b := range beats {
		m := Marker{
			Label:      b.Label(),
			Ordinal:    b.Ordinal,
			Index:      b.SampleIndex,
			LabelColor: palette.MarkerLabelText,
		}
		if p, ok := preds.ForBeat(b.Ordinal); usePredictions && ok {
			m.Color = palette.Anomaly
			if p.IsNormal {
				m.Color = palette.Correct
			}
			m.LabelBackground = m.Color
		} else if selection != "" && selection == m.Label {
			m.Color = palette.Selected
			m.LabelBackground = palette.Selected
		} else {
			m.Color = palette.Marker
			m.LabelBackground = palette.MarkerLabel
		}
		markers = append(markers, m)
	}
	return markers
}
