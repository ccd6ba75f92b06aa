package review

import (
	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/table"
	"github.com/ViVse/ecg-v2/view"
)

// BeatReport is one beat with its fiducial amplitudes and prediction.
type BeatReport struct {
	Label       string             `json:"label"`
	Ordinal     int                `json:"ordinal"`
	SampleIndex int                `json:"sample_index"`
	Amplitude   float64            `json:"amplitude"`
	Peaks       map[string]float64 `json:"peaks,omitempty"`
	IsNormal    *bool              `json:"is_normal,omitempty"`
	Class       string             `json:"classification,omitempty"`
}

// BeatsReport lists the beats of the loaded recording.
type BeatsReport struct {
	Recording string       `json:"recording"`
	Samples   int          `json:"samples"`
	Warning   string       `json:"warning,omitempty"`
	Beats     []BeatReport `json:"beats"`
}

// RowReport is one classification table row with formatted cells.
type RowReport struct {
	ID       string `json:"id"`
	Anomaly  bool   `json:"anomaly"`
	S        string `json:"S"`
	V        string `json:"V"`
	F        string `json:"F"`
	Q        string `json:"Q"`
	Editable bool   `json:"editable"`
}

// TableReport is the classification table in display order.
type TableReport struct {
	Recording string      `json:"recording"`
	Sort      string      `json:"sort"`
	Desc      bool        `json:"desc"`
	Rows      []RowReport `json:"rows"`
}

// MarkerReport is one beat marker as drawn.
type MarkerReport struct {
	Label           string `json:"label"`
	Index           int    `json:"index"`
	Color           string `json:"color"`
	LabelBackground string `json:"label_background"`
}

// SeriesReport summarizes one drawable series.
type SeriesReport struct {
	Name   string `json:"name"`
	Color  string `json:"color"`
	Points int    `json:"points"`
}

// MarkersReport is the drawable state of the chart.
type MarkersReport struct {
	Recording string              `json:"recording"`
	Selection string              `json:"selection,omitempty"`
	Viewport  view.ViewportBounds `json:"viewport"`
	Series    []SeriesReport      `json:"series"`
	Markers   []MarkerReport      `json:"markers"`
}

// BeatsReport describes every beat of the loaded recording.
func (s *Session) BeatsReport() BeatsReport {
	out := BeatsReport{
		Recording: s.state.RecordingID,
		Samples:   s.indexed.Len(),
		Beats:     make([]BeatReport, 0, len(s.indexed.Beats)),
	}
	if s.warning != nil {
		out.Warning = s.warning.Error()
	}
	for _, b := range s.indexed.Beats {
		br := BeatReport{
			Label:       b.Label(),
			Ordinal:     b.Ordinal,
			SampleIndex: b.SampleIndex,
			Amplitude:   b.Amplitude,
		}
		for _, kind := range ecg.PeakKinds {
			if v := b.Peak(kind); v != nil {
				if br.Peaks == nil {
					br.Peaks = make(map[string]float64, len(ecg.PeakKinds))
				}
				br.Peaks[string(kind)] = *v
			}
		}
		if p, ok := s.preds.ForBeat(b.Ordinal); ok {
			normal := p.IsNormal
			br.IsNormal = &normal
			br.Class = string(p.Classification)
		}
		out.Beats = append(out.Beats, br)
	}
	return out
}

// TableReport renders the rows under the active sort.
func (s *Session) TableReport() TableReport {
	sorting := s.Sorting()
	action, _ := table.Find(s.Columns(), table.ColumnAction)
	out := TableReport{
		Recording: s.state.RecordingID,
		Sort:      string(sorting.Column),
		Desc:      sorting.Desc,
	}
	for _, r := range s.Rows() {
		out.Rows = append(out.Rows, RowReport{
			ID:       r.ID(),
			Anomaly:  r.Anomalous(),
			S:        table.FormatClassCell(r, ecg.ClassS),
			V:        table.FormatClassCell(r, ecg.ClassV),
			F:        table.FormatClassCell(r, ecg.ClassF),
			Q:        table.FormatClassCell(r, ecg.ClassQ),
			Editable: action.Cell != nil && action.Cell(r).Editable,
		})
	}
	return out
}

// MarkersReport returns the series and markers as currently drawn.
func (s *Session) MarkersReport() MarkersReport {
	out := MarkersReport{
		Recording: s.state.RecordingID,
		Selection: s.state.Selection,
		Viewport:  s.Viewport(),
	}
	for _, sr := range s.Series() {
		out.Series = append(out.Series, SeriesReport{Name: sr.Name, Color: sr.Color, Points: len(sr.Points)})
	}
	for _, m := range s.Markers() {
		out.Markers = append(out.Markers, MarkerReport{
			Label:           m.Label,
			Index:           m.Index,
			Color:           m.Color,
			LabelBackground: m.LabelBackground,
		})
	}
	return out
}
