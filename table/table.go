// Package table builds the classification summary table: one row per beat
// plus the "Overall" aggregate row, with the column definitions a generic
// table renderer needs.
package table

import (
	"sort"
	"strconv"

	"github.com/ViVse/ecg-v2/ecg"
)

// Row is one table row. Missing is set for beats without a prediction.
type Row struct {
	Prediction ecg.Prediction
	Ordinal    int
	Missing    bool
}

// ID returns the row id ("Overall" or the beat ordinal).
func (r Row) ID() string { return r.Prediction.ID }

// IsAggregate reports the synthetic summary row.
func (r Row) IsAggregate() bool { return r.Prediction.IsAggregate() }

// Anomalous reports whether the anomaly checkbox is checked.
func (r Row) Anomalous() bool { return !r.Missing && !r.Prediction.IsNormal }

// BuildRows returns the aggregate row followed by one row per beat in
// ordinal order. The aggregate comes from preds when present, otherwise it
// is computed from the beat predictions.
func BuildRows(beats []ecg.Beat, preds *ecg.PredictionSet) []Row {
	rows := make([]Row, 0, len(beats)+1)

	agg, ok := preds.Aggregate()
	if !ok {
		agg = ecg.ComputeAggregate(preds.Beats(), len(beats))
	}
	rows = append(rows, Row{Prediction: agg})

	for _, b := range beats {
		p, ok := preds.ForBeat(b.Ordinal)
		if !ok {
			rows = append(rows, Row{
				Prediction: ecg.Prediction{ID: b.ID(), IsNormal: true},
				Ordinal:    b.Ordinal,
				Missing:    true,
			})
			continue
		}
		rows = append(rows, Row{Prediction: p, Ordinal: b.Ordinal})
	}
	return rows
}

// Placeholder is shown in class cells of normal or unpredicted rows.
const Placeholder = "-"

// FormatClassCell renders one S/V/F/Q cell. Beat rows carry a "%" suffix;
// the aggregate row's values are already percentages and render bare.
func FormatClassCell(r Row, c ecg.AnomalyClass) string {
	if r.Missing || r.Prediction.IsNormal {
		return Placeholder
	}
	v := strconv.FormatFloat(r.Prediction.Value(c), 'f', -1, 64)
	if r.IsAggregate() {
		return v
	}
	return v + "%"
}

// Sort orders rows by column, keeping the aggregate row first. The sort is
// stable so equal values keep beat order.
func Sort(rows []Row, column ColumnID, desc bool) []Row {
	out := append([]Row(nil), rows...)
	head := make([]Row, 0, 1)
	body := make([]Row, 0, len(out))
	for _, r := range out {
		if r.IsAggregate() {
			head = append(head, r)
			continue
		}
		body = append(body, r)
	}

	less := lessFor(column)
	if less != nil {
		sort.SliceStable(body, func(i, j int) bool {
			if desc {
				return less(body[j], body[i])
			}
			return less(body[i], body[j])
		})
	}
	return append(head, body...)
}

func lessFor(column ColumnID) func(a, b Row) bool {
	switch column {
	case ColumnRowID:
		return func(a, b Row) bool { return a.Ordinal < b.Ordinal }
	case ColumnIsNormal:
		return func(a, b Row) bool { return a.Anomalous() && !b.Anomalous() }
	case ColumnS, ColumnV, ColumnF, ColumnQ:
		c := ecg.AnomalyClass(column)
		return func(a, b Row) bool { return classValue(a, c) < classValue(b, c) }
	}
	return nil
}

func classValue(r Row, c ecg.AnomalyClass) float64 {
	if r.Missing {
		return -1
	}
	return r.Prediction.Value(c)
}
