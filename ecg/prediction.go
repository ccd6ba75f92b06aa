package ecg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AggregateID is the id of the synthetic summary row.
const AggregateID = "Overall"

// AnomalyClass is one of the four arrhythmia groups.
type AnomalyClass string

const (
	ClassS AnomalyClass = "S"
	ClassV AnomalyClass = "V"
	ClassF AnomalyClass = "F"
	ClassQ AnomalyClass = "Q"
)

// AnomalyClasses lists the classes in column order.
var AnomalyClasses = []AnomalyClass{ClassS, ClassV, ClassF, ClassQ}

var classSubtypes = map[AnomalyClass][]string{
	ClassS: {"Atrial premature", "Aberrant atrial premature", "Nodal premature", "Supra-ventricular premature"},
	ClassV: {"Premature ventricular contraction", "Ventricular escape"},
	ClassF: {"Fusion of ventricular and normal"},
	ClassQ: {"Paced", "Fusion of paced and normal", "Unclassifiable"},
}

// Valid reports whether c is one of S, V, F, Q.
func (c AnomalyClass) Valid() bool {
	_, ok := classSubtypes[c]
	return ok
}

// Subtypes returns the clinical subtypes aggregated under c.
func (c AnomalyClass) Subtypes() []string {
	return append([]string(nil), classSubtypes[c]...)
}

// ParseAnomalyClass accepts a class letter in either case.
func ParseAnomalyClass(s string) (AnomalyClass, error) {
	c := AnomalyClass(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown anomaly class %q", s)
	}
	return c, nil
}

var (
	ErrClassWithoutAnomaly = errors.New("classification set on a normal beat")
	ErrAnomalyWithoutClass = errors.New("anomalous beat without classification")
	ErrAggregateOverride   = errors.New("the aggregate row cannot be overridden")
	ErrUnknownBeat         = errors.New("prediction id does not match a beat")
)

// Prediction is the classification record of one beat, or of the aggregate
// row. S, V, F and Q are percentages; for the aggregate row they are the
// share of beats per class.
type Prediction struct {
	ID             string       `json:"id" yaml:"id"`
	IsNormal       bool         `json:"isNormal" yaml:"isNormal"`
	Classification AnomalyClass `json:"classification,omitempty" yaml:"classification,omitempty"`
	S              float64      `json:"S" yaml:"S"`
	V              float64      `json:"V" yaml:"V"`
	F              float64      `json:"F" yaml:"F"`
	Q              float64      `json:"Q" yaml:"Q"`
}

// IsAggregate reports whether p is the "Overall" summary row.
func (p Prediction) IsAggregate() bool { return p.ID == AggregateID }

// Ordinal returns the beat ordinal encoded in the id.
func (p Prediction) Ordinal() (int, bool) {
	if p.IsAggregate() {
		return 0, false
	}
	n, err := strconv.Atoi(p.ID)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Value returns the percentage field for class c.
func (p Prediction) Value(c AnomalyClass) float64 {
	switch c {
	case ClassS:
		return p.S
	case ClassV:
		return p.V
	case ClassF:
		return p.F
	case ClassQ:
		return p.Q
	}
	return 0
}

// Validate enforces that a beat row carries a class exactly when it is
// anomalous. The aggregate row has no single label and is not checked.
func (p Prediction) Validate() error {
	if p.IsAggregate() {
		return nil
	}
	if _, ok := p.Ordinal(); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBeat, p.ID)
	}
	return checkLabel(p.IsNormal, p.Classification)
}

func checkLabel(isNormal bool, c AnomalyClass) error {
	if isNormal && c != "" {
		return ErrClassWithoutAnomaly
	}
	if !isNormal && c == "" {
		return ErrAnomalyWithoutClass
	}
	if c != "" && !c.Valid() {
		return fmt.Errorf("unknown anomaly class %q", c)
	}
	return nil
}

// Override is a clinician's replacement label for one beat.
type Override struct {
	ID             string       `json:"id"`
	IsNormal       bool         `json:"isNormal"`
	Classification AnomalyClass `json:"classification,omitempty"`
}

// Validate checks the override is self-consistent.
func (o Override) Validate() error {
	if o.ID == AggregateID {
		return ErrAggregateOverride
	}
	if n, err := strconv.Atoi(o.ID); err != nil || n < 1 {
		return fmt.Errorf("%w: %q", ErrUnknownBeat, o.ID)
	}
	return checkLabel(o.IsNormal, o.Classification)
}

// PredictionSet is an ordered list of beat predictions plus the aggregate
// row. Sets are treated as values: Apply returns a new set.
type PredictionSet struct {
	beats     []Prediction
	byID      map[string]int
	aggregate *Prediction
}

// NewPredictionSet splits records into beat rows and the aggregate row.
// Later duplicates of the same id replace earlier ones.
func NewPredictionSet(records []Prediction) *PredictionSet {
	set := &PredictionSet{
		beats: make([]Prediction, 0, len(records)),
		byID:  make(map[string]int, len(records)),
	}
	for _, p := range records {
		if p.IsAggregate() {
			agg := p
			set.aggregate = &agg
			continue
		}
		if idx, ok := set.byID[p.ID]; ok {
			set.beats[idx] = p
			continue
		}
		set.byID[p.ID] = len(set.beats)
		set.beats = append(set.beats, p)
	}
	return set
}

// Len returns the number of beat predictions.
func (s *PredictionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.beats)
}

// Empty reports whether no beat prediction is present.
func (s *PredictionSet) Empty() bool { return s.Len() == 0 }

// Beats returns a copy of the beat rows in input order.
func (s *PredictionSet) Beats() []Prediction {
	if s == nil {
		return nil
	}
	return append([]Prediction(nil), s.beats...)
}

// Get looks up a prediction by id, including "Overall".
func (s *PredictionSet) Get(id string) (Prediction, bool) {
	if s == nil {
		return Prediction{}, false
	}
	if id == AggregateID {
		return s.Aggregate()
	}
	idx, ok := s.byID[id]
	if !ok {
		return Prediction{}, false
	}
	return s.beats[idx], true
}

// ForBeat returns the prediction of the beat with the given ordinal.
func (s *PredictionSet) ForBeat(ordinal int) (Prediction, bool) {
	return s.Get(strconv.Itoa(ordinal))
}

// Aggregate returns the "Overall" row if present.
func (s *PredictionSet) Aggregate() (Prediction, bool) {
	if s == nil || s.aggregate == nil {
		return Prediction{}, false
	}
	return *s.aggregate, true
}

// Records returns the aggregate row (if any) followed by beat rows.
func (s *PredictionSet) Records() []Prediction {
	if s == nil {
		return nil
	}
	out := make([]Prediction, 0, len(s.beats)+1)
	if s.aggregate != nil {
		out = append(out, *s.aggregate)
	}
	return append(out, s.beats...)
}

// Apply returns a copy of the set with o merged into the matching beat row.
// A beat without a prior prediction gains a new row. Class percentages are
// kept as the model produced them.
func (s *PredictionSet) Apply(o Override) (*PredictionSet, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	records := s.Records()
	found := false
	for i := range records {
		if records[i].ID != o.ID {
			continue
		}
		records[i].IsNormal = o.IsNormal
		records[i].Classification = o.Classification
		found = true
	}
	if !found {
		records = append(records, Prediction{ID: o.ID, IsNormal: o.IsNormal, Classification: o.Classification})
	}
	return NewPredictionSet(records), nil
}

// WithComputedAggregate returns a copy whose aggregate row is recomputed
// from the beat rows over totalBeats beats.
func (s *PredictionSet) WithComputedAggregate(totalBeats int) *PredictionSet {
	beats := s.Beats()
	agg := ComputeAggregate(beats, totalBeats)
	return NewPredictionSet(append([]Prediction{agg}, beats...))
}

// ComputeAggregate builds the "Overall" row: for each class the share of
// the recording's beats labelled with it, in percent rounded to one
// decimal. Beats without a prediction count as normal. totalBeats below the
// number of beat rows falls back to the row count.
func ComputeAggregate(beats []Prediction, totalBeats int) Prediction {
	agg := Prediction{ID: AggregateID, IsNormal: true}
	rows := 0
	counts := make(map[AnomalyClass]int, len(AnomalyClasses))
	for _, p := range beats {
		if p.IsAggregate() {
			continue
		}
		rows++
		if !p.IsNormal {
			agg.IsNormal = false
			counts[p.Classification]++
		}
	}
	total := totalBeats
	if total < rows {
		total = rows
	}
	if total == 0 {
		return agg
	}
	pct := func(c AnomalyClass) float64 {
		return math.Round(float64(counts[c])/float64(total)*1000) / 10
	}
	agg.S = pct(ClassS)
	agg.V = pct(ClassV)
	agg.F = pct(ClassF)
	agg.Q = pct(ClassQ)
	return agg
}
