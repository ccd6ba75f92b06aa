package ecg

import (
	"errors"
	"testing"
)

func TestOverrideValidate(t *testing.T) {
	cases := []struct {
		name    string
		in      Override
		wantErr error
	}{
		{"normal", Override{ID: "3", IsNormal: true}, nil},
		{"anomaly with class", Override{ID: "3", Classification: ClassF}, nil},
		{"anomaly without class", Override{ID: "3"}, ErrAnomalyWithoutClass},
		{"normal with class", Override{ID: "3", IsNormal: true, Classification: ClassV}, ErrClassWithoutAnomaly},
		{"aggregate", Override{ID: AggregateID, IsNormal: true}, ErrAggregateOverride},
		{"bad id", Override{ID: "x", IsNormal: true}, ErrUnknownBeat},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestPredictionSetSplitsAggregate(t *testing.T) {
	set := NewPredictionSet([]Prediction{
		{ID: AggregateID, S: 12, V: 5, Q: 1},
		{ID: "1", IsNormal: true},
		{ID: "2", Classification: ClassV, V: 87.5},
	})
	if set.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", set.Len())
	}
	agg, ok := set.Aggregate()
	if !ok || agg.S != 12 {
		t.Fatalf("Aggregate() = %+v, %v", agg, ok)
	}
	p, ok := set.ForBeat(2)
	if !ok || p.Classification != ClassV {
		t.Fatalf("ForBeat(2) = %+v, %v", p, ok)
	}
	if _, ok := set.ForBeat(3); ok {
		t.Fatal("ForBeat(3) should be missing")
	}
}

func TestPredictionSetApplyIsCopyOnWrite(t *testing.T) {
	orig := NewPredictionSet([]Prediction{
		{ID: "1", IsNormal: true, S: 1},
		{ID: "2", Classification: ClassV, V: 87.5},
	})

	next, err := orig.Apply(Override{ID: "1", Classification: ClassF})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	p, _ := next.ForBeat(1)
	if p.IsNormal || p.Classification != ClassF || p.S != 1 {
		t.Fatalf("applied prediction = %+v", p)
	}
	before, _ := orig.ForBeat(1)
	if !before.IsNormal {
		t.Fatal("Apply must not mutate the original set")
	}

	next, err = next.Apply(Override{ID: "5", IsNormal: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := next.ForBeat(5); !ok {
		t.Fatal("Apply should add a row for a beat without prediction")
	}

	if _, err := orig.Apply(Override{ID: "2"}); !errors.Is(err, ErrAnomalyWithoutClass) {
		t.Fatalf("Apply(invalid) = %v, want ErrAnomalyWithoutClass", err)
	}
}

func TestComputeAggregate(t *testing.T) {
	beats := []Prediction{
		{ID: "1", IsNormal: true},
		{ID: "2", Classification: ClassV},
		{ID: "3", Classification: ClassV},
		{ID: "4", Classification: ClassS},
		{ID: "5", IsNormal: true},
		{ID: "6", IsNormal: true},
	}
	agg := ComputeAggregate(beats, 0)
	if agg.ID != AggregateID || agg.IsNormal {
		t.Fatalf("aggregate header = %+v", agg)
	}
	if agg.V != 33.3 || agg.S != 16.7 || agg.F != 0 || agg.Q != 0 {
		t.Fatalf("aggregate values = S%v V%v F%v Q%v", agg.S, agg.V, agg.F, agg.Q)
	}

	allNormal := ComputeAggregate([]Prediction{{ID: "1", IsNormal: true}}, 3)
	if !allNormal.IsNormal {
		t.Fatal("aggregate of normal beats should be normal")
	}
}

func TestComputeAggregateCountsUnpredictedBeats(t *testing.T) {
	beats := []Prediction{
		{ID: "1", Classification: ClassV},
		{ID: "2", Classification: ClassV},
	}
	agg := ComputeAggregate(beats, 4)
	if agg.V != 50 || agg.IsNormal {
		t.Fatalf("aggregate over 4 beats = %+v, want V 50", agg)
	}

	set := NewPredictionSet(append([]Prediction{{ID: AggregateID, Classification: ClassV, V: 25}}, beats...))
	recomputed, ok := set.WithComputedAggregate(8).Aggregate()
	if !ok || recomputed.V != 25 {
		t.Fatalf("recomputed aggregate = %+v, want V 25", recomputed)
	}
}

func TestParseAnomalyClass(t *testing.T) {
	c, err := ParseAnomalyClass(" v ")
	if err != nil || c != ClassV {
		t.Fatalf("ParseAnomalyClass(v) = %q, %v", c, err)
	}
	if _, err := ParseAnomalyClass("N"); err == nil {
		t.Fatal("expected error for N")
	}
	if got := ClassQ.Subtypes(); len(got) != 3 || got[0] != "Paced" {
		t.Fatalf("Q subtypes = %v", got)
	}
}
