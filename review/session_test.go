package review

import (
	"errors"
	"testing"
	"time"

	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/editor"
	"github.com/ViVse/ecg-v2/view"
)

func testSignal(n int, rAt ...int) ecg.Signal {
	sig := ecg.Signal{
		Clean: make([]float64, n),
		P:     make([]bool, n),
		Q:     make([]bool, n),
		R:     make([]bool, n),
		S:     make([]bool, n),
		T:     make([]bool, n),
	}
	for i := range sig.Clean {
		sig.Clean[i] = float64(i%7) / 10
	}
	for _, i := range rAt {
		sig.R[i] = true
		if i > 2 {
			sig.P[i-2] = true
		}
	}
	return sig
}

type harness struct {
	session  *Session
	surfaces []*view.MemorySurface
	updates  []ecg.Override
}

func newHarness(t *testing.T, editing bool) *harness {
	t.Helper()
	h := &harness{}
	opts := Options{
		Capabilities:  Capabilities{Editing: editing},
		Peaks:         view.AllPeaks(),
		LoadAnimation: view.Animation{Duration: 400 * time.Millisecond},
		Surface: func() view.Surface {
			s := view.NewMemorySurface()
			h.surfaces = append(h.surfaces, s)
			return s
		},
	}
	if editing {
		opts.OnUpdate = func(o ecg.Override) error {
			h.updates = append(h.updates, o)
			return nil
		}
	}
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	h.session = s
	return h
}

func (h *harness) surface() *view.MemorySurface { return h.surfaces[len(h.surfaces)-1] }

func TestNewSessionRequiresCallbackForEditing(t *testing.T) {
	_, err := NewSession(Options{Capabilities: Capabilities{Editing: true}})
	if !errors.Is(err, ErrMissingCallback) {
		t.Fatalf("NewSession() error = %v, want ErrMissingCallback", err)
	}
}

func TestViewportStableAcrossTogglesAndSelection(t *testing.T) {
	h := newHarness(t, false)
	if err := h.session.Load("rec-1", testSignal(100, 10, 30, 50, 70), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	surf := h.surface()
	if got := surf.Bounds; got != (view.ViewportBounds{Min: 0, Max: 99}) {
		t.Fatalf("initial bounds = %+v", got)
	}
	if surf.Redraws[0].Duration == 0 {
		t.Fatal("first load should animate")
	}

	zoomed := h.session.Zoom(0.5, 50)
	if zoomed.Width() >= 99 {
		t.Fatalf("zoom did not narrow the window: %+v", zoomed)
	}

	h.session.TogglePeak(ecg.PeakP)
	if surf.Bounds != zoomed {
		t.Fatalf("bounds after toggle = %+v, want %+v", surf.Bounds, zoomed)
	}
	if err := h.session.Select("R2"); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if surf.Bounds != zoomed || h.session.State().Viewport != zoomed {
		t.Fatalf("bounds after select = %+v, want %+v", surf.Bounds, zoomed)
	}
	if last := surf.Redraws[len(surf.Redraws)-1]; last != view.NoAnimation {
		t.Fatalf("selection redraw animated: %+v", last)
	}
	for _, s := range surf.Series {
		if s.Peak == ecg.PeakP {
			t.Fatal("P series should be hidden")
		}
	}

	if err := h.session.Load("rec-2", testSignal(50, 5, 25), nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !surf.Destroyed {
		t.Fatal("previous surface should be destroyed on load")
	}
	if got := h.surface().Bounds; got != (view.ViewportBounds{Min: 0, Max: 49}) {
		t.Fatalf("bounds after new load = %+v", got)
	}
	if h.session.State().Selection != "" {
		t.Fatal("new recording should clear the selection")
	}
	if h.session.State().Peaks.P {
		t.Fatal("peak switches carry over between recordings")
	}
}

func TestMarkerColoringPrecedence(t *testing.T) {
	h := newHarness(t, false)
	preds := ecg.NewPredictionSet([]ecg.Prediction{
		{ID: "1", IsNormal: true},
		{ID: "2", Classification: ecg.ClassV, V: 87.5},
	})
	_ = h.session.Load("rec", testSignal(60, 10, 30, 50), preds)
	palette := view.DefaultPalette()

	h.surface().Click("R1")
	if h.session.State().Selection != "R1" {
		t.Fatalf("click did not select: %q", h.session.State().Selection)
	}
	r1, _ := h.surface().Marker("R1")
	if r1.Color != palette.Correct {
		t.Fatalf("R1 color = %q, want prediction color %q", r1.Color, palette.Correct)
	}
	r2, _ := h.surface().Marker("R2")
	if r2.Color != palette.Anomaly {
		t.Fatalf("R2 color = %q, want %q", r2.Color, palette.Anomaly)
	}

	_ = h.session.Select("R3")
	r3, _ := h.surface().Marker("R3")
	if r3.Color != palette.Selected {
		t.Fatalf("R3 without prediction should use selection color, got %q", r3.Color)
	}

	h.session.SetPredictions(nil)
	r1, _ = h.surface().Marker("R1")
	if r1.Color != palette.Marker {
		t.Fatalf("R1 without predictions = %q, want default", r1.Color)
	}
}

func TestMarkerHoverAndClose(t *testing.T) {
	h := newHarness(t, false)
	_ = h.session.Load("rec", testSignal(40, 10, 30), nil)
	surf := h.surface()

	surf.Hover("R1", true)
	if surf.Pointer != view.PointerHand {
		t.Fatal("hover should show the hand pointer")
	}
	surf.Hover("R1", false)
	if surf.Pointer != view.PointerDefault {
		t.Fatal("leaving a marker should reset the pointer")
	}
	surf.Hover("R2", true)

	h.session.Close()
	if !surf.Destroyed || surf.Pointer != view.PointerDefault {
		t.Fatalf("close should reset pointer and destroy: %+v", surf)
	}
	if err := h.session.Load("rec", testSignal(10, 1), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Load after Close = %v", err)
	}
}

func TestSelectRejectsUnknownMarker(t *testing.T) {
	h := newHarness(t, false)
	_ = h.session.Load("rec", testSignal(20, 5), nil)
	if err := h.session.Select("R9"); !errors.Is(err, ErrUnknownMarker) {
		t.Fatalf("Select(R9) = %v", err)
	}
	if err := h.session.SelectNext(1); err != nil || h.session.State().Selection != "R1" {
		t.Fatalf("SelectNext = %v, selection %q", err, h.session.State().Selection)
	}
	if err := h.session.SelectNext(1); err != nil || h.session.State().Selection != "R1" {
		t.Fatalf("SelectNext should wrap on a single beat, got %q", h.session.State().Selection)
	}
}

func TestLengthMismatchRendersNothing(t *testing.T) {
	h := newHarness(t, false)
	sig := testSignal(10, 2)
	sig.T = sig.T[:9]
	if err := h.session.Load("bad", sig, nil); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var mismatch *ecg.LengthMismatchError
	if !errors.As(h.session.LoadWarning(), &mismatch) {
		t.Fatalf("LoadWarning() = %v", h.session.LoadWarning())
	}
	surf := h.surface()
	if len(surf.Series) != 0 || len(surf.Markers) != 0 {
		t.Fatalf("mismatched recording should render nothing: %d series %d markers", len(surf.Series), len(surf.Markers))
	}
}

func TestSingleEditorAndSave(t *testing.T) {
	h := newHarness(t, true)
	preds := ecg.NewPredictionSet([]ecg.Prediction{
		{ID: ecg.AggregateID, IsNormal: true},
		{ID: "1", IsNormal: true},
		{ID: "2", IsNormal: true},
	})
	_ = h.session.Load("rec", testSignal(60, 10, 30, 50), preds)

	var kinds []EventKind
	unsubscribe := h.session.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	defer unsubscribe()

	if _, err := h.session.OpenEditor(ecg.AggregateID); !errors.Is(err, editor.ErrAggregateRow) {
		t.Fatalf("OpenEditor(Overall) = %v", err)
	}
	e, err := h.session.OpenEditor("2")
	if err != nil {
		t.Fatalf("OpenEditor(2) error = %v", err)
	}
	if _, err := h.session.OpenEditor("3"); !errors.Is(err, ErrEditorOpen) {
		t.Fatalf("second OpenEditor = %v, want ErrEditorOpen", err)
	}

	e.ToggleAnomaly()
	if _, err := h.session.SaveEditor(); !errors.Is(err, editor.ErrIncomplete) {
		t.Fatalf("SaveEditor without class = %v", err)
	}
	if err := e.SelectClass(ecg.ClassF); err != nil {
		t.Fatalf("SelectClass() error = %v", err)
	}
	o, err := h.session.SaveEditor()
	if err != nil {
		t.Fatalf("SaveEditor() error = %v", err)
	}
	want := ecg.Override{ID: "2", IsNormal: false, Classification: ecg.ClassF}
	if o != want || len(h.updates) != 1 || h.updates[0] != want {
		t.Fatalf("updates = %+v, want one %+v", h.updates, want)
	}
	if h.session.Editor() != nil {
		t.Fatal("editor should be closed after save")
	}

	p, _ := h.session.Predictions().ForBeat(2)
	if p.IsNormal || p.Classification != ecg.ClassF {
		t.Fatalf("local prediction = %+v", p)
	}
	agg, _ := h.session.Predictions().Aggregate()
	if agg.IsNormal || agg.F != 33.3 {
		t.Fatalf("recomputed aggregate = %+v, want F 33.3 over 3 beats", agg)
	}
	r2, _ := h.surface().Marker("R2")
	if r2.Color != view.DefaultPalette().Anomaly {
		t.Fatalf("R2 color after override = %q", r2.Color)
	}

	if _, err := h.session.OpenEditor("3"); err != nil {
		t.Fatalf("OpenEditor(3) after save = %v", err)
	}
	h.session.CancelEditor()
	if len(h.updates) != 1 {
		t.Fatal("cancel must not call the update callback")
	}

	want2 := []EventKind{EventEditorOpened, EventEditorClosed, EventOverride, EventEditorOpened, EventEditorClosed}
	if len(kinds) != len(want2) {
		t.Fatalf("events = %v, want %v", kinds, want2)
	}
	for i := range want2 {
		if kinds[i] != want2[i] {
			t.Fatalf("events = %v, want %v", kinds, want2)
		}
	}
}

func TestEditingDisabled(t *testing.T) {
	h := newHarness(t, false)
	_ = h.session.Load("rec", testSignal(20, 5), nil)
	if _, err := h.session.OpenEditor("1"); !errors.Is(err, ErrEditingDisabled) {
		t.Fatalf("OpenEditor with editing off = %v", err)
	}
	for _, r := range h.session.Rows() {
		for _, c := range h.session.Columns() {
			if c.Cell(r).Editable {
				t.Fatalf("row %s offers edit with editing disabled", r.ID())
			}
		}
	}
}

func TestRowsFollowSort(t *testing.T) {
	h := newHarness(t, false)
	preds := ecg.NewPredictionSet([]ecg.Prediction{
		{ID: "1", Classification: ecg.ClassV, V: 10},
		{ID: "2", Classification: ecg.ClassV, V: 90},
	})
	_ = h.session.Load("rec", testSignal(40, 10, 30), preds)
	h.session.ToggleSort("V")
	sorting := h.session.ToggleSort("V")
	if !sorting.Desc {
		t.Fatal("second toggle should sort descending")
	}
	rows := h.session.Rows()
	if !rows[0].IsAggregate() || rows[1].ID() != "2" {
		t.Fatalf("rows = %s,%s", rows[0].ID(), rows[1].ID())
	}
}

func TestSaveRecomputesAggregateOverAllBeats(t *testing.T) {
	h := newHarness(t, true)
	preds := ecg.NewPredictionSet([]ecg.Prediction{
		{ID: ecg.AggregateID, Classification: ecg.ClassV, V: 25},
		{ID: "1", Classification: ecg.ClassV, V: 90},
	})
	if err := h.session.Load("rec", testSignal(80, 10, 30, 50, 70), preds); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	e, err := h.session.OpenEditor("2")
	if err != nil {
		t.Fatalf("OpenEditor(2) error = %v", err)
	}
	e.SetAnomaly(true)
	if err := e.SelectClass(ecg.ClassV); err != nil {
		t.Fatalf("SelectClass() error = %v", err)
	}
	if _, err := h.session.SaveEditor(); err != nil {
		t.Fatalf("SaveEditor() error = %v", err)
	}

	agg, ok := h.session.Predictions().Aggregate()
	if !ok || agg.V != 50 {
		t.Fatalf("aggregate V = %v, want 50 (2 V beats of 4)", agg.V)
	}
	rows := h.session.Rows()
	if got := rows[0].Prediction.V; got != 50 {
		t.Fatalf("Overall row V = %v, want 50", got)
	}
}
