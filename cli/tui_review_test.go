package cli

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/review"
	"github.com/ViVse/ecg-v2/store"
	"github.com/ViVse/ecg-v2/table"
	"github.com/ViVse/ecg-v2/view"
)

func reviewSignal(n int, rAt ...int) ecg.Signal {
	sig := ecg.Signal{
		Clean: make([]float64, n),
		P:     make([]bool, n),
		Q:     make([]bool, n),
		R:     make([]bool, n),
		S:     make([]bool, n),
		T:     make([]bool, n),
	}
	for i := range sig.Clean {
		sig.Clean[i] = float64(i%5) / 10
	}
	for _, i := range rAt {
		sig.R[i] = true
		sig.Clean[i] = 1
		if i >= 2 {
			sig.P[i-2] = true
		}
		if i+3 < n {
			sig.T[i+3] = true
		}
	}
	return sig
}

func testPredictionSet() *ecg.PredictionSet {
	return ecg.NewPredictionSet([]ecg.Prediction{
		{ID: ecg.AggregateID, IsNormal: false, Classification: ecg.ClassV, V: 33.3},
		{ID: "1", IsNormal: true},
		{ID: "2", IsNormal: false, Classification: ecg.ClassV, V: 87.5},
		{ID: "3", IsNormal: true},
	})
}

func newTestReviewModel(t *testing.T, editing bool, st store.OverrideStore) reviewUIModel {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Editing.Enabled = editing
	cfg.Display.AnimationMS = 0

	host := newReviewHost(st)
	sess, err := newReviewSession(cfg, host)
	if err != nil {
		t.Fatalf("newReviewSession() error = %v", err)
	}
	if err := sess.Load("rec-1", reviewSignal(60, 10, 30, 50), testPredictionSet()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m := newReviewUIModel(reviewUIOptions{session: sess, host: host, backend: "gob"})
	return resize(m, 120, 40)
}

func resize(m reviewUIModel, w, h int) reviewUIModel {
	next, _ := m.Update(tea.WindowSizeMsg{Width: w, Height: h})
	return next.(reviewUIModel)
}

func press(m reviewUIModel, keys ...string) (reviewUIModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "space":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(reviewUIModel)
	}
	return m, cmd
}

// collectMsgs runs cmd and any batched commands, skipping ticks.
func collectMsgs(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collectMsgs(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestReviewUIRendersPanels(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	out := stripANSI(m.View())

	for _, want := range []string{"recording=rec-1", "beats=3", "Waveform", "Classification", "Overall", "Anomaly classes", "Activity", "R1", "R2", "R3"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q:\n%s", want, out)
		}
	}
	if !hasLineContainingBoth(out, "Classification", "Anomaly classes") {
		t.Fatalf("wide layout should place table and class bars side by side:\n%s", out)
	}
	if got := maxLineLen(out); got > 120 {
		t.Fatalf("view width = %d, want <= 120", got)
	}
}

func TestReviewUIStacksPanelsOnNarrowWidth(t *testing.T) {
	m := resize(newTestReviewModel(t, true, nil), 70, 40)
	out := stripANSI(m.View())
	if hasLineContainingBoth(out, "Classification", "Activity") {
		t.Fatalf("narrow review UI should stack panels vertically:\n%s", out)
	}
	if got := maxLineLen(out); got > 70 {
		t.Fatalf("view width = %d, want <= 70", got)
	}
}

func TestReviewUIPeakToggleKeepsViewport(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "+", "l")
	before := m.session.Viewport()
	if before == (view.ViewportBounds{Min: 0, Max: 59}) {
		t.Fatalf("zoom and pan did not move the viewport: %+v", before)
	}

	m, _ = press(m, "1", "4")
	state := m.session.State()
	if state.Peaks.P || state.Peaks.T {
		t.Fatalf("P and T should be hidden: %+v", state.Peaks)
	}
	if after := m.session.Viewport(); after != before {
		t.Fatalf("viewport moved on peak toggle: %+v -> %+v", before, after)
	}
	for _, sr := range m.session.Series() {
		if sr.Name == "P Peaks" || sr.Name == "T Peaks" {
			t.Fatalf("hidden series %s still drawn", sr.Name)
		}
	}

	m, _ = press(m, "0")
	if got := m.session.Viewport(); got != (view.ViewportBounds{Min: 0, Max: 59}) {
		t.Fatalf("reset viewport = %+v", got)
	}
}

func TestReviewUINextBeatSelectsAndSyncsTable(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "n", "n")
	if sel := m.session.State().Selection; sel != "R2" {
		t.Fatalf("selection = %q, want R2", sel)
	}
	row := m.rows[m.table.Cursor()]
	if row.IsAggregate() || row.Ordinal != 2 {
		t.Fatalf("table cursor on %+v, want beat 2", row)
	}
	for _, mk := range m.session.Markers() {
		if mk.Label == "R2" && mk.Color != view.DefaultPalette().Anomaly {
			t.Fatalf("R2 color = %s, want the prediction color over selection", mk.Color)
		}
	}

	m, _ = press(m, "p", "p", "p")
	if sel := m.session.State().Selection; sel != "R2" {
		t.Fatalf("selection after wrapping back = %q, want R2", sel)
	}
}

func TestReviewUIEditPersistsOverride(t *testing.T) {
	ctx := context.Background()
	st := store.NewGOBStore(filepath.Join(t.TempDir(), "overrides.gob"))
	if err := st.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m := newTestReviewModel(t, true, st)

	m, _ = press(m, "n", "e")
	ed := m.session.Editor()
	if ed == nil || ed.ID() != "1" {
		t.Fatalf("editor not open on beat 1: %+v", ed)
	}
	out := stripANSI(m.View())
	if !strings.Contains(out, "Change prediction") || !strings.Contains(out, "Is anomaly?") {
		t.Fatalf("editor modal not rendered:\n%s", out)
	}

	m, _ = press(m, "space", "f")
	if !m.session.Editor().CanSave() {
		t.Fatal("anomaly with class F should be savable")
	}
	m, cmd := press(m, "enter")
	if m.session.Editor() != nil {
		t.Fatal("editor should close after save")
	}
	if m.unsaved != 1 {
		t.Fatalf("unsaved = %d, want 1", m.unsaved)
	}
	p, ok := m.session.Predictions().ForBeat(1)
	if !ok || p.IsNormal || p.Classification != ecg.ClassF {
		t.Fatalf("beat 1 prediction = %+v, want F", p)
	}

	var persisted bool
	for _, msg := range collectMsgs(cmd) {
		if pm, ok := msg.(reviewPersistedMsg); ok {
			persisted = true
			if pm.err != nil {
				t.Fatalf("persist error = %v", pm.err)
			}
			next, _ := m.Update(pm)
			m = next.(reviewUIModel)
		}
	}
	if !persisted {
		t.Fatal("save did not schedule a store write")
	}
	if m.saved != 1 || m.unsaved != 0 {
		t.Fatalf("saved=%d unsaved=%d, want 1/0", m.saved, m.unsaved)
	}

	records, err := st.ListOverrides(ctx, "rec-1")
	if err != nil {
		t.Fatalf("ListOverrides() error = %v", err)
	}
	if len(records) != 1 || records[0].Override.ID != "1" || records[0].Override.Classification != ecg.ClassF {
		t.Fatalf("stored records = %+v", records)
	}
}

func TestReviewUISaveDisabledUntilClassChosen(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "n", "e", "space")
	m, cmd := press(m, "enter")
	if m.session.Editor() == nil {
		t.Fatal("save without class should keep the editor open")
	}
	if len(collectMsgs(cmd)) != 0 {
		t.Fatal("no store write expected")
	}
	if out := stripANSI(m.View()); !strings.Contains(out, "Select a class") {
		t.Fatalf("class hint missing:\n%s", out)
	}

	// q picks class Q while the editor is open instead of quitting.
	m, _ = press(m, "q")
	if got := m.session.Editor().SelectedClass(); got != ecg.ClassQ {
		t.Fatalf("selected class = %q, want Q", got)
	}
	m, _ = press(m, "esc")
	if m.session.Editor() != nil {
		t.Fatal("esc should cancel the editor")
	}
	if p, _ := m.session.Predictions().ForBeat(1); !p.IsNormal {
		t.Fatal("cancel must not change the prediction")
	}
}

func TestReviewUIEditingDisabled(t *testing.T) {
	m := newTestReviewModel(t, false, nil)
	m, _ = press(m, "n", "e")
	if m.session.Editor() != nil {
		t.Fatal("editor opened with editing disabled")
	}
	last := m.ledger.entries[len(m.ledger.entries)-1]
	if last.level != "warn" || !strings.Contains(last.text, review.ErrEditingDisabled.Error()) {
		t.Fatalf("last ledger entry = %+v", last)
	}
}

func TestReviewUITableFocusEditsCursorRow(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "tab")
	if m.focus != focusTable {
		t.Fatalf("focus = %v, want table", m.focus)
	}

	// The aggregate row is first and cannot be edited.
	m, _ = press(m, "e")
	if m.session.Editor() != nil {
		t.Fatal("aggregate row must not open the editor")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(reviewUIModel)
	if sel := m.session.State().Selection; sel != "R1" {
		t.Fatalf("moving the table cursor should select R1, got %q", sel)
	}
	m, _ = press(m, "e")
	if ed := m.session.Editor(); ed == nil || ed.ID() != "1" {
		t.Fatalf("editor should open on the cursor row: %+v", ed)
	}
}

func TestReviewUISortKeys(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "s")
	if got := m.session.Sorting(); got.Column != table.ColumnIsNormal || got.Desc {
		t.Fatalf("sorting after s = %+v", got)
	}
	m, _ = press(m, "s", "s")
	if got := m.session.Sorting().Column; got != table.ColumnV {
		t.Fatalf("sort column = %s, want V", got)
	}
	m, _ = press(m, "r")
	if !m.session.Sorting().Desc {
		t.Fatal("r should reverse the sort")
	}
	if !m.rows[0].IsAggregate() {
		t.Fatal("aggregate row must stay first")
	}
	if m.rows[1].Ordinal != 2 {
		t.Fatalf("highest V beat should follow the aggregate, got %+v", m.rows[1])
	}
}

func TestReviewUIMouseSelectsAndHovers(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	col := m.host.surface.columnOf(30, m.chartW)
	if col < 0 {
		t.Fatal("marker R2 outside the chart")
	}
	x, y := m.chartX+col, m.chartY+1

	next, _ := m.Update(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone})
	m = next.(reviewUIModel)
	if m.pointer != view.PointerHand {
		t.Fatal("hovering a marker should show the hand pointer")
	}
	if out := stripANSI(m.View()); !strings.Contains(out, "pointer=hand") {
		t.Fatalf("header should show pointer state:\n%s", out)
	}

	next, _ = m.Update(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	m = next.(reviewUIModel)
	if sel := m.session.State().Selection; sel != "R2" {
		t.Fatalf("selection after click = %q, want R2", sel)
	}

	next, _ = m.Update(tea.MouseMsg{X: 0, Y: 0, Action: tea.MouseActionMotion, Button: tea.MouseButtonNone})
	m = next.(reviewUIModel)
	if m.pointer != view.PointerDefault {
		t.Fatal("leaving the chart should restore the default pointer")
	}

	next, _ = m.Update(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
	m = next.(reviewUIModel)
	if w := m.session.Viewport().Width(); w >= 59 {
		t.Fatalf("wheel up should zoom in, width = %v", w)
	}
}

func TestReviewUIWheelZoomRespectsMinWindow(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	minWindow := config.DefaultConfig().Display.MinWindow
	col := m.host.surface.columnOf(30, m.chartW)
	x, y := m.chartX+col, m.chartY+1

	for i := 0; i < 40; i++ {
		next, _ := m.Update(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelUp})
		m = next.(reviewUIModel)
	}
	b := m.session.Viewport()
	if b.Width() < minWindow {
		t.Fatalf("wheel zoomed to width %v, below the minimum window %v", b.Width(), minWindow)
	}
	if !b.Contains(30) {
		t.Fatalf("wheel zoom lost the sample under the cursor: %+v", b)
	}

	next, _ := m.Update(tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonWheelDown})
	m = next.(reviewUIModel)
	if w := m.session.Viewport().Width(); w <= b.Width() {
		t.Fatalf("wheel down should zoom out, width = %v", w)
	}
}

func TestReviewUIReloadResetsViewportKeepsPeaks(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "2", "+", "n")
	oldSurface := m.host.surface

	next, _ := m.Update(reviewReloadMsg{
		path:      "/tmp/rec-1.json",
		recording: "rec-1",
		signal:    reviewSignal(80, 10, 40, 70),
		preds:     testPredictionSet(),
		replayed:  2,
	})
	m = next.(reviewUIModel)

	if !oldSurface.destroyed {
		t.Fatal("previous surface should be destroyed on reload")
	}
	if got := m.session.Viewport(); got != (view.ViewportBounds{Min: 0, Max: 79}) {
		t.Fatalf("viewport after reload = %+v", got)
	}
	state := m.session.State()
	if state.Peaks.Q {
		t.Fatal("peak toggles should carry over")
	}
	if state.Selection != "" {
		t.Fatalf("selection should reset, got %q", state.Selection)
	}
	if !ledgerHas(m, "2 stored overrides") {
		t.Fatalf("reload not logged: %+v", m.ledger.entries)
	}
}

func TestReviewUIMismatchedSignalWarns(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	sig := reviewSignal(40, 10, 30)
	sig.T = sig.T[:20]

	next, _ := m.Update(reviewReloadMsg{recording: "rec-2", signal: sig, preds: testPredictionSet()})
	m = next.(reviewUIModel)
	if len(m.session.Beats()) != 0 {
		t.Fatal("mismatched signal should render no beats")
	}
	out := stripANSI(m.View())
	if !strings.Contains(out, "Warning:") || !strings.Contains(out, "No signal") || !strings.Contains(out, "No beats") {
		t.Fatalf("mismatch should show a warning and an empty chart:\n%s", out)
	}
}

func TestReviewUIPersistFailureIsLogged(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m.unsaved = 1
	next, _ := m.Update(reviewPersistedMsg{
		recording: "rec-1",
		override:  ecg.Override{ID: "2", IsNormal: true},
		err:       errors.New("disk full"),
	})
	m = next.(reviewUIModel)
	last := m.ledger.entries[len(m.ledger.entries)-1]
	if last.level != "error" || !strings.Contains(last.text, "disk full") {
		t.Fatalf("last ledger entry = %+v", last)
	}
	if m.unsaved != 0 || m.saved != 0 {
		t.Fatalf("saved=%d unsaved=%d", m.saved, m.unsaved)
	}
}

func TestReviewUISettingsTogglePeaks(t *testing.T) {
	m := newTestReviewModel(t, true, nil)
	m, _ = press(m, "o")
	if out := stripANSI(m.View()); !strings.Contains(out, "Settings") || !strings.Contains(out, "[x] 1 P Peaks") {
		t.Fatalf("settings panel missing:\n%s", out)
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(reviewUIModel)
	m, _ = press(m, "space")
	if m.session.State().Peaks.Q {
		t.Fatal("settings should toggle Q peaks")
	}
	m, _ = press(m, "esc")
	if m.showSettings {
		t.Fatal("esc should close settings")
	}
}

func TestReviewUIQuitCancelsContext(t *testing.T) {
	canceled := 0
	m := newTestReviewModel(t, true, nil)
	m.cancel = func() { canceled++ }
	_, cmd := press(m, "q")
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
	if canceled != 1 {
		t.Fatalf("cancel called %d times, want 1", canceled)
	}
}

func ledgerHas(m reviewUIModel, text string) bool {
	for _, e := range m.ledger.entries {
		if strings.Contains(e.text, text) {
			return true
		}
	}
	return false
}

func TestLedgerKeepsMostRecentEntries(t *testing.T) {
	l := newLedgerModel(newTUITheme())
	l.setSize(60, 10)
	for i := 0; i < ledgerLimit+5; i++ {
		l.addEntry(ledgerEntry{level: "info", text: "entry"})
	}
	if len(l.entries) != ledgerLimit {
		t.Fatalf("entries = %d, want %d", len(l.entries), ledgerLimit)
	}
	if l.entries[0].source != ledgerSystem {
		t.Fatalf("default source = %q", l.entries[0].source)
	}

	l.addEntry(ledgerEntry{source: "rec-9", level: "ok", text: "recording only"})
	l.setSourceFilter("rec-7")
	if strings.Contains(l.renderContent(), "recording only") {
		t.Fatal("source filter should hide other recordings")
	}
	l.setSourceFilter("")
	if !strings.Contains(l.renderContent(), "recording only") {
		t.Fatal("clearing the filter should show every entry")
	}
}

func TestReviewLogLevel(t *testing.T) {
	cases := map[string]string{
		"Warning: recording rec-1: length mismatch": "warn",
		"Failed to reload rec.json: EOF":            "error",
		"postgres error: connection refused":        "error",
		"Loaded rec-1":                              "info",
	}
	for line, want := range cases {
		if got := reviewLogLevel(line); got != want {
			t.Fatalf("reviewLogLevel(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestReviewLogForwarderSplitsLines(t *testing.T) {
	register, resolve := newReviewLogSourceResolver("rec-1")
	register("rec-10")

	var mu sync.Mutex
	var got []reviewLedgerMsg
	w := newReviewLogForwarder(func(msg reviewLedgerMsg) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	}, resolve)

	if _, err := w.Write([]byte("Warning: recording rec-10: bad flags\nplain")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write([]byte(" line\n\nFailed to store rec-1\ntrailing")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	w.flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 4 {
		t.Fatalf("forwarded %d lines, want 4: %+v", len(got), got)
	}
	if got[0].source != "rec-10" || got[0].level != "warn" {
		t.Fatalf("first line = %+v", got[0])
	}
	if got[1].text != "plain line" || got[1].source != ledgerSystem {
		t.Fatalf("second line = %+v", got[1])
	}
	if got[2].source != "rec-1" || got[2].level != "error" {
		t.Fatalf("third line = %+v", got[2])
	}
	if got[3].text != "trailing" {
		t.Fatalf("flushed line = %+v", got[3])
	}
}
