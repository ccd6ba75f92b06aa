package review

import (
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/editor"
	"github.com/ViVse/ecg-v2/table"
	"github.com/ViVse/ecg-v2/view"
)

var (
	ErrEditorOpen    = errors.New("another beat is already being edited")
	ErrNoEditor      = errors.New("no editor is open")
	ErrUnknownMarker = errors.New("no beat with that marker label")
	ErrClosed        = errors.New("review session is closed")
)

// EventKind names a state change.
type EventKind int

const (
	EventLoaded EventKind = iota
	EventPredictions
	EventSelection
	EventPeaks
	EventViewport
	EventPointer
	EventEditorOpened
	EventEditorClosed
	EventOverride
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventPredictions:
		return "predictions"
	case EventSelection:
		return "selection"
	case EventPeaks:
		return "peaks"
	case EventViewport:
		return "viewport"
	case EventPointer:
		return "pointer"
	case EventEditorOpened:
		return "editor-opened"
	case EventEditorClosed:
		return "editor-closed"
	case EventOverride:
		return "override"
	case EventClosed:
		return "closed"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered to observers after a transition completes.
type Event struct {
	Kind     EventKind
	State    view.State
	Override *ecg.Override
	Pointer  view.Pointer
	Warning  error
}

// Observer receives events synchronously, in subscription order.
type Observer func(Event)

// Options configure a Session.
type Options struct {
	Capabilities  Capabilities
	OnUpdate      UpdateFunc
	Surface       view.SurfaceFactory
	Palette       view.Palette
	Peaks         view.PeakToggles
	LoadAnimation view.Animation
	MinWindow     float64
}

// Session is the single owner of one review's state. It is not safe for
// concurrent use; hosts deliver events one at a time.
type Session struct {
	id      string
	opts    Options
	bridge  *Bridge
	factory view.SurfaceFactory

	indexed  ecg.Indexed
	preds    *ecg.PredictionSet
	state    view.State
	viewport *view.ViewportController
	surface  view.Surface
	warning  error

	edit     *editor.Editor
	sortCol  table.ColumnID
	sortDesc bool

	observers []subscription
	nextObs   int
	closed    bool
}

type subscription struct {
	id int
	fn Observer
}

// NewSession validates the capability flag against the callback.
func NewSession(opts Options) (*Session, error) {
	bridge, err := NewBridge(opts.Capabilities, opts.OnUpdate)
	if err != nil {
		return nil, err
	}
	if opts.Palette.Waveform == "" {
		opts.Palette = view.DefaultPalette()
	}
	factory := opts.Surface
	if factory == nil {
		factory = func() view.Surface { return view.NewMemorySurface() }
	}
	return &Session{
		id:       uuid.NewString(),
		opts:     opts,
		bridge:   bridge,
		factory:  factory,
		state:    view.NewState("", opts.Peaks),
		viewport: view.NewViewportController(opts.MinWindow),
		sortCol:  table.ColumnRowID,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Editing reports whether edit affordances are enabled.
func (s *Session) Editing() bool { return s.bridge.Editing() }

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Observer) func() {
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) notify(ev Event) {
	ev.State = s.State()
	for _, sub := range append([]subscription(nil), s.observers...) {
		sub.fn(ev)
	}
}

// Load replaces the recording. The previous surface is torn down before a
// new one is built, the viewport is reset to the full range and the chart
// animates in. Mismatched signal arrays are logged and render nothing.
func (s *Session) Load(recordingID string, sig ecg.Signal, preds *ecg.PredictionSet) error {
	if s.closed {
		return ErrClosed
	}
	s.teardown()

	indexed, err := ecg.Index(sig)
	s.warning = nil
	if err != nil {
		log.Printf("Warning: recording %s: %v", recordingID, err)
		s.warning = err
	}
	s.indexed = indexed
	s.preds = preds
	s.state = view.NewState(recordingID, s.state.Peaks)
	if s.edit != nil {
		s.edit.Cancel()
		s.edit = nil
	}

	s.surface = s.factory()
	s.surface.OnMarkerClick(s.handleMarkerClick)
	s.surface.OnMarkerHover(s.handleMarkerHover)
	s.surface.SetSeries(s.Series())
	s.surface.SetAnnotations(s.Markers())
	s.viewport.Restore(s.surface, s.viewport.Reset(s.indexed.Len()))
	s.surface.Redraw(s.opts.LoadAnimation)

	s.notify(Event{Kind: EventLoaded, Warning: s.warning})
	return nil
}

// LoadWarning returns the data-quality warning of the last load, if any.
func (s *Session) LoadWarning() error { return s.warning }

func (s *Session) teardown() {
	if s.surface == nil {
		return
	}
	s.surface.SetPointer(view.PointerDefault)
	s.surface.Destroy()
	s.surface = nil
}

// SetPredictions swaps the prediction set without moving the viewport.
func (s *Session) SetPredictions(preds *ecg.PredictionSet) {
	s.preds = preds
	s.redraw()
	s.notify(Event{Kind: EventPredictions})
}

// redraw rebuilds the drawable series inside the viewport capture/restore
// window and repaints without animation.
func (s *Session) redraw() {
	if s.surface == nil {
		return
	}
	s.viewport.Redraw(s.surface, func() {
		s.surface.SetSeries(s.Series())
		s.surface.SetAnnotations(s.Markers())
	})
	s.surface.Redraw(view.NoAnimation)
}

// Surface returns the live drawable surface, nil before Load or after Close.
func (s *Session) Surface() view.Surface { return s.surface }

// Indexed returns the beat index of the loaded recording.
func (s *Session) Indexed() ecg.Indexed { return s.indexed }

// Beats returns the beats of the loaded recording.
func (s *Session) Beats() []ecg.Beat { return s.indexed.Beats }

// Predictions returns the current prediction set, possibly nil.
func (s *Session) Predictions() *ecg.PredictionSet { return s.preds }

// State returns a copy of the view-state record.
func (s *Session) State() view.State {
	st := s.state
	st.Viewport = s.viewport.Bounds()
	return st
}

// Palette returns the colors in use.
func (s *Session) Palette() view.Palette { return s.opts.Palette }

// Series returns the drawable series for the current state.
func (s *Session) Series() []view.Series {
	return view.BuildSeries(s.indexed, s.state.Peaks, s.opts.Palette)
}

// Markers returns the beat markers for the current state.
func (s *Session) Markers() []view.Marker {
	return view.BuildMarkers(s.indexed.Beats, s.preds, s.state.Selection, s.opts.Palette)
}

// Select highlights the beat with label. An empty label clears the
// selection. The chart repaints without animation.
func (s *Session) Select(label string) error {
	if label != "" {
		n, ok := ecg.ParseLabel(label)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMarker, label)
		}
		if _, ok := s.indexed.Beat(n); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMarker, label)
		}
	}
	if !s.state.Select(label) {
		return nil
	}
	s.redraw()
	s.notify(Event{Kind: EventSelection})
	return nil
}

// SelectNext moves the selection by step beats, wrapping at the ends.
func (s *Session) SelectNext(step int) error {
	n := len(s.indexed.Beats)
	if n == 0 {
		return nil
	}
	cur, ok := ecg.ParseLabel(s.state.Selection)
	if !ok {
		cur = 0
		if step < 0 {
			cur = n + 1
		}
	}
	next := ((cur-1+step)%n+n)%n + 1
	return s.Select(ecg.BeatLabel(next))
}

func (s *Session) handleMarkerClick(label string) {
	if err := s.Select(label); err != nil {
		log.Printf("Warning: marker click: %v", err)
	}
}

func (s *Session) handleMarkerHover(_ string, entered bool) {
	if s.surface == nil {
		return
	}
	p := view.PointerDefault
	if entered {
		p = view.PointerHand
	}
	s.surface.SetPointer(p)
	s.notify(Event{Kind: EventPointer, Pointer: p})
}

// SetPeakVisible shows or hides one point series. The viewport is kept.
func (s *Session) SetPeakVisible(kind ecg.PeakKind, visible bool) {
	if !s.state.SetPeakVisible(kind, visible) {
		return
	}
	s.redraw()
	s.notify(Event{Kind: EventPeaks})
}

// TogglePeak inverts one point series switch.
func (s *Session) TogglePeak(kind ecg.PeakKind) {
	s.SetPeakVisible(kind, !s.state.Peaks.Visible(kind))
}

// Viewport returns the visible window.
func (s *Session) Viewport() view.ViewportBounds {
	s.viewport.Capture(s.surface)
	return s.viewport.Bounds()
}

// Pan shifts the window by delta samples.
func (s *Session) Pan(delta float64) view.ViewportBounds {
	s.viewport.Capture(s.surface)
	return s.applyViewport(s.viewport.Pan(delta))
}

// Zoom scales the window around center; factor < 1 zooms in.
func (s *Session) Zoom(factor, center float64) view.ViewportBounds {
	s.viewport.Capture(s.surface)
	return s.applyViewport(s.viewport.Zoom(factor, center))
}

// SetViewport moves the window to b, clamped to the recording.
func (s *Session) SetViewport(b view.ViewportBounds) view.ViewportBounds {
	s.viewport.Restore(nil, b)
	return s.applyViewport(s.viewport.Bounds())
}

// ResetViewport shows the whole recording again.
func (s *Session) ResetViewport() view.ViewportBounds {
	return s.applyViewport(s.viewport.Full())
}

func (s *Session) applyViewport(b view.ViewportBounds) view.ViewportBounds {
	if s.surface != nil {
		s.viewport.Restore(s.surface, b)
		s.surface.Redraw(view.NoAnimation)
	}
	s.notify(Event{Kind: EventViewport})
	return s.viewport.Bounds()
}

// Columns returns the table definition for the session's capabilities.
func (s *Session) Columns() []table.Column {
	return table.Columns(s.Editing())
}

// Rows returns the table rows in the current sort order.
func (s *Session) Rows() []table.Row {
	return table.Sort(table.BuildRows(s.indexed.Beats, s.preds), s.sortCol, s.sortDesc)
}

// SortBy sets the active sort.
func (s *Session) SortBy(sorting ColumnSort) {
	s.sortCol, s.sortDesc = sorting.Column, sorting.Desc
}

// ToggleSort cycles the direction on column, starting ascending.
func (s *Session) ToggleSort(column table.ColumnID) ColumnSort {
	if column == s.sortCol {
		s.sortDesc = !s.sortDesc
	} else {
		s.sortCol, s.sortDesc = column, false
	}
	return s.Sorting()
}

// Sorting returns the active sort.
func (s *Session) Sorting() ColumnSort {
	return ColumnSort{Column: s.sortCol, Desc: s.sortDesc}
}

// ColumnSort is a sort column and direction.
type ColumnSort struct {
	Column table.ColumnID
	Desc   bool
}

// Editor returns the open editor, nil when none.
func (s *Session) Editor() *editor.Editor { return s.edit }

// OpenEditor starts editing the beat with id. Only one editor can be open.
func (s *Session) OpenEditor(id string) (*editor.Editor, error) {
	if !s.Editing() {
		return nil, ErrEditingDisabled
	}
	if s.edit != nil && s.edit.IsOpen() {
		return nil, ErrEditorOpen
	}
	if id == ecg.AggregateID {
		return nil, editor.ErrAggregateRow
	}
	n, err := beatOrdinal(id)
	if err != nil {
		return nil, err
	}
	if _, ok := s.indexed.Beat(n); !ok {
		return nil, fmt.Errorf("%w: %q", ecg.ErrUnknownBeat, id)
	}
	pred, ok := s.preds.ForBeat(n)
	if !ok {
		pred = ecg.Prediction{ID: id, IsNormal: true}
	}
	e, err := editor.Open(pred)
	if err != nil {
		return nil, err
	}
	s.edit = e
	s.notify(Event{Kind: EventEditorOpened})
	return e, nil
}

func beatOrdinal(id string) (int, error) {
	p := ecg.Prediction{ID: id}
	n, ok := p.Ordinal()
	if !ok {
		return 0, fmt.Errorf("%w: %q", ecg.ErrUnknownBeat, id)
	}
	return n, nil
}

// SaveEditor confirms the open editor through the bridge. On success the
// override is applied to the local prediction set, the aggregate row is
// recomputed and the chart repaints in place.
func (s *Session) SaveEditor() (ecg.Override, error) {
	if s.edit == nil || !s.edit.IsOpen() {
		return ecg.Override{}, ErrNoEditor
	}
	o, err := s.edit.Confirm(s.bridge)
	if err != nil {
		return ecg.Override{}, err
	}
	s.edit = nil
	s.notify(Event{Kind: EventEditorClosed})
	if err := s.ApplyOverride(o); err != nil {
		return o, err
	}
	return o, nil
}

// ApplyOverride merges o into the local predictions without invoking the
// host callback. Stored overrides are replayed through here on load.
func (s *Session) ApplyOverride(o ecg.Override) error {
	n, err := beatOrdinal(o.ID)
	if err != nil {
		return err
	}
	if _, ok := s.indexed.Beat(n); !ok {
		return fmt.Errorf("%w: %q", ecg.ErrUnknownBeat, o.ID)
	}
	next, err := s.preds.Apply(o)
	if err != nil {
		return err
	}
	s.preds = next.WithComputedAggregate(len(s.indexed.Beats))
	s.redraw()
	s.notify(Event{Kind: EventOverride, Override: &o})
	return nil
}

// CancelEditor closes the open editor without emitting.
func (s *Session) CancelEditor() {
	if s.edit == nil {
		return
	}
	s.edit.Cancel()
	s.edit = nil
	s.notify(Event{Kind: EventEditorClosed})
}

// Close releases the surface. The session cannot be loaded again.
func (s *Session) Close() {
	if s.closed {
		return
	}
	if s.edit != nil {
		s.edit.Cancel()
		s.edit = nil
	}
	s.teardown()
	s.closed = true
	s.notify(Event{Kind: EventClosed})
}

// AnomalyCounts returns beats per anomaly class in column order.
func (s *Session) AnomalyCounts() []ClassCount {
	counts := make(map[ecg.AnomalyClass]int)
	for _, p := range s.preds.Beats() {
		if !p.IsNormal {
			counts[p.Classification]++
		}
	}
	out := make([]ClassCount, 0, len(ecg.AnomalyClasses))
	for _, c := range ecg.AnomalyClasses {
		out = append(out, ClassCount{Class: c, Beats: counts[c]})
	}
	return out
}

// ClassCount is the number of beats labelled with one class.
type ClassCount struct {
	Class ecg.AnomalyClass
	Beats int
}
