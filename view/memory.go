package view

// MemorySurface is a headless Surface. It keeps the last series, markers
// and viewport it was given, which is all a non-graphical host needs.
type MemorySurface struct {
	Series    []Series
	Markers   []Marker
	Bounds    ViewportBounds
	Pointer   Pointer
	Redraws   []Animation
	Destroyed bool
	clickFn   func(string)
	hoverFn   func(string, bool)
}

// NewMemorySurface returns an empty headless surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{}
}

func (m *MemorySurface) SetSeries(series []Series) { m.Series = series }
func (m *MemorySurface) SetAnnotations(marks []Marker) { m.Markers = marks }
func (m *MemorySurface) Viewport() ViewportBounds { return m.Bounds }
func (m *MemorySurface) SetViewport(b ViewportBounds) { m.Bounds = b }
func (m *MemorySurface) SetPointer(p Pointer) { m.Pointer = p }
func (m *MemorySurface) Redraw(a Animation) { m.Redraws = append(m.Redraws, a) }

func (m *MemorySurface) OnMarkerClick(fn func(label string)) { m.clickFn = fn }

func (m *MemorySurface) OnMarkerHover(fn func(label string, entered bool)) { m.hoverFn = fn }

// Destroy drops the registered handlers.
func (m *MemorySurface) Destroy() {
	m.Destroyed = true
	m.clickFn = nil
	m.hoverFn = nil
}

// Click simulates a click on the marker with label.
func (m *MemorySurface) Click(label string) {
	if m.clickFn != nil {
		m.clickFn(label)
	}
}

// Hover simulates the pointer entering or leaving a marker.
func (m *MemorySurface) Hover(label string, entered bool) {
	if m.hoverFn != nil {
		m.hoverFn(label, entered)
	}
}

// Marker returns the marker with label.
func (m *MemorySurface) Marker(label string) (Marker, bool) {
	for _, mk := range m.Markers {
		if mk.Label == label {
			return mk, true
		}
	}
	return Marker{}, false
}
