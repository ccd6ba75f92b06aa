package view

import "math"

// ViewportBounds is the visible window on the sample axis.
type ViewportBounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Width returns Max-Min.
func (b ViewportBounds) Width() float64 { return b.Max - b.Min }

// Contains reports whether x lies inside the window.
func (b ViewportBounds) Contains(x float64) bool { return x >= b.Min && x <= b.Max }

// IsZero reports an unset window.
func (b ViewportBounds) IsZero() bool { return b.Min == 0 && b.Max == 0 }

// DefaultMinWindow is the smallest zoom window, in samples.
const DefaultMinWindow = 10

// ViewportController owns pan/zoom bounds across redraws of one recording.
type ViewportController struct {
	full      ViewportBounds
	bounds    ViewportBounds
	minWindow float64
}

// NewViewportController returns a controller with an empty range.
func NewViewportController(minWindow float64) *ViewportController {
	if minWindow <= 0 {
		minWindow = DefaultMinWindow
	}
	return &ViewportController{minWindow: minWindow}
}

// Reset shows the whole recording. Only a new-recording load calls this.
func (c *ViewportController) Reset(samples int) ViewportBounds {
	max := float64(samples - 1)
	if max < 0 {
		max = 0
	}
	c.full = ViewportBounds{Min: 0, Max: max}
	c.bounds = c.full
	return c.bounds
}

// Full returns the full recording range.
func (c *ViewportController) Full() ViewportBounds { return c.full }

// Bounds returns the current window.
func (c *ViewportController) Bounds() ViewportBounds { return c.bounds }

// Capture records the window currently shown on the surface. Gestures
// handled by the surface itself are picked up here.
func (c *ViewportController) Capture(s Surface) ViewportBounds {
	if s != nil {
		if b := s.Viewport(); !b.IsZero() || c.full.IsZero() {
			c.bounds = c.clamp(b)
		}
	}
	return c.bounds
}

// Restore reapplies captured bounds to the surface.
func (c *ViewportController) Restore(s Surface, b ViewportBounds) {
	c.bounds = c.clamp(b)
	if s != nil {
		s.SetViewport(c.bounds)
	}
}

// Redraw captures the window, runs rebuild, then puts the window back so
// that series changes never move the user's pan/zoom position.
func (c *ViewportController) Redraw(s Surface, rebuild func()) {
	captured := c.Capture(s)
	rebuild()
	c.Restore(s, captured)
}

// Pan shifts the window by delta samples, stopping at the recording edges.
func (c *ViewportController) Pan(delta float64) ViewportBounds {
	w := c.bounds.Width()
	next := ViewportBounds{Min: c.bounds.Min + delta, Max: c.bounds.Max + delta}
	if next.Min < c.full.Min {
		next = ViewportBounds{Min: c.full.Min, Max: c.full.Min + w}
	}
	if next.Max > c.full.Max {
		next = ViewportBounds{Min: c.full.Max - w, Max: c.full.Max}
	}
	c.bounds = c.clamp(next)
	return c.bounds
}

// Zoom scales the window around center. factor < 1 zooms in.
func (c *ViewportController) Zoom(factor, center float64) ViewportBounds {
	if factor <= 0 || math.IsNaN(factor) {
		return c.bounds
	}
	w := c.bounds.Width() * factor
	if w < c.minWindow {
		w = c.minWindow
	}
	if w > c.full.Width() {
		w = c.full.Width()
	}
	left := 0.5
	if c.bounds.Width() > 0 {
		left = (center - c.bounds.Min) / c.bounds.Width()
	}
	if left < 0 || left > 1 {
		left = 0.5
	}
	next := ViewportBounds{Min: center - w*left}
	next.Max = next.Min + w
	if next.Min < c.full.Min {
		next = ViewportBounds{Min: c.full.Min, Max: c.full.Min + w}
	}
	if next.Max > c.full.Max {
		next = ViewportBounds{Min: c.full.Max - w, Max: c.full.Max}
	}
	c.bounds = c.clamp(next)
	return c.bounds
}

func (c *ViewportController) clamp(b ViewportBounds) ViewportBounds {
	if c.full.IsZero() {
		return b
	}
	if b.Min < c.full.Min {
		b.Min = c.full.Min
	}
	if b.Max > c.full.Max {
		b.Max = c.full.Max
	}
	if b.Max < b.Min {
		b = c.full
	}
	return b
}
