package view

import "time"

// Pointer is the transient cursor style shown over the surface.
type Pointer int

const (
	PointerDefault Pointer = iota
	PointerHand
)

// Animation controls the entry animation of a redraw. The zero value
// redraws without animation.
type Animation struct {
	Duration time.Duration
}

// NoAnimation is used for every redraw except a fresh load.
var NoAnimation = Animation{}

// Surface is the contract a charting backend satisfies. Implementations
// own pan/zoom gestures and report them through Viewport.
type Surface interface {
	SetSeries(series []Series)
	SetAnnotations(markers []Marker)
	Viewport() ViewportBounds
	SetViewport(b ViewportBounds)
	OnMarkerClick(fn func(label string))
	OnMarkerHover(fn func(label string, entered bool))
	SetPointer(p Pointer)
	Redraw(a Animation)
	// Destroy releases animation frames and handlers. The surface is not
	// used afterwards.
	Destroy()
}

// SurfaceFactory builds a fresh surface for each loaded recording.
type SurfaceFactory func() Surface
