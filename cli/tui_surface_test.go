package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/view"
)

func testSurface() *termSurface {
	s := newTermSurface()
	line := view.Series{Name: "ECG", Kind: view.SeriesLine, Color: "red"}
	for i := 0; i < 101; i++ {
		line.Points = append(line.Points, ecg.Point{Index: i, Amplitude: float64(i%10) / 10})
	}
	s.SetSeries([]view.Series{
		line,
		{Name: "P Peaks", Kind: view.SeriesPoints, Peak: ecg.PeakP, Color: "blue", Points: []ecg.Point{{Index: 48, Amplitude: 0.8}}},
	})
	s.SetAnnotations([]view.Marker{
		{Label: "R1", Ordinal: 1, Index: 10, Color: "lightgray"},
		{Label: "R2", Ordinal: 2, Index: 50, Color: "lightgray"},
		{Label: "R3", Ordinal: 3, Index: 90, Color: "lightgray"},
	})
	s.SetViewport(view.ViewportBounds{Min: 0, Max: 100})
	return s
}

func TestTermSurfaceColumnMapping(t *testing.T) {
	s := testSurface()
	if got := s.columnOf(0, 101); got != 0 {
		t.Fatalf("columnOf(0) = %d, want 0", got)
	}
	if got := s.columnOf(100, 101); got != 100 {
		t.Fatalf("columnOf(100) = %d, want 100", got)
	}
	s.SetViewport(view.ViewportBounds{Min: 20, Max: 60})
	if got := s.columnOf(10, 41); got != -1 {
		t.Fatalf("columnOf outside window = %d, want -1", got)
	}
	if got := s.sampleAt(0, 41); got != 20 {
		t.Fatalf("sampleAt(0) = %v, want 20", got)
	}
}

func TestTermSurfaceClickAndHover(t *testing.T) {
	s := testSurface()
	var clicked []string
	var hovers []string
	s.OnMarkerClick(func(label string) { clicked = append(clicked, label) })
	s.OnMarkerHover(func(label string, entered bool) {
		state := "leave"
		if entered {
			state = "enter"
		}
		hovers = append(hovers, label+":"+state)
	})

	s.click(51, 101)
	s.click(30, 101)
	if len(clicked) != 1 || clicked[0] != "R2" {
		t.Fatalf("clicked = %v, want [R2]", clicked)
	}

	s.hover(10, 101)
	s.hover(11, 101)
	s.hover(90, 101)
	s.hover(70, 101)
	want := []string{"R1:enter", "R1:leave", "R3:enter", "R3:leave"}
	if strings.Join(hovers, ",") != strings.Join(want, ",") {
		t.Fatalf("hovers = %v, want %v", hovers, want)
	}
}

func TestTermSurfaceDestroyDropsHandlers(t *testing.T) {
	s := testSurface()
	clicks := 0
	s.OnMarkerClick(func(string) { clicks++ })
	s.Destroy()
	s.click(50, 101)
	if clicks != 0 {
		t.Fatalf("click after destroy reached handler")
	}
	if out := s.render(40, 6); !strings.Contains(out, "No signal") {
		t.Fatalf("destroyed surface should render placeholder, got %q", out)
	}
}

func TestTermSurfaceRenderDrawsLabelsAndPeaks(t *testing.T) {
	s := testSurface()
	out := stripANSI(s.render(101, 8))
	lines := strings.Split(out, "\n")
	if len(lines) != 8 {
		t.Fatalf("rendered %d lines, want 8", len(lines))
	}
	for _, label := range []string{"R1", "R2", "R3"} {
		if !strings.Contains(lines[0], label) {
			t.Fatalf("label row %q missing %s", lines[0], label)
		}
	}
	if !strings.Contains(out, "P") {
		t.Fatalf("P peak not drawn: %q", out)
	}
	if !strings.Contains(out, "┊") {
		t.Fatalf("marker line not drawn: %q", out)
	}
	if maxLineLen(out) > 101 {
		t.Fatalf("render exceeds width: %d", maxLineLen(out))
	}
}

func TestTermSurfaceRevealAnimation(t *testing.T) {
	s := testSurface()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	s.now = func() time.Time { return now }

	s.Redraw(view.Animation{Duration: 400 * time.Millisecond})
	if !s.animating() {
		t.Fatal("expected load animation to run")
	}
	now = start.Add(200 * time.Millisecond)
	if got := s.revealed(); got < 0.49 || got > 0.51 {
		t.Fatalf("revealed() = %v, want 0.5", got)
	}
	now = start.Add(time.Second)
	if s.animating() || s.revealed() != 1 {
		t.Fatal("animation should be complete")
	}

	s.Redraw(view.NoAnimation)
	if s.animating() {
		t.Fatal("redraw without animation should not animate")
	}
}
