package cli

import (
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ViVse/ecg-v2/view"
)

// termSurface draws the review chart into a character grid. Wheel zoom is
// routed through the session so the minimum window applies.
type termSurface struct {
	series  []view.Series
	markers []view.Marker
	bounds  view.ViewportBounds
	pointer view.Pointer

	clickFn func(label string)
	hoverFn func(label string, entered bool)
	hovered string

	revealStart time.Time
	revealFor   time.Duration
	redraws     int
	destroyed   bool

	now func() time.Time
}

func newTermSurface() *termSurface {
	return &termSurface{now: time.Now}
}

func (s *termSurface) SetSeries(series []view.Series) { s.series = series }
func (s *termSurface) SetAnnotations(marks []view.Marker) { s.markers = marks }
func (s *termSurface) Viewport() view.ViewportBounds { return s.bounds }
func (s *termSurface) SetViewport(b view.ViewportBounds) { s.bounds = b }
func (s *termSurface) SetPointer(p view.Pointer) { s.pointer = p }

func (s *termSurface) OnMarkerClick(fn func(label string)) { s.clickFn = fn }
func (s *termSurface) OnMarkerHover(fn func(label string, entered bool)) { s.hoverFn = fn }

func (s *termSurface) Redraw(a view.Animation) {
	s.redraws++
	s.revealFor = a.Duration
	s.revealStart = s.now()
}

func (s *termSurface) Destroy() {
	s.destroyed = true
	s.clickFn = nil
	s.hoverFn = nil
	s.hovered = ""
	s.revealFor = 0
}

// animating reports whether the load animation is still revealing the
// waveform.
func (s *termSurface) animating() bool {
	if s.destroyed || s.revealFor <= 0 {
		return false
	}
	return s.now().Sub(s.revealStart) < s.revealFor
}

func (s *termSurface) revealed() float64 {
	if !s.animating() {
		return 1
	}
	return float64(s.now().Sub(s.revealStart)) / float64(s.revealFor)
}

// sampleAt maps a plot column to a sample position.
func (s *termSurface) sampleAt(col, width int) float64 {
	if width <= 1 {
		return s.bounds.Min
	}
	return s.bounds.Min + float64(col)/float64(width-1)*s.bounds.Width()
}

// columnOf maps a sample index to a plot column, -1 when outside the window.
func (s *termSurface) columnOf(index, width int) int {
	x := float64(index)
	if !s.bounds.Contains(x) || width <= 0 {
		return -1
	}
	w := s.bounds.Width()
	if w <= 0 {
		return 0
	}
	return int(math.Round((x - s.bounds.Min) / w * float64(width-1)))
}

// markerAt returns the marker drawn at col, allowing one column of slack.
func (s *termSurface) markerAt(col, width int) (view.Marker, bool) {
	best, bestDist := -1, 2
	for i, m := range s.markers {
		c := s.columnOf(m.Index, width)
		if c < 0 {
			continue
		}
		d := c - col
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return view.Marker{}, false
	}
	return s.markers[best], true
}

func (s *termSurface) click(col, width int) {
	if s.destroyed || s.clickFn == nil {
		return
	}
	if m, ok := s.markerAt(col, width); ok {
		s.clickFn(m.Label)
	}
}

func (s *termSurface) hover(col, width int) {
	if s.destroyed || s.hoverFn == nil {
		return
	}
	label := ""
	if m, ok := s.markerAt(col, width); ok {
		label = m.Label
	}
	if label == s.hovered {
		return
	}
	if s.hovered != "" {
		s.hoverFn(s.hovered, false)
	}
	s.hovered = label
	if label != "" {
		s.hoverFn(label, true)
	}
}

type surfaceCell struct {
	r  rune
	fg string
	bg string
}

// render draws the chart into width x height cells. The top row carries
// marker labels.
func (s *termSurface) render(width, height int) string {
	if width <= 0 || height <= 1 {
		return ""
	}
	if s.destroyed || len(s.series) == 0 {
		return lipgloss.NewStyle().Width(width).Height(height).Render("No signal")
	}

	grid := make([][]surfaceCell, height)
	for y := range grid {
		grid[y] = make([]surfaceCell, width)
		for x := range grid[y] {
			grid[y][x] = surfaceCell{r: ' '}
		}
	}

	plotTop := 1
	plotRows := height - plotTop
	lo, hi := s.amplitudeRange()
	rowOf := func(v float64) int {
		if hi <= lo {
			return plotTop + plotRows/2
		}
		r := int(math.Round((hi - v) / (hi - lo) * float64(plotRows-1)))
		return plotTop + clampInt(r, 0, plotRows-1)
	}

	visibleCols := int(math.Ceil(s.revealed() * float64(width)))

	for _, m := range s.markers {
		col := s.columnOf(m.Index, width)
		if col < 0 {
			continue
		}
		for y := plotTop; y < height; y++ {
			grid[y][col] = surfaceCell{r: '┊', fg: m.Color}
		}
		for i, r := range m.Label {
			if col+i >= width {
				break
			}
			grid[0][col+i] = surfaceCell{r: r, fg: m.LabelColor, bg: m.LabelBackground}
		}
	}

	for _, sr := range s.series {
		switch sr.Kind {
		case view.SeriesLine:
			s.drawLine(grid, sr, width, visibleCols, rowOf)
		case view.SeriesPoints:
			for _, p := range sr.Points {
				col := s.columnOf(p.Index, width)
				if col < 0 || col >= visibleCols {
					continue
				}
				grid[rowOf(p.Amplitude)][col] = surfaceCell{r: rune(sr.Peak[0]), fg: sr.Color}
			}
		}
	}

	lines := make([]string, height)
	for y, row := range grid {
		lines[y] = renderCells(row)
	}
	return strings.Join(lines, "\n")
}

func (s *termSurface) drawLine(grid [][]surfaceCell, sr view.Series, width, visibleCols int, rowOf func(float64) int) {
	prev := -1
	for col := 0; col < width && col < visibleCols; col++ {
		from := int(math.Floor(s.sampleAt(col, width)))
		to := int(math.Floor(s.sampleAt(col+1, width)))
		if to <= from {
			to = from + 1
		}
		vmin, vmax, ok := pointRange(sr, from, to)
		if !ok {
			prev = -1
			continue
		}
		top, bottom := rowOf(vmax), rowOf(vmin)
		if prev >= 0 {
			top = minInt(top, prev)
			bottom = maxInt(bottom, prev)
		}
		for y := top; y <= bottom; y++ {
			grid[y][col] = surfaceCell{r: '│', fg: sr.Color}
		}
		if top == bottom {
			grid[top][col] = surfaceCell{r: '─', fg: sr.Color}
		}
		prev = rowOf((vmin + vmax) / 2)
	}
}

func pointRange(sr view.Series, from, to int) (float64, float64, bool) {
	if from < 0 {
		from = 0
	}
	if to > len(sr.Points) {
		to = len(sr.Points)
	}
	if from >= to {
		return 0, 0, false
	}
	lo, hi := sr.Points[from].Amplitude, sr.Points[from].Amplitude
	for _, p := range sr.Points[from+1 : to] {
		lo = math.Min(lo, p.Amplitude)
		hi = math.Max(hi, p.Amplitude)
	}
	return lo, hi, true
}

func (s *termSurface) amplitudeRange() (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, sr := range s.series {
		if sr.Kind != view.SeriesLine {
			continue
		}
		for _, p := range sr.Points {
			if !s.bounds.Contains(float64(p.Index)) {
				continue
			}
			lo = math.Min(lo, p.Amplitude)
			hi = math.Max(hi, p.Amplitude)
		}
	}
	if math.IsInf(lo, 0) {
		return 0, 0
	}
	return lo, hi
}

// renderCells styles runs of equally colored cells together.
func renderCells(row []surfaceCell) string {
	var b strings.Builder
	start := 0
	for i := 1; i <= len(row); i++ {
		if i < len(row) && row[i].fg == row[start].fg && row[i].bg == row[start].bg {
			continue
		}
		run := make([]rune, 0, i-start)
		for _, c := range row[start:i] {
			run = append(run, c.r)
		}
		b.WriteString(cellStyle(row[start].fg, row[start].bg).Render(string(run)))
		start = i
	}
	return b.String()
}

func cellStyle(fg, bg string) lipgloss.Style {
	st := lipgloss.NewStyle()
	if c, ok := paletteColor(fg); ok {
		st = st.Foreground(c)
	}
	if c, ok := paletteColor(bg); ok {
		st = st.Background(c)
	}
	return st
}

var namedColors = map[string]string{
	"red":       "#E06B75",
	"blue":      "#65B5FF",
	"green":     "#63C17A",
	"black":     "#8FA0B3",
	"white":     "#FFFFFF",
	"lightgray": "#6E7B88",
	"gray":      "#6E7B88",
	"orange":    "#E7B65A",
}

// paletteColor maps palette names to terminal colors. Hex values pass
// through; translucent label backgrounds become the panel border color.
func paletteColor(name string) (lipgloss.Color, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", false
	case strings.HasPrefix(name, "#"):
		return lipgloss.Color(name), true
	case strings.HasPrefix(name, "rgba("):
		return lipgloss.Color("#3D4752"), true
	}
	if hex, ok := namedColors[name]; ok {
		return lipgloss.Color(hex), true
	}
	return "", false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
