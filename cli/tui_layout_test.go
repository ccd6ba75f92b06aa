package cli

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/store"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func hasLineContainingBoth(s, a, b string) bool {
	for _, line := range strings.Split(stripANSI(s), "\n") {
		if strings.Contains(line, a) && strings.Contains(line, b) {
			return true
		}
	}
	return false
}

func maxLineLen(s string) int {
	maxLen := 0
	for _, line := range strings.Split(stripANSI(s), "\n") {
		if width := lipgloss.Width(line); width > maxLen {
			maxLen = width
		}
	}
	return maxLen
}

func TestInitWizardRespectsViewportWidth(t *testing.T) {
	m := newInitUIModel("/tmp/project", config.DefaultConfig())
	m.width = 60
	m.height = 24

	out := m.View()
	if got := maxLineLen(out); got > 60 {
		t.Fatalf("init wizard too wide for viewport: max line %d, output=%q", got, out)
	}
	if !strings.Contains(stripANSI(out), "Env") || !strings.Contains(stripANSI(out), "Review") {
		t.Fatalf("step rail missing: %q", out)
	}
}

func TestStatusRecordingsListKeepsSelectionVisible(t *testing.T) {
	var recs []store.RecordingStats
	for i := 0; i < 40; i++ {
		recs = append(recs, store.RecordingStats{
			RecordingID: fmt.Sprintf("rec-%02d", i),
			Overrides:   1,
			LastSaved:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	m := model{
		cfg:               config.DefaultConfig(),
		state:             viewRecordings,
		stats:             &store.Stats{Backend: "gob"},
		recordings:        recs,
		selectedRecording: 30,
		height:            20,
	}

	out := stripANSI(m.View())
	if !strings.Contains(out, "> "+recs[30].RecordingID) {
		t.Fatalf("selected recording not visible:\n%s", out)
	}
	if !strings.Contains(out, "of 40 recordings") {
		t.Fatalf("missing scroll hint:\n%s", out)
	}
}
