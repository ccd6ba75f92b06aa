package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	ledgerLimit       = 300
	ledgerSourceWidth = 16
	ledgerSystem      = "system"
)

type ledgerEntry struct {
	source string
	at     time.Time
	level  string
	text   string
}

// ledgerModel is the scrolling activity log of a review: session events,
// store writes, reloads and captured log output.
type ledgerModel struct {
	viewport     viewport.Model
	entries      []ledgerEntry
	width        int
	height       int
	theme        tuiTheme
	paused       bool
	autoScroll   bool
	sourceFilter string
}

func newLedgerModel(theme tuiTheme) ledgerModel {
	vp := viewport.New(0, 0)
	return ledgerModel{
		viewport:   vp,
		entries:    make([]ledgerEntry, 0, ledgerLimit),
		theme:      theme,
		autoScroll: true,
	}
}

func (m ledgerModel) Update(msg tea.Msg) (ledgerModel, tea.Cmd) {
	var cmd tea.Cmd
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k", "pgup":
			m.autoScroll = false
		}
	}
	m.viewport, cmd = m.viewport.Update(msg)
	if m.viewport.AtBottom() {
		m.autoScroll = true
	}
	return m, cmd
}

func (m *ledgerModel) setSize(w, h int) {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.viewport.Height = h
	m.updateContent()
}

func (m *ledgerModel) addEntry(e ledgerEntry) {
	if e.at.IsZero() {
		e.at = time.Now()
	}
	if e.source == "" {
		e.source = ledgerSystem
	}
	m.entries = append(m.entries, e)
	if len(m.entries) > ledgerLimit {
		m.entries = m.entries[len(m.entries)-ledgerLimit:]
	}
	m.updateContent()
}

// setSourceFilter limits the view to one recording; "" shows everything.
func (m *ledgerModel) setSourceFilter(source string) {
	if m.sourceFilter == source {
		return
	}
	m.sourceFilter = source
	m.updateContent()
}

func (m *ledgerModel) togglePause() {
	m.paused = !m.paused
	if !m.paused {
		m.updateContent()
	}
}

func (m *ledgerModel) updateContent() {
	m.viewport.SetContent(m.renderContent())
	if m.autoScroll && !m.paused {
		m.viewport.GotoBottom()
	}
}

func (m ledgerModel) renderContent() string {
	var b strings.Builder
	for _, ev := range m.entries {
		if m.sourceFilter != "" && ev.source != m.sourceFilter && ev.source != ledgerSystem {
			continue
		}
		levelStyle := m.theme.info
		switch ev.level {
		case "warn":
			levelStyle = m.theme.warn
		case "error":
			levelStyle = m.theme.danger
		case "ok":
			levelStyle = m.theme.ok
		}
		fmt.Fprintf(&b, "%s %s %s %s\n",
			m.theme.muted.Render(ev.at.Format("15:04:05")),
			levelStyle.Render(strings.ToUpper(ev.level)),
			m.theme.muted.Render(truncateRunes(ev.source, ledgerSourceWidth)),
			ev.text)
	}
	return b.String()
}

func (m ledgerModel) View() string {
	return m.viewport.View()
}
