package cli

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/review"
)

// classBarsModel shows how many beats carry each anomaly class.
type classBarsModel struct {
	bars   map[ecg.AnomalyClass]progress.Model
	counts []review.ClassCount
	total  int

	width int
	theme tuiTheme
}

func newClassBarsModel(theme tuiTheme) classBarsModel {
	bars := make(map[ecg.AnomalyClass]progress.Model, len(ecg.AnomalyClasses))
	for _, c := range ecg.AnomalyClasses {
		bars[c] = progress.New(
			progress.WithDefaultGradient(),
			progress.WithoutPercentage(),
		)
	}
	return classBarsModel{
		bars:  bars,
		theme: theme,
	}
}

func (m classBarsModel) Init() tea.Cmd {
	return nil
}

func (m classBarsModel) Update(msg tea.Msg) (classBarsModel, tea.Cmd) {
	return m, nil
}

func (m *classBarsModel) setSize(w int) {
	m.width = w
	// Label column plus " 999/999" status.
	available := w - 16
	if available < 10 {
		available = 10
	}
	for c, bar := range m.bars {
		bar.Width = available
		m.bars[c] = bar
	}
}

func (m *classBarsModel) setCounts(counts []review.ClassCount, total int) {
	m.counts = counts
	m.total = total
}

func (m classBarsModel) View() string {
	if len(m.counts) == 0 {
		return m.theme.muted.Render("No predictions")
	}
	rows := make([]string, 0, len(m.counts))
	for _, cc := range m.counts {
		pct := 0.0
		if m.total > 0 {
			pct = float64(cc.Beats) / float64(m.total)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Center,
			m.theme.text.Width(4).Render(string(cc.Class)),
			m.bars[cc.Class].ViewAs(pct),
			m.theme.muted.Render(fmt.Sprintf(" %d/%d", cc.Beats, m.total)),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
