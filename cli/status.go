package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/store"
)

var statusNoUI bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display override store status and browse stored overrides",
	Long: `Display statistics about the override store and interactively browse
the overrides saved for each recording.

Navigation:
  Enter    - Browse recordings / View overrides
  Esc      - Go back
  Up/Down  - Navigate
  q        - Quit`,
	RunE: runStatus,
}

type viewState int

const (
	viewStats viewState = iota
	viewRecordings
	viewOverrides
)

type model struct {
	st                store.OverrideStore
	cfg               *config.Config
	projectRoot       string
	state             viewState
	stats             *store.Stats
	recordings        []store.RecordingStats
	overrides         []store.OverrideRecord
	selectedRecording int
	selectedOverride  int
	width             int
	height            int
	err               error
}

func init() {
	statusCmd.Flags().BoolVar(&statusNoUI, "no-ui", false, "Print plain text summary instead of interactive UI")
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "esc":
			switch m.state {
			case viewRecordings:
				m.state = viewStats
			case viewOverrides:
				m.state = viewRecordings
			}

		case "enter":
			switch m.state {
			case viewStats:
				m.state = viewRecordings
			case viewRecordings:
				if len(m.recordings) > 0 {
					id := m.recordings[m.selectedRecording].RecordingID
					overrides, err := m.st.ListOverrides(context.Background(), id)
					if err != nil {
						m.err = err
					} else {
						m.overrides = overrides
						m.selectedOverride = 0
						m.state = viewOverrides
					}
				}
			}

		case "up", "k":
			switch m.state {
			case viewRecordings:
				if m.selectedRecording > 0 {
					m.selectedRecording--
				}
			case viewOverrides:
				if m.selectedOverride > 0 {
					m.selectedOverride--
				}
			}

		case "down", "j":
			switch m.state {
			case viewRecordings:
				if m.selectedRecording < len(m.recordings)-1 {
					m.selectedRecording++
				}
			case viewOverrides:
				if m.selectedOverride < len(m.overrides)-1 {
					m.selectedOverride++
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	switch m.state {
	case viewStats:
		return m.viewStats()
	case viewRecordings:
		return m.viewRecordings()
	case viewOverrides:
		return m.viewOverrides()
	}

	return ""
}

func (m model) viewStats() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("ecgreview override status"))
	sb.WriteString("\n\n")

	sb.WriteString(normalStyle.Render("Backend:          "))
	sb.WriteString(fmt.Sprintf("%s\n", m.stats.Backend))

	sb.WriteString(normalStyle.Render("Recordings:       "))
	sb.WriteString(fmt.Sprintf("%d\n", m.stats.Recordings))

	sb.WriteString(normalStyle.Render("Overrides:        "))
	sb.WriteString(fmt.Sprintf("%d\n", m.stats.Overrides))

	sb.WriteString(normalStyle.Render("Last saved:       "))
	if m.stats.LastSaved.IsZero() {
		sb.WriteString("Never\n")
	} else {
		sb.WriteString(fmt.Sprintf("%s\n", m.stats.LastSaved.Local().Format("2006-01-02 15:04:05")))
	}

	sb.WriteString(normalStyle.Render("Editing:          "))
	if m.cfg.Editing.Enabled {
		sb.WriteString("enabled\n")
	} else {
		sb.WriteString("disabled\n")
	}

	sb.WriteString(normalStyle.Render("Project:          "))
	sb.WriteString(fmt.Sprintf("%s\n", m.projectRoot))

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("[Enter] Browse recordings  [q] Quit"))

	return boxStyle.Render(sb.String())
}

func (m model) viewRecordings() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("Recordings (%d)", len(m.recordings))))
	sb.WriteString("\n\n")

	if len(m.recordings) == 0 {
		sb.WriteString(dimStyle.Render("No overrides stored yet"))
		sb.WriteString("\n\n")
		sb.WriteString(helpStyle.Render("[Esc] Back  [q] Quit"))
		return boxStyle.Render(sb.String())
	}

	start, end := visibleRange(m.selectedRecording, len(m.recordings), m.height)
	for i := start; i < end; i++ {
		r := m.recordings[i]
		line := fmt.Sprintf("%-36s %4d overrides  %s",
			truncateID(r.RecordingID, 36), r.Overrides, r.LastSaved.Local().Format("2006-01-02 15:04"))

		if i == m.selectedRecording {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString(normalStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}

	if end-start < len(m.recordings) {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("\n... showing %d-%d of %d recordings", start+1, end, len(m.recordings))))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("[Up/Down] Navigate  [Enter] View overrides  [Esc] Back  [q] Quit"))

	return boxStyle.Render(sb.String())
}

func (m model) viewOverrides() string {
	var sb strings.Builder

	id := m.recordings[m.selectedRecording].RecordingID
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d overrides)", id, len(m.overrides))))
	sb.WriteString("\n\n")

	if len(m.overrides) == 0 {
		sb.WriteString(dimStyle.Render("No overrides"))
		sb.WriteString("\n\n")
		sb.WriteString(helpStyle.Render("[Esc] Back  [q] Quit"))
		return boxStyle.Render(sb.String())
	}

	start, end := visibleRange(m.selectedOverride, len(m.overrides), m.height)
	for i := start; i < end; i++ {
		r := m.overrides[i]
		line := fmt.Sprintf("Beat %-6s %-8s %s", r.Override.ID, overrideLabel(r), r.SavedAt.Local().Format("2006-01-02 15:04:05"))
		if i == m.selectedOverride {
			sb.WriteString(selectedStyle.Render("> " + line))
		} else {
			sb.WriteString(normalStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(dimStyle.Render("Later saves for the same beat replace earlier ones on review."))
	sb.WriteString("\n\n")
	sb.WriteString(helpStyle.Render("[Up/Down] Navigate overrides  [Esc] Back to recordings  [q] Quit"))

	return boxStyle.Render(sb.String())
}

func overrideLabel(r store.OverrideRecord) string {
	if r.Override.IsNormal {
		return "normal"
	}
	return string(r.Override.Classification)
}

// visibleRange returns the window of a list that keeps selected on screen.
func visibleRange(selected, total, height int) (int, int) {
	maxVisible := 15
	if height > 0 {
		maxVisible = height - 10
	}
	if maxVisible < 5 {
		maxVisible = 5
	}
	start := 0
	if selected >= maxVisible {
		start = selected - maxVisible + 1
	}
	end := start + maxVisible
	if end > total {
		end = total
	}
	return start, end
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	projectRoot, err := config.FindProjectRoot()
	if err != nil {
		return err
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := store.Open(ctx, cfg, projectRoot)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	useUI := shouldUseStatusUI(isInteractiveTerminal(), statusNoUI)
	recordings, err := loadStatusRecordings(ctx, useUI, st.ListRecordings)
	if err != nil {
		return fmt.Errorf("failed to list recordings: %w", err)
	}

	if !useUI {
		fmt.Fprint(cmd.OutOrStdout(), renderStatusSummary(cfg, stats))
		return nil
	}

	m := model{
		st:          st,
		cfg:         cfg,
		projectRoot: projectRoot,
		state:       viewStats,
		stats:       stats,
		recordings:  recordings,
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func truncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return "..." + id[len(id)-maxLen+3:]
}

func renderStatusSummary(cfg *config.Config, stats *store.Stats) string {
	var sb strings.Builder
	sb.WriteString("ecgreview override status\n")
	sb.WriteString(fmt.Sprintf("Backend: %s\n", stats.Backend))
	sb.WriteString(fmt.Sprintf("Recordings: %d\n", stats.Recordings))
	sb.WriteString(fmt.Sprintf("Overrides: %d\n", stats.Overrides))
	if stats.LastSaved.IsZero() {
		sb.WriteString("Last saved: Never\n")
	} else {
		sb.WriteString(fmt.Sprintf("Last saved: %s\n", stats.LastSaved.Local().Format("2006-01-02 15:04:05")))
	}
	if cfg.Editing.Enabled {
		sb.WriteString("Editing: enabled\n")
	} else {
		sb.WriteString("Editing: disabled\n")
	}
	return sb.String()
}

func loadStatusRecordings(
	ctx context.Context,
	useUI bool,
	listFn func(context.Context) ([]store.RecordingStats, error),
) ([]store.RecordingStats, error) {
	if !useUI {
		return nil, nil
	}

	recordings, err := listFn(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].RecordingID < recordings[j].RecordingID
	})
	return recordings, nil
}
