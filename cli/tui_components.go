package cli

import (
	"fmt"
	"strings"
)

// renderStepRail draws a numbered progress line such as
// "✓ Anomaly › 2 Class › 3 Save". Steps before current show a check mark.
func renderStepRail(theme tuiTheme, steps []string, current int) string {
	parts := make([]string, 0, len(steps))
	for i, step := range steps {
		switch {
		case i < current:
			parts = append(parts, theme.railDone.Render("✓ "+step))
		case i == current:
			parts = append(parts, theme.railCurrent.Render(fmt.Sprintf("%d %s", i+1, step)))
		default:
			parts = append(parts, theme.railPending.Render(fmt.Sprintf("%d %s", i+1, step)))
		}
	}
	return strings.Join(parts, theme.railPending.Render(" › "))
}

// renderNoticeCard shows a bordered message for an empty or blocked panel:
// the title, the reason the panel has nothing to show and the keys that
// lead out of it.
func renderNoticeCard(theme tuiTheme, title, reason, keys string, width int) string {
	if width < 20 {
		width = 20
	}
	inner := width - 4
	lines := []string{
		theme.subtitle.Render(truncateRunes(title, inner)),
		theme.muted.Render("Reason: ") + theme.text.Render(truncateRunes(reason, inner-8)),
		theme.info.Render("Keys: ") + theme.highlight.Render(truncateRunes(keys, inner-6)),
	}
	return theme.panel.Width(width).Render(strings.Join(lines, "\n"))
}

type checkItem struct {
	label string
	on    bool
}

// renderChecklist draws "[x] label" rows under a title, marking the row at
// cursor. A cursor outside items marks nothing.
func renderChecklist(theme tuiTheme, title string, items []checkItem, cursor, width int) string {
	if width < 20 {
		width = 20
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, theme.subtitle.Render(title))
	for i, it := range items {
		box := "[ ]"
		if it.on {
			box = "[x]"
		}
		row := truncateRunes(box+" "+it.label, width-6)
		if i == cursor {
			lines = append(lines, "> "+theme.highlight.Render(row))
			continue
		}
		lines = append(lines, "  "+theme.text.Render(row))
	}
	return theme.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

// panelHeights splits the rows under the header between the chart and the
// table/ledger row. The chart gets 45% but never fewer than 6 rows, and the
// table keeps at least 5.
func panelHeights(total int) (chart, panels int) {
	if total < 11 {
		return total / 2, total - total/2
	}
	chart = total * 45 / 100
	if chart < 6 {
		chart = 6
	}
	if total-chart < 5 {
		chart = total - 5
	}
	return chart, total - chart
}
