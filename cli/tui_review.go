package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	btable "github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/editor"
	"github.com/ViVse/ecg-v2/review"
	"github.com/ViVse/ecg-v2/store"
	"github.com/ViVse/ecg-v2/table"
	"github.com/ViVse/ecg-v2/view"
)

const (
	reviewAnimFrame   = 40 * time.Millisecond
	persistTimeout    = 10 * time.Second
	reviewHeaderRows  = 5
	reviewFooterRows  = 3
	reviewPanFraction = 0.25
	reviewZoomStep    = 0.8
	reviewNarrowWidth = 90
)

type reviewFocus int

const (
	focusChart reviewFocus = iota
	focusTable
	focusLedger
)

func (f reviewFocus) String() string {
	switch f {
	case focusTable:
		return "table"
	case focusLedger:
		return "ledger"
	}
	return "chart"
}

type reviewKeyMap struct {
	Quit      key.Binding
	Help      key.Binding
	Focus     key.Binding
	Up        key.Binding
	Down      key.Binding
	PanLeft   key.Binding
	PanRight  key.Binding
	ZoomIn    key.Binding
	ZoomOut   key.Binding
	ResetView key.Binding
	Next      key.Binding
	Prev      key.Binding
	Edit      key.Binding
	Sort      key.Binding
	Reverse   key.Binding
	Settings  key.Binding
	Peaks     key.Binding
	Pause     key.Binding
}

func newReviewKeyMap() reviewKeyMap {
	return reviewKeyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "focus"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		PanLeft: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "pan"),
		),
		PanRight: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "pan"),
		),
		ZoomIn: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "zoom in"),
		),
		ZoomOut: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "zoom out"),
		),
		ResetView: key.NewBinding(
			key.WithKeys("0"),
			key.WithHelp("0", "full view"),
		),
		Next: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "next beat"),
		),
		Prev: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "prev beat"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "enter"),
			key.WithHelp("e", "edit"),
		),
		Sort: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "sort column"),
		),
		Reverse: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reverse sort"),
		),
		Settings: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "settings"),
		),
		Peaks: key.NewBinding(
			key.WithKeys("1", "2", "3", "4"),
			key.WithHelp("1-4", "P/Q/S/T peaks"),
		),
		Pause: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "pause ledger"),
		),
	}
}

func (k reviewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Focus, k.Next, k.Edit, k.Peaks, k.Help}
}

func (k reviewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PanLeft, k.PanRight, k.ZoomIn, k.ZoomOut, k.ResetView},
		{k.Next, k.Prev, k.Up, k.Down, k.Focus},
		{k.Edit, k.Sort, k.Reverse, k.Settings, k.Peaks},
		{k.Pause, k.Help, k.Quit},
	}
}

type editorKeyMap struct {
	Toggle key.Binding
	ClassS key.Binding
	ClassV key.Binding
	ClassF key.Binding
	ClassQ key.Binding
	Save   key.Binding
	Cancel key.Binding
}

func newEditorKeyMap() editorKeyMap {
	return editorKeyMap{
		Toggle: key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle anomaly")),
		ClassS: key.NewBinding(key.WithKeys("s", "S"), key.WithHelp("s", "S")),
		ClassV: key.NewBinding(key.WithKeys("v", "V"), key.WithHelp("v", "V")),
		ClassF: key.NewBinding(key.WithKeys("f", "F"), key.WithHelp("f", "F")),
		ClassQ: key.NewBinding(key.WithKeys("q", "Q"), key.WithHelp("q", "Q")),
		Save:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "save")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

func (k editorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.ClassS, k.ClassV, k.ClassF, k.ClassQ, k.Save, k.Cancel}
}

func (k editorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func (k editorKeyMap) class(msg tea.KeyMsg) (ecg.AnomalyClass, bool) {
	switch {
	case key.Matches(msg, k.ClassS):
		return ecg.ClassS, true
	case key.Matches(msg, k.ClassV):
		return ecg.ClassV, true
	case key.Matches(msg, k.ClassF):
		return ecg.ClassF, true
	case key.Matches(msg, k.ClassQ):
		return ecg.ClassQ, true
	}
	return "", false
}

type reviewLedgerMsg struct {
	source string
	level  string
	text   string
}

type reviewReloadMsg struct {
	path      string
	recording string
	signal    ecg.Signal
	preds     *ecg.PredictionSet
	replayed  int
}

type reviewPersistedMsg struct {
	recording string
	override  ecg.Override
	err       error
}

type reviewAnimMsg struct {
	at time.Time
}

type reviewErrorMsg struct {
	err error
}

// reviewHost is the host side of a review session: it builds terminal
// surfaces, queues overrides for the store and collects session events.
// The session calls into it synchronously from Update.
type reviewHost struct {
	store   store.OverrideStore
	surface *termSurface
	pending []pendingOverride
	events  []review.Event
	current string
}

type pendingOverride struct {
	recording string
	override  ecg.Override
}

func newReviewHost(st store.OverrideStore) *reviewHost {
	if st == nil {
		st = store.NopStore{}
	}
	return &reviewHost{store: st}
}

func (h *reviewHost) newSurface() view.Surface {
	h.surface = newTermSurface()
	return h.surface
}

func (h *reviewHost) updatePrediction(o ecg.Override) error {
	h.pending = append(h.pending, pendingOverride{recording: h.current, override: o})
	return nil
}

func (h *reviewHost) observe(ev review.Event) {
	if ev.Kind == review.EventLoaded {
		h.current = ev.State.RecordingID
	}
	h.events = append(h.events, ev)
}

// newReviewSession wires a session to the host using the display and
// editing settings of cfg.
func newReviewSession(cfg *config.Config, host *reviewHost) (*review.Session, error) {
	sess, err := review.NewSession(review.Options{
		Capabilities:  review.Capabilities{Editing: cfg.Editing.Enabled},
		OnUpdate:      host.updatePrediction,
		Surface:       host.newSurface,
		Palette:       cfg.Display.Palette,
		Peaks:         cfg.Display.Peaks,
		LoadAnimation: cfg.Display.Animation(),
		MinWindow:     cfg.Display.MinWindow,
	})
	if err != nil {
		return nil, err
	}
	sess.Subscribe(host.observe)
	return sess, nil
}

func persistOverrideCmd(st store.OverrideStore, recordingID string, o ecg.Override) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		_, err := st.SaveOverride(ctx, recordingID, o)
		return reviewPersistedMsg{recording: recordingID, override: o, err: err}
	}
}

func reviewAnimCmd() tea.Cmd {
	return tea.Tick(reviewAnimFrame, func(at time.Time) tea.Msg {
		return reviewAnimMsg{at: at}
	})
}

type reviewUIOptions struct {
	session     *review.Session
	host        *reviewHost
	cancel      context.CancelFunc
	source      string
	watching    bool
	backend     string
	registerLog func(recordingID string)
	replayed    int
}

type reviewUIModel struct {
	theme    tuiTheme
	keys     reviewKeyMap
	editKeys editorKeyMap
	help     help.Model

	width  int
	height int

	session     *review.Session
	host        *reviewHost
	cancel      context.CancelFunc
	registerLog func(recordingID string)

	source   string
	watching bool
	backend  string

	focus          reviewFocus
	showSettings   bool
	settingsCursor int
	pointer        view.Pointer
	unsaved        int
	saved          int
	reloads        int

	table btable.Model
	rows  []table.Row

	ledger  ledgerModel
	classes classBarsModel

	chartX, chartY int
	chartW, chartH int
	bottomHeight   int

	err      error
	stopping bool
}

func newReviewUIModel(opts reviewUIOptions) reviewUIModel {
	theme := newTUITheme()
	h := help.New()
	h.Styles.ShortKey = theme.info
	h.Styles.ShortDesc = theme.help
	h.Styles.FullKey = theme.info
	h.Styles.FullDesc = theme.help

	t := btable.New(
		btable.WithFocused(false),
		btable.WithHeight(8),
	)
	t.SetStyles(btable.Styles{
		Header:   theme.tableHeader.Padding(0, 1),
		Cell:     theme.tableCell.Padding(0, 1),
		Selected: theme.tableActive,
	})

	host := opts.host
	if host == nil {
		host = newReviewHost(nil)
	}
	m := reviewUIModel{
		theme:       theme,
		keys:        newReviewKeyMap(),
		editKeys:    newEditorKeyMap(),
		help:        h,
		session:     opts.session,
		host:        host,
		cancel:      opts.cancel,
		registerLog: opts.registerLog,
		source:      opts.source,
		watching:    opts.watching,
		backend:     opts.backend,
		table:       t,
		ledger:      newLedgerModel(theme),
		classes:     newClassBarsModel(theme),
	}
	m.drainEvents()
	m.refreshTable()
	if opts.replayed > 0 {
		m.ledger.addEntry(ledgerEntry{
			source: m.session.State().RecordingID,
			level:  "info",
			text:   fmt.Sprintf("Applied %d stored overrides", opts.replayed),
		})
	}
	return m
}

func (m reviewUIModel) Init() tea.Cmd {
	if m.host.surface != nil && m.host.surface.animating() {
		return reviewAnimCmd()
	}
	return nil
}

func (m reviewUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalculateLayout()

	case tea.KeyMsg:
		if m.session.Editor() != nil {
			m.handleEditorKey(msg)
			break
		}
		cmd, quit := m.handleKey(msg)
		if quit {
			return m, tea.Quit
		}
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		if m.session.Editor() == nil {
			m.handleMouse(msg)
		}

	case reviewLedgerMsg:
		m.ledger.addEntry(ledgerEntry{source: msg.source, level: msg.level, text: msg.text})

	case reviewReloadMsg:
		if err := m.session.Load(msg.recording, msg.signal, msg.preds); err != nil {
			m.ledger.addEntry(ledgerEntry{level: "error", text: "Reload failed: " + err.Error()})
			break
		}
		m.reloads++
		note := "Reloaded " + msg.recording
		if msg.path != "" {
			note += " after change to " + msg.path
		}
		if msg.replayed > 0 {
			note += fmt.Sprintf(" (%d stored overrides)", msg.replayed)
		}
		m.ledger.addEntry(ledgerEntry{source: msg.recording, level: "info", text: note})
		cmds = append(cmds, reviewAnimCmd())

	case reviewPersistedMsg:
		if m.unsaved > 0 {
			m.unsaved--
		}
		if msg.err != nil {
			m.ledger.addEntry(ledgerEntry{
				source: msg.recording,
				level:  "error",
				text:   fmt.Sprintf("Failed to store override for beat %s: %v", msg.override.ID, msg.err),
			})
			break
		}
		m.saved++
		m.ledger.addEntry(ledgerEntry{
			source: msg.recording,
			level:  "ok",
			text:   fmt.Sprintf("Stored override for beat %s", msg.override.ID),
		})

	case reviewAnimMsg:
		if m.host.surface != nil && m.host.surface.animating() {
			cmds = append(cmds, reviewAnimCmd())
		}

	case reviewErrorMsg:
		m.err = msg.err
		m.ledger.addEntry(ledgerEntry{level: "error", text: msg.err.Error()})
	}

	cmds = append(cmds, m.drainHost()...)
	m.drainEvents()
	return m, tea.Batch(cmds...)
}

func (m *reviewUIModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.cancel != nil && !m.stopping {
			m.stopping = true
			m.cancel()
		}
		return nil, true
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.recalculateLayout()
	case key.Matches(msg, m.keys.Focus):
		m.focus = (m.focus + 1) % 3
		if m.focus == focusTable {
			m.table.Focus()
		} else {
			m.table.Blur()
		}
	case m.showSettings && msg.String() == "esc":
		m.showSettings = false
	case key.Matches(msg, m.keys.Settings):
		m.showSettings = !m.showSettings
	case m.showSettings && key.Matches(msg, m.keys.Up):
		m.settingsCursor = (m.settingsCursor + len(ecg.PeakKinds) - 1) % len(ecg.PeakKinds)
	case m.showSettings && key.Matches(msg, m.keys.Down):
		m.settingsCursor = (m.settingsCursor + 1) % len(ecg.PeakKinds)
	case m.showSettings && (msg.String() == " " || msg.String() == "space" || msg.String() == "enter"):
		m.session.TogglePeak(ecg.PeakKinds[m.settingsCursor])
	case key.Matches(msg, m.keys.Peaks):
		idx := int(msg.String()[0] - '1')
		if idx >= 0 && idx < len(ecg.PeakKinds) {
			m.session.TogglePeak(ecg.PeakKinds[idx])
		}
	case key.Matches(msg, m.keys.PanLeft):
		m.session.Pan(-m.session.Viewport().Width() * reviewPanFraction)
	case key.Matches(msg, m.keys.PanRight):
		m.session.Pan(m.session.Viewport().Width() * reviewPanFraction)
	case key.Matches(msg, m.keys.ZoomIn):
		m.zoom(reviewZoomStep)
	case key.Matches(msg, m.keys.ZoomOut):
		m.zoom(1 / reviewZoomStep)
	case key.Matches(msg, m.keys.ResetView):
		m.session.ResetViewport()
	case key.Matches(msg, m.keys.Next):
		m.logError(m.session.SelectNext(1))
	case key.Matches(msg, m.keys.Prev):
		m.logError(m.session.SelectNext(-1))
	case key.Matches(msg, m.keys.Edit):
		m.openEditor()
	case key.Matches(msg, m.keys.Sort):
		m.cycleSort()
	case key.Matches(msg, m.keys.Reverse):
		m.session.ToggleSort(m.session.Sorting().Column)
		m.refreshTable()
	case key.Matches(msg, m.keys.Pause):
		m.ledger.togglePause()
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		return m.scrollFocused(msg), false
	}
	return nil, false
}

func (m *reviewUIModel) scrollFocused(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		prev := m.table.Cursor()
		m.table, cmd = m.table.Update(msg)
		if m.table.Cursor() != prev {
			m.selectCursorRow()
		}
	case focusLedger:
		m.ledger, cmd = m.ledger.Update(msg)
	}
	return cmd
}

func (m *reviewUIModel) zoom(factor float64) {
	b := m.session.Viewport()
	m.session.Zoom(factor, b.Min+b.Width()/2)
}

// selectCursorRow highlights the chart marker of the table row under the
// cursor.
func (m *reviewUIModel) selectCursorRow() {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) || m.rows[i].IsAggregate() {
		return
	}
	m.logError(m.session.Select(ecg.BeatLabel(m.rows[i].Ordinal)))
}

func (m *reviewUIModel) cycleSort() {
	cur := m.session.Sorting().Column
	next := table.SortableColumns[0]
	for i, c := range table.SortableColumns {
		if c == cur {
			next = table.SortableColumns[(i+1)%len(table.SortableColumns)]
			break
		}
	}
	m.session.ToggleSort(next)
	m.refreshTable()
}

// editTarget is the table row under the cursor when the table has focus,
// otherwise the selected beat.
func (m *reviewUIModel) editTarget() string {
	if m.focus == focusTable {
		if i := m.table.Cursor(); i >= 0 && i < len(m.rows) {
			return m.rows[i].ID()
		}
		return ""
	}
	if n, ok := ecg.ParseLabel(m.session.State().Selection); ok {
		return strconv.Itoa(n)
	}
	return ""
}

func (m *reviewUIModel) openEditor() {
	id := m.editTarget()
	if id == "" {
		m.ledger.addEntry(ledgerEntry{level: "warn", text: "Select a beat to edit"})
		return
	}
	if _, err := m.session.OpenEditor(id); err != nil {
		level := "warn"
		if !errors.Is(err, editor.ErrAggregateRow) && !errors.Is(err, review.ErrEditingDisabled) {
			level = "error"
		}
		m.ledger.addEntry(ledgerEntry{level: level, text: fmt.Sprintf("Cannot edit %s: %v", id, err)})
	}
}

func (m *reviewUIModel) handleEditorKey(msg tea.KeyMsg) {
	ed := m.session.Editor()
	switch {
	case msg.String() == "ctrl+c":
		m.session.CancelEditor()
	case key.Matches(msg, m.editKeys.Cancel):
		m.session.CancelEditor()
	case key.Matches(msg, m.editKeys.Toggle):
		ed.ToggleAnomaly()
	case key.Matches(msg, m.editKeys.Save):
		if !ed.CanSave() {
			return
		}
		if _, err := m.session.SaveEditor(); err != nil {
			m.ledger.addEntry(ledgerEntry{level: "error", text: "Save failed: " + err.Error()})
		}
	default:
		if c, ok := m.editKeys.class(msg); ok && ed.ClassSelectorVisible() {
			m.logError(ed.SelectClass(c))
		}
	}
}

func (m *reviewUIModel) handleMouse(msg tea.MouseMsg) {
	s := m.host.surface
	if s == nil || m.chartW <= 0 {
		return
	}
	col, row := msg.X-m.chartX, msg.Y-m.chartY
	if col < 0 || col >= m.chartW || row < 0 || row >= m.chartH {
		s.hover(-m.chartW, m.chartW)
		return
	}
	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.session.Zoom(reviewZoomStep, s.sampleAt(col, m.chartW))
	case msg.Button == tea.MouseButtonWheelDown:
		m.session.Zoom(1/reviewZoomStep, s.sampleAt(col, m.chartW))
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		s.click(col, m.chartW)
	case msg.Action == tea.MouseActionMotion:
		s.hover(col, m.chartW)
	}
}

func (m *reviewUIModel) logError(err error) {
	if err != nil {
		m.ledger.addEntry(ledgerEntry{level: "warn", text: err.Error()})
	}
}

// drainHost turns overrides the session emitted into store writes.
func (m *reviewUIModel) drainHost() []tea.Cmd {
	if len(m.host.pending) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(m.host.pending))
	for _, p := range m.host.pending {
		m.unsaved++
		cmds = append(cmds, persistOverrideCmd(m.host.store, p.recording, p.override))
	}
	m.host.pending = nil
	return cmds
}

// drainEvents applies session events to the panels that mirror session
// state.
func (m *reviewUIModel) drainEvents() {
	events := m.host.events
	m.host.events = nil
	refresh := false
	for _, ev := range events {
		rec := ev.State.RecordingID
		switch ev.Kind {
		case review.EventLoaded:
			refresh = true
			if m.registerLog != nil {
				m.registerLog(rec)
			}
			m.ledger.setSourceFilter("")
			text := fmt.Sprintf("Loaded %s: %d samples, %d beats", rec, m.session.Indexed().Len(), len(m.session.Beats()))
			level := "ok"
			if ev.Warning != nil {
				text = "Loaded " + rec + " without beats: " + ev.Warning.Error()
				level = "warn"
			}
			m.ledger.addEntry(ledgerEntry{source: rec, level: level, text: text})
		case review.EventPredictions:
			refresh = true
		case review.EventOverride:
			refresh = true
			if ev.Override != nil {
				m.ledger.addEntry(ledgerEntry{source: rec, level: "info", text: describeOverride(*ev.Override)})
			}
		case review.EventSelection:
			m.syncTableCursor(ev.State.Selection)
		case review.EventPointer:
			m.pointer = ev.Pointer
		case review.EventClosed:
			m.pointer = view.PointerDefault
		}
	}
	if refresh {
		m.refreshTable()
	}
}

func describeOverride(o ecg.Override) string {
	if o.IsNormal {
		return fmt.Sprintf("Beat %s marked normal", o.ID)
	}
	return fmt.Sprintf("Beat %s classified %s", o.ID, o.Classification)
}

func (m *reviewUIModel) syncTableCursor(selection string) {
	n, ok := ecg.ParseLabel(selection)
	if !ok {
		return
	}
	for i, r := range m.rows {
		if !r.IsAggregate() && r.Ordinal == n {
			if m.table.Cursor() != i {
				m.table.SetCursor(i)
			}
			return
		}
	}
}

// refreshTable rebuilds the table rows and class bars from the session.
func (m *reviewUIModel) refreshTable() {
	cols := m.session.Columns()
	sorting := m.session.Sorting()
	widgetCols := make([]btable.Column, 0, len(cols))
	for _, c := range cols {
		title := c.Title
		if c.ID == table.ColumnAction && m.session.Editing() {
			title = "Edit"
		}
		if c.Sortable && c.ID == sorting.Column {
			if sorting.Desc {
				title += " ▼"
			} else {
				title += " ▲"
			}
		}
		widgetCols = append(widgetCols, btable.Column{Title: title, Width: c.Width})
	}

	m.rows = m.session.Rows()
	widgetRows := make([]btable.Row, 0, len(m.rows))
	for _, r := range m.rows {
		cells := make(btable.Row, 0, len(cols))
		for _, c := range cols {
			cells = append(cells, renderTableCell(c.Cell(r)))
		}
		widgetRows = append(widgetRows, cells)
	}
	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(widgetCols)
	m.table.SetRows(widgetRows)
	if cursor >= len(widgetRows) {
		cursor = len(widgetRows) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	m.table.SetCursor(cursor)

	m.classes.setCounts(m.session.AnomalyCounts(), len(m.session.Beats()))
}

func renderTableCell(c table.Cell) string {
	switch c.Kind {
	case table.CellCheckbox:
		if c.Checked {
			return "[x]"
		}
		return "[ ]"
	case table.CellAction:
		if c.Editable {
			return "✎"
		}
		return ""
	}
	return c.Text
}

func (m *reviewUIModel) recalculateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	m.help.Width = m.width - 4
	available := m.height - reviewHeaderRows - reviewFooterRows
	if m.help.ShowAll {
		available -= len(m.keys.FullHelp()[0]) - 1
	}
	top, bottom := panelHeights(available)
	m.bottomHeight = bottom

	// Chart panel: border and padding around a subtitle line and the plot.
	m.chartX = 2
	m.chartY = reviewHeaderRows + 2
	m.chartW = m.width - 4
	m.chartH = top - 3
	if m.chartH < 2 {
		m.chartH = 2
	}

	tableW, rightW := m.bottomWidths()
	tableRows := bottom - 5
	if m.stacked() {
		tableRows = bottom/2 - 5
	}
	if tableRows < 3 {
		tableRows = 3
	}
	m.table.SetHeight(tableRows)
	m.table.SetWidth(tableW - 4)

	ledgerW := rightW - 4
	ledgerH := bottom - m.classPanelHeight() - 3
	if m.stacked() {
		ledgerW = m.width - 6
		ledgerH = bottom - bottom/2 - 3
	}
	m.ledger.setSize(ledgerW, ledgerH)
	m.classes.setSize(ledgerW)
}

func (m reviewUIModel) stacked() bool {
	return m.width < reviewNarrowWidth
}

func (m reviewUIModel) bottomWidths() (int, int) {
	if m.stacked() {
		return m.width - 2, m.width - 2
	}
	left := minInt(76, (m.width-2)*2/3)
	return left, (m.width - 2) - left - 2
}

func (m reviewUIModel) classPanelHeight() int {
	return len(ecg.AnomalyClasses) + 3
}

func (m reviewUIModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading review UI..."
	}

	header := m.renderHeader()
	chart := m.renderChartPanel()
	bottom := m.renderBottomPanels()
	if ed := m.session.Editor(); ed != nil {
		bottom = lipgloss.Place(m.width, m.bottomHeight, lipgloss.Center, lipgloss.Center, m.renderEditor(ed))
	}
	footer := m.renderFooter()
	return m.theme.canvas.Render(lipgloss.JoinVertical(lipgloss.Left, header, chart, bottom, footer))
}

func (m reviewUIModel) renderHeader() string {
	state := m.session.State()
	selection := state.Selection
	if selection == "" {
		selection = "none"
	}
	title := m.theme.title.Render("ecgreview")
	meta := m.theme.muted.Render(truncateRunes(fmt.Sprintf(
		"recording=%s  samples=%d  beats=%d  selection=%s",
		state.RecordingID,
		m.session.Indexed().Len(),
		len(m.session.Beats()),
		selection,
	), m.width-6))

	editing := "off"
	if m.session.Editing() {
		editing = "on"
	}
	watch := "off"
	if m.watching {
		watch = "on"
	}
	pointer := "default"
	if m.pointer == view.PointerHand {
		pointer = "hand"
	}
	info := m.theme.text.Render(truncateRunes(fmt.Sprintf(
		"editing=%s  store=%s  watch=%s  focus=%s  pointer=%s  saved=%d  pending=%d",
		editing, m.backend, watch, m.focus, pointer, m.saved, m.unsaved,
	), m.width-6))
	if w := m.session.LoadWarning(); w != nil {
		info = m.theme.warn.Render(truncateRunes("Warning: "+w.Error(), m.width-6))
	}
	if m.err != nil {
		info = m.theme.danger.Render(truncateRunes("Error: "+m.err.Error(), m.width-6))
	}
	return m.theme.panel.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, title, meta, info))
}

func (m reviewUIModel) renderChartPanel() string {
	b := m.session.Viewport()
	peaks := make([]string, 0, len(ecg.PeakKinds))
	state := m.session.State()
	for _, kind := range ecg.PeakKinds {
		if state.Peaks.Visible(kind) {
			peaks = append(peaks, string(kind))
		}
	}
	shown := strings.Join(peaks, "")
	if shown == "" {
		shown = "none"
	}
	label := m.theme.subtitle.Render("Waveform")
	meta := m.theme.muted.Render(truncateRunes(fmt.Sprintf("  view=%.0f..%.0f  peaks=%s", b.Min, b.Max, shown), m.width-14))
	plot := ""
	if m.host.surface != nil {
		plot = m.host.surface.render(m.chartW, m.chartH)
	}
	style := m.theme.panel
	if m.focus == focusChart {
		style = m.theme.focused
	}
	return style.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, label+meta, plot))
}

func (m reviewUIModel) renderBottomPanels() string {
	tableW, rightW := m.bottomWidths()
	tablePanel := m.renderTablePanel(tableW)

	var right string
	if m.showSettings {
		right = m.renderSettingsPanel(rightW)
	} else {
		right = lipgloss.JoinVertical(lipgloss.Left,
			m.renderClassPanel(rightW),
			m.renderLedgerPanel(rightW, m.bottomHeight-m.classPanelHeight()-2),
		)
	}

	if m.stacked() {
		ledgerH := m.bottomHeight - m.bottomHeight/2 - 2
		if m.showSettings {
			right = m.renderSettingsPanel(m.width - 2)
		} else {
			right = m.renderLedgerPanel(m.width-2, ledgerH)
		}
		return lipgloss.JoinVertical(lipgloss.Left, tablePanel, right)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tablePanel, right)
}

func (m reviewUIModel) renderTablePanel(width int) string {
	sorting := m.session.Sorting()
	title := m.theme.subtitle.Render("Classification")
	hint := ""
	if col, ok := table.Find(m.session.Columns(), sorting.Column); ok && len(col.Tooltip) > 0 {
		hint = m.theme.muted.Render(truncateRunes(col.Title+": "+strings.Join(col.Tooltip, ", "), width-6))
	}
	style := m.theme.panel
	if m.focus == focusTable {
		style = m.theme.focused
	}
	parts := []string{title, m.table.View()}
	if len(m.session.Indexed().Beats) == 0 {
		parts = []string{title, renderNoticeCard(m.theme, "No beats", "The recording has no R peaks to classify.", "o settings | q quit", width-4)}
	} else if hint != "" {
		parts = append(parts, hint)
	}
	return style.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m reviewUIModel) renderClassPanel(width int) string {
	return m.theme.panel.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.subtitle.Render("Anomaly classes"),
		m.classes.View(),
	))
}

func (m reviewUIModel) renderLedgerPanel(width, height int) string {
	label := m.theme.subtitle.Render("Activity")
	if m.ledger.paused {
		label += m.theme.warn.Render(" [paused]")
	}
	style := m.theme.panel
	if m.focus == focusLedger {
		style = m.theme.focused
	}
	if height < 3 {
		height = 3
	}
	return style.Width(width).Height(height).Render(lipgloss.JoinVertical(lipgloss.Left, label, m.ledger.View()))
}

func (m reviewUIModel) renderSettingsPanel(width int) string {
	state := m.session.State()
	items := make([]checkItem, 0, len(ecg.PeakKinds))
	for i, kind := range ecg.PeakKinds {
		items = append(items, checkItem{label: fmt.Sprintf("%d %s Peaks", i+1, kind), on: state.Peaks.Visible(kind)})
	}
	return renderChecklist(m.theme, "Settings", items, m.settingsCursor, width)
}

func (m reviewUIModel) renderEditor(ed *editor.Editor) string {
	stage := 0
	if ed.IsAnomaly() {
		stage = 1
	}
	if ed.CanSave() {
		stage = 2
	}

	check := "[ ]"
	if ed.IsAnomaly() {
		check = "[x]"
	}
	lines := []string{
		m.theme.title.Render(editor.Title + " · beat " + ed.ID()),
		m.theme.muted.Render(editor.Description),
		"",
		renderStepRail(m.theme, []string{"Anomaly", "Class", "Save"}, stage),
		"",
		m.theme.text.Render(check + " " + editor.AnomalyLabel),
	}
	if ed.ClassSelectorVisible() {
		classes := make([]string, 0, len(ecg.AnomalyClasses))
		for _, c := range ecg.AnomalyClasses {
			if c == ed.SelectedClass() {
				classes = append(classes, m.theme.highlight.Render(" "+string(c)+" "))
			} else {
				classes = append(classes, m.theme.text.Render(" "+string(c)+" "))
			}
		}
		row := m.theme.text.Render(editor.ClassLabel+": ") + strings.Join(classes, " ")
		if ed.SelectedClass() == "" {
			row += m.theme.muted.Render("  " + editor.ClassHint)
		}
		lines = append(lines, row)
	}
	save := m.theme.disabled.Render("[ " + editor.SaveLabel + " ]")
	if ed.CanSave() {
		save = m.theme.highlight.Render("[ " + editor.SaveLabel + " ]")
	}
	lines = append(lines, "", save, "", m.help.ShortHelpView(m.editKeys.ShortHelp()))
	return m.theme.modal.Width(minInt(m.width-6, 76)).Render(strings.Join(lines, "\n"))
}

func (m reviewUIModel) renderFooter() string {
	parts := []string{m.help.View(m.keys)}
	if m.ledger.paused {
		parts = append(parts, m.theme.warn.Render("ledger paused"))
	}
	if m.unsaved > 0 {
		parts = append(parts, m.theme.warn.Render(fmt.Sprintf("saving=%d", m.unsaved)))
	}
	return m.theme.panel.Width(m.width - 2).Render(strings.Join(parts, "  |  "))
}
