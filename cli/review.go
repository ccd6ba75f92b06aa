package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/alpkeskin/gotoon"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ViVse/ecg-v2/config"
	"github.com/ViVse/ecg-v2/ecg"
	"github.com/ViVse/ecg-v2/recording"
	"github.com/ViVse/ecg-v2/review"
	"github.com/ViVse/ecg-v2/store"
	"github.com/ViVse/ecg-v2/table"
	"github.com/ViVse/ecg-v2/watcher"
)

var (
	reviewPredictions string
	reviewNoUI        bool
	reviewNoWatch     bool
	reviewFormat      string
	reviewSort        string
	reviewDesc        bool
)

var reviewCmd = &cobra.Command{
	Use:   "review <recording.json>",
	Short: "Review a recording interactively",
	Long: `Open a recording in the interactive review UI.

The chart shows the cleaned signal, the P/Q/S/T peaks and one marker per
R peak. The table lists the predicted classification of every beat with
the Overall aggregate row first. Editing a beat stores an override that is
replayed the next time the recording is opened.

Navigation:
  h/l, +/-, 0  - Pan, zoom and reset the chart
  n/p          - Select the next or previous beat
  1-4          - Toggle P, Q, S and T peaks
  e            - Change the prediction of the selected beat
  tab          - Move focus between chart, table and activity
  q            - Quit

Without a terminal, or with --no-ui or --format json|toon, the table is
printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

var beatsCmd = &cobra.Command{
	Use:   "beats <recording.json>",
	Short: "List the beats of a recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runBeats,
}

var tableCmd = &cobra.Command{
	Use:   "table <recording.json>",
	Short: "Print the classification table of a recording",
	Args:  cobra.ExactArgs(1),
	RunE:  runTable,
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewPredictions, "predictions", "p", "", "Predictions JSON file (defaults to predictions embedded in the recording)")
	reviewCmd.Flags().BoolVar(&reviewNoUI, "no-ui", false, "Print the classification table instead of the interactive UI")
	reviewCmd.Flags().BoolVar(&reviewNoWatch, "no-watch", false, "Do not reload when the recording or predictions change")
	reviewCmd.Flags().StringVarP(&reviewFormat, "format", "f", "text", "Output format without UI: text, json or toon")

	for _, cmd := range []*cobra.Command{beatsCmd, tableCmd} {
		cmd.Flags().StringVarP(&reviewPredictions, "predictions", "p", "", "Predictions JSON file")
		cmd.Flags().StringVarP(&reviewFormat, "format", "f", "text", "Output format: text, json or toon")
	}
	tableCmd.Flags().StringVar(&reviewSort, "sort", string(table.ColumnRowID), "Sort column: id, isNormal, S, V, F or Q")
	tableCmd.Flags().BoolVar(&reviewDesc, "desc", false, "Sort descending")
}

func validateFormat(format string) error {
	switch format {
	case "", "text", "json", "toon":
		return nil
	}
	return fmt.Errorf("invalid format %q: use text, json or toon", format)
}

// loadedReview is a recording loaded into a session with stored overrides
// applied.
type loadedReview struct {
	projectRoot string
	cfg         *config.Config
	store       store.OverrideStore
	host        *reviewHost
	session     *review.Session
	recording   *recording.Recording
	replayed    int
}

func (l *loadedReview) Close() error {
	l.session.Close()
	return l.store.Close()
}

func openReview(ctx context.Context, recordingPath, predictionsPath string) (*loadedReview, error) {
	projectRoot, cfg, err := loadProject()
	if err != nil {
		return nil, err
	}
	rec, err := recording.Load(ctx, recordingPath, predictionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load recording: %w", err)
	}
	st, err := store.Open(ctx, cfg, projectRoot)
	if err != nil {
		return nil, err
	}
	preds, replayed, err := replayOverrides(ctx, st, rec)
	if err != nil {
		log.Printf("Warning: failed to replay overrides for %s: %v", rec.ID, err)
	}

	host := newReviewHost(st)
	sess, err := newReviewSession(cfg, host)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := sess.Load(rec.ID, rec.Signal, preds); err != nil {
		st.Close()
		return nil, err
	}
	return &loadedReview{
		projectRoot: projectRoot,
		cfg:         cfg,
		store:       st,
		host:        host,
		session:     sess,
		recording:   rec,
		replayed:    replayed,
	}, nil
}

func replayOverrides(ctx context.Context, st store.OverrideStore, rec *recording.Recording) (*ecg.PredictionSet, int, error) {
	ix, _ := ecg.Index(rec.Signal)
	return store.ReplayStored(ctx, st, rec.ID, rec.Predictions, len(ix.Beats))
}

func runReview(cmd *cobra.Command, args []string) error {
	if err := validateFormat(reviewFormat); err != nil {
		return err
	}
	useUI := shouldUseReviewUI(isInteractiveTerminal(), reviewNoUI, reviewFormat)
	if !useUI {
		return printTable(commandContext(cmd), cmd.OutOrStdout(), args[0], reviewPredictions, reviewFormat, review.ColumnSort{Column: table.ColumnRowID})
	}
	return runReviewUI(args[0], reviewPredictions, reviewNoWatch)
}

func runBeats(cmd *cobra.Command, args []string) error {
	if err := validateFormat(reviewFormat); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	l, err := openReview(ctx, args[0], reviewPredictions)
	if err != nil {
		return err
	}
	defer l.Close()

	report := l.session.BeatsReport()
	if reviewFormat == "json" || reviewFormat == "toon" {
		return writeEncoded(cmd.OutOrStdout(), report, reviewFormat)
	}
	_, err = io.WriteString(cmd.OutOrStdout(), renderBeatsSummary(report))
	return err
}

func runTable(cmd *cobra.Command, args []string) error {
	if err := validateFormat(reviewFormat); err != nil {
		return err
	}
	sorting, err := parseSort(reviewSort, reviewDesc)
	if err != nil {
		return err
	}
	return printTable(commandContext(cmd), cmd.OutOrStdout(), args[0], reviewPredictions, reviewFormat, sorting)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func parseSort(column string, desc bool) (review.ColumnSort, error) {
	for _, c := range table.SortableColumns {
		if strings.EqualFold(string(c), column) {
			return review.ColumnSort{Column: c, Desc: desc}, nil
		}
	}
	return review.ColumnSort{}, fmt.Errorf("invalid sort column %q", column)
}

func printTable(ctx context.Context, w io.Writer, recordingPath, predictionsPath, format string, sorting review.ColumnSort) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l, err := openReview(ctx, recordingPath, predictionsPath)
	if err != nil {
		return err
	}
	defer l.Close()

	l.session.SortBy(sorting)
	report := l.session.TableReport()
	if format == "json" || format == "toon" {
		return writeEncoded(w, report, format)
	}
	_, err = io.WriteString(w, renderReviewSummary(l.session.BeatsReport(), report, l.replayed))
	return err
}

func writeEncoded(w io.Writer, data any, format string) error {
	out, err := encodeReport(data, format)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func encodeReport(data any, format string) (string, error) {
	if format == "toon" {
		return gotoon.Encode(data)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func renderBeatsSummary(r review.BeatsReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recording: %s (%d samples, %d beats)\n", r.Recording, r.Samples, len(r.Beats))
	if r.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", r.Warning)
	}
	if len(r.Beats) == 0 {
		return b.String()
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-6s %7s %9s", "Beat", "Sample", "R")
	for _, kind := range ecg.PeakKinds {
		fmt.Fprintf(&b, " %7s", kind)
	}
	b.WriteString("  Label\n")
	for _, beat := range r.Beats {
		fmt.Fprintf(&b, "%-6s %7d %9.3f", beat.Label, beat.SampleIndex, beat.Amplitude)
		for _, kind := range ecg.PeakKinds {
			if v, ok := beat.Peaks[string(kind)]; ok {
				fmt.Fprintf(&b, " %7.3f", v)
			} else {
				fmt.Fprintf(&b, " %7s", table.Placeholder)
			}
		}
		label := table.Placeholder
		if beat.IsNormal != nil {
			label = "normal"
			if !*beat.IsNormal {
				label = beat.Class
			}
		}
		fmt.Fprintf(&b, "  %s\n", label)
	}
	return b.String()
}

// renderReviewSummary is the plain-text rendition of the review.
func renderReviewSummary(beats review.BeatsReport, t review.TableReport, replayed int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recording: %s\n", t.Recording)
	fmt.Fprintf(&b, "Samples: %d\n", beats.Samples)
	fmt.Fprintf(&b, "Beats: %d\n", len(beats.Beats))
	if replayed > 0 {
		fmt.Fprintf(&b, "Stored overrides: %d\n", replayed)
	}
	if beats.Warning != "" {
		fmt.Fprintf(&b, "Warning: %s\n", beats.Warning)
	}
	order := "asc"
	if t.Desc {
		order = "desc"
	}
	fmt.Fprintf(&b, "Sort: %s %s\n\n", t.Sort, order)

	fmt.Fprintf(&b, "%-9s %-7s %7s %7s %7s %7s\n", "Id", "Anomaly", "S", "V", "F", "Q")
	for _, r := range t.Rows {
		anomaly := "[ ]"
		if r.Anomaly {
			anomaly = "[x]"
		}
		fmt.Fprintf(&b, "%-9s %-7s %7s %7s %7s %7s\n", r.ID, anomaly, r.S, r.V, r.F, r.Q)
	}
	return b.String()
}

func runReviewUI(recordingPath, predictionsPath string, noWatch bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	l, err := openReview(ctx, recordingPath, predictionsPath)
	if err != nil {
		return err
	}
	defer l.Close()

	watching := shouldWatch(l.cfg.Watch.Enabled, noWatch, true)
	registerLogSource, resolveLogSource := newReviewLogSourceResolver(l.recording.ID)

	model := newReviewUIModel(reviewUIOptions{
		session:     l.session,
		host:        l.host,
		cancel:      cancel,
		source:      l.recording.Path,
		watching:    watching,
		backend:     l.cfg.Store.Backend,
		registerLog: registerLogSource,
		replayed:    l.replayed,
	})
	p := tea.NewProgram(model, reviewProgramOptions()...)

	restoreLogs := captureReviewLogs(p, resolveLogSource)
	defer restoreLogs()

	workerErrCh := make(chan error, 1)
	go func() {
		if !watching {
			workerErrCh <- nil
			return
		}
		workerErrCh <- runReviewWatcher(ctx, p, l.cfg, l.store, recordingPath, predictionsPath)
	}()

	_, runErr := p.Run()
	cancel()
	workerErr := <-workerErrCh

	if runErr != nil {
		return runErr
	}
	if workerErr != nil && !errors.Is(workerErr, context.Canceled) {
		return workerErr
	}
	return nil
}

// reviewMouseMode reports every mouse movement, not only drags, so marker
// hover reaches the chart.
var reviewMouseMode = tea.WithMouseAllMotion

func reviewProgramOptions() []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithAltScreen(), reviewMouseMode()}
}

// runReviewWatcher reloads the recording whenever its files change and
// hands the result to the UI.
func runReviewWatcher(ctx context.Context, p *tea.Program, cfg *config.Config, st store.OverrideStore, recordingPath, predictionsPath string) error {
	w, err := watcher.New(cfg.Watch.Debounce, recordingPath, predictionsPath)
	if err != nil {
		p.Send(reviewErrorMsg{err: fmt.Errorf("failed to start watcher: %w", err)})
		return nil
	}
	defer w.Close()
	go w.Run(ctx)
	sendReviewLedger(p, ledgerSystem, "info", "Watching "+recordingPath+" for changes")

	for change := range w.Events() {
		rec, err := recording.Load(ctx, recordingPath, predictionsPath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("Failed to reload %s: %v", change.Path, err)
			continue
		}
		preds, replayed, err := replayOverrides(ctx, st, rec)
		if err != nil {
			log.Printf("Warning: failed to replay overrides for %s: %v", rec.ID, err)
		}
		p.Send(reviewReloadMsg{
			path:      change.Path,
			recording: rec.ID,
			signal:    rec.Signal,
			preds:     preds,
			replayed:  replayed,
		})
	}
	return ctx.Err()
}

func sendReviewLedger(p *tea.Program, source, level, text string) {
	p.Send(reviewLedgerMsg{
		source: source,
		level:  level,
		text:   text,
	})
}

// reviewLogForwarder turns log output into ledger entries. Lines are
// queued and delivered from a separate goroutine since the session logs
// from inside Update, where a direct Send would block.
type reviewLogForwarder struct {
	resolveSource func(line string) string
	mu            sync.Mutex
	pending       string
	lines         chan reviewLedgerMsg
	done          chan struct{}
}

const reviewLogQueue = 256

func newReviewLogForwarder(send func(reviewLedgerMsg), resolveSource func(line string) string) *reviewLogForwarder {
	w := &reviewLogForwarder{
		resolveSource: resolveSource,
		lines:         make(chan reviewLedgerMsg, reviewLogQueue),
		done:          make(chan struct{}),
	}
	go func() {
		defer close(w.done)
		for msg := range w.lines {
			send(msg)
		}
	}()
	return w
}

func (w *reviewLogForwarder) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending += string(p)
	for {
		newline := strings.IndexByte(w.pending, '\n')
		if newline < 0 {
			break
		}
		line := strings.TrimSpace(w.pending[:newline])
		w.pending = w.pending[newline+1:]
		w.emitLine(line)
	}
	return len(p), nil
}

func (w *reviewLogForwarder) flush() {
	w.mu.Lock()
	line := strings.TrimSpace(w.pending)
	w.pending = ""
	w.emitLine(line)
	close(w.lines)
	w.mu.Unlock()
	<-w.done
}

func (w *reviewLogForwarder) emitLine(line string) {
	if line == "" {
		return
	}
	source := ledgerSystem
	if w.resolveSource != nil {
		if resolved := w.resolveSource(line); resolved != "" {
			source = resolved
		}
	}
	select {
	case w.lines <- reviewLedgerMsg{source: source, level: reviewLogLevel(line), text: line}:
	default:
	}
}

func reviewLogLevel(line string) string {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") {
		return "error"
	}
	if strings.Contains(lower, "warn") {
		return "warn"
	}
	return "info"
}

// newReviewLogSourceResolver attributes log lines to the recording they
// mention. Recordings loaded later are added with register.
func newReviewLogSourceResolver(initial ...string) (func(recordingID string), func(line string) string) {
	var mu sync.RWMutex
	known := make(map[string]bool, len(initial))
	for _, id := range initial {
		if id != "" {
			known[id] = true
		}
	}

	register := func(recordingID string) {
		if recordingID == "" {
			return
		}
		mu.Lock()
		known[recordingID] = true
		mu.Unlock()
	}

	resolve := func(line string) string {
		mu.RLock()
		defer mu.RUnlock()
		match := ""
		for id := range known {
			if strings.Contains(line, id) && len(id) > len(match) {
				match = id
			}
		}
		if match == "" {
			return ledgerSystem
		}
		return match
	}

	return register, resolve
}

func captureReviewLogs(p *tea.Program, resolveSource func(line string) string) func() {
	oldWriter := log.Writer()
	oldFlags := log.Flags()
	oldPrefix := log.Prefix()

	forwarder := newReviewLogForwarder(func(msg reviewLedgerMsg) { p.Send(msg) }, resolveSource)
	log.SetFlags(0)
	log.SetPrefix("")
	log.SetOutput(forwarder)

	return func() {
		log.SetOutput(oldWriter)
		log.SetFlags(oldFlags)
		log.SetPrefix(oldPrefix)
		forwarder.flush()
	}
}
