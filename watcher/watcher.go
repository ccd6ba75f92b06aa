// Package watcher reports changes to recording and prediction files so a
// running review can reload them.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 300 * time.Millisecond

// Change is a debounced modification of one watched file.
type Change struct {
	Path string
	At   time.Time
}

// RecordingWatcher watches a fixed set of files. Parent directories are
// watched so editors that save by rename are still seen.
type RecordingWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	events   chan Change
}

// New starts watching paths. Empty paths are ignored.
func New(debounce time.Duration, paths ...string) (*RecordingWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	files := make(map[string]struct{})
	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	if len(files) == 0 {
		return nil, errors.New("no files to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return &RecordingWatcher{
		watcher:  fw,
		files:    files,
		debounce: debounce,
		events:   make(chan Change, len(files)),
	}, nil
}

// Events delivers debounced changes. It is closed when Run returns.
func (w *RecordingWatcher) Events() <-chan Change { return w.events }

// Run processes file events until ctx is done or the watcher is closed.
func (w *RecordingWatcher) Run(ctx context.Context) {
	defer close(w.events)

	pending := make(map[string]struct{})
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: recording watcher: %v", err)
		case now := <-timerC:
			timerC = nil
			for path := range pending {
				select {
				case w.events <- Change{Path: path, At: now}:
				case <-ctx.Done():
					return
				}
			}
			pending = make(map[string]struct{})
		}
	}
}

func (w *RecordingWatcher) relevant(ev fsnotify.Event) bool {
	if _, ok := w.files[filepath.Clean(ev.Name)]; !ok {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// Close stops the underlying watcher.
func (w *RecordingWatcher) Close() error {
	return w.watcher.Close()
}
