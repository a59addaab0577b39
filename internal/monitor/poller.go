package monitor

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 10 * time.Second

// PollWatcher detects changes by walking the roots on an interval and
// comparing modification times. It serves filesystems where native
// notification is unavailable, at the cost of latency up to one interval.
type PollWatcher struct {
	roots    []string
	interval time.Duration
	events   chan Event
	errors   chan error
	shutdown chan struct{}
	wg       sync.WaitGroup
	log      *zap.Logger

	// known maps path to last seen mod-time. Only the poll goroutine
	// touches it after Start primes the initial state.
	known map[string]time.Time
}

var _ Watcher = (*PollWatcher)(nil)

// NewPollWatcher creates a polling watcher over the given roots.
func NewPollWatcher(roots []string, interval time.Duration, log *zap.Logger) *PollWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PollWatcher{
		roots:    roots,
		interval: interval,
		events:   make(chan Event, eventBuffer),
		errors:   make(chan error, 1),
		shutdown: make(chan struct{}),
		log:      log,
		known:    make(map[string]time.Time),
	}
}

// Start records the current state of the roots and begins polling.
// Files that exist at startup are not reported; only changes after
// this call are.
func (w *PollWatcher) Start() error {
	w.sweep(false)
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Events returns the event stream. Closed after Stop.
func (w *PollWatcher) Events() <-chan Event { return w.events }

// Errors returns the error stream. The poller treats walk errors as
// transient and never emits here.
func (w *PollWatcher) Errors() <-chan error { return w.errors }

// Stop ends polling and closes the event and error channels.
func (w *PollWatcher) Stop() error {
	close(w.shutdown)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

func (w *PollWatcher) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			return
		case <-ticker.C:
			w.sweep(true)
		}
	}
}

// sweep walks every root once, updating known mod-times and, when emit
// is set, reporting new paths as created and newer mod-times as
// modified. Sends never block; a full buffer drops the event.
func (w *PollWatcher) sweep(emit bool) {
	seen := make(map[string]struct{}, len(w.known))
	dropped := 0

	for _, root := range w.roots {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}

			seen[path] = struct{}{}
			prev, ok := w.known[path]
			mod := info.ModTime()
			w.known[path] = mod

			if !emit {
				return nil
			}
			switch {
			case !ok:
				if !w.send(Event{Kind: KindCreated, Path: path}) {
					dropped++
				}
			case mod.After(prev):
				if !w.send(Event{Kind: KindModified, Path: path}) {
					dropped++
				}
			}
			return nil
		})
	}

	// Forget paths that disappeared so a reappearance counts as created.
	for path := range w.known {
		if _, ok := seen[path]; !ok {
			delete(w.known, path)
		}
	}

	if dropped > 0 {
		w.log.Warn("event buffer full, events dropped",
			zap.Int("count", dropped))
	}
}

func (w *PollWatcher) send(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	default:
		return false
	}
}
