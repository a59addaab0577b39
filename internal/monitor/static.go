package monitor

import "sync"

// StaticWatcher replays a fixed list of events and then closes the
// stream. It backs one-shot scans, where the event source is a walk of
// the filesystem rather than a live watch.
type StaticWatcher struct {
	list     []Event
	events   chan Event
	errors   chan error
	shutdown chan struct{}
	stop     sync.Once
}

var _ Watcher = (*StaticWatcher)(nil)

// NewStaticWatcher creates a watcher that will deliver exactly the
// given events.
func NewStaticWatcher(events ...Event) *StaticWatcher {
	return &StaticWatcher{
		list:     events,
		events:   make(chan Event),
		errors:   make(chan error),
		shutdown: make(chan struct{}),
	}
}

// Start begins the replay. The event channel closes when the list is
// exhausted or Stop is called.
func (w *StaticWatcher) Start() error {
	go func() {
		defer close(w.events)
		for _, ev := range w.list {
			select {
			case w.events <- ev:
			case <-w.shutdown:
				return
			}
		}
	}()
	return nil
}

// Events returns the replay stream.
func (w *StaticWatcher) Events() <-chan Event { return w.events }

// Errors returns the error stream. A replay never produces errors.
func (w *StaticWatcher) Errors() <-chan error { return w.errors }

// Stop aborts an in-progress replay. Safe to call after the replay
// already finished.
func (w *StaticWatcher) Stop() error {
	w.stop.Do(func() {
		close(w.shutdown)
		close(w.errors)
	})
	return nil
}
