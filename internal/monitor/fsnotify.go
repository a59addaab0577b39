package monitor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FSNotifyWatcher watches directory trees through the platform's native
// notification facility. Watches are added recursively, and directories
// created while watching are picked up on the fly. A file moved into the
// tree arrives as a create; in-place writes arrive as modified events,
// one per write burst, which downstream debouncing collapses.
type FSNotifyWatcher struct {
	roots    []string
	watcher  *fsnotify.Watcher
	events   chan Event
	errors   chan error
	shutdown chan struct{}
	wg       sync.WaitGroup
	log      *zap.Logger
}

var _ Watcher = (*FSNotifyWatcher)(nil)

// NewFSNotifyWatcher creates a watcher for the given root directories.
func NewFSNotifyWatcher(roots []string, log *zap.Logger) *FSNotifyWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &FSNotifyWatcher{
		roots:    roots,
		events:   make(chan Event, eventBuffer),
		errors:   make(chan error, 1),
		shutdown: make(chan struct{}),
		log:      log,
	}
}

// Start establishes watches on every directory under the roots and begins
// delivering events. A root that cannot be watched is a startup failure.
func (w *FSNotifyWatcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.watcher = fw

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			fw.Close()
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Events returns the event stream. Closed after Stop.
func (w *FSNotifyWatcher) Events() <-chan Event { return w.events }

// Errors returns watcher errors that did not stop the watch.
func (w *FSNotifyWatcher) Errors() <-chan error { return w.errors }

// Stop tears down the watches and closes the event and error channels.
func (w *FSNotifyWatcher) Stop() error {
	close(w.shutdown)
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return err
}

func (w *FSNotifyWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtrees are skipped, not fatal.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			if path == root {
				return err
			}
			w.log.Warn("failed to watch directory",
				zap.String("path", path),
				zap.Error(err))
		}
		return nil
	})
}

func (w *FSNotifyWatcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.shutdown:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.log.Warn("watcher error dropped", zap.Error(err))
			}
		}
	}
}

func (w *FSNotifyWatcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err == nil && info.IsDir() {
			w.watchNewDir(ev.Name)
			return
		}
		w.send(Event{Kind: KindCreated, Path: ev.Name})
	case ev.Op.Has(fsnotify.Write):
		w.send(Event{Kind: KindModified, Path: ev.Name})
	}
}

// watchNewDir extends the watch to a directory created while watching.
// Files can land in it before the watch is in place, so everything
// already inside is reported as created.
func (w *FSNotifyWatcher) watchNewDir(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.log.Warn("failed to watch directory",
					zap.String("path", path),
					zap.Error(err))
			}
			return nil
		}
		w.send(Event{Kind: KindCreated, Path: path})
		return nil
	})
}

func (w *FSNotifyWatcher) send(ev Event) {
	select {
	case w.events <- ev:
	case <-w.shutdown:
	}
}
