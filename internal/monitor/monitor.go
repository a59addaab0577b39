package monitor

// Kind classifies a filesystem change. The set mirrors the triggers the
// agent reacts to; not every adapter can produce every kind.
type Kind string

const (
	KindCreated     Kind = "created"
	KindClosedWrite Kind = "closed_write"
	KindMovedTo     Kind = "moved_to"
	KindModified    Kind = "modified"
)

// Event is one filesystem change on one path.
type Event struct {
	Kind Kind
	Path string
}

// Watcher delivers filesystem events for a set of root directories.
// Stop closes both channels after in-flight events are delivered, so
// consumers can range over Events and Errors until they drain.
type Watcher interface {
	Start() error
	Events() <-chan Event
	Errors() <-chan error
	Stop() error
}

// eventBuffer bounds how far event production may run ahead of the
// inspection workers.
const eventBuffer = 100
