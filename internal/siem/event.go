package siem

// Source tags every event with the producing system.
const Source = "filesentry"

// Version is the event schema version.
const Version = "1.1.0"

// Severity grades an event for downstream triage
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// EventType identifies what happened
type EventType string

const (
	EventSystemStart       EventType = "SYSTEM_START"
	EventSystemStop        EventType = "SYSTEM_STOP"
	EventExtensionMismatch EventType = "FILE_EXTENSION_MISMATCH"
	EventFileQuarantined   EventType = "FILE_QUARANTINED"
	EventQuarantineFailed  EventType = "QUARANTINE_FAILED"
)

// Event represents one line of the SIEM stream
type Event struct {
	Timestamp string                 `json:"timestamp"`
	EventID   string                 `json:"event_id"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Hostname  string                 `json:"hostname"`
	Username  string                 `json:"username"`
	Data      map[string]interface{} `json:"data"`
}
