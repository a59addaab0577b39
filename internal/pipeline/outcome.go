package pipeline

// Outcome is the terminal state of one inspected event. Every event
// reaches exactly one.
type Outcome string

const (
	// OutcomeIneligible means the path never reached classification.
	OutcomeIneligible Outcome = "ineligible"

	// OutcomeClean means the content matched the claimed extension, or
	// the extension carries no signature to check against.
	OutcomeClean Outcome = "clean"

	// OutcomeRecordedOnly means a mismatch was logged but quarantine is
	// off or unavailable.
	OutcomeRecordedOnly Outcome = "recorded_only"

	// OutcomeQuarantined means the file was captured.
	OutcomeQuarantined Outcome = "quarantined"

	// OutcomeQuarantineFailed means the capture attempt failed; the
	// detection record survives it.
	OutcomeQuarantineFailed Outcome = "quarantine_failed"
)

// Stats holds pipeline counters that are updated atomically by the
// inspection workers.
type Stats struct {
	Inspected   int64
	Mismatches  int64
	Quarantined int64
	Failures    int64
}
