package types

// ProcessingStatus is the state-machine variable of the pipeline orchestrator.
//
// State Machine Diagram:
//
//	pending → analyzing → analyzed → auto_fixing → fixed → closed
//	                          ↓           ↓
//	                   manual_required  manual_required
//
// Any non-terminal state may move to error when an unrecoverable failure
// occurs (transport-level API failure, persistence write failure). An
// error-state record remains eligible for a later manual analyze command;
// re-admission is controlled by labels, not by this status.
type ProcessingStatus string

const (
	StatusPending        ProcessingStatus = "pending"
	StatusAnalyzing      ProcessingStatus = "analyzing"
	StatusAnalyzed       ProcessingStatus = "analyzed"
	StatusAutoFixing     ProcessingStatus = "auto_fixing"
	StatusFixed          ProcessingStatus = "fixed"
	StatusManualRequired ProcessingStatus = "manual_required"
	StatusClosed         ProcessingStatus = "closed"
	StatusError          ProcessingStatus = "error"
)

// IsValid checks if the status value is valid.
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusAnalyzed, StatusAutoFixing,
		StatusFixed, StatusManualRequired, StatusClosed, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends a pipeline run. Terminal here
// means the orchestrator will not advance the record further without a new
// event or an explicit command.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case StatusFixed, StatusManualRequired, StatusClosed, StatusError:
		return true
	}
	return false
}

// ValidTransitions returns the states reachable from this one.
func (s ProcessingStatus) ValidTransitions() []ProcessingStatus {
	switch s {
	case StatusPending:
		return []ProcessingStatus{StatusAnalyzing, StatusError}
	case StatusAnalyzing:
		return []ProcessingStatus{StatusAnalyzed, StatusError}
	case StatusAnalyzed:
		return []ProcessingStatus{StatusAutoFixing, StatusManualRequired, StatusAnalyzing, StatusError}
	case StatusAutoFixing:
		return []ProcessingStatus{StatusFixed, StatusManualRequired, StatusError}
	case StatusFixed:
		return []ProcessingStatus{StatusClosed, StatusAnalyzing, StatusError}
	case StatusManualRequired:
		// Manual analyze/fix commands re-enter the pipeline.
		return []ProcessingStatus{StatusAnalyzing, StatusAutoFixing, StatusError}
	case StatusError:
		return []ProcessingStatus{StatusAnalyzing}
	case StatusClosed:
		return []ProcessingStatus{}
	default:
		return []ProcessingStatus{}
	}
}

// CanTransitionTo checks if moving from this state to target is valid.
func (s ProcessingStatus) CanTransitionTo(target ProcessingStatus) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}
