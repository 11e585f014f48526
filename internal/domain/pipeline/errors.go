package pipeline

import "errors"

var (
	ErrNoRegistrationMatch = errors.New("no matching registration")
	ErrAnchorGateTripped   = errors.New("anchor gate tripped")
	ErrRunAlreadyActive    = errors.New("a run for this source is already active")
	ErrSourceDisabled      = errors.New("source is disabled")

	ErrResolutionReasonRequired = errors.New("conflict resolution requires a reason")
	ErrConflictAlreadyResolved  = errors.New("conflict case already resolved")

	ErrOutlierQuarantine = errors.New("registration is quarantined by an open outlier case")

	ErrSupersededCycle = errors.New("superseded-by pointer would form a cycle")

	ErrBatchNotFound        = errors.New("archive batch not found")
	ErrBatchAlreadyRestored = errors.New("archive batch already restored")
	ErrExecuteNotConfirmed  = errors.New("destructive operation requires --execute")
)
