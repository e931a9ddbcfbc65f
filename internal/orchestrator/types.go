package orchestrator

import (
	"errors"
	"fmt"
	"sort"

	"arc-framework/beacon/internal/routesync"
)

// Stage is a point in the startup sequence. Stages only move forward.
type Stage int32

const (
	StageConstructed Stage = iota
	StagePoliciesApplied
	StageDocumentationPublished
	StageListening
	StageSynced
	StageServing

	// stageTransitioning marks a step in progress.
	stageTransitioning Stage = -1
)

func (s Stage) String() string {
	switch s {
	case StageConstructed:
		return "constructed"
	case StagePoliciesApplied:
		return "policies-applied"
	case StageDocumentationPublished:
		return "documentation-published"
	case StageListening:
		return "listening"
	case StageSynced:
		return "synced"
	case StageServing:
		return "serving"
	case stageTransitioning:
		return "transitioning"
	default:
		return fmt.Sprintf("stage(%d)", int32(s))
	}
}

// ErrInvalidTransition is returned when a step runs out of order or twice.
var ErrInvalidTransition = errors.New("invalid startup transition")

// BindError reports a listener that could not be bound. It is fatal.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// SyncError reports a failed post-listen route sync. Result is nil when the
// sync did not run at all.
type SyncError struct {
	Result *routesync.Result
	Err    error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("route sync: %v", e.Err)
	}
	var failed []string
	for name, sink := range e.Result.Sinks {
		if sink.Status == routesync.StatusError {
			failed = append(failed, fmt.Sprintf("%s: %s", name, sink.Error))
		}
	}
	sort.Strings(failed)
	return fmt.Sprintf("route sync %s: %v", e.Result.Status, failed)
}

func (e *SyncError) Unwrap() error { return e.Err }
