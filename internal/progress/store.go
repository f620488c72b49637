// Package progress persists which phases of a passage a learner has
// completed. The recitation controller writes a single "phase completed"
// event at the end of a successful session; the UI layer reads completion
// to decide what to offer next.
package progress

import (
	"context"
	"time"
)

// Record is one completed phase for one learner.
type Record struct {
	LearnerID  string
	PassageID  string
	PhaseLabel string
	// CompletedAt is set by the store on write.
	CompletedAt time.Time
}

// Store persists phase completion. Implementations must be safe for
// concurrent use. Marking an already-completed phase again is not an error;
// the original completion time is kept.
type Store interface {
	// MarkPhaseCompleted records that the learner finished the phase.
	MarkPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) error

	// IsPhaseCompleted reports whether the learner has completed the phase.
	IsPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) (bool, error)

	// CompletedPhases lists the learner's completed phases for a passage,
	// ordered by completion time.
	CompletedPhases(ctx context.Context, learnerID, passageID string) ([]Record, error)
}
