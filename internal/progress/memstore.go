package progress

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore is an in-memory [Store] for tests and single-process
// development deployments.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record // key → record
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func key(learnerID, passageID, phaseLabel string) string {
	return learnerID + "\x00" + passageID + "\x00" + phaseLabel
}

// MarkPhaseCompleted records the completion. Re-marking keeps the original
// completion time.
func (s *MemStore) MarkPhaseCompleted(_ context.Context, learnerID, passageID, phaseLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(learnerID, passageID, phaseLabel)
	if _, ok := s.records[k]; ok {
		return nil
	}
	s.records[k] = Record{
		LearnerID:   learnerID,
		PassageID:   passageID,
		PhaseLabel:  phaseLabel,
		CompletedAt: time.Now().UTC(),
	}
	return nil
}

// IsPhaseCompleted reports whether the phase is recorded as completed.
func (s *MemStore) IsPhaseCompleted(_ context.Context, learnerID, passageID, phaseLabel string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key(learnerID, passageID, phaseLabel)]
	return ok, nil
}

// CompletedPhases lists completions for a learner and passage, ordered by
// completion time.
func (s *MemStore) CompletedPhases(_ context.Context, learnerID, passageID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, r := range s.records {
		if r.LearnerID == learnerID && r.PassageID == passageID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}
