package scanner

import (
	"time"

	"github.com/wonny/canslim/internal/contracts"
	"github.com/wonny/canslim/internal/scoring"
)

// Snapshot is one immutable state of the live accumulator.
// Each batch produces a new Snapshot; readers holding an older one are unaffected.
type Snapshot struct {
	RunID     string                  `json:"run_id"`
	Version   int                     `json:"version"`
	UpdatedAt time.Time               `json:"updated_at"`
	Results   []contracts.ScoreResult `json:"results"`
}

// emptySnapshot starts a run's accumulator
func emptySnapshot(runID string, at time.Time) *Snapshot {
	return &Snapshot{RunID: runID, UpdatedAt: at, Results: []contracts.ScoreResult{}}
}

// Merge returns a new snapshot holding prev's rows with batch rows replacing
// any of the same symbol, fully re-sorted. prev is not modified, so the
// symbol set only ever grows within a run.
func (s *Snapshot) Merge(batch []contracts.ScoreResult, at time.Time) *Snapshot {
	bySymbol := make(map[string]contracts.ScoreResult, len(s.Results)+len(batch))
	for _, r := range s.Results {
		bySymbol[r.Symbol] = r
	}
	for _, r := range batch {
		bySymbol[r.Symbol] = r
	}

	merged := make([]contracts.ScoreResult, 0, len(bySymbol))
	for _, r := range bySymbol {
		merged = append(merged, r)
	}
	scoring.SortResults(merged)

	return &Snapshot{
		RunID:     s.RunID,
		Version:   s.Version + 1,
		UpdatedAt: at,
		Results:   merged,
	}
}

// Len is the number of scored symbols
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Results)
}

// Qualified counts rows that passed every gate
func (s *Snapshot) Qualified() int {
	n := 0
	for _, r := range s.Results {
		if r.Qualified {
			n++
		}
	}
	return n
}

// Top returns at most limit leading rows; limit <= 0 returns all
func (s *Snapshot) Top(limit int) []contracts.ScoreResult {
	if limit <= 0 || limit >= len(s.Results) {
		return s.Results
	}
	return s.Results[:limit]
}
