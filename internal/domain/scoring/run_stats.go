package scoring

import (
	"fmt"
	"time"
)

// MemberError records one member whose aggregation failed during a run.
type MemberError struct {
	MemberID   string    `json:"member_id"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RunStats accumulates the outcome of one arena aggregation run.
type RunStats struct {
	ArenaID      string        `json:"arena_id"`
	Day          time.Time     `json:"day"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at"`
	Duration     time.Duration `json:"duration"`
	TotalMembers int           `json:"total_members"`
	Aggregated   int           `json:"aggregated"`
	Failed       int           `json:"failed"`
	Errors       []MemberError `json:"errors,omitempty"`
	TotalScore   float64       `json:"total_score"`
}

// NewRunStats starts tracking a run over the given member count.
func NewRunStats(arenaID string, day time.Time, total int) *RunStats {
	return &RunStats{
		ArenaID:      arenaID,
		Day:          day,
		StartedAt:    time.Now().UTC(),
		TotalMembers: total,
	}
}

// RecordSuccess counts one aggregated member.
func (s *RunStats) RecordSuccess(snap *PerformanceSnapshot) {
	s.Aggregated++
	s.TotalScore += snap.Score
}

// RecordFailure counts one failed member and keeps its error.
func (s *RunStats) RecordFailure(memberID string, err error) {
	s.Failed++
	s.Errors = append(s.Errors, MemberError{
		MemberID:   memberID,
		Error:      err.Error(),
		OccurredAt: time.Now().UTC(),
	})
}

// Finish stamps the completion time and duration.
func (s *RunStats) Finish() {
	s.CompletedAt = time.Now().UTC()
	s.Duration = s.CompletedAt.Sub(s.StartedAt)
}

// AverageScore returns the mean composite score across aggregated members.
func (s *RunStats) AverageScore() float64 {
	if s.Aggregated == 0 {
		return 0
	}
	return s.TotalScore / float64(s.Aggregated)
}

// Summary renders a one-line report of the run.
func (s *RunStats) Summary() string {
	return fmt.Sprintf("arena %s: %d/%d members aggregated, %d failed, took %v",
		s.ArenaID, s.Aggregated, s.TotalMembers, s.Failed, s.Duration.Round(time.Millisecond))
}
