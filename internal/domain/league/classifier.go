package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/arena-hub/arena-rank/internal/domain/scoring"
)

var (
	// ErrNilSnapshotStore is returned when the classifier is built without a
	// snapshot store.
	ErrNilSnapshotStore = errors.New("league: snapshot store cannot be nil")

	// ErrNilAssignmentStore is returned when the classifier is built without
	// an assignment store.
	ErrNilAssignmentStore = errors.New("league: assignment store cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFICATION RESULT
// ══════════════════════════════════════════════════════════════════════════════

// ClassificationError records one member whose assignment could not be stored.
type ClassificationError struct {
	MemberID string `json:"member_id"`
	Error    string `json:"error"`
}

// ClassificationResult is the outcome of one arena classification run.
type ClassificationResult struct {
	RunID       uuid.UUID             `json:"run_id"`
	ArenaID     string                `json:"arena_id"`
	PeriodStart time.Time             `json:"period_start"`
	StartedAt   time.Time             `json:"started_at"`
	Duration    time.Duration         `json:"duration"`
	Assignments []*Assignment         `json:"assignments"`
	Promotions  int                   `json:"promotions"`
	Demotions   int                   `json:"demotions"`
	Failed      int                   `json:"failed"`
	Errors      []ClassificationError `json:"errors,omitempty"`
}

// Summary renders a one-line report of the run.
func (r *ClassificationResult) Summary() string {
	return fmt.Sprintf("arena %s period %s: %d assigned, %d promoted, %d demoted, %d failed, took %v",
		r.ArenaID, r.PeriodStart.Format("2006-01-02"), len(r.Assignments),
		r.Promotions, r.Demotions, r.Failed, r.Duration.Round(time.Millisecond))
}

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Classifier assigns arena members to tiers at period end. A run averages
// each member's composite scores over the period's snapshots, ranks the
// averages, converts each standing to a percentile and maps it through the
// tier catalog. Members without any snapshot in the period are not ranked.
type Classifier struct {
	catalog     *Catalog
	snapshots   scoring.SnapshotStore
	assignments AssignmentStore
	logger      *slog.Logger
}

// NewClassifier builds a classifier over a validated catalog.
func NewClassifier(catalog *Catalog, snapshots scoring.SnapshotStore, assignments AssignmentStore, logger *slog.Logger) (*Classifier, error) {
	if catalog == nil {
		return nil, ErrEmptyCatalog
	}
	if snapshots == nil {
		return nil, ErrNilSnapshotStore
	}
	if assignments == nil {
		return nil, ErrNilAssignmentStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{catalog: catalog, snapshots: snapshots, assignments: assignments, logger: logger}, nil
}

// Catalog returns the classifier's tier catalog.
func (c *Classifier) Catalog() *Catalog {
	return c.catalog
}

// standing is one member's averaged score for the period.
type standing struct {
	memberID string
	avgScore float64
}

// ClassifyArena runs classification for one arena period. Period membership
// is defined by having at least one snapshot inside the range; the period
// start used as the assignment key is the range's first day. A storage
// failure for one member is recorded in the result and does not stop the run.
func (c *Classifier) ClassifyArena(ctx context.Context, arenaID string, period scoring.DateRange) (*ClassificationResult, error) {
	if arenaID == "" {
		return nil, scoring.ErrArenaIDEmpty
	}

	result := &ClassificationResult{
		RunID:       uuid.New(),
		ArenaID:     arenaID,
		PeriodStart: period.From,
		StartedAt:   time.Now().UTC(),
	}

	snaps, err := c.snapshots.Snapshots(ctx, arenaID, period)
	if err != nil {
		return nil, fmt.Errorf("league: read period snapshots: %w", err)
	}

	standings := buildStandings(snaps)
	if len(standings) == 0 {
		result.Duration = time.Since(result.StartedAt)
		c.logger.Info("classification skipped, no activity in period",
			slog.String("arena_id", arenaID),
			slog.String("period", period.String()),
		)
		return result, nil
	}

	total := len(standings)
	for i, st := range standings {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(result.StartedAt)
			return result, fmt.Errorf("league: classification interrupted: %w", err)
		}

		percentile := float64(i+1) / float64(total) * 100

		tier, err := c.catalog.TierForPercentile(percentile)
		if err != nil {
			// Unreachable with a validated catalog.
			return nil, err
		}

		assignment, err := c.assign(ctx, result.RunID, arenaID, st, percentile, tier, period.From)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ClassificationError{MemberID: st.memberID, Error: err.Error()})
			c.logger.Error("member classification failed",
				slog.String("arena_id", arenaID),
				slog.String("member_id", st.memberID),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Assignments = append(result.Assignments, assignment)
		if assignment.Promoted {
			result.Promotions++
		}
		if assignment.Demoted {
			result.Demotions++
		}
	}

	result.Duration = time.Since(result.StartedAt)
	c.logger.Info("classification completed",
		slog.String("arena_id", arenaID),
		slog.Int("assigned", len(result.Assignments)),
		slog.Int("promotions", result.Promotions),
		slog.Int("demotions", result.Demotions),
		slog.Int("failed", result.Failed),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// assign resolves the member's prior tier, derives movement flags and stores
// the new assignment.
func (c *Classifier) assign(ctx context.Context, runID uuid.UUID, arenaID string, st standing, percentile float64, tier Tier, periodStart time.Time) (*Assignment, error) {
	prevRank := c.catalog.Lowest().RankOrder
	newEntrant := false

	prior, err := c.assignments.LatestAssignmentBefore(ctx, arenaID, st.memberID, periodStart)
	switch {
	case errors.Is(err, ErrAssignmentNotFound):
		newEntrant = true
	case err != nil:
		return nil, fmt.Errorf("load prior assignment: %w", err)
	default:
		prevRank = prior.TierRankOrder
	}

	assignment := &Assignment{
		ID:            uuid.New(),
		ArenaID:       arenaID,
		MemberID:      st.memberID,
		PeriodStart:   periodStart,
		TierID:        tier.ID,
		TierRankOrder: tier.RankOrder,
		Percentile:    percentile,
		AvgScore:      st.avgScore,
		Promoted:      tier.RankOrder > prevRank,
		Demoted:       !newEntrant && tier.RankOrder < prevRank,
		AssignedAt:    time.Now().UTC(),
	}

	if err := c.assignments.UpsertAssignment(ctx, assignment); err != nil {
		return nil, fmt.Errorf("store assignment: %w", err)
	}
	return assignment, nil
}

// buildStandings averages each member's scores and sorts the result best
// first, member id ascending on equal averages.
func buildStandings(snaps []*scoring.PerformanceSnapshot) []standing {
	type acc struct {
		sum   float64
		count int
	}
	byMember := make(map[string]*acc)
	for _, s := range snaps {
		a, ok := byMember[s.MemberID]
		if !ok {
			a = &acc{}
			byMember[s.MemberID] = a
		}
		a.sum += s.Score
		a.count++
	}

	standings := make([]standing, 0, len(byMember))
	for memberID, a := range byMember {
		standings = append(standings, standing{memberID: memberID, avgScore: a.sum / float64(a.count)})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].avgScore != standings[j].avgScore {
			return standings[i].avgScore > standings[j].avgScore
		}
		return standings[i].memberID < standings[j].memberID
	})
	return standings
}
