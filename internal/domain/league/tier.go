// Package league classifies arena members into percentile-based tiers at the
// end of each competition period. The tier catalog partitions the percentile
// space; the classifier averages each member's composite scores over the
// period, derives a percentile from the resulting standing and records an
// assignment with promotion and demotion flags.
package league

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEmptyCatalog is returned when a catalog is built without tiers.
	ErrEmptyCatalog = errors.New("league: tier catalog cannot be empty")

	// ErrInvalidCatalog is returned when the tiers do not form a contiguous
	// percentile partition.
	ErrInvalidCatalog = errors.New("league: tier bands must partition (0,100]")

	// ErrTierNotFound is returned when no tier matches an id or percentile.
	ErrTierNotFound = errors.New("league: tier not found")

	// ErrAssignmentNotFound is returned when a member has no assignment.
	ErrAssignmentNotFound = errors.New("league: assignment not found")
)

const bandEpsilon = 1e-9

// ══════════════════════════════════════════════════════════════════════════════
// TIER CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Tier is one band of the percentile partition. The band covers percentiles
// in (LowerPct, UpperPct]; a smaller percentile means a better standing, so
// the tier with the highest RankOrder owns the band starting at 0.
// RankOrder 1 is the lowest tier.
type Tier struct {
	ID        string  `koanf:"id"`
	Name      string  `koanf:"name"`
	RankOrder int     `koanf:"rank_order"`
	LowerPct  float64 `koanf:"lower_pct"`
	UpperPct  float64 `koanf:"upper_pct"`
}

// Contains reports whether percentile p falls inside the tier's band.
func (t Tier) Contains(p float64) bool {
	return p > t.LowerPct && p <= t.UpperPct+bandEpsilon
}

// Catalog is a validated, ordered set of tiers. Tiers are kept sorted by
// RankOrder descending, best tier first.
type Catalog struct {
	tiers []Tier
}

// NewCatalog validates the tiers and builds the catalog. Rank orders must be
// exactly 1..n and the bands, walked from the best tier down, must cover
// (0,100] without gaps or overlaps.
func NewCatalog(tiers []Tier) (*Catalog, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyCatalog
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RankOrder > sorted[j].RankOrder })

	seen := make(map[string]struct{}, len(sorted))
	for i, tier := range sorted {
		if tier.ID == "" {
			return nil, fmt.Errorf("%w: tier with empty id", ErrInvalidCatalog)
		}
		if _, dup := seen[tier.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tier id %q", ErrInvalidCatalog, tier.ID)
		}
		seen[tier.ID] = struct{}{}

		if want := len(sorted) - i; tier.RankOrder != want {
			return nil, fmt.Errorf("%w: rank orders must be contiguous 1..%d", ErrInvalidCatalog, len(sorted))
		}
		if tier.UpperPct <= tier.LowerPct {
			return nil, fmt.Errorf("%w: tier %q has empty band", ErrInvalidCatalog, tier.ID)
		}

		if i == 0 && math.Abs(tier.LowerPct) > bandEpsilon {
			return nil, fmt.Errorf("%w: best tier must start at 0", ErrInvalidCatalog)
		}
		if i > 0 && math.Abs(tier.LowerPct-sorted[i-1].UpperPct) > bandEpsilon {
			return nil, fmt.Errorf("%w: gap or overlap at tier %q", ErrInvalidCatalog, tier.ID)
		}
	}
	if last := sorted[len(sorted)-1]; math.Abs(last.UpperPct-100) > bandEpsilon {
		return nil, fmt.Errorf("%w: lowest tier must end at 100", ErrInvalidCatalog)
	}

	return &Catalog{tiers: sorted}, nil
}

// DefaultCatalog returns the standard five-tier ladder.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Tier{
		{ID: "bronze", Name: "Bronze", RankOrder: 1, LowerPct: 75, UpperPct: 100},
		{ID: "silver", Name: "Silver", RankOrder: 2, LowerPct: 50, UpperPct: 75},
		{ID: "gold", Name: "Gold", RankOrder: 3, LowerPct: 25, UpperPct: 50},
		{ID: "diamond", Name: "Diamond", RankOrder: 4, LowerPct: 10, UpperPct: 25},
		{ID: "master", Name: "Master", RankOrder: 5, LowerPct: 0, UpperPct: 10},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// TierForPercentile returns the tier whose band contains p. Percentiles are
// in (0,100]: p=100/len is the best member's percentile, p=100 the worst.
func (c *Catalog) TierForPercentile(p float64) (Tier, error) {
	for _, tier := range c.tiers {
		if tier.Contains(p) {
			return tier, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: no band contains percentile %.4f", ErrTierNotFound, p)
}

// TierByID looks a tier up by id.
func (c *Catalog) TierByID(id string) (Tier, error) {
	for _, tier := range c.tiers {
		if tier.ID == id {
			return tier, nil
		}
	}
	return Tier{}, fmt.Errorf("%w: %q", ErrTierNotFound, id)
}

// Lowest returns the rank-order-1 tier, the default for new entrants.
func (c *Catalog) Lowest() Tier {
	return c.tiers[len(c.tiers)-1]
}

// Tiers returns the tiers, best first.
func (c *Catalog) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Size returns the number of tiers.
func (c *Catalog) Size() int {
	return len(c.tiers)
}
