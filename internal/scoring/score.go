// Package scoring turns a finished race's podium into per-bet scores and
// folds them into standings.
package scoring

import (
	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
)

// Podium holds the rider ids classified 1st, 2nd and 3rd.
type Podium [3]int64

func (p Podium) Has(riderID int64) bool {
	return p[0] == riderID || p[1] == riderID || p[2] == riderID
}

// ExtractPodium picks the classified finishers in positions 1 to 3.
// Non-finishers holding a podium position leave it empty.
func ExtractPodium(entries []models.ResultEntry) (Podium, error) {
	var p Podium
	for _, e := range entries {
		if e.Status != models.FinishClassified || e.Position < 1 || e.Position > 3 {
			continue
		}
		if p[e.Position-1] == 0 {
			p[e.Position-1] = e.RiderID
		}
	}
	for i, id := range p {
		if id == 0 {
			return p, apperr.ErrIncompleteResult.With("no classified finisher in position %d", i+1)
		}
	}
	if p[0] == p[1] || p[0] == p[2] || p[1] == p[2] {
		return p, apperr.ErrIntegrity.With("a rider holds two podium positions")
	}
	return p, nil
}

type Breakdown struct {
	Slots [3]int
	Bonus int
	Total int
}

// Score grades picks against the podium. The perfect podium bonus is added
// once, only when every slot is exact.
func Score(picks models.Picks, podium Podium, profile models.ScoringProfile) Breakdown {
	var b Breakdown
	exact := 0
	for i, rider := range picks {
		switch {
		case podium[i] == rider:
			b.Slots[i] = profile.Exact
			exact++
		case podium.Has(rider):
			b.Slots[i] = profile.RiderOnly
		}
		b.Total += b.Slots[i]
	}
	if exact == len(picks) {
		b.Bonus = profile.PerfectPodium
		b.Total += b.Bonus
	}
	return b
}
