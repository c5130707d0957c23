// Package race owns race status. Transitions are pure functions over a
// models.Race; Service persists them under the race lock.
package race

import (
	"strings"
	"time"

	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
)

type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionStart  Action = "start"
	ActionFinish Action = "finish"
	ActionCancel Action = "cancel"
)

func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionOpen, ActionClose, ActionStart, ActionFinish, ActionCancel:
		return a, true
	}
	return "", false
}

func invalid(a Action, r models.Race) error {
	return apperr.ErrInvalidTransition.With("cannot %s race %d in status %s", a, r.ID, r.Status)
}

func OpenBetting(r models.Race) (models.Race, error) {
	if r.Status != models.RaceUpcoming {
		return r, invalid(ActionOpen, r)
	}
	r.Status = models.RaceBettingOpen
	return r, nil
}

// CloseBetting accepts upcoming as a predecessor only once the deadline has
// passed, which covers races the scheduler never got to open.
func CloseBetting(r models.Race, now time.Time) (models.Race, error) {
	switch r.Status {
	case models.RaceBettingOpen:
	case models.RaceUpcoming:
		if now.Before(r.BetCloseAt) {
			return r, invalid(ActionClose, r)
		}
	default:
		return r, invalid(ActionClose, r)
	}
	r.Status = models.RaceBettingClosed
	return r, nil
}

func Start(r models.Race) (models.Race, error) {
	if r.Status != models.RaceBettingClosed {
		return r, invalid(ActionStart, r)
	}
	r.Status = models.RaceInProgress
	return r, nil
}

func Finish(r models.Race) (models.Race, error) {
	if r.Status != models.RaceBettingClosed && r.Status != models.RaceInProgress {
		return r, invalid(ActionFinish, r)
	}
	r.Status = models.RaceFinished
	return r, nil
}

func Cancel(r models.Race) (models.Race, error) {
	if r.Status.Terminal() {
		return r, invalid(ActionCancel, r)
	}
	r.Status = models.RaceCancelled
	return r, nil
}

// Apply runs one action against r.
func Apply(r models.Race, a Action, now time.Time) (models.Race, error) {
	switch a {
	case ActionOpen:
		return OpenBetting(r)
	case ActionClose:
		return CloseBetting(r, now)
	case ActionStart:
		return Start(r)
	case ActionFinish:
		return Finish(r)
	case ActionCancel:
		return Cancel(r)
	}
	return r, apperr.ErrBadInput.With("unknown race action %q", a)
}

// AdvanceToFinished walks r forward through close and start as needed and
// finishes it. A finished race is returned unchanged.
func AdvanceToFinished(r models.Race, now time.Time) (models.Race, error) {
	var err error
	if r.Status == models.RaceFinished {
		return r, nil
	}
	if r.Status == models.RaceUpcoming || r.Status == models.RaceBettingOpen {
		if r, err = CloseBetting(r, now); err != nil {
			return r, err
		}
	}
	if r.Status == models.RaceBettingClosed {
		if r, err = Start(r); err != nil {
			return r, err
		}
	}
	return Finish(r)
}

// IsBettable is the only check the ledger uses. The stored status may lag the
// deadline by a scheduler tick, so the clock is consulted too.
func IsBettable(r models.Race, now time.Time) bool {
	if r.Status != models.RaceUpcoming && r.Status != models.RaceBettingOpen {
		return false
	}
	return now.Before(r.BetCloseAt)
}

func CheckIntegrity(r models.Race) error {
	if r.BetCloseAt.IsZero() || r.StartsAt.IsZero() {
		return apperr.ErrIntegrity.With("race %d has no schedule", r.ID)
	}
	if r.BetCloseAt.After(r.StartsAt) {
		return apperr.ErrIntegrity.With("race %d closes betting after its start", r.ID)
	}
	if !r.Status.Valid() {
		return apperr.ErrIntegrity.With("race %d has unknown status %q", r.ID, r.Status)
	}
	return nil
}
