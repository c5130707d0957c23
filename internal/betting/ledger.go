// Package betting is the bet ledger: the only writer of bets.
package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/clock"
	"podium-bot/internal/metrics"
	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/storage"
)

type Ledger struct {
	store storage.Store
	clock clock.Clock
	log   zerolog.Logger
}

func NewLedger(store storage.Store, clk clock.Clock, log zerolog.Logger) *Ledger {
	return &Ledger{store: store, clock: clk, log: log.With().Str("component", "ledger").Logger()}
}

// BetView is a bet with what a participant needs to read it.
type BetView struct {
	Bet    models.Bet
	Race   models.RaceDetails
	Riders [3]models.Rider
}

// Register returns the participant for handle, creating it on first contact.
func (l *Ledger) Register(ctx context.Context, handle int64, displayName string) (models.Participant, error) {
	if handle == 0 {
		return models.Participant{}, apperr.ErrBadInput.With("participant handle is required")
	}
	return l.store.UpsertParticipant(ctx, handle, displayName, l.clock.Now())
}

// Participant looks up a registered participant by handle.
func (l *Ledger) Participant(ctx context.Context, handle int64) (models.Participant, error) {
	p, err := l.store.GetParticipantByHandle(ctx, handle)
	if errors.Is(err, storage.ErrNotFound) {
		return p, apperr.ErrNotFound.With("participant %d is not registered", handle)
	}
	return p, err
}

func (l *Ledger) Place(ctx context.Context, participantID, raceID int64, picks models.Picks) (models.Bet, error) {
	return l.write(ctx, "place", participantID, raceID, picks)
}

// Replace overwrites all three picks of an existing bet.
func (l *Ledger) Replace(ctx context.Context, participantID, raceID int64, picks models.Picks) (models.Bet, error) {
	return l.write(ctx, "replace", participantID, raceID, picks)
}

func (l *Ledger) write(ctx context.Context, op string, participantID, raceID int64, picks models.Picks) (models.Bet, error) {
	var out models.Bet
	err := l.store.RaceTx(ctx, raceID, func(repo storage.Repo) error {
		now := l.clock.Now()
		r, err := repo.GetRace(ctx, raceID)
		if err != nil {
			return err
		}
		if !race.IsBettable(r, now) {
			return closedError(r, now)
		}
		if !picks.Distinct() {
			return apperr.ErrDuplicatePick
		}
		riders, err := repo.GetRiders(ctx, picks[:])
		if err != nil {
			return fmt.Errorf("load riders: %w", err)
		}
		if len(riders) != len(picks) {
			return apperr.ErrUnknownRider
		}
		if _, err := repo.GetParticipant(ctx, participantID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.ErrNotFound.With("participant is not registered, send /start first")
			}
			return err
		}

		existing, err := repo.GetBet(ctx, participantID, raceID)
		switch {
		case err == nil && op == "place":
			return apperr.ErrDuplicateBet
		case errors.Is(err, storage.ErrNotFound) && op == "replace":
			return apperr.ErrNoBet
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("load bet: %w", err)
		}

		if op == "replace" {
			out, err = repo.UpdateBetPicks(ctx, existing.ID, picks, now)
			return err
		}
		out, err = repo.InsertBet(ctx, models.Bet{
			ParticipantID: participantID,
			RaceID:        raceID,
			Picks:         picks,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
		if errors.Is(err, storage.ErrConflict) {
			return apperr.ErrDuplicateBet
		}
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		err = apperr.ErrRaceNotFound
	}
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			metrics.BetsRejected.WithLabelValues(ae.Code).Inc()
		}
		return out, err
	}
	metrics.BetsWritten.WithLabelValues(op).Inc()
	l.log.Info().Str("op", op).Int64("participant", participantID).Int64("race", raceID).Msg("bet written")
	return out, nil
}

// closedError explains why r stopped accepting bets.
func closedError(r models.Race, now time.Time) error {
	switch {
	case r.Status == models.RaceCancelled:
		return apperr.ErrBettingClosed.With("this race has been cancelled")
	case r.Status == models.RaceFinished:
		return apperr.ErrBettingClosed.With("this race has already finished")
	case !now.Before(r.BetCloseAt):
		return apperr.ErrBettingClosed.With("the betting deadline has passed")
	default:
		return apperr.ErrBettingClosed
	}
}

// Get returns the participant's bet on raceID, or ErrNoBet.
func (l *Ledger) Get(ctx context.Context, participantID, raceID int64) (models.Bet, error) {
	b, err := l.store.GetBet(ctx, participantID, raceID)
	if errors.Is(err, storage.ErrNotFound) {
		return b, apperr.ErrNoBet
	}
	return b, err
}

// ListActive returns the participant's bets on races that are neither finished nor cancelled.
func (l *Ledger) ListActive(ctx context.Context, participantID int64) ([]BetView, error) {
	bets, err := l.store.ListBetsForParticipant(ctx, participantID, models.ActiveRaceStatuses)
	if err != nil {
		return nil, err
	}
	out := make([]BetView, 0, len(bets))
	for _, b := range bets {
		v, err := l.view(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (l *Ledger) view(ctx context.Context, b models.Bet) (BetView, error) {
	v := BetView{Bet: b}
	r, err := l.store.GetRace(ctx, b.RaceID)
	if err != nil {
		return v, fmt.Errorf("race %d: %w", b.RaceID, err)
	}
	if v.Race, err = storage.LoadRaceDetails(ctx, l.store, r); err != nil {
		return v, fmt.Errorf("race %d details: %w", b.RaceID, err)
	}
	riders, err := l.store.GetRiders(ctx, b.Picks[:])
	if err != nil {
		return v, err
	}
	for i, id := range b.Picks {
		v.Riders[i] = riders[id]
	}
	return v, nil
}

func (l *Ledger) ListForRace(ctx context.Context, raceID int64) ([]models.Bet, error) {
	return l.store.ListBetsForRace(ctx, raceID)
}

// TimeUntilClose renders the time left to bet, e.g. "1h 5m", "3m", "40s" or "closed".
func TimeUntilClose(r models.Race, now time.Time) string {
	d := r.BetCloseAt.Sub(now)
	if d <= 0 {
		return "closed"
	}
	secs := int(d / time.Second)
	hours, minutes, seconds := secs/3600, secs%3600/60, secs%60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
