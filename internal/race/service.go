package race

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/clock"
	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

type Service struct {
	store storage.Store
	clock clock.Clock
	log   zerolog.Logger
}

func NewService(store storage.Store, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{store: store, clock: clk, log: log.With().Str("component", "race").Logger()}
}

// Create stores a new race in status upcoming.
func (s *Service) Create(ctx context.Context, r models.Race) (models.Race, error) {
	now := s.clock.Now()
	r.StartsAt = r.StartsAt.UTC()
	r.BetCloseAt = r.BetCloseAt.UTC()
	r.Status = models.RaceUpcoming
	r.CreatedAt, r.UpdatedAt = now, now
	if err := CheckIntegrity(r); err != nil {
		return r, apperr.ErrBadInput.With("race schedule is invalid: betting must close before the start").Wrap(err)
	}
	created, err := s.store.InsertRace(ctx, r)
	if errors.Is(err, storage.ErrConflict) {
		return r, apperr.ErrBadInput.With("race already exists for this event, category and kind")
	}
	if err != nil {
		return r, fmt.Errorf("insert race: %w", err)
	}
	s.log.Info().Int64("race", created.ID).Time("close_at", created.BetCloseAt).Msg("race created")
	return created, nil
}

// Transition applies a to race id inside the race lock.
func (s *Service) Transition(ctx context.Context, id int64, a Action) (models.Race, error) {
	var out models.Race
	err := s.store.RaceTx(ctx, id, func(repo storage.Repo) error {
		var err error
		out, err = Advance(ctx, repo, id, a, s.clock.Now())
		return err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return out, apperr.ErrRaceNotFound
	}
	if err != nil {
		return out, err
	}
	s.log.Info().Int64("race", id).Str("action", string(a)).Str("status", string(out.Status)).Msg("race transition")
	return out, nil
}

// Advance loads race id from repo, applies a and saves it. Callers hold the race lock.
func Advance(ctx context.Context, repo storage.Repo, id int64, a Action, now time.Time) (models.Race, error) {
	r, err := repo.GetRace(ctx, id)
	if err != nil {
		return r, err
	}
	next, err := Apply(r, a, now)
	if err != nil {
		return r, err
	}
	return next, Save(ctx, repo, next, now)
}

// Save persists a race whose status came from one of the transition functions.
func Save(ctx context.Context, repo storage.Repo, r models.Race, now time.Time) error {
	r.UpdatedAt = now
	if err := repo.UpdateRace(ctx, r); err != nil {
		return fmt.Errorf("update race %d: %w", r.ID, err)
	}
	return nil
}

// Reschedule moves a race's start and close instants. Once the race has left
// upcoming the close instant may only move forward, and never past the start.
func (s *Service) Reschedule(ctx context.Context, id int64, startsAt, betCloseAt time.Time) (models.Race, error) {
	var out models.Race
	err := s.store.RaceTx(ctx, id, func(repo storage.Repo) error {
		r, err := repo.GetRace(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return apperr.ErrInvalidTransition.With("race %d is %s and cannot be rescheduled", id, r.Status)
		}
		betCloseAt, startsAt = betCloseAt.UTC(), startsAt.UTC()
		if r.Status != models.RaceUpcoming && betCloseAt.Before(r.BetCloseAt) {
			return apperr.ErrInvalidTransition.With("betting close for race %d cannot move earlier once betting opened", id)
		}
		if r.Status != models.RaceUpcoming && r.Status != models.RaceBettingOpen && !betCloseAt.Equal(r.BetCloseAt) {
			return apperr.ErrInvalidTransition.With("betting for race %d is already closed", id)
		}
		r.StartsAt, r.BetCloseAt = startsAt, betCloseAt
		if err := CheckIntegrity(r); err != nil {
			return apperr.ErrBadInput.With("betting must close before the race starts")
		}
		out = r
		return Save(ctx, repo, r, s.clock.Now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return out, apperr.ErrRaceNotFound
	}
	return out, err
}

func (s *Service) Get(ctx context.Context, id int64) (models.Race, error) {
	r, err := s.store.GetRace(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return r, apperr.ErrRaceNotFound
	}
	return r, err
}

func (s *Service) List(ctx context.Context, f storage.RaceFilter) ([]models.RaceDetails, error) {
	races, err := s.store.ListRaces(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]models.RaceDetails, 0, len(races))
	for _, r := range races {
		d, err := storage.LoadRaceDetails(ctx, s.store, r)
		if err != nil {
			return nil, fmt.Errorf("race %d details: %w", r.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// Bettable lists races currently accepting bets, soonest close first.
func (s *Service) Bettable(ctx context.Context) ([]models.RaceDetails, error) {
	return s.List(ctx, storage.RaceFilter{
		Statuses:   []models.RaceStatus{models.RaceUpcoming, models.RaceBettingOpen},
		CloseAfter: s.clock.Now(),
	})
}
