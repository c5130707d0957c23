package scoring

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
	"podium-bot/internal/storage"
)

// Invalidator is told when a season's standings changed.
type Invalidator interface {
	Invalidate(ctx context.Context, season int)
}

type Engine struct {
	store       storage.Store
	clock       clock.Clock
	log         zerolog.Logger
	invalidator Invalidator
}

func NewEngine(store storage.Store, clk clock.Clock, log zerolog.Logger) *Engine {
	return &Engine{store: store, clock: clk, log: log.With().Str("component", "scoring").Logger()}
}

// SetInvalidator registers the hook run after a settlement that changed standings.
func (e *Engine) SetInvalidator(inv Invalidator) { e.invalidator = inv }

// ProcessRace scores every unscored bet on a finished race and returns how
// many scores it created. Running it again creates and changes nothing.
func (e *Engine) ProcessRace(ctx context.Context, raceID int64) (int, error) {
	var created, season int
	err := e.store.RaceTx(ctx, raceID, func(repo storage.Repo) error {
		created = 0
		r, err := repo.GetRace(ctx, raceID)
		if err != nil {
			return err
		}
		if r.Status != models.RaceFinished {
			return apperr.ErrInvalidTransition.With("race %d is %s and cannot be settled", raceID, r.Status)
		}
		results, err := repo.ListResults(ctx, raceID)
		if err != nil {
			return fmt.Errorf("load results: %w", err)
		}
		podium, err := ExtractPodium(results)
		if err != nil {
			return err
		}
		d, err := storage.LoadRaceDetails(ctx, repo, r)
		if err != nil {
			return fmt.Errorf("load race details: %w", err)
		}
		season = d.Event.Season
		if err := repo.LockSeason(ctx, season); err != nil {
			return fmt.Errorf("lock season %d: %w", season, err)
		}

		bets, err := repo.ListBetsForRace(ctx, raceID)
		if err != nil {
			return fmt.Errorf("load bets: %w", err)
		}
		for _, b := range bets {
			if !b.Picks.Distinct() {
				return apperr.ErrIntegrity.With("bet %d on race %d repeats a rider", b.ID, raceID)
			}
		}

		now := e.clock.Now()
		for _, b := range bets {
			bd := Score(b.Picks, podium, d.Kind.Profile)
			_, isNew, err := repo.InsertScore(ctx, models.Score{
				BetID:         b.ID,
				RaceID:        raceID,
				ParticipantID: b.ParticipantID,
				Slots:         bd.Slots,
				Bonus:         bd.Bonus,
				Total:         bd.Total,
				ResultVersion: r.ResultVersion,
				CreatedAt:     now,
			})
			if err != nil {
				return fmt.Errorf("insert score for bet %d: %w", b.ID, err)
			}
			if !isNew {
				continue
			}
			if err := repo.AddCategoryStanding(ctx, season, r.CategoryID, b.ParticipantID, bd.Total, 1, now); err != nil {
				return fmt.Errorf("update category standing: %w", err)
			}
			created++
		}
		if created == 0 {
			return nil
		}
		return RebuildGlobal(ctx, repo, season, now)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return 0, apperr.ErrRaceNotFound
	}
	if err != nil {
		return 0, err
	}

	if created > 0 {
		metrics.ScoresCreated.Add(float64(created))
		metrics.RacesSettled.Inc()
		e.log.Info().Int64("race", raceID).Int("scores", created).Msg("race settled")
		if e.invalidator != nil {
			e.invalidator.Invalidate(ctx, season)
		}
	}
	return created, nil
}

// RebuildGlobal recomputes every global standing of season from the category standings.
func RebuildGlobal(ctx context.Context, repo storage.Repo, season int, now time.Time) error {
	cats, err := repo.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	codes := make(map[int64]string, len(cats))
	for _, c := range cats {
		codes[c.ID] = c.Code
	}

	rows, err := repo.ListCategoryStandings(ctx, season, 0, 0)
	if err != nil {
		return fmt.Errorf("load category standings: %w", err)
	}
	byParticipant := map[int64]*models.GlobalStanding{}
	var order []int64
	for _, cs := range rows {
		g, ok := byParticipant[cs.ParticipantID]
		if !ok {
			g = &models.GlobalStanding{Season: season, ParticipantID: cs.ParticipantID, CategoryPoints: map[string]int{}}
			byParticipant[cs.ParticipantID] = g
			order = append(order, cs.ParticipantID)
		}
		g.TotalPoints += cs.TotalPoints
		g.RacesParticipated += cs.RacesParticipated
		g.CategoryPoints[codes[cs.CategoryID]] += cs.TotalPoints
	}
	for _, id := range order {
		g := byParticipant[id]
		g.UpdatedAt = now
		if err := repo.PutGlobalStanding(ctx, *g); err != nil {
			return fmt.Errorf("store global standing for %d: %w", id, err)
		}
	}
	return nil
}
