// Package catalog keeps categories, race kinds, events, riders and races in
// step with an external calendar.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/storage"
)

// DefaultBetClose is how long before the start betting closes when a
// calendar row gives no close time.
const DefaultBetClose = 10 * time.Minute

var DefaultCategories = []models.Category{
	{Code: "MGP", Name: "MotoGP"},
	{Code: "MT2", Name: "Moto2"},
	{Code: "MT3", Name: "Moto3"},
}

var DefaultKinds = []models.RaceKind{
	{Code: "SPR", Name: "Sprint", Profile: models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10}},
	{Code: "RAC", Name: "Race", Profile: models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10}},
}

// RaceRow is one calendar line. Category and Kind are codes.
type RaceRow struct {
	ExternalRef string
	EventRef    string
	Category    string
	Kind        string
	StartsAt    time.Time
	BetCloseAt  time.Time // zero means StartsAt minus the default offset
}

// Source is an external calendar.
type Source interface {
	Events(ctx context.Context) ([]models.Event, error)
	Riders(ctx context.Context) ([]models.Rider, error)
	Races(ctx context.Context) ([]RaceRow, error)
}

// Seed stores the default categories and race kinds. Safe to run on every start.
func Seed(ctx context.Context, repo storage.Repo) error {
	for _, c := range DefaultCategories {
		if _, err := repo.UpsertCategory(ctx, c); err != nil {
			return fmt.Errorf("seed category %s: %w", c.Code, err)
		}
	}
	for _, k := range DefaultKinds {
		if _, err := repo.UpsertRaceKind(ctx, k); err != nil {
			return fmt.Errorf("seed race kind %s: %w", k.Code, err)
		}
	}
	return nil
}

type Report struct {
	Events       int `json:"events"`
	Riders       int `json:"riders"`
	RacesCreated int `json:"races_created"`
	RacesMoved   int `json:"races_rescheduled"`
	Skipped      int `json:"skipped"`
}

type Syncer struct {
	store      storage.Store
	races      *race.Service
	src        Source
	closeAfter time.Duration
	log        zerolog.Logger
}

// NewSyncer builds a syncer. betClose <= 0 uses DefaultBetClose.
func NewSyncer(store storage.Store, races *race.Service, src Source, betClose time.Duration, log zerolog.Logger) *Syncer {
	if betClose <= 0 {
		betClose = DefaultBetClose
	}
	return &Syncer{
		store:      store,
		races:      races,
		src:        src,
		closeAfter: betClose,
		log:        log.With().Str("component", "catalog").Logger(),
	}
}

// Sync imports events, riders and races. Rows that reference unknown
// entities or break the race rules are skipped and counted.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	var rep Report

	events, err := s.src.Events(ctx)
	if err != nil {
		return rep, fmt.Errorf("read events: %w", err)
	}
	eventIDs := make(map[string]int64, len(events))
	for _, e := range events {
		saved, err := s.store.UpsertEvent(ctx, e)
		if err != nil {
			return rep, fmt.Errorf("upsert event %s: %w", e.ExternalRef, err)
		}
		eventIDs[e.ExternalRef] = saved.ID
		rep.Events++
	}

	riders, err := s.src.Riders(ctx)
	if err != nil {
		return rep, fmt.Errorf("read riders: %w", err)
	}
	for _, r := range riders {
		if _, err := s.store.UpsertRider(ctx, r); err != nil {
			return rep, fmt.Errorf("upsert rider %s: %w", r.ExternalRef, err)
		}
		rep.Riders++
	}

	rows, err := s.src.Races(ctx)
	if err != nil {
		return rep, fmt.Errorf("read races: %w", err)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return rep, err
	}
	kinds, err := s.store.ListRaceKinds(ctx)
	if err != nil {
		return rep, err
	}
	catIDs := map[string]int64{}
	for _, c := range cats {
		catIDs[c.Code] = c.ID
	}
	kindIDs := map[string]int64{}
	for _, k := range kinds {
		kindIDs[k.Code] = k.ID
	}

	for _, row := range rows {
		eventID, ok := eventIDs[row.EventRef]
		catID, okCat := catIDs[strings.ToUpper(row.Category)]
		kindID, okKind := kindIDs[strings.ToUpper(row.Kind)]
		if !ok || !okCat || !okKind {
			s.log.Warn().Str("race_ref", row.ExternalRef).Str("event", row.EventRef).
				Str("category", row.Category).Str("kind", row.Kind).Msg("calendar row references unknown entity, skipped")
			rep.Skipped++
			continue
		}
		closeAt := row.BetCloseAt
		if closeAt.IsZero() {
			closeAt = row.StartsAt.Add(-s.closeAfter)
		}

		existing, err := s.store.FindRace(ctx, eventID, catID, kindID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			_, err := s.races.Create(ctx, models.Race{
				EventID:     eventID,
				CategoryID:  catID,
				KindID:      kindID,
				StartsAt:    row.StartsAt,
				BetCloseAt:  closeAt,
				ExternalRef: row.ExternalRef,
			})
			if err != nil {
				s.log.Warn().Err(err).Str("race_ref", row.ExternalRef).Msg("race not created")
				rep.Skipped++
				continue
			}
			rep.RacesCreated++
		case err != nil:
			return rep, fmt.Errorf("find race %s: %w", row.ExternalRef, err)
		default:
			if existing.StartsAt.Equal(row.StartsAt) && existing.BetCloseAt.Equal(closeAt) {
				continue
			}
			if _, err := s.races.Reschedule(ctx, existing.ID, row.StartsAt, closeAt); err != nil {
				s.log.Warn().Err(err).Int64("race", existing.ID).Msg("race not rescheduled")
				rep.Skipped++
				continue
			}
			rep.RacesMoved++
		}
	}

	s.log.Info().
		Int("events", rep.Events).
		Int("riders", rep.Riders).
		Int("created", rep.RacesCreated).
		Int("rescheduled", rep.RacesMoved).
		Int("skipped", rep.Skipped).
		Msg("catalog synced")
	return rep, nil
}
