package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/clock"
	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/storage"
	"podium-bot/internal/storage/memory"
)

var start = time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	events []models.Event
	riders []models.Rider
	races  []RaceRow
	err    error
}

func (f *fakeSource) Events(context.Context) ([]models.Event, error) { return f.events, f.err }
func (f *fakeSource) Riders(context.Context) ([]models.Rider, error) { return f.riders, nil }
func (f *fakeSource) Races(context.Context) ([]RaceRow, error)       { return f.races, nil }

func calendar() *fakeSource {
	return &fakeSource{
		events: []models.Event{{Season: 2025, Name: "Sachsenring", Country: "DE", ExternalRef: "ger"}},
		riders: []models.Rider{
			{ExternalRef: "bagnaia", LastName: "Bagnaia", Number: 1},
			{ExternalRef: "marquez", LastName: "Marquez", Number: 93},
		},
		races: []RaceRow{
			{ExternalRef: "ger-mgp-spr", EventRef: "ger", Category: "MGP", Kind: "SPR", StartsAt: start.Add(-24 * time.Hour)},
			{ExternalRef: "ger-mgp-rac", EventRef: "ger", Category: "mgp", Kind: "rac", StartsAt: start, BetCloseAt: start.Add(-time.Hour)},
			{ExternalRef: "ger-wsbk-rac", EventRef: "ger", Category: "WSBK", Kind: "RAC", StartsAt: start},
		},
	}
}

func newSyncer(t *testing.T, src Source) (*Syncer, *memory.Store) {
	t.Helper()
	store := memory.New()
	if err := Seed(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	clk := clock.NewManual(start.Add(-7 * 24 * time.Hour))
	races := race.NewService(store, clk, zerolog.Nop())
	return NewSyncer(store, races, src, 0, zerolog.Nop()), store
}

func TestSeedIsIdempotent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Seed(ctx, store); err != nil {
			t.Fatal(err)
		}
	}
	cats, _ := store.ListCategories(ctx)
	kinds, _ := store.ListRaceKinds(ctx)
	if len(cats) != 3 || len(kinds) != 2 {
		t.Errorf("Expected 3 categories and 2 kinds, got %d and %d", len(cats), len(kinds))
	}
	for _, k := range kinds {
		if k.Profile != (models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10}) {
			t.Errorf("Unexpected profile for %s: %+v", k.Code, k.Profile)
		}
	}
}

func TestSyncImportsCalendar(t *testing.T) {
	s, store := newSyncer(t, calendar())
	ctx := context.Background()

	rep, err := s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Report{Events: 1, Riders: 2, RacesCreated: 2, Skipped: 1}
	if rep != want {
		t.Errorf("Expected %+v, got %+v", want, rep)
	}

	races, _ := store.ListRaces(ctx, storage.RaceFilter{})
	if len(races) != 2 {
		t.Fatalf("Expected 2 races, got %d", len(races))
	}
	byRef := map[string]models.Race{}
	for _, r := range races {
		byRef[r.ExternalRef] = r
	}
	spr := byRef["ger-mgp-spr"]
	if !spr.BetCloseAt.Equal(spr.StartsAt.Add(-DefaultBetClose)) {
		t.Errorf("Expected default close offset, got %v before start", spr.StartsAt.Sub(spr.BetCloseAt))
	}
	if spr.Status != models.RaceUpcoming {
		t.Errorf("Expected upcoming, got %s", spr.Status)
	}
	if rac := byRef["ger-mgp-rac"]; !rac.BetCloseAt.Equal(start.Add(-time.Hour)) {
		t.Errorf("Expected explicit close time kept, got %v", rac.BetCloseAt)
	}
}

func TestSyncTwiceChangesNothing(t *testing.T) {
	s, store := newSyncer(t, calendar())
	ctx := context.Background()
	_, _ = s.Sync(ctx)

	rep, err := s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.RacesCreated != 0 || rep.RacesMoved != 0 {
		t.Errorf("Expected no race changes, got %+v", rep)
	}
	riders, _ := store.ListRiders(ctx)
	if len(riders) != 2 {
		t.Errorf("Expected riders upserted in place, got %d", len(riders))
	}
}

func TestSyncReschedules(t *testing.T) {
	src := calendar()
	s, store := newSyncer(t, src)
	ctx := context.Background()
	_, _ = s.Sync(ctx)

	src.races[1].StartsAt = start.Add(2 * time.Hour)
	src.races[1].BetCloseAt = start.Add(time.Hour)
	rep, err := s.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.RacesMoved != 1 {
		t.Fatalf("Expected one reschedule, got %+v", rep)
	}
	races, _ := store.ListRaces(ctx, storage.RaceFilter{})
	for _, r := range races {
		if r.ExternalRef == "ger-mgp-rac" && !r.StartsAt.Equal(start.Add(2*time.Hour)) {
			t.Errorf("Expected new start, got %v", r.StartsAt)
		}
	}
}

func TestSyncSourceError(t *testing.T) {
	src := calendar()
	src.err = errors.New("quota exceeded")
	s, _ := newSyncer(t, src)
	if _, err := s.Sync(context.Background()); err == nil {
		t.Error("Expected source error to surface")
	}
}
