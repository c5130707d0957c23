package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"podium-bot/internal/clock"
	"podium-bot/internal/models"
	"podium-bot/internal/scoring"
)

// getTestStore opens TEST_DATABASE_URL or skips.
func getTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestConcurrentSettlementsKeepGlobalExact(t *testing.T) {
	s := getTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	tag := uuid.NewString()[:8]
	// a season no other run uses, so the global table holds only this test's rows
	season := 10000 + int(now.UnixNano()%50000)

	kind, err := s.UpsertRaceKind(ctx, models.RaceKind{
		Code: "K" + tag, Name: "Race", Profile: models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	ev, err := s.UpsertEvent(ctx, models.Event{Season: season, Name: "Assen", ExternalRef: "ev-" + tag})
	if err != nil {
		t.Fatal(err)
	}
	var riders []models.Rider
	for i := 0; i < 4; i++ {
		rd, err := s.UpsertRider(ctx, models.Rider{ExternalRef: uuid.NewString(), Number: i + 1})
		if err != nil {
			t.Fatal(err)
		}
		riders = append(riders, rd)
	}
	p, err := s.UpsertParticipant(ctx, now.UnixNano(), "ana", now)
	if err != nil {
		t.Fatal(err)
	}

	var raceIDs []int64
	for i, picks := range []models.Picks{
		{riders[0].ID, riders[1].ID, riders[2].ID}, // 40
		{riders[0].ID, riders[2].ID, riders[3].ID}, // 15
	} {
		cat, err := s.UpsertCategory(ctx, models.Category{Code: "C" + tag + string(rune('a'+i)), Name: "cat"})
		if err != nil {
			t.Fatal(err)
		}
		r, err := s.InsertRace(ctx, models.Race{
			EventID: ev.ID, CategoryID: cat.ID, KindID: kind.ID,
			StartsAt: now, BetCloseAt: now.Add(-10 * time.Minute), Status: models.RaceFinished,
			ResultVersion: 1, CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatal(err)
		}
		err = s.ReplaceResults(ctx, r.ID, []models.ResultEntry{
			{RaceID: r.ID, RiderID: riders[0].ID, Position: 1, Status: models.FinishClassified},
			{RaceID: r.ID, RiderID: riders[1].ID, Position: 2, Status: models.FinishClassified},
			{RaceID: r.ID, RiderID: riders[2].ID, Position: 3, Status: models.FinishClassified},
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.InsertBet(ctx, models.Bet{ParticipantID: p.ID, RaceID: r.ID, Picks: picks, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatal(err)
		}
		raceIDs = append(raceIDs, r.ID)
	}

	engine := scoring.NewEngine(s, clock.NewManual(now), zerolog.Nop())
	var wg sync.WaitGroup
	errs := make(chan error, len(raceIDs))
	for _, id := range raceIDs {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := engine.ProcessRace(ctx, id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	global, err := s.ListGlobalStandings(ctx, season, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(global) != 1 || global[0].TotalPoints != 55 || global[0].RacesParticipated != 2 {
		t.Errorf("Expected 55 points over 2 races, got %+v", global)
	}
}
