package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Tx(ctx, func(r storage.Repo) error {
		if _, err := r.UpsertParticipant(ctx, 42, "Valentino", now); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if _, err := s.GetParticipantByHandle(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected participant to be rolled back, got %v", err)
	}
}

func TestRaceTxUnknownRace(t *testing.T) {
	s := New()
	err := s.RaceTx(context.Background(), 7, func(storage.Repo) error { return nil })
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUniqueBetPerParticipantAndRace(t *testing.T) {
	s := New()
	ctx := context.Background()

	b := models.Bet{ParticipantID: 1, RaceID: 2, Picks: models.Picks{1, 2, 3}}
	if _, err := s.InsertBet(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := s.InsertBet(ctx, b); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestInsertScoreOncePerBet(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, created, err := s.InsertScore(ctx, models.Score{BetID: 5, RaceID: 1, Total: 15})
	if err != nil || !created {
		t.Fatalf("Expected first score to be created, got %v %v", created, err)
	}
	again, created, err := s.InsertScore(ctx, models.Score{BetID: 5, RaceID: 1, Total: 40})
	if err != nil || created {
		t.Fatalf("Expected second score to be skipped, got %v %v", created, err)
	}
	if again.Total != first.Total || again.ID != first.ID {
		t.Errorf("Expected existing score back, got %+v", again)
	}
}

func TestClaimNotificationConcurrent(t *testing.T) {
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ClaimNotification(ctx, models.NotificationRecord{RaceID: 1, Kind: models.NotifyClosingSoon, SentAt: now})
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if claimed != 1 {
		t.Errorf("Expected exactly one claim, got %d", claimed)
	}

	ok, _ := s.ClaimNotification(ctx, models.NotificationRecord{RaceID: 1, Kind: models.NotifyBettingClosed, SentAt: now})
	if !ok {
		t.Error("Expected a different kind to be claimable")
	}
}

func TestListRacesFilter(t *testing.T) {
	s := New()
	ctx := context.Background()

	mk := func(kind int64, status models.RaceStatus, closeAt time.Time) models.Race {
		r, err := s.InsertRace(ctx, models.Race{
			EventID: 1, CategoryID: 1, KindID: kind,
			StartsAt: closeAt.Add(10 * time.Minute), BetCloseAt: closeAt, Status: status,
		})
		if err != nil {
			t.Fatal(err)
		}
		return r
	}
	past := mk(1, models.RaceBettingOpen, now.Add(-time.Minute))
	mk(2, models.RaceBettingOpen, now.Add(time.Hour))
	mk(3, models.RaceFinished, now.Add(-time.Hour))

	got, err := s.ListRaces(ctx, storage.RaceFilter{
		Statuses:    []models.RaceStatus{models.RaceUpcoming, models.RaceBettingOpen},
		CloseBefore: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != past.ID {
		t.Errorf("Expected only the overdue open race, got %+v", got)
	}
}

func TestCategoryStandingsAccumulate(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.AddCategoryStanding(ctx, 2025, 1, 10, 15, 1, now)
	_ = s.AddCategoryStanding(ctx, 2025, 1, 10, 40, 1, now)
	_ = s.AddCategoryStanding(ctx, 2025, 1, 11, 20, 1, now)
	_ = s.AddCategoryStanding(ctx, 2024, 1, 11, 99, 1, now)

	list, err := s.ListCategoryStandings(ctx, 2025, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 standings, got %d", len(list))
	}
	if list[0].ParticipantID != 10 || list[0].TotalPoints != 55 || list[0].RacesParticipated != 2 {
		t.Errorf("Unexpected leader %+v", list[0])
	}
	if top, _ := s.ListCategoryStandings(ctx, 2025, 0, 1); len(top) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(top))
	}
}
