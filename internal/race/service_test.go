package race

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/clock"
	"podium-bot/internal/models"
	"podium-bot/internal/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *clock.Manual, models.Race) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	clk := clock.NewManual(t0.Add(-time.Hour))

	cat, _ := store.UpsertCategory(ctx, models.Category{Code: "MGP", Name: "MotoGP"})
	kind, _ := store.UpsertRaceKind(ctx, models.RaceKind{Code: "RAC", Name: "Race"})
	ev, _ := store.UpsertEvent(ctx, models.Event{Season: 2025, Name: "Mugello", ExternalRef: "ita"})

	svc := NewService(store, clk, zerolog.Nop())
	r, err := svc.Create(ctx, models.Race{
		EventID: ev.ID, CategoryID: cat.ID, KindID: kind.ID,
		StartsAt: t0.Add(10 * time.Minute), BetCloseAt: t0,
	})
	if err != nil {
		t.Fatalf("create race: %v", err)
	}
	return svc, store, clk, r
}

func TestCreateRejectsCloseAfterStart(t *testing.T) {
	svc, _, _, r := newService(t)

	_, err := svc.Create(context.Background(), models.Race{
		EventID: r.EventID, CategoryID: r.CategoryID, KindID: r.KindID + 100,
		StartsAt: t0, BetCloseAt: t0.Add(time.Minute),
	})
	if !errors.Is(err, apperr.ErrBadInput) {
		t.Errorf("Expected ErrBadInput, got %v", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	svc, _, _, r := newService(t)

	_, err := svc.Create(context.Background(), models.Race{
		EventID: r.EventID, CategoryID: r.CategoryID, KindID: r.KindID,
		StartsAt: r.StartsAt, BetCloseAt: r.BetCloseAt,
	})
	if !errors.Is(err, apperr.ErrBadInput) {
		t.Errorf("Expected duplicate race to be rejected, got %v", err)
	}
}

func TestTransitionPersists(t *testing.T) {
	svc, store, _, r := newService(t)
	ctx := context.Background()

	if r.Status != models.RaceUpcoming {
		t.Fatalf("Expected new race to be upcoming, got %s", r.Status)
	}
	if _, err := svc.Transition(ctx, r.ID, ActionOpen); err != nil {
		t.Fatalf("open: %v", err)
	}
	stored, _ := store.GetRace(ctx, r.ID)
	if stored.Status != models.RaceBettingOpen {
		t.Errorf("Expected betting_open, got %s", stored.Status)
	}

	if _, err := svc.Transition(ctx, r.ID, ActionOpen); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("Expected second open to fail, got %v", err)
	}
	if _, err := svc.Transition(ctx, 9999, ActionOpen); !errors.Is(err, apperr.ErrRaceNotFound) {
		t.Errorf("Expected ErrRaceNotFound, got %v", err)
	}
}

func TestRescheduleNeverMovesCloseBackwardAfterOpen(t *testing.T) {
	svc, _, _, r := newService(t)
	ctx := context.Background()

	// Upcoming races may move either way.
	moved, err := svc.Reschedule(ctx, r.ID, r.StartsAt, r.BetCloseAt.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("reschedule upcoming: %v", err)
	}
	if !moved.BetCloseAt.Equal(t0.Add(-5 * time.Minute)) {
		t.Errorf("Expected close to move, got %v", moved.BetCloseAt)
	}

	if _, err := svc.Transition(ctx, r.ID, ActionOpen); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Reschedule(ctx, r.ID, r.StartsAt, moved.BetCloseAt.Add(-time.Minute)); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("Expected backward move to fail once open, got %v", err)
	}
	if _, err := svc.Reschedule(ctx, r.ID, r.StartsAt, r.StartsAt.Add(time.Minute)); !errors.Is(err, apperr.ErrBadInput) {
		t.Errorf("Expected close after start to fail, got %v", err)
	}
	if _, err := svc.Reschedule(ctx, r.ID, r.StartsAt.Add(time.Hour), r.StartsAt.Add(30*time.Minute)); err != nil {
		t.Errorf("Expected forward move to succeed, got %v", err)
	}
}

func TestBettableUsesClock(t *testing.T) {
	svc, _, clk, _ := newService(t)
	ctx := context.Background()

	list, err := svc.Bettable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("Expected 1 bettable race, got %d", len(list))
	}
	if list[0].Category.Code != "MGP" {
		t.Errorf("Expected details to be loaded, got %+v", list[0].Category)
	}

	clk.Set(t0)
	list, _ = svc.Bettable(ctx)
	if len(list) != 0 {
		t.Errorf("Expected no bettable races at the deadline, got %d", len(list))
	}
}
