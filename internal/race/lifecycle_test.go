package race

import (
	"errors"
	"testing"
	"time"

	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func raceIn(status models.RaceStatus) models.Race {
	return models.Race{
		ID:         1,
		StartsAt:   t0.Add(10 * time.Minute),
		BetCloseAt: t0,
		Status:     status,
	}
}

func TestTransitions(t *testing.T) {
	all := []models.RaceStatus{
		models.RaceUpcoming, models.RaceBettingOpen, models.RaceBettingClosed,
		models.RaceInProgress, models.RaceFinished, models.RaceCancelled,
	}
	cases := []struct {
		action  Action
		allowed map[models.RaceStatus]models.RaceStatus
	}{
		{ActionOpen, map[models.RaceStatus]models.RaceStatus{
			models.RaceUpcoming: models.RaceBettingOpen,
		}},
		{ActionClose, map[models.RaceStatus]models.RaceStatus{
			models.RaceUpcoming:    models.RaceBettingClosed,
			models.RaceBettingOpen: models.RaceBettingClosed,
		}},
		{ActionStart, map[models.RaceStatus]models.RaceStatus{
			models.RaceBettingClosed: models.RaceInProgress,
		}},
		{ActionFinish, map[models.RaceStatus]models.RaceStatus{
			models.RaceBettingClosed: models.RaceFinished,
			models.RaceInProgress:    models.RaceFinished,
		}},
		{ActionCancel, map[models.RaceStatus]models.RaceStatus{
			models.RaceUpcoming:      models.RaceCancelled,
			models.RaceBettingOpen:   models.RaceCancelled,
			models.RaceBettingClosed: models.RaceCancelled,
			models.RaceInProgress:    models.RaceCancelled,
		}},
	}

	for _, tc := range cases {
		for _, from := range all {
			got, err := Apply(raceIn(from), tc.action, t0.Add(time.Second))
			want, ok := tc.allowed[from]
			if !ok {
				if !errors.Is(err, apperr.ErrInvalidTransition) {
					t.Errorf("%s from %s: expected ErrInvalidTransition, got %v", tc.action, from, err)
				}
				if got.Status != from {
					t.Errorf("%s from %s: status changed to %s on failure", tc.action, from, got.Status)
				}
				continue
			}
			if err != nil {
				t.Errorf("%s from %s: unexpected error %v", tc.action, from, err)
				continue
			}
			if got.Status != want {
				t.Errorf("%s from %s: expected %s, got %s", tc.action, from, want, got.Status)
			}
		}
	}
}

func TestCloseFromUpcomingNeedsDeadline(t *testing.T) {
	r := raceIn(models.RaceUpcoming)

	if _, err := CloseBetting(r, t0.Add(-time.Second)); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("Expected early close of an upcoming race to fail, got %v", err)
	}
	got, err := CloseBetting(r, t0)
	if err != nil {
		t.Fatalf("Expected close at the deadline to succeed, got %v", err)
	}
	if got.Status != models.RaceBettingClosed {
		t.Errorf("Expected betting_closed, got %s", got.Status)
	}
}

func TestIsBettable(t *testing.T) {
	cases := []struct {
		name   string
		status models.RaceStatus
		now    time.Time
		want   bool
	}{
		{"open before close", models.RaceBettingOpen, t0.Add(-time.Minute), true},
		{"upcoming before close", models.RaceUpcoming, t0.Add(-time.Minute), true},
		{"upcoming one second late", models.RaceUpcoming, t0.Add(time.Second), false},
		{"open exactly at close", models.RaceBettingOpen, t0, false},
		{"closed early", models.RaceBettingClosed, t0.Add(-time.Hour), false},
		{"cancelled", models.RaceCancelled, t0.Add(-time.Hour), false},
		{"finished", models.RaceFinished, t0.Add(-time.Hour), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBettable(raceIn(tc.status), tc.now); got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAdvanceToFinished(t *testing.T) {
	for _, from := range []models.RaceStatus{models.RaceBettingOpen, models.RaceBettingClosed, models.RaceInProgress, models.RaceFinished} {
		got, err := AdvanceToFinished(raceIn(from), t0.Add(time.Hour))
		if err != nil {
			t.Errorf("from %s: unexpected error %v", from, err)
			continue
		}
		if got.Status != models.RaceFinished {
			t.Errorf("from %s: expected finished, got %s", from, got.Status)
		}
	}
	if _, err := AdvanceToFinished(raceIn(models.RaceCancelled), t0.Add(time.Hour)); err == nil {
		t.Error("Expected a cancelled race to stay cancelled")
	}
}

func TestCheckIntegrity(t *testing.T) {
	r := raceIn(models.RaceUpcoming)
	if err := CheckIntegrity(r); err != nil {
		t.Fatalf("Expected valid race, got %v", err)
	}
	r.BetCloseAt = r.StartsAt.Add(time.Second)
	if err := CheckIntegrity(r); !errors.Is(err, apperr.ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity for close after start, got %v", err)
	}
}
