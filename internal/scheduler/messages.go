package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"podium-bot/internal/betting"
	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

type betLine struct {
	handle int64
	name   string
	picks  [3]string
}

func (s *Scheduler) raceWithBets(ctx context.Context, raceID int64) (models.RaceDetails, []models.Bet, error) {
	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return models.RaceDetails{}, nil, err
	}
	d, err := storage.LoadRaceDetails(ctx, s.store, r)
	if err != nil {
		return d, nil, err
	}
	bets, err := s.store.ListBetsForRace(ctx, raceID)
	return d, bets, err
}

// betLines resolves each bet's owner and pick labels, keyed by bet id.
func (s *Scheduler) betLines(ctx context.Context, bets []models.Bet) (map[int64]betLine, error) {
	var ids []int64
	for _, b := range bets {
		ids = append(ids, b.Picks[:]...)
	}
	riders, err := s.store.GetRiders(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]betLine, len(bets))
	for _, b := range bets {
		p, err := s.store.GetParticipant(ctx, b.ParticipantID)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", b.ParticipantID, err)
		}
		l := betLine{handle: p.Handle, name: p.DisplayName}
		for i, id := range b.Picks {
			l.picks[i] = riders[id].Label()
		}
		out[b.ID] = l
	}
	return out, nil
}

func (s *Scheduler) podiumLabels(ctx context.Context, res []models.ResultEntry) ([3]string, error) {
	var podium [3]string
	var ids []int64
	for _, e := range res {
		ids = append(ids, e.RiderID)
	}
	riders, err := s.store.GetRiders(ctx, ids)
	if err != nil {
		return podium, err
	}
	for _, e := range res {
		if e.Status == models.FinishClassified && e.Position >= 1 && e.Position <= 3 && podium[e.Position-1] == "" {
			podium[e.Position-1] = riders[e.RiderID].Label()
		}
	}
	return podium, nil
}

func closedSummary(d models.RaceDetails, lines map[int64]betLine) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔒 Betting closed: %s\n", d.Title())
	if len(lines) == 0 {
		b.WriteString("\nNo bets were placed.")
		return b.String()
	}
	fmt.Fprintf(&b, "\n%d bets:\n", len(lines))
	rows := make([]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, fmt.Sprintf("• %s: %s / %s / %s", l.name, l.picks[0], l.picks[1], l.picks[2]))
	}
	sort.Strings(rows)
	b.WriteString(strings.Join(rows, "\n"))
	return b.String()
}

func warningText(d models.RaceDetails, now time.Time, hasBet bool) string {
	left := betting.TimeUntilClose(d.Race, now)
	if hasBet {
		return fmt.Sprintf("⏰ Betting for %s closes in %s.\nYou can still edit your picks with /mybets.", d.Title(), left)
	}
	return fmt.Sprintf("⏰ Betting for %s closes in %s.\nYou have not bet yet, use /races to place one.", d.Title(), left)
}

func resultText(d models.RaceDetails, podium [3]string, picks [3]string, sc models.Score) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Results: %s\n\n", d.Title())
	for i, name := range podium {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
	}
	b.WriteString("\nYour picks:\n")
	for i, name := range picks {
		fmt.Fprintf(&b, "%d. %s: %d pts\n", i+1, name, sc.Slots[i])
	}
	if sc.Bonus > 0 {
		fmt.Fprintf(&b, "Perfect podium bonus: %d pts\n", sc.Bonus)
	}
	fmt.Fprintf(&b, "\nTotal: %d pts", sc.Total)
	return b.String()
}

func podiumAnnouncement(d models.RaceDetails, podium [3]string) string {
	return fmt.Sprintf("🏁 %s\n🥇 %s\n🥈 %s\n🥉 %s", d.Title(), podium[0], podium[1], podium[2])
}
