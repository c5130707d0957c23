package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
	"podium-bot/internal/notify"
	"podium-bot/internal/race"
	"podium-bot/internal/results"
	"podium-bot/internal/storage"
)

// CloseSweep opens races whose betting window has arrived and closes every
// race whose deadline has passed, sending each closed race's bet summary once.
func (s *Scheduler) CloseSweep(ctx context.Context) error {
	return s.guard(ctx, actionClose, s.closeSweep)
}

func (s *Scheduler) closeSweep(ctx context.Context, log zerolog.Logger) error {
	now := s.clock.Now()

	toOpen := storage.RaceFilter{
		Statuses:   []models.RaceStatus{models.RaceUpcoming},
		CloseAfter: now,
	}
	if s.cfg.BettingOpenLead > 0 {
		toOpen.CloseBefore = now.Add(s.cfg.BettingOpenLead)
	}
	due, err := s.store.ListRaces(ctx, toOpen)
	if err != nil {
		return fmt.Errorf("list races to open: %w", err)
	}
	for _, r := range due {
		if err := s.transition(ctx, r.ID, race.ActionOpen); err != nil {
			logRaceError(log, r.ID, "open betting failed", err)
			continue
		}
		log.Info().Int64("race", r.ID).Msg("betting opened")
	}

	overdue, err := s.store.ListRaces(ctx, storage.RaceFilter{
		Statuses:    []models.RaceStatus{models.RaceUpcoming, models.RaceBettingOpen},
		CloseBefore: now,
	})
	if err != nil {
		return fmt.Errorf("list races to close: %w", err)
	}
	for _, r := range overdue {
		if err := s.transition(ctx, r.ID, race.ActionClose); err != nil {
			logRaceError(log, r.ID, "close betting failed", err)
			continue
		}
		log.Info().Int64("race", r.ID).Msg("betting closed")
		if err := s.NotifyClosed(ctx, r.ID); err != nil {
			logRaceError(log, r.ID, "closed summary failed", err)
		}
	}
	return nil
}

func (s *Scheduler) transition(ctx context.Context, raceID int64, a race.Action) error {
	return s.store.RaceTx(ctx, raceID, func(repo storage.Repo) error {
		_, err := race.Advance(ctx, repo, raceID, a, s.clock.Now())
		return err
	})
}

// NotifyClosed sends the betting-closed summary for a race once.
func (s *Scheduler) NotifyClosed(ctx context.Context, raceID int64) error {
	claimed, err := s.claim(ctx, raceID, models.NotifyBettingClosed)
	if err != nil || !claimed {
		return err
	}
	d, bets, err := s.raceWithBets(ctx, raceID)
	if err != nil {
		return err
	}
	lines, err := s.betLines(ctx, bets)
	if err != nil {
		return err
	}
	text := closedSummary(d, lines)
	msgs := make([]notify.Message, 0, len(bets))
	for _, b := range bets {
		msgs = append(msgs, notify.Message{Handle: lines[b.ID].handle, Text: text})
	}
	s.notifier.Broadcast(ctx, models.NotifyBettingClosed, msgs)
	s.notifier.Announce(ctx, models.NotifyBettingClosed, text)
	return nil
}

// WarningSweep warns about open races closing within the lookahead. The
// notification record is claimed before sending, so each race is warned at
// most once however many sweeps overlap.
func (s *Scheduler) WarningSweep(ctx context.Context) error {
	return s.guard(ctx, actionWarning, s.warningSweep)
}

func (s *Scheduler) warningSweep(ctx context.Context, log zerolog.Logger) error {
	now := s.clock.Now()
	soon, err := s.store.ListRaces(ctx, storage.RaceFilter{
		Statuses:    []models.RaceStatus{models.RaceBettingOpen},
		CloseAfter:  now,
		CloseBefore: now.Add(s.cfg.WarningLookahead),
	})
	if err != nil {
		return fmt.Errorf("list races closing soon: %w", err)
	}
	for _, r := range soon {
		claimed, err := s.claim(ctx, r.ID, models.NotifyClosingSoon)
		if err != nil {
			logRaceError(log, r.ID, "claim warning failed", err)
			continue
		}
		if !claimed {
			continue
		}
		sent, err := s.sendWarning(ctx, r)
		if err != nil {
			logRaceError(log, r.ID, "warning failed", err)
			continue
		}
		log.Info().Int64("race", r.ID).Int("sent", sent).Msg("closing soon warning sent")
	}
	return nil
}

func (s *Scheduler) sendWarning(ctx context.Context, r models.Race) (int, error) {
	d, bets, err := s.raceWithBets(ctx, r.ID)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()
	bettors := map[int64]bool{}
	var msgs []notify.Message
	for _, b := range bets {
		p, err := s.store.GetParticipant(ctx, b.ParticipantID)
		if err != nil {
			return 0, fmt.Errorf("participant %d: %w", b.ParticipantID, err)
		}
		bettors[p.ID] = true
		msgs = append(msgs, notify.Message{Handle: p.Handle, Text: warningText(d, now, true)})
	}
	if s.cfg.WarnAllParticipants {
		people, err := s.store.ListParticipants(ctx)
		if err != nil {
			return 0, err
		}
		for _, p := range people {
			if !bettors[p.ID] {
				msgs = append(msgs, notify.Message{Handle: p.Handle, Text: warningText(d, now, false)})
			}
		}
	}
	return s.notifier.Broadcast(ctx, models.NotifyClosingSoon, msgs), nil
}

// ResultRefresh pulls results for races past their start and settles them.
// Finished races that still have unscored bets are retried too.
func (s *Scheduler) ResultRefresh(ctx context.Context) error {
	return s.guard(ctx, actionResults, s.resultRefresh)
}

func (s *Scheduler) resultRefresh(ctx context.Context, log zerolog.Logger) error {
	now := s.clock.Now()
	started, err := s.store.ListRaces(ctx, storage.RaceFilter{
		Statuses:    models.ActiveRaceStatuses,
		StartBefore: now,
	})
	if err != nil {
		return fmt.Errorf("list started races: %w", err)
	}
	pending, err := s.store.ListRacesPendingSettlement(ctx)
	if err != nil {
		return fmt.Errorf("list unsettled races: %w", err)
	}

	seen := map[int64]bool{}
	for _, r := range append(started, pending...) {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		if err := s.refreshRace(ctx, log, r); err != nil {
			logRaceError(log, r.ID, "result refresh failed", err)
		}
	}
	return nil
}

func (s *Scheduler) refreshRace(ctx context.Context, log zerolog.Logger, r models.Race) error {
	if r.Status == models.RaceBettingClosed {
		if err := s.transition(ctx, r.ID, race.ActionStart); err != nil {
			return err
		}
		log.Info().Int64("race", r.ID).Msg("race started")
	}

	ingested := false
	if r.Status != models.RaceFinished {
		found, err := s.ingest(ctx, r.ID)
		if err != nil || !found {
			return err
		}
		ingested = true
		log.Info().Int64("race", r.ID).Msg("results stored, race finished")
	}

	n, err := s.settler.ProcessRace(ctx, r.ID)
	if errors.Is(err, apperr.ErrIncompleteResult) && !ingested {
		// Stored results were incomplete; the source may have the full classification now.
		found, ierr := s.ingest(ctx, r.ID)
		if ierr != nil {
			return ierr
		}
		if found {
			n, err = s.settler.ProcessRace(ctx, r.ID)
		}
	}
	if err != nil {
		return err
	}
	if n > 0 {
		if err := s.notifyResult(ctx, r.ID); err != nil {
			logRaceError(log, r.ID, "result notification failed", err)
		}
	}
	return nil
}

// ingest fetches the classification, maps rider refs, replaces the race's
// results and moves it to finished in one race transaction.
func (s *Scheduler) ingest(ctx context.Context, raceID int64) (bool, error) {
	r, err := s.store.GetRace(ctx, raceID)
	if err != nil {
		return false, err
	}
	entries, found, err := s.fetch(ctx, r.ExternalRef)
	if err != nil || !found {
		return false, err
	}

	mapped := make([]models.ResultEntry, 0, len(entries))
	for _, e := range entries {
		rider, err := s.store.GetRiderByRef(ctx, e.RiderRef)
		if errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Int64("race", raceID).Str("rider_ref", e.RiderRef).Msg("unknown rider in results, skipped")
			continue
		}
		if err != nil {
			return false, err
		}
		mapped = append(mapped, models.ResultEntry{RaceID: raceID, RiderID: rider.ID, Position: e.Position, Status: e.Status})
	}
	if unique := dedupeByRider(mapped); len(unique) < len(mapped) {
		s.log.Warn().Int64("race", raceID).Int("dropped", len(mapped)-len(unique)).Msg("repeated riders in results, kept best place")
		mapped = unique
	}

	err = s.store.RaceTx(ctx, raceID, func(repo storage.Repo) error {
		return ApplyResults(ctx, repo, raceID, mapped, s.clock.Now())
	})
	return err == nil, err
}

// SubmitResults stores a classification entered by an admin, settles the
// race and notifies bettors. Unlike the provider path, unknown riders are
// rejected. Returns the number of scores created.
func (s *Scheduler) SubmitResults(ctx context.Context, raceID int64, entries []results.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, apperr.ErrBadInput.With("no results given")
	}
	mapped := make([]models.ResultEntry, 0, len(entries))
	seen := make(map[int64]bool, len(entries))
	for _, e := range entries {
		if e.Position < 1 {
			return 0, apperr.ErrBadInput.With("position for %s must be positive", e.RiderRef)
		}
		rider, err := s.store.GetRiderByRef(ctx, e.RiderRef)
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperr.ErrUnknownRider.With("unknown rider %q", e.RiderRef)
		}
		if err != nil {
			return 0, err
		}
		if seen[rider.ID] {
			return 0, apperr.ErrBadInput.With("rider %q is listed twice", e.RiderRef)
		}
		seen[rider.ID] = true
		if e.Status == "" {
			e.Status = models.FinishClassified
		}
		mapped = append(mapped, models.ResultEntry{RaceID: raceID, RiderID: rider.ID, Position: e.Position, Status: e.Status})
	}

	err := s.store.RaceTx(ctx, raceID, func(repo storage.Repo) error {
		return ApplyResults(ctx, repo, raceID, mapped, s.clock.Now())
	})
	if errors.Is(err, storage.ErrNotFound) {
		return 0, apperr.ErrRaceNotFound
	}
	if err != nil {
		return 0, err
	}
	s.log.Info().Int64("race", raceID).Int("entries", len(mapped)).Msg("results submitted")

	n, err := s.settler.ProcessRace(ctx, raceID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.notifyResult(ctx, raceID); err != nil {
			logRaceError(s.log, raceID, "result notification failed", err)
		}
	}
	return n, nil
}

// dedupeByRider keeps one entry per rider, the best placed one, in first-seen
// order. Results are keyed by rider in storage.
func dedupeByRider(entries []models.ResultEntry) []models.ResultEntry {
	at := make(map[int64]int, len(entries))
	out := make([]models.ResultEntry, 0, len(entries))
	for _, e := range entries {
		if i, ok := at[e.RiderID]; ok {
			if e.Position < out[i].Position {
				out[i] = e
			}
			continue
		}
		at[e.RiderID] = len(out)
		out = append(out, e)
	}
	return out
}

// ApplyResults replaces a race's results, bumps its result version and
// advances it to finished. Callers hold the race lock.
func ApplyResults(ctx context.Context, repo storage.Repo, raceID int64, entries []models.ResultEntry, now time.Time) error {
	r, err := repo.GetRace(ctx, raceID)
	if err != nil {
		return err
	}
	if r.Status == models.RaceCancelled {
		return apperr.ErrInvalidTransition.With("race %d is cancelled", raceID)
	}
	if err := repo.ReplaceResults(ctx, raceID, entries); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	if r, err = race.AdvanceToFinished(r, now); err != nil {
		return err
	}
	r.ResultVersion++
	return race.Save(ctx, repo, r, now)
}

func (s *Scheduler) notifyResult(ctx context.Context, raceID int64) error {
	claimed, err := s.claim(ctx, raceID, models.NotifyRaceResult)
	if err != nil || !claimed {
		return err
	}
	d, bets, err := s.raceWithBets(ctx, raceID)
	if err != nil {
		return err
	}
	lines, err := s.betLines(ctx, bets)
	if err != nil {
		return err
	}
	res, err := s.store.ListResults(ctx, raceID)
	if err != nil {
		return err
	}
	podium, err := s.podiumLabels(ctx, res)
	if err != nil {
		return err
	}
	scores, err := s.store.ListScoresForRace(ctx, raceID)
	if err != nil {
		return err
	}
	byBet := make(map[int64]models.Score, len(scores))
	for _, sc := range scores {
		byBet[sc.BetID] = sc
	}

	msgs := make([]notify.Message, 0, len(bets))
	for _, b := range bets {
		sc, ok := byBet[b.ID]
		if !ok {
			continue
		}
		msgs = append(msgs, notify.Message{Handle: lines[b.ID].handle, Text: resultText(d, podium, lines[b.ID].picks, sc)})
	}
	s.notifier.Broadcast(ctx, models.NotifyRaceResult, msgs)
	s.notifier.Announce(ctx, models.NotifyRaceResult, podiumAnnouncement(d, podium))
	return nil
}
