// Package scheduler drives races through time: it closes betting, warns
// bettors before the deadline, and pulls results to settle finished races.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/clock"
	"podium-bot/internal/metrics"
	"podium-bot/internal/models"
	"podium-bot/internal/notify"
	"podium-bot/internal/results"
	"podium-bot/internal/storage"
)

// ErrBusy is returned when an action is already running here or on another replica.
var ErrBusy = errors.New("scheduler: action already running")

const (
	actionClose   = "close_sweep"
	actionWarning = "warning_sweep"
	actionResults = "result_refresh"
)

type Config struct {
	CloseInterval   time.Duration
	WarningInterval time.Duration
	ResultInterval  time.Duration
	// WarningLookahead is how long before the deadline the closing-soon warning goes out.
	WarningLookahead time.Duration
	// BettingOpenLead opens upcoming races this long before their deadline.
	// Zero opens them on the first sweep after they are created.
	BettingOpenLead     time.Duration
	CollaboratorTimeout time.Duration
	ActionTimeout       time.Duration
	WarnAllParticipants bool
}

func (c *Config) defaults() {
	if c.CloseInterval <= 0 {
		c.CloseInterval = time.Minute
	}
	if c.WarningInterval <= 0 {
		c.WarningInterval = 5 * time.Minute
	}
	if c.ResultInterval <= 0 {
		c.ResultInterval = 15 * time.Minute
	}
	if c.WarningLookahead <= 0 {
		c.WarningLookahead = 15 * time.Minute
	}
	if c.CollaboratorTimeout <= 0 {
		c.CollaboratorTimeout = 10 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Minute
	}
}

// Settler scores a finished race.
type Settler interface {
	ProcessRace(ctx context.Context, raceID int64) (int, error)
}

type Notifier interface {
	Broadcast(ctx context.Context, kind models.NotificationKind, msgs []notify.Message) int
	Announce(ctx context.Context, kind models.NotificationKind, text string)
}

// Locker is a lock shared between replicas.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Scheduler struct {
	store    storage.Store
	clock    clock.Clock
	settler  Settler
	provider results.Provider
	notifier Notifier
	locker   Locker
	cfg      Config
	log      zerolog.Logger

	running map[string]*atomic.Bool
}

func New(store storage.Store, clk clock.Clock, settler Settler, provider results.Provider, notifier Notifier, cfg Config, log zerolog.Logger) *Scheduler {
	cfg.defaults()
	return &Scheduler{
		store:    store,
		clock:    clk,
		settler:  settler,
		provider: provider,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "scheduler").Logger(),
		running: map[string]*atomic.Bool{
			actionClose:   {},
			actionWarning: {},
			actionResults: {},
		},
	}
}

// SetLocker makes every action also take a cross-replica lock.
func (s *Scheduler) SetLocker(l Locker) { s.locker = l }

// Run ticks the three actions until ctx is done, then waits for any action
// still in flight.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		every time.Duration
		fn    func(context.Context) error
	}{
		{s.cfg.CloseInterval, s.CloseSweep},
		{s.cfg.WarningInterval, s.WarningSweep},
		{s.cfg.ResultInterval, s.ResultRefresh},
	}
	for _, l := range loops {
		wg.Add(1)
		go func(every time.Duration, fn func(context.Context) error) {
			defer wg.Done()
			s.loop(ctx, every, fn)
		}(l.every, l.fn)
	}
	s.log.Info().
		Dur("close_every", s.cfg.CloseInterval).
		Dur("warning_every", s.cfg.WarningInterval).
		Dur("results_every", s.cfg.ResultInterval).
		Msg("scheduler started")
	wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, fn func(context.Context) error) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		// Actions run detached from ctx so shutdown never cuts a transaction short.
		_ = fn(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// guard runs fn unless the same action is already running.
func (s *Scheduler) guard(ctx context.Context, action string, fn func(context.Context, zerolog.Logger) error) error {
	flag := s.running[action]
	if !flag.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer flag.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ActionTimeout)
	defer cancel()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, action, s.cfg.ActionTimeout)
		if err != nil {
			s.log.Warn().Err(err).Str("action", action).Msg("lock unavailable, running without it")
		} else if !ok {
			return ErrBusy
		} else {
			defer release()
		}
	}

	log := s.log.With().Str("action", action).Str("run", uuid.NewString()[:8]).Logger()
	started := time.Now()
	err := fn(ctx, log)
	metrics.ObserveAction(action, started, err)
	if err != nil {
		log.Error().Err(err).Msg("action failed")
	}
	return err
}

// fetch asks the results provider with the collaborator timeout applied.
func (s *Scheduler) fetch(ctx context.Context, ref string) ([]results.Entry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CollaboratorTimeout)
	defer cancel()
	entries, found, err := s.provider.FetchPodium(ctx, ref)
	if err != nil {
		return nil, false, apperr.ErrTransient.With("results for %s unavailable", ref).Wrap(err)
	}
	return entries, found, nil
}

func (s *Scheduler) claim(ctx context.Context, raceID int64, kind models.NotificationKind) (bool, error) {
	return s.store.ClaimNotification(ctx, models.NotificationRecord{
		ID:     uuid.NewString(),
		RaceID: raceID,
		Kind:   kind,
		SentAt: s.clock.Now(),
	})
}

// logRaceError logs err at the level its kind calls for. Errors the next
// tick retries are marked so.
func logRaceError(log zerolog.Logger, raceID int64, msg string, err error) {
	var ev *zerolog.Event
	switch kind := apperr.KindOf(err); {
	case kind == apperr.KindDeferred:
		ev = log.Info()
	case kind == apperr.KindTransient, kind == apperr.KindState:
		ev = log.Warn()
	default:
		ev = log.Error()
	}
	ev.Err(err).Int64("race", raceID).Bool("retry", apperr.Retryable(err)).Msg(msg)
}
