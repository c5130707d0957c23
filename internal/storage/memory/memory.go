// Package memory is an in-process storage.Store for tests and local runs
// without a database. Transactions are serialized and roll back by restoring
// a snapshot taken when they began.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

type standingKey struct {
	season      int
	category    int64
	participant int64
}

type globalKey struct {
	season      int
	participant int64
}

type notifyKey struct {
	race int64
	kind models.NotificationKind
}

type state struct {
	seq           int64
	participants  map[int64]models.Participant
	categories    map[int64]models.Category
	kinds         map[int64]models.RaceKind
	events        map[int64]models.Event
	riders        map[int64]models.Rider
	races         map[int64]models.Race
	bets          map[int64]models.Bet
	results       map[int64][]models.ResultEntry
	scores        map[int64]models.Score // keyed by bet id
	standings     map[standingKey]models.CategoryStanding
	global        map[globalKey]models.GlobalStanding
	notifications map[notifyKey]models.NotificationRecord
}

func newState() *state {
	return &state{
		participants:  map[int64]models.Participant{},
		categories:    map[int64]models.Category{},
		kinds:         map[int64]models.RaceKind{},
		events:        map[int64]models.Event{},
		riders:        map[int64]models.Rider{},
		races:         map[int64]models.Race{},
		bets:          map[int64]models.Bet{},
		results:       map[int64][]models.ResultEntry{},
		scores:        map[int64]models.Score{},
		standings:     map[standingKey]models.CategoryStanding{},
		global:        map[globalKey]models.GlobalStanding{},
		notifications: map[notifyKey]models.NotificationRecord{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	c := &state{
		seq:           s.seq,
		participants:  copyMap(s.participants),
		categories:    copyMap(s.categories),
		kinds:         copyMap(s.kinds),
		events:        copyMap(s.events),
		riders:        copyMap(s.riders),
		races:         copyMap(s.races),
		bets:          copyMap(s.bets),
		results:       make(map[int64][]models.ResultEntry, len(s.results)),
		scores:        copyMap(s.scores),
		standings:     copyMap(s.standings),
		global:        make(map[globalKey]models.GlobalStanding, len(s.global)),
		notifications: copyMap(s.notifications),
	}
	for k, v := range s.results {
		c.results[k] = append([]models.ResultEntry(nil), v...)
	}
	for k, v := range s.global {
		v.CategoryPoints = copyMap(v.CategoryPoints)
		c.global[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	*view

	txMu sync.Mutex // held for the whole of a transaction and by writes outside one
	mu   sync.Mutex // guards st
	st   *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	s := &Store{st: newState()}
	s.view = &view{s: s}
	return s
}

func (s *Store) Tx(ctx context.Context, fn func(storage.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.run(fn)
}

func (s *Store) RaceTx(ctx context.Context, raceID int64, fn func(storage.Repo) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	_, ok := s.st.races[raceID]
	s.mu.Unlock()
	if !ok {
		return storage.ErrNotFound
	}
	return s.run(fn)
}

func (s *Store) run(fn func(storage.Repo) error) error {
	s.mu.Lock()
	snap := s.st.clone()
	s.mu.Unlock()

	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.mu.Lock()
		s.st = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() {}

// view implements storage.Repo over the store, either standalone or inside a transaction.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock(write bool) func() {
	outside := write && !v.inTx
	if outside {
		v.s.txMu.Lock()
	}
	v.s.mu.Lock()
	return func() {
		v.s.mu.Unlock()
		if outside {
			v.s.txMu.Unlock()
		}
	}
}

// ---------- Participants ----------

func (v *view) UpsertParticipant(ctx context.Context, handle int64, displayName string, now time.Time) (models.Participant, error) {
	defer v.lock(true)()
	st := v.s.st
	for id, p := range st.participants {
		if p.Handle == handle {
			if displayName != "" && p.DisplayName != displayName {
				p.DisplayName = displayName
				st.participants[id] = p
			}
			return p, nil
		}
	}
	p := models.Participant{ID: st.nextID(), Handle: handle, DisplayName: displayName, CreatedAt: now}
	st.participants[p.ID] = p
	return p, nil
}

func (v *view) GetParticipant(ctx context.Context, id int64) (models.Participant, error) {
	defer v.lock(false)()
	p, ok := v.s.st.participants[id]
	if !ok {
		return p, storage.ErrNotFound
	}
	return p, nil
}

func (v *view) GetParticipantByHandle(ctx context.Context, handle int64) (models.Participant, error) {
	defer v.lock(false)()
	for _, p := range v.s.st.participants {
		if p.Handle == handle {
			return p, nil
		}
	}
	return models.Participant{}, storage.ErrNotFound
}

func (v *view) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	defer v.lock(false)()
	out := make([]models.Participant, 0, len(v.s.st.participants))
	for _, p := range v.s.st.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- Catalog ----------

func (v *view) UpsertCategory(ctx context.Context, c models.Category) (models.Category, error) {
	defer v.lock(true)()
	st := v.s.st
	for id, ex := range st.categories {
		if ex.Code == c.Code {
			c.ID = id
			st.categories[id] = c
			return c, nil
		}
	}
	c.ID = st.nextID()
	st.categories[c.ID] = c
	return c, nil
}

func (v *view) GetCategory(ctx context.Context, id int64) (models.Category, error) {
	defer v.lock(false)()
	c, ok := v.s.st.categories[id]
	if !ok {
		return c, storage.ErrNotFound
	}
	return c, nil
}

func (v *view) ListCategories(ctx context.Context) ([]models.Category, error) {
	defer v.lock(false)()
	out := make([]models.Category, 0, len(v.s.st.categories))
	for _, c := range v.s.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) UpsertRaceKind(ctx context.Context, k models.RaceKind) (models.RaceKind, error) {
	defer v.lock(true)()
	st := v.s.st
	for id, ex := range st.kinds {
		if ex.Code == k.Code {
			k.ID = id
			st.kinds[id] = k
			return k, nil
		}
	}
	k.ID = st.nextID()
	st.kinds[k.ID] = k
	return k, nil
}

func (v *view) GetRaceKind(ctx context.Context, id int64) (models.RaceKind, error) {
	defer v.lock(false)()
	k, ok := v.s.st.kinds[id]
	if !ok {
		return k, storage.ErrNotFound
	}
	return k, nil
}

func (v *view) ListRaceKinds(ctx context.Context) ([]models.RaceKind, error) {
	defer v.lock(false)()
	out := make([]models.RaceKind, 0, len(v.s.st.kinds))
	for _, k := range v.s.st.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (v *view) UpsertEvent(ctx context.Context, e models.Event) (models.Event, error) {
	defer v.lock(true)()
	st := v.s.st
	if e.ExternalRef != "" {
		for id, ex := range st.events {
			if ex.ExternalRef == e.ExternalRef {
				e.ID = id
				st.events[id] = e
				return e, nil
			}
		}
	}
	e.ID = st.nextID()
	st.events[e.ID] = e
	return e, nil
}

func (v *view) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	defer v.lock(false)()
	e, ok := v.s.st.events[id]
	if !ok {
		return e, storage.ErrNotFound
	}
	return e, nil
}

func (v *view) UpsertRider(ctx context.Context, r models.Rider) (models.Rider, error) {
	defer v.lock(true)()
	st := v.s.st
	if r.ExternalRef != "" {
		for id, ex := range st.riders {
			if ex.ExternalRef == r.ExternalRef {
				r.ID = id
				st.riders[id] = r
				return r, nil
			}
		}
	}
	r.ID = st.nextID()
	st.riders[r.ID] = r
	return r, nil
}

func (v *view) GetRiders(ctx context.Context, ids []int64) (map[int64]models.Rider, error) {
	defer v.lock(false)()
	out := make(map[int64]models.Rider, len(ids))
	for _, id := range ids {
		if r, ok := v.s.st.riders[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (v *view) GetRiderByRef(ctx context.Context, ref string) (models.Rider, error) {
	defer v.lock(false)()
	for _, r := range v.s.st.riders {
		if r.ExternalRef == ref {
			return r, nil
		}
	}
	return models.Rider{}, storage.ErrNotFound
}

func (v *view) ListRiders(ctx context.Context) ([]models.Rider, error) {
	defer v.lock(false)()
	out := make([]models.Rider, 0, len(v.s.st.riders))
	for _, r := range v.s.st.riders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ---------- Races ----------

func (v *view) InsertRace(ctx context.Context, r models.Race) (models.Race, error) {
	defer v.lock(true)()
	st := v.s.st
	for _, ex := range st.races {
		if ex.EventID == r.EventID && ex.CategoryID == r.CategoryID && ex.KindID == r.KindID {
			return models.Race{}, storage.ErrConflict
		}
	}
	r.ID = st.nextID()
	st.races[r.ID] = r
	return r, nil
}

func (v *view) GetRace(ctx context.Context, id int64) (models.Race, error) {
	defer v.lock(false)()
	r, ok := v.s.st.races[id]
	if !ok {
		return r, storage.ErrNotFound
	}
	return r, nil
}

func (v *view) FindRace(ctx context.Context, eventID, categoryID, kindID int64) (models.Race, error) {
	defer v.lock(false)()
	for _, r := range v.s.st.races {
		if r.EventID == eventID && r.CategoryID == categoryID && r.KindID == kindID {
			return r, nil
		}
	}
	return models.Race{}, storage.ErrNotFound
}

func (v *view) UpdateRace(ctx context.Context, r models.Race) error {
	defer v.lock(true)()
	if _, ok := v.s.st.races[r.ID]; !ok {
		return storage.ErrNotFound
	}
	v.s.st.races[r.ID] = r
	return nil
}

func hasStatus(list []models.RaceStatus, s models.RaceStatus) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func sortRaces(out []models.Race) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BetCloseAt.Equal(out[j].BetCloseAt) {
			return out[i].BetCloseAt.Before(out[j].BetCloseAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (v *view) ListRaces(ctx context.Context, f storage.RaceFilter) ([]models.Race, error) {
	defer v.lock(false)()
	out := []models.Race{}
	for _, r := range v.s.st.races {
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, r.Status) {
			continue
		}
		if f.CategoryID != 0 && r.CategoryID != f.CategoryID {
			continue
		}
		if !f.CloseAfter.IsZero() && !r.BetCloseAt.After(f.CloseAfter) {
			continue
		}
		if !f.CloseBefore.IsZero() && r.BetCloseAt.After(f.CloseBefore) {
			continue
		}
		if !f.StartBefore.IsZero() && r.StartsAt.After(f.StartBefore) {
			continue
		}
		out = append(out, r)
	}
	sortRaces(out)
	return out, nil
}

func (v *view) ListRacesPendingSettlement(ctx context.Context) ([]models.Race, error) {
	defer v.lock(false)()
	st := v.s.st
	pending := map[int64]bool{}
	for _, b := range st.bets {
		if _, scored := st.scores[b.ID]; !scored {
			pending[b.RaceID] = true
		}
	}
	out := []models.Race{}
	for id := range pending {
		if r, ok := st.races[id]; ok && r.Status == models.RaceFinished {
			out = append(out, r)
		}
	}
	sortRaces(out)
	return out, nil
}

// ---------- Bets ----------

func (v *view) InsertBet(ctx context.Context, b models.Bet) (models.Bet, error) {
	defer v.lock(true)()
	st := v.s.st
	for _, ex := range st.bets {
		if ex.ParticipantID == b.ParticipantID && ex.RaceID == b.RaceID {
			return models.Bet{}, storage.ErrConflict
		}
	}
	b.ID = st.nextID()
	st.bets[b.ID] = b
	return b, nil
}

func (v *view) UpdateBetPicks(ctx context.Context, id int64, picks models.Picks, now time.Time) (models.Bet, error) {
	defer v.lock(true)()
	b, ok := v.s.st.bets[id]
	if !ok {
		return b, storage.ErrNotFound
	}
	b.Picks = picks
	b.UpdatedAt = now
	v.s.st.bets[id] = b
	return b, nil
}

func (v *view) GetBet(ctx context.Context, participantID, raceID int64) (models.Bet, error) {
	defer v.lock(false)()
	for _, b := range v.s.st.bets {
		if b.ParticipantID == participantID && b.RaceID == raceID {
			return b, nil
		}
	}
	return models.Bet{}, storage.ErrNotFound
}

func sortBets(out []models.Bet) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
}

func (v *view) ListBetsForRace(ctx context.Context, raceID int64) ([]models.Bet, error) {
	defer v.lock(false)()
	out := []models.Bet{}
	for _, b := range v.s.st.bets {
		if b.RaceID == raceID {
			out = append(out, b)
		}
	}
	sortBets(out)
	return out, nil
}

func (v *view) ListBetsForParticipant(ctx context.Context, participantID int64, statuses []models.RaceStatus) ([]models.Bet, error) {
	defer v.lock(false)()
	out := []models.Bet{}
	for _, b := range v.s.st.bets {
		if b.ParticipantID != participantID {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, v.s.st.races[b.RaceID].Status) {
			continue
		}
		out = append(out, b)
	}
	sortBets(out)
	return out, nil
}

// ---------- Results & scores ----------

func (v *view) ReplaceResults(ctx context.Context, raceID int64, entries []models.ResultEntry) error {
	defer v.lock(true)()
	cp := make([]models.ResultEntry, len(entries))
	for i, e := range entries {
		e.RaceID = raceID
		cp[i] = e
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Position < cp[j].Position })
	v.s.st.results[raceID] = cp
	return nil
}

func (v *view) ListResults(ctx context.Context, raceID int64) ([]models.ResultEntry, error) {
	defer v.lock(false)()
	return append([]models.ResultEntry(nil), v.s.st.results[raceID]...), nil
}

func (v *view) InsertScore(ctx context.Context, s models.Score) (models.Score, bool, error) {
	defer v.lock(true)()
	if ex, ok := v.s.st.scores[s.BetID]; ok {
		return ex, false, nil
	}
	s.ID = v.s.st.nextID()
	v.s.st.scores[s.BetID] = s
	return s, true, nil
}

func (v *view) ListScoresForRace(ctx context.Context, raceID int64) ([]models.Score, error) {
	defer v.lock(false)()
	out := []models.Score{}
	for _, s := range v.s.st.scores {
		if s.RaceID == raceID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- Standings ----------

// LockSeason is a no-op: every transaction already holds the store-wide lock.
func (v *view) LockSeason(context.Context, int) error { return nil }

func (v *view) AddCategoryStanding(ctx context.Context, season int, categoryID, participantID int64, points, races int, now time.Time) error {
	defer v.lock(true)()
	k := standingKey{season: season, category: categoryID, participant: participantID}
	cs := v.s.st.standings[k]
	cs.Season, cs.CategoryID, cs.ParticipantID = season, categoryID, participantID
	cs.TotalPoints += points
	cs.RacesParticipated += races
	cs.UpdatedAt = now
	v.s.st.standings[k] = cs
	return nil
}

func (v *view) ListCategoryStandings(ctx context.Context, season int, categoryID int64, limit int) ([]models.CategoryStanding, error) {
	defer v.lock(false)()
	out := []models.CategoryStanding{}
	for k, cs := range v.s.st.standings {
		if k.season != season || (categoryID != 0 && k.category != categoryID) {
			continue
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		if out[i].CategoryID != out[j].CategoryID {
			return out[i].CategoryID < out[j].CategoryID
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v *view) PutGlobalStanding(ctx context.Context, g models.GlobalStanding) error {
	defer v.lock(true)()
	g.CategoryPoints = copyMap(g.CategoryPoints)
	v.s.st.global[globalKey{season: g.Season, participant: g.ParticipantID}] = g
	return nil
}

func (v *view) ListGlobalStandings(ctx context.Context, season int, limit int) ([]models.GlobalStanding, error) {
	defer v.lock(false)()
	out := []models.GlobalStanding{}
	for k, g := range v.s.st.global {
		if k.season != season {
			continue
		}
		g.CategoryPoints = copyMap(g.CategoryPoints)
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------- Notifications ----------

func (v *view) ClaimNotification(ctx context.Context, rec models.NotificationRecord) (bool, error) {
	defer v.lock(true)()
	k := notifyKey{race: rec.RaceID, kind: rec.Kind}
	if _, ok := v.s.st.notifications[k]; ok {
		return false, nil
	}
	v.s.st.notifications[k] = rec
	return true, nil
}
