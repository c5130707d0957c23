// Package postgres is the pgx implementation of storage.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	repo
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// Open connects, checks the connection and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 45 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "podium-bot",
		"timezone":                            "UTC",
		"statement_timeout":                   "30s",
		"idle_in_transaction_session_timeout": "60s",
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{repo: repo{q: pool}, pool: pool}, nil
}

func (s *Store) Tx(ctx context.Context, fn func(storage.Repo) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) RaceTx(ctx context.Context, raceID int64, fn func(storage.Repo) error) error {
	return s.Tx(ctx, func(r storage.Repo) error {
		var id int64
		err := r.(repo).q.QueryRow(ctx, `SELECT id FROM races WHERE id = $1 FOR UPDATE`, raceID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock race %d: %w", raceID, err)
		}
		return fn(r)
	})
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() { s.pool.Close() }

type repo struct {
	q querier
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func conflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return storage.ErrConflict
	}
	return err
}

// ---------- Participants ----------

const participantCols = `id, handle, display_name, created_at`

func scanParticipant(row pgx.Row) (models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.Handle, &p.DisplayName, &p.CreatedAt)
	return p, notFound(err)
}

func (r repo) UpsertParticipant(ctx context.Context, handle int64, displayName string, now time.Time) (models.Participant, error) {
	return scanParticipant(r.q.QueryRow(ctx, `
		INSERT INTO participants (handle, display_name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (handle) DO UPDATE SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), participants.display_name)
		RETURNING `+participantCols, handle, displayName, now))
}

func (r repo) GetParticipant(ctx context.Context, id int64) (models.Participant, error) {
	return scanParticipant(r.q.QueryRow(ctx, `SELECT `+participantCols+` FROM participants WHERE id = $1`, id))
}

func (r repo) GetParticipantByHandle(ctx context.Context, handle int64) (models.Participant, error) {
	return scanParticipant(r.q.QueryRow(ctx, `SELECT `+participantCols+` FROM participants WHERE handle = $1`, handle))
}

func (r repo) ListParticipants(ctx context.Context) ([]models.Participant, error) {
	rows, err := r.q.Query(ctx, `SELECT `+participantCols+` FROM participants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanParticipant)
}

// collect drains rows through scan.
func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ---------- Catalog ----------

func scanCategory(row pgx.Row) (models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Code, &c.Name)
	return c, notFound(err)
}

func (r repo) UpsertCategory(ctx context.Context, c models.Category) (models.Category, error) {
	return scanCategory(r.q.QueryRow(ctx, `
		INSERT INTO categories (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, code, name`, c.Code, c.Name))
}

func (r repo) GetCategory(ctx context.Context, id int64) (models.Category, error) {
	return scanCategory(r.q.QueryRow(ctx, `SELECT id, code, name FROM categories WHERE id = $1`, id))
}

func (r repo) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.q.Query(ctx, `SELECT id, code, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCategory)
}

const kindCols = `id, code, name, points_exact, points_rider_only, points_perfect_podium`

func scanKind(row pgx.Row) (models.RaceKind, error) {
	var k models.RaceKind
	err := row.Scan(&k.ID, &k.Code, &k.Name, &k.Profile.Exact, &k.Profile.RiderOnly, &k.Profile.PerfectPodium)
	return k, notFound(err)
}

func (r repo) UpsertRaceKind(ctx context.Context, k models.RaceKind) (models.RaceKind, error) {
	return scanKind(r.q.QueryRow(ctx, `
		INSERT INTO race_kinds (code, name, points_exact, points_rider_only, points_perfect_podium)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name,
			points_exact = EXCLUDED.points_exact,
			points_rider_only = EXCLUDED.points_rider_only,
			points_perfect_podium = EXCLUDED.points_perfect_podium
		RETURNING `+kindCols, k.Code, k.Name, k.Profile.Exact, k.Profile.RiderOnly, k.Profile.PerfectPodium))
}

func (r repo) GetRaceKind(ctx context.Context, id int64) (models.RaceKind, error) {
	return scanKind(r.q.QueryRow(ctx, `SELECT `+kindCols+` FROM race_kinds WHERE id = $1`, id))
}

func (r repo) ListRaceKinds(ctx context.Context) ([]models.RaceKind, error) {
	rows, err := r.q.Query(ctx, `SELECT `+kindCols+` FROM race_kinds ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanKind)
}

const eventCols = `id, season, name, country, circuit, COALESCE(event_date, 'epoch'::timestamptz), COALESCE(external_ref, '')`

func scanEvent(row pgx.Row) (models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Season, &e.Name, &e.Country, &e.Circuit, &e.Date, &e.ExternalRef)
	return e, notFound(err)
}

func (r repo) UpsertEvent(ctx context.Context, e models.Event) (models.Event, error) {
	var date *time.Time
	if !e.Date.IsZero() {
		date = &e.Date
	}
	return scanEvent(r.q.QueryRow(ctx, `
		INSERT INTO events (season, name, country, circuit, event_date, external_ref)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (external_ref) WHERE external_ref IS NOT NULL DO UPDATE SET
			season = EXCLUDED.season, name = EXCLUDED.name, country = EXCLUDED.country,
			circuit = EXCLUDED.circuit, event_date = EXCLUDED.event_date
		RETURNING `+eventCols, e.Season, e.Name, e.Country, e.Circuit, date, e.ExternalRef))
}

func (r repo) GetEvent(ctx context.Context, id int64) (models.Event, error) {
	return scanEvent(r.q.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id))
}

const riderCols = `id, COALESCE(external_ref, ''), first_name, last_name, number, country`

func scanRider(row pgx.Row) (models.Rider, error) {
	var rd models.Rider
	err := row.Scan(&rd.ID, &rd.ExternalRef, &rd.FirstName, &rd.LastName, &rd.Number, &rd.Country)
	return rd, notFound(err)
}

func (r repo) UpsertRider(ctx context.Context, rd models.Rider) (models.Rider, error) {
	return scanRider(r.q.QueryRow(ctx, `
		INSERT INTO riders (external_ref, first_name, last_name, number, country)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5)
		ON CONFLICT (external_ref) WHERE external_ref IS NOT NULL DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			number = EXCLUDED.number, country = EXCLUDED.country
		RETURNING `+riderCols, rd.ExternalRef, rd.FirstName, rd.LastName, rd.Number, rd.Country))
}

func (r repo) GetRiders(ctx context.Context, ids []int64) (map[int64]models.Rider, error) {
	rows, err := r.q.Query(ctx, `SELECT `+riderCols+` FROM riders WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := collect(rows, scanRider)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.Rider, len(list))
	for _, rd := range list {
		out[rd.ID] = rd
	}
	return out, nil
}

func (r repo) GetRiderByRef(ctx context.Context, ref string) (models.Rider, error) {
	return scanRider(r.q.QueryRow(ctx, `SELECT `+riderCols+` FROM riders WHERE external_ref = $1`, ref))
}

func (r repo) ListRiders(ctx context.Context) ([]models.Rider, error) {
	rows, err := r.q.Query(ctx, `SELECT `+riderCols+` FROM riders ORDER BY number, id`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRider)
}

// ---------- Races ----------

const raceCols = `id, event_id, category_id, kind_id, starts_at, bet_close_at, status, external_ref, result_version, created_at, updated_at`

func scanRace(row pgx.Row) (models.Race, error) {
	var rc models.Race
	var status string
	err := row.Scan(&rc.ID, &rc.EventID, &rc.CategoryID, &rc.KindID, &rc.StartsAt, &rc.BetCloseAt,
		&status, &rc.ExternalRef, &rc.ResultVersion, &rc.CreatedAt, &rc.UpdatedAt)
	rc.Status = models.RaceStatus(status)
	rc.StartsAt, rc.BetCloseAt = rc.StartsAt.UTC(), rc.BetCloseAt.UTC()
	return rc, notFound(err)
}

func (r repo) InsertRace(ctx context.Context, rc models.Race) (models.Race, error) {
	out, err := scanRace(r.q.QueryRow(ctx, `
		INSERT INTO races (event_id, category_id, kind_id, starts_at, bet_close_at, status, external_ref, result_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+raceCols,
		rc.EventID, rc.CategoryID, rc.KindID, rc.StartsAt, rc.BetCloseAt, string(rc.Status),
		rc.ExternalRef, rc.ResultVersion, rc.CreatedAt, rc.UpdatedAt))
	return out, conflict(err)
}

func (r repo) GetRace(ctx context.Context, id int64) (models.Race, error) {
	return scanRace(r.q.QueryRow(ctx, `SELECT `+raceCols+` FROM races WHERE id = $1`, id))
}

func (r repo) FindRace(ctx context.Context, eventID, categoryID, kindID int64) (models.Race, error) {
	return scanRace(r.q.QueryRow(ctx, `SELECT `+raceCols+` FROM races
		WHERE event_id = $1 AND category_id = $2 AND kind_id = $3`, eventID, categoryID, kindID))
}

func (r repo) UpdateRace(ctx context.Context, rc models.Race) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE races SET starts_at = $2, bet_close_at = $3, status = $4, external_ref = $5,
			result_version = $6, updated_at = $7
		WHERE id = $1`,
		rc.ID, rc.StartsAt, rc.BetCloseAt, string(rc.Status), rc.ExternalRef, rc.ResultVersion, rc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func statusStrings(list []models.RaceStatus) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = string(s)
	}
	return out
}

func (r repo) ListRaces(ctx context.Context, f storage.RaceFilter) ([]models.Race, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if len(f.Statuses) > 0 {
		add("status = ANY($%d)", statusStrings(f.Statuses))
	}
	if f.CategoryID != 0 {
		add("category_id = $%d", f.CategoryID)
	}
	if !f.CloseAfter.IsZero() {
		add("bet_close_at > $%d", f.CloseAfter)
	}
	if !f.CloseBefore.IsZero() {
		add("bet_close_at <= $%d", f.CloseBefore)
	}
	if !f.StartBefore.IsZero() {
		add("starts_at <= $%d", f.StartBefore)
	}
	q := `SELECT ` + raceCols + ` FROM races`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := r.q.Query(ctx, q+` ORDER BY bet_close_at, id`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRace)
}

func (r repo) ListRacesPendingSettlement(ctx context.Context) ([]models.Race, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+raceCols+` FROM races
		WHERE status = $1 AND EXISTS (
			SELECT 1 FROM bets b LEFT JOIN scores s ON s.bet_id = b.id
			WHERE b.race_id = races.id AND s.id IS NULL)
		ORDER BY bet_close_at, id`, string(models.RaceFinished))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanRace)
}

// ---------- Bets ----------

const betCols = `id, participant_id, race_id, pick1, pick2, pick3, created_at, updated_at`

func scanBet(row pgx.Row) (models.Bet, error) {
	var b models.Bet
	err := row.Scan(&b.ID, &b.ParticipantID, &b.RaceID, &b.Picks[0], &b.Picks[1], &b.Picks[2], &b.CreatedAt, &b.UpdatedAt)
	return b, notFound(err)
}

func (r repo) InsertBet(ctx context.Context, b models.Bet) (models.Bet, error) {
	out, err := scanBet(r.q.QueryRow(ctx, `
		INSERT INTO bets (participant_id, race_id, pick1, pick2, pick3, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+betCols,
		b.ParticipantID, b.RaceID, b.Picks[0], b.Picks[1], b.Picks[2], b.CreatedAt, b.UpdatedAt))
	return out, conflict(err)
}

func (r repo) UpdateBetPicks(ctx context.Context, id int64, picks models.Picks, now time.Time) (models.Bet, error) {
	return scanBet(r.q.QueryRow(ctx, `
		UPDATE bets SET pick1 = $2, pick2 = $3, pick3 = $4, updated_at = $5 WHERE id = $1
		RETURNING `+betCols, id, picks[0], picks[1], picks[2], now))
}

func (r repo) GetBet(ctx context.Context, participantID, raceID int64) (models.Bet, error) {
	return scanBet(r.q.QueryRow(ctx, `SELECT `+betCols+` FROM bets WHERE participant_id = $1 AND race_id = $2`,
		participantID, raceID))
}

func (r repo) ListBetsForRace(ctx context.Context, raceID int64) ([]models.Bet, error) {
	rows, err := r.q.Query(ctx, `SELECT `+betCols+` FROM bets WHERE race_id = $1 ORDER BY id`, raceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBet)
}

func (r repo) ListBetsForParticipant(ctx context.Context, participantID int64, statuses []models.RaceStatus) ([]models.Bet, error) {
	q := `SELECT b.id, b.participant_id, b.race_id, b.pick1, b.pick2, b.pick3, b.created_at, b.updated_at
		FROM bets b JOIN races rc ON rc.id = b.race_id WHERE b.participant_id = $1`
	args := []any{participantID}
	if len(statuses) > 0 {
		q += ` AND rc.status = ANY($2)`
		args = append(args, statusStrings(statuses))
	}
	rows, err := r.q.Query(ctx, q+` ORDER BY b.id`, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBet)
}

// ---------- Results & scores ----------

func (r repo) ReplaceResults(ctx context.Context, raceID int64, entries []models.ResultEntry) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM race_results WHERE race_id = $1`, raceID); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := r.q.Exec(ctx, `INSERT INTO race_results (race_id, rider_id, position, status) VALUES ($1, $2, $3, $4)`,
			raceID, e.RiderID, e.Position, string(e.Status)); err != nil {
			return fmt.Errorf("insert result for rider %d: %w", e.RiderID, err)
		}
	}
	return nil
}

func (r repo) ListResults(ctx context.Context, raceID int64) ([]models.ResultEntry, error) {
	rows, err := r.q.Query(ctx, `SELECT race_id, rider_id, position, status FROM race_results WHERE race_id = $1 ORDER BY position`, raceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (models.ResultEntry, error) {
		var e models.ResultEntry
		var status string
		err := row.Scan(&e.RaceID, &e.RiderID, &e.Position, &status)
		e.Status = models.FinishStatus(status)
		return e, err
	})
}

const scoreCols = `id, bet_id, race_id, participant_id, slot1, slot2, slot3, bonus, total, result_version, created_at`

func scanScore(row pgx.Row) (models.Score, error) {
	var s models.Score
	err := row.Scan(&s.ID, &s.BetID, &s.RaceID, &s.ParticipantID, &s.Slots[0], &s.Slots[1], &s.Slots[2],
		&s.Bonus, &s.Total, &s.ResultVersion, &s.CreatedAt)
	return s, notFound(err)
}

func (r repo) InsertScore(ctx context.Context, s models.Score) (models.Score, bool, error) {
	out, err := scanScore(r.q.QueryRow(ctx, `
		INSERT INTO scores (bet_id, race_id, participant_id, slot1, slot2, slot3, bonus, total, result_version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (bet_id) DO NOTHING
		RETURNING `+scoreCols,
		s.BetID, s.RaceID, s.ParticipantID, s.Slots[0], s.Slots[1], s.Slots[2], s.Bonus, s.Total, s.ResultVersion, s.CreatedAt))
	if errors.Is(err, storage.ErrNotFound) {
		existing, err := scanScore(r.q.QueryRow(ctx, `SELECT `+scoreCols+` FROM scores WHERE bet_id = $1`, s.BetID))
		return existing, false, err
	}
	if err != nil {
		return out, false, err
	}
	return out, true, nil
}

func (r repo) ListScoresForRace(ctx context.Context, raceID int64) ([]models.Score, error) {
	rows, err := r.q.Query(ctx, `SELECT `+scoreCols+` FROM scores WHERE race_id = $1 ORDER BY id`, raceID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanScore)
}

// ---------- Standings ----------

// standingsLockClass namespaces the season advisory locks.
const standingsLockClass int32 = 0x5044 // "PD"

// LockSeason takes a transaction-scoped advisory lock. Outside a transaction
// it is released as soon as the statement ends.
func (r repo) LockSeason(ctx context.Context, season int) error {
	_, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, standingsLockClass, int32(season))
	return err
}

func (r repo) AddCategoryStanding(ctx context.Context, season int, categoryID, participantID int64, points, races int, now time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO category_standings (season, category_id, participant_id, total_points, races_participated, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (season, category_id, participant_id) DO UPDATE SET
			total_points = category_standings.total_points + EXCLUDED.total_points,
			races_participated = category_standings.races_participated + EXCLUDED.races_participated,
			updated_at = EXCLUDED.updated_at`,
		season, categoryID, participantID, points, races, now)
	return err
}

func (r repo) ListCategoryStandings(ctx context.Context, season int, categoryID int64, limit int) ([]models.CategoryStanding, error) {
	q := `SELECT season, category_id, participant_id, total_points, races_participated, updated_at
		FROM category_standings WHERE season = $1 AND ($2 = 0 OR category_id = $2)
		ORDER BY total_points DESC, category_id, participant_id`
	args := []any{season, categoryID}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (models.CategoryStanding, error) {
		var cs models.CategoryStanding
		err := row.Scan(&cs.Season, &cs.CategoryID, &cs.ParticipantID, &cs.TotalPoints, &cs.RacesParticipated, &cs.UpdatedAt)
		return cs, err
	})
}

func (r repo) PutGlobalStanding(ctx context.Context, g models.GlobalStanding) error {
	points := g.CategoryPoints
	if points == nil {
		points = map[string]int{}
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO global_standings (season, participant_id, total_points, races_participated, category_points, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (season, participant_id) DO UPDATE SET
			total_points = EXCLUDED.total_points,
			races_participated = EXCLUDED.races_participated,
			category_points = EXCLUDED.category_points,
			updated_at = EXCLUDED.updated_at`,
		g.Season, g.ParticipantID, g.TotalPoints, g.RacesParticipated, points, g.UpdatedAt)
	return err
}

func (r repo) ListGlobalStandings(ctx context.Context, season int, limit int) ([]models.GlobalStanding, error) {
	q := `SELECT season, participant_id, total_points, races_participated, category_points, updated_at
		FROM global_standings WHERE season = $1 ORDER BY total_points DESC, participant_id`
	args := []any{season}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row pgx.Row) (models.GlobalStanding, error) {
		var g models.GlobalStanding
		err := row.Scan(&g.Season, &g.ParticipantID, &g.TotalPoints, &g.RacesParticipated, &g.CategoryPoints, &g.UpdatedAt)
		return g, err
	})
}

// ---------- Notifications ----------

func (r repo) ClaimNotification(ctx context.Context, rec models.NotificationRecord) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO notification_records (id, race_id, kind, sent_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (race_id, kind) DO NOTHING`, rec.ID, rec.RaceID, string(rec.Kind), rec.SentAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
