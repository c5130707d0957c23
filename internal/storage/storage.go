// Package storage defines the repository the core talks to. Entities are
// addressed by id only; nothing holds references to other entities.
package storage

import (
	"context"
	"errors"
	"time"

	"podium-bot/internal/models"
)

var (
	ErrNotFound = errors.New("storage: not found")
	ErrConflict = errors.New("storage: unique constraint violation")
)

// RaceFilter selects races. Zero fields do not filter.
type RaceFilter struct {
	Statuses    []models.RaceStatus
	CategoryID  int64
	CloseAfter  time.Time // BetCloseAt > CloseAfter
	CloseBefore time.Time // BetCloseAt <= CloseBefore
	StartBefore time.Time // StartsAt <= StartBefore
}

type Repo interface {
	UpsertParticipant(ctx context.Context, handle int64, displayName string, now time.Time) (models.Participant, error)
	GetParticipant(ctx context.Context, id int64) (models.Participant, error)
	GetParticipantByHandle(ctx context.Context, handle int64) (models.Participant, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)

	UpsertCategory(ctx context.Context, c models.Category) (models.Category, error)
	GetCategory(ctx context.Context, id int64) (models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	UpsertRaceKind(ctx context.Context, k models.RaceKind) (models.RaceKind, error)
	GetRaceKind(ctx context.Context, id int64) (models.RaceKind, error)
	ListRaceKinds(ctx context.Context) ([]models.RaceKind, error)
	UpsertEvent(ctx context.Context, e models.Event) (models.Event, error)
	GetEvent(ctx context.Context, id int64) (models.Event, error)
	UpsertRider(ctx context.Context, r models.Rider) (models.Rider, error)
	GetRiders(ctx context.Context, ids []int64) (map[int64]models.Rider, error)
	GetRiderByRef(ctx context.Context, ref string) (models.Rider, error)
	ListRiders(ctx context.Context) ([]models.Rider, error)

	InsertRace(ctx context.Context, r models.Race) (models.Race, error)
	GetRace(ctx context.Context, id int64) (models.Race, error)
	FindRace(ctx context.Context, eventID, categoryID, kindID int64) (models.Race, error)
	UpdateRace(ctx context.Context, r models.Race) error
	ListRaces(ctx context.Context, f RaceFilter) ([]models.Race, error)
	// ListRacesPendingSettlement returns finished races with at least one unscored bet.
	ListRacesPendingSettlement(ctx context.Context) ([]models.Race, error)

	InsertBet(ctx context.Context, b models.Bet) (models.Bet, error)
	UpdateBetPicks(ctx context.Context, id int64, picks models.Picks, now time.Time) (models.Bet, error)
	GetBet(ctx context.Context, participantID, raceID int64) (models.Bet, error)
	ListBetsForRace(ctx context.Context, raceID int64) ([]models.Bet, error)
	ListBetsForParticipant(ctx context.Context, participantID int64, statuses []models.RaceStatus) ([]models.Bet, error)

	ReplaceResults(ctx context.Context, raceID int64, entries []models.ResultEntry) error
	ListResults(ctx context.Context, raceID int64) ([]models.ResultEntry, error)

	// InsertScore reports false when the bet already has a score.
	InsertScore(ctx context.Context, s models.Score) (models.Score, bool, error)
	ListScoresForRace(ctx context.Context, raceID int64) ([]models.Score, error)

	// LockSeason holds the season's standings lock until the transaction ends.
	// Settlements of different races serialize on it before touching standings.
	LockSeason(ctx context.Context, season int) error
	AddCategoryStanding(ctx context.Context, season int, categoryID, participantID int64, points, races int, now time.Time) error
	// ListCategoryStandings orders by points desc; categoryID 0 returns every category.
	ListCategoryStandings(ctx context.Context, season int, categoryID int64, limit int) ([]models.CategoryStanding, error)
	PutGlobalStanding(ctx context.Context, g models.GlobalStanding) error
	ListGlobalStandings(ctx context.Context, season int, limit int) ([]models.GlobalStanding, error)

	// ClaimNotification inserts rec unless (race, kind) exists; false means already sent.
	ClaimNotification(ctx context.Context, rec models.NotificationRecord) (bool, error)
}

type Store interface {
	Repo
	// Tx runs fn in one transaction.
	Tx(ctx context.Context, fn func(Repo) error) error
	// RaceTx runs fn in one transaction holding the lock of raceID.
	// Returns ErrNotFound when the race does not exist.
	RaceTx(ctx context.Context, raceID int64, fn func(Repo) error) error
	Ping(ctx context.Context) error
	Close()
}

// LoadRaceDetails resolves the entities a race references.
func LoadRaceDetails(ctx context.Context, r Repo, race models.Race) (models.RaceDetails, error) {
	d := models.RaceDetails{Race: race}
	var err error
	if d.Event, err = r.GetEvent(ctx, race.EventID); err != nil {
		return d, err
	}
	if d.Category, err = r.GetCategory(ctx, race.CategoryID); err != nil {
		return d, err
	}
	if d.Kind, err = r.GetRaceKind(ctx, race.KindID); err != nil {
		return d, err
	}
	return d, nil
}
