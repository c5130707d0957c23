// Package standings reads category and global tables for the UI, through an
// optional cache that the settlement engine invalidates.
package standings

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/metrics"
	"podium-bot/internal/models"
	"podium-bot/internal/storage"
)

type Row struct {
	Rank           int            `json:"rank"`
	ParticipantID  int64          `json:"participant_id"`
	Handle         int64          `json:"handle"`
	DisplayName    string         `json:"display_name"`
	Points         int            `json:"points"`
	Races          int            `json:"races"`
	CategoryPoints map[string]int `json:"category_points,omitempty"`
}

// Table is one ranking. Category is empty for the global table.
type Table struct {
	Season   int    `json:"season"`
	Category string `json:"category,omitempty"`
	Rows     []Row  `json:"rows"`
}

type Cache interface {
	Get(ctx context.Context, season int, key string, dst any) (bool, error)
	Set(ctx context.Context, season int, key string, v any) error
	Invalidate(ctx context.Context, season int) error
}

// Exporter publishes the global table somewhere outside the bot.
type Exporter interface {
	ExportStandings(ctx context.Context, t Table) error
}

type Service struct {
	repo     storage.Repo
	cache    Cache
	exporter Exporter
	log      zerolog.Logger
}

// NewService builds the reader. cache may be nil.
func NewService(repo storage.Repo, cache Cache, log zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cache, log: log.With().Str("component", "standings").Logger()}
}

func (s *Service) SetExporter(e Exporter) { s.exporter = e }

// Standings returns the season table for categoryCode, or the global table
// when categoryCode is empty. limit <= 0 returns every row.
func (s *Service) Standings(ctx context.Context, season int, categoryCode string, limit int) (Table, error) {
	categoryCode = strings.ToUpper(strings.TrimSpace(categoryCode))
	key := fmt.Sprintf("%s:%d", categoryCode, limit)
	if categoryCode == "" {
		key = fmt.Sprintf("all:%d", limit)
	}

	var t Table
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, season, key, &t)
		switch {
		case err != nil:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			s.log.Warn().Err(err).Msg("standings cache read failed")
		case ok:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return t, nil
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	t, err := s.build(ctx, season, categoryCode, limit)
	if err != nil {
		return t, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, season, key, t); err != nil {
			s.log.Warn().Err(err).Msg("standings cache write failed")
		}
	}
	return t, nil
}

func (s *Service) build(ctx context.Context, season int, categoryCode string, limit int) (Table, error) {
	t := Table{Season: season, Category: categoryCode, Rows: []Row{}}
	people, err := s.repo.ListParticipants(ctx)
	if err != nil {
		return t, err
	}
	byID := make(map[int64]models.Participant, len(people))
	for _, p := range people {
		byID[p.ID] = p
	}
	row := func(participantID int64, points, races int) Row {
		p := byID[participantID]
		return Row{ParticipantID: participantID, Handle: p.Handle, DisplayName: p.DisplayName, Points: points, Races: races}
	}

	if categoryCode == "" {
		list, err := s.repo.ListGlobalStandings(ctx, season, limit)
		if err != nil {
			return t, err
		}
		for _, g := range list {
			r := row(g.ParticipantID, g.TotalPoints, g.RacesParticipated)
			r.CategoryPoints = g.CategoryPoints
			t.Rows = append(t.Rows, r)
		}
	} else {
		cat, err := s.category(ctx, categoryCode)
		if err != nil {
			return t, err
		}
		list, err := s.repo.ListCategoryStandings(ctx, season, cat.ID, limit)
		if err != nil {
			return t, err
		}
		for _, cs := range list {
			t.Rows = append(t.Rows, row(cs.ParticipantID, cs.TotalPoints, cs.RacesParticipated))
		}
	}
	rank(t.Rows)
	return t, nil
}

func (s *Service) category(ctx context.Context, code string) (models.Category, error) {
	cats, err := s.repo.ListCategories(ctx)
	if err != nil {
		return models.Category{}, err
	}
	for _, c := range cats {
		if strings.EqualFold(c.Code, code) {
			return c, nil
		}
	}
	return models.Category{}, apperr.ErrNotFound.With("unknown category %q", code)
}

// rank numbers rows already sorted by points; ties share a rank.
func rank(rows []Row) {
	for i := range rows {
		if i > 0 && rows[i].Points == rows[i-1].Points {
			rows[i].Rank = rows[i-1].Rank
			continue
		}
		rows[i].Rank = i + 1
	}
}

// Invalidate drops cached tables for season and re-exports the global table.
func (s *Service) Invalidate(ctx context.Context, season int) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, season); err != nil {
			s.log.Warn().Err(err).Int("season", season).Msg("standings cache invalidate failed")
		}
	}
	if s.exporter == nil {
		return
	}
	t, err := s.build(ctx, season, "", 0)
	if err != nil {
		s.log.Warn().Err(err).Int("season", season).Msg("standings export skipped")
		return
	}
	if err := s.exporter.ExportStandings(ctx, t); err != nil {
		s.log.Warn().Err(err).Int("season", season).Msg("standings export failed")
	}
}

// Format renders t as plain text for chat messages.
func Format(t Table, title string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\n")
	if len(t.Rows) == 0 {
		b.WriteString("No points yet.")
		return b.String()
	}
	for _, r := range t.Rows {
		name := r.DisplayName
		if name == "" {
			name = fmt.Sprintf("#%d", r.ParticipantID)
		}
		fmt.Fprintf(&b, "%d. %s: %d pts (%d races)\n", r.Rank, name, r.Points, r.Races)
	}
	return strings.TrimRight(b.String(), "\n")
}
