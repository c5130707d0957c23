package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"podium-bot/internal/apperr"
	"podium-bot/internal/betting"
	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/results"
	"podium-bot/internal/storage"
)

type raceResponse struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Event      string    `json:"event"`
	Category   string    `json:"category"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	StartsAt   time.Time `json:"starts_at"`
	BetCloseAt time.Time `json:"bet_close_at"`
	TimeLeft   string    `json:"time_left"`
}

func toRace(d models.RaceDetails, now time.Time) raceResponse {
	return raceResponse{
		ID:         d.Race.ID,
		Title:      d.Title(),
		Event:      d.Event.Name,
		Category:   d.Category.Code,
		Kind:       d.Kind.Code,
		Status:     string(d.Race.Status),
		StartsAt:   d.Race.StartsAt,
		BetCloseAt: d.Race.BetCloseAt,
		TimeLeft:   betting.TimeUntilClose(d.Race, now),
	}
}

// listRaces serves ?status=a,b; without it, every race not yet finished or cancelled.
func (a *api) listRaces(w http.ResponseWriter, r *http.Request) {
	f := storage.RaceFilter{Statuses: models.ActiveRaceStatuses}
	if raw := r.URL.Query().Get("status"); raw != "" {
		f.Statuses = nil
		for _, s := range strings.Split(raw, ",") {
			st := models.RaceStatus(strings.TrimSpace(s))
			if !st.Valid() {
				a.respondError(w, r, apperr.ErrBadInput.With("unknown status %q", s))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	races, err := a.Races.List(r.Context(), f)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	now := a.Clock.Now()
	out := make([]raceResponse, 0, len(races))
	for _, d := range races {
		out = append(out, toRace(d, now))
	}
	respondJSON(w, http.StatusOK, out)
}

func (a *api) getStandings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	season := a.season
	if raw := q.Get("season"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			a.respondError(w, r, apperr.ErrBadInput.With("season must be a year"))
			return
		}
		season = v
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			a.respondError(w, r, apperr.ErrBadInput.With("limit must be a positive number"))
			return
		}
		limit = v
	}
	t, err := a.Standings.Standings(r.Context(), season, q.Get("category"), limit)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

type betResponse struct {
	ID        int64         `json:"id"`
	Race      *raceResponse `json:"race,omitempty"`
	RaceID    int64         `json:"race_id"`
	Picks     [3]int64      `json:"picks"`
	Riders    []string      `json:"riders,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toBet(b models.Bet) betResponse {
	return betResponse{ID: b.ID, RaceID: b.RaceID, Picks: b.Picks, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

func (a *api) participantBets(w http.ResponseWriter, r *http.Request) {
	handle, err := strconv.ParseInt(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		a.respondError(w, r, apperr.ErrBadInput.With("handle must be a number"))
		return
	}
	p, err := a.Ledger.Participant(r.Context(), handle)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	views, err := a.Ledger.ListActive(r.Context(), p.ID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	now := a.Clock.Now()
	out := make([]betResponse, 0, len(views))
	for _, v := range views {
		b := toBet(v.Bet)
		rr := toRace(v.Race, now)
		b.Race = &rr
		for _, rider := range v.Riders {
			b.Riders = append(b.Riders, rider.Label())
		}
		out = append(out, b)
	}
	respondJSON(w, http.StatusOK, out)
}

type betRequest struct {
	Handle      int64   `json:"handle" validate:"required"`
	DisplayName string  `json:"display_name" validate:"max=64"`
	RaceID      int64   `json:"race_id" validate:"required,gt=0"`
	Picks       []int64 `json:"picks" validate:"len=3,dive,gt=0"`
}

func (a *api) decodeBet(w http.ResponseWriter, r *http.Request) (betRequest, bool) {
	var req betRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, apperr.ErrBadInput.With("invalid request body"))
		return req, false
	}
	if err := a.validate.Struct(req); err != nil {
		a.respondError(w, r, apperr.ErrBadInput.With("%s", err.Error()))
		return req, false
	}
	return req, true
}

func (a *api) placeBet(w http.ResponseWriter, r *http.Request) {
	a.writeBet(w, r, a.Ledger.Place, http.StatusCreated)
}

func (a *api) replaceBet(w http.ResponseWriter, r *http.Request) {
	a.writeBet(w, r, a.Ledger.Replace, http.StatusOK)
}

type betWriter func(ctx context.Context, participantID, raceID int64, picks models.Picks) (models.Bet, error)

func (a *api) writeBet(w http.ResponseWriter, r *http.Request, write betWriter, status int) {
	req, ok := a.decodeBet(w, r)
	if !ok {
		return
	}
	p, err := a.Ledger.Register(r.Context(), req.Handle, req.DisplayName)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	b, err := write(r.Context(), p.ID, req.RaceID, models.Picks{req.Picks[0], req.Picks[1], req.Picks[2]})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, status, toBet(b))
}

// ---------- admin ----------

type resultsRequest struct {
	Results []struct {
		Rider    string `json:"rider" validate:"required"`
		Position int    `json:"position" validate:"gte=1"`
		Status   string `json:"status"`
	} `json:"results" validate:"required,min=1,dive"`
}

func raceID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.ErrBadInput.With("race id must be a positive number")
	}
	return id, nil
}

func (a *api) submitResults(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	var req resultsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, r, apperr.ErrBadInput.With("invalid request body"))
		return
	}
	if err := a.validate.Struct(req); err != nil {
		a.respondError(w, r, apperr.ErrBadInput.With("%s", err.Error()))
		return
	}
	entries := make([]results.Entry, 0, len(req.Results))
	for _, e := range req.Results {
		entries = append(entries, results.Entry{RiderRef: e.Rider, Position: e.Position, Status: models.ParseFinishStatus(e.Status)})
	}
	n, err := a.Scheduler.SubmitResults(r.Context(), id, entries)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "race_id": id, "scores_created": n})
}

func (a *api) transitionRace(w http.ResponseWriter, r *http.Request) {
	id, err := raceID(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	act, ok := race.ParseAction(chi.URLParam(r, "action"))
	if !ok || act == race.ActionFinish {
		a.respondError(w, r, apperr.ErrBadInput.With("action must be one of open, close, start, cancel"))
		return
	}
	updated, err := a.Races.Transition(r.Context(), id, act)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	if act == race.ActionClose {
		if err := a.Scheduler.NotifyClosed(r.Context(), id); err != nil {
			a.log.Warn().Err(err).Int64("race", id).Msg("closed summary failed")
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "race_id": id, "status": updated.Status})
}

func (a *api) syncCatalog(w http.ResponseWriter, r *http.Request) {
	if a.Catalog == nil {
		a.respondError(w, r, apperr.ErrNotFound.With("calendar sync is not configured"))
		return
	}
	rep, err := a.Catalog.Sync(r.Context())
	if err != nil {
		a.respondError(w, r, apperr.ErrTransient.With("calendar sync failed").Wrap(err))
		return
	}
	respondJSON(w, http.StatusOK, rep)
}
