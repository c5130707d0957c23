package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"podium-bot/internal/betting"
	"podium-bot/internal/clock"
	"podium-bot/internal/config"
	"podium-bot/internal/models"
	"podium-bot/internal/notify"
	"podium-bot/internal/race"
	"podium-bot/internal/results"
	"podium-bot/internal/scheduler"
	"podium-bot/internal/scoring"
	"podium-bot/internal/standings"
	"podium-bot/internal/storage/memory"
	"podium-bot/internal/util"
)

const secret = "s3cret"

var closeAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	handler http.Handler
	store   *memory.Store
	clk     *clock.Manual
	race    models.Race
	riders  []models.Rider
}

type noResults struct{}

func (noResults) FetchPodium(context.Context, string) ([]results.Entry, bool, error) {
	return nil, false, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(), clk: clock.NewManual(closeAt.Add(-time.Hour))}
	log := zerolog.Nop()

	cat, _ := f.store.UpsertCategory(ctx, models.Category{Code: "MGP", Name: "MotoGP"})
	kind, _ := f.store.UpsertRaceKind(ctx, models.RaceKind{
		Code: "RAC", Name: "Race", Profile: models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10},
	})
	ev, _ := f.store.UpsertEvent(ctx, models.Event{Season: 2025, Name: "Mugello", ExternalRef: "ita"})
	for _, ref := range []string{"bagnaia", "martin", "marquez"} {
		rd, _ := f.store.UpsertRider(ctx, models.Rider{ExternalRef: ref, LastName: ref})
		f.riders = append(f.riders, rd)
	}
	var err error
	f.race, err = f.store.InsertRace(ctx, models.Race{
		EventID: ev.ID, CategoryID: cat.ID, KindID: kind.ID,
		StartsAt: closeAt.Add(10 * time.Minute), BetCloseAt: closeAt, Status: models.RaceBettingOpen,
	})
	if err != nil {
		t.Fatal(err)
	}

	engine := scoring.NewEngine(f.store, f.clk, log)
	table := standings.NewService(f.store, nil, log)
	engine.SetInvalidator(table)
	dispatcher := notify.NewDispatcher(notify.LogSender{Log: log}, nil, time.Second, log)
	sched := scheduler.New(f.store, f.clk, engine, noResults{}, dispatcher, scheduler.Config{}, log)

	f.handler = Routes(config.Config{Season: 2025, AdminSecret: secret}, Deps{
		Store:     f.store,
		Clock:     f.clk,
		Races:     race.NewService(f.store, f.clk, log),
		Ledger:    betting.NewLedger(f.store, f.clk, log),
		Standings: table,
		Scheduler: sched,
	}, log)
	return f
}

func (f *fixture) do(method, path string, body any, signed bool) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if signed {
		req.Header.Set(signatureHeader, util.HMACSHA256Hex(secret, string(raw)))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) picks(a, b, c int) []int64 {
	return []int64{f.riders[a].ID, f.riders[b].ID, f.riders[c].ID}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/health", nil, false); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestListRaces(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/api/v1/races", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	races := decode[[]raceResponse](t, w)
	if len(races) != 1 || races[0].TimeLeft != "1h 0m" || races[0].Category != "MGP" {
		t.Errorf("Unexpected races %+v", races)
	}

	if w := f.do(http.MethodGet, "/api/v1/races?status=finished", nil, false); len(decode[[]raceResponse](t, w)) != 0 {
		t.Error("Expected no finished races")
	}
	if w := f.do(http.MethodGet, "/api/v1/races?status=bogus", nil, false); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}
}

func TestPlaceAndReplaceBet(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"handle": 42, "display_name": "ana", "race_id": f.race.ID, "picks": f.picks(0, 1, 2)}

	w := f.do(http.MethodPost, "/api/v1/bets", body, false)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodPost, "/api/v1/bets", body, false); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second bet, got %d", w.Code)
	}

	body["picks"] = f.picks(2, 1, 0)
	w = f.do(http.MethodPut, "/api/v1/bets", body, false)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[betResponse](t, w); got.Picks[0] != f.riders[2].ID {
		t.Errorf("Expected replaced picks, got %v", got.Picks)
	}

	w = f.do(http.MethodGet, "/api/v1/participants/42/bets", nil, false)
	bets := decode[[]betResponse](t, w)
	if len(bets) != 1 || bets[0].Race == nil || len(bets[0].Riders) != 3 {
		t.Errorf("Unexpected active bets %+v", bets)
	}
}

func TestBetValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]struct {
		body any
		want int
		code string
	}{
		"two picks":      {map[string]any{"handle": 1, "race_id": f.race.ID, "picks": f.picks(0, 1, 2)[:2]}, http.StatusBadRequest, "bad_input"},
		"duplicate pick": {map[string]any{"handle": 1, "race_id": f.race.ID, "picks": f.picks(0, 0, 2)}, http.StatusBadRequest, "duplicate_pick"},
		"unknown rider":  {map[string]any{"handle": 1, "race_id": f.race.ID, "picks": []int64{f.riders[0].ID, f.riders[1].ID, 9999}}, http.StatusBadRequest, "unknown_rider"},
		"no race":        {map[string]any{"handle": 1, "race_id": 9999, "picks": f.picks(0, 1, 2)}, http.StatusNotFound, "race_not_found"},
		"no handle":      {map[string]any{"race_id": f.race.ID, "picks": f.picks(0, 1, 2)}, http.StatusBadRequest, "bad_input"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/api/v1/bets", tc.body, false)
			if w.Code != tc.want {
				t.Fatalf("Expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if got := decode[errorResponse](t, w); got.Error != tc.code {
				t.Errorf("Expected code %s, got %+v", tc.code, got)
			}
		})
	}
}

func TestBetAfterClose(t *testing.T) {
	f := newFixture(t)
	f.clk.Set(closeAt.Add(time.Second))
	body := map[string]any{"handle": 42, "race_id": f.race.ID, "picks": f.picks(0, 1, 2)}
	w := f.do(http.MethodPost, "/api/v1/bets", body, false)
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", w.Code)
	}
	if got := decode[errorResponse](t, w); got.Error != "betting_closed" {
		t.Errorf("Expected betting_closed, got %+v", got)
	}
}

func TestAdminRequiresSignature(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/admin/races/" + strconv.FormatInt(f.race.ID, 10) + "/close"
	if w := f.do(http.MethodPost, path, map[string]any{}, false); w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without signature, got %d", w.Code)
	}

	f.clk.Set(closeAt.Add(time.Second))
	w := f.do(http.MethodPost, path, map[string]any{}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	r, _ := f.store.GetRace(context.Background(), f.race.ID)
	if r.Status != models.RaceBettingClosed {
		t.Errorf("Expected betting_closed, got %s", r.Status)
	}

	bad := "/api/v1/admin/races/" + strconv.FormatInt(f.race.ID, 10) + "/finish"
	if w := f.do(http.MethodPost, bad, map[string]any{}, true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected finish to be refused, got %d", w.Code)
	}
}

func TestAdminSubmitResultsSettles(t *testing.T) {
	f := newFixture(t)
	bet := map[string]any{"handle": 42, "display_name": "ana", "race_id": f.race.ID, "picks": f.picks(0, 1, 2)}
	if w := f.do(http.MethodPost, "/api/v1/bets", bet, false); w.Code != http.StatusCreated {
		t.Fatalf("place: %d %s", w.Code, w.Body.String())
	}
	f.clk.Set(closeAt.Add(time.Hour))

	path := "/api/v1/admin/races/" + strconv.FormatInt(f.race.ID, 10) + "/results"
	body := map[string]any{"results": []map[string]any{
		{"rider": "bagnaia", "position": 1},
		{"rider": "martin", "position": 2},
		{"rider": "marquez", "position": 3},
	}}
	w := f.do(http.MethodPost, path, body, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decode[map[string]any](t, w); got["scores_created"] != float64(1) {
		t.Errorf("Expected one score, got %v", got)
	}

	tbl := decode[standings.Table](t, f.do(http.MethodGet, "/api/v1/standings?season=2025", nil, false))
	if len(tbl.Rows) != 1 || tbl.Rows[0].Points != 40 || tbl.Rows[0].DisplayName != "ana" {
		t.Errorf("Unexpected standings %+v", tbl)
	}

	unknown := map[string]any{"results": []map[string]any{{"rider": "nobody", "position": 1}}}
	if w := f.do(http.MethodPost, path, unknown, true); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown rider, got %d", w.Code)
	}
}

func TestAdminSyncWithoutCatalog(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodPost, "/api/v1/admin/sync", map[string]any{}, true); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
