package results

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"podium-bot/internal/models"
)

func TestHTTPProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/races/2025-ita-mgp-rac/results":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"results":[
				{"rider":"bagnaia","position":1,"status":"finished"},
				{"rider":"martin","position":2,"status":"FINISHED"},
				{"rider":"marquez","position":3,"status":"dnf"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL+"/", "secret")

	entries, found, err := p.FetchPodium(context.Background(), "2025-ita-mgp-rac")
	if err != nil || !found {
		t.Fatalf("Expected results, got found=%v err=%v", found, err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[1].Status != models.FinishClassified || entries[2].Status != models.FinishDNF {
		t.Errorf("Unexpected statuses %+v", entries)
	}

	_, found, err = p.FetchPodium(context.Background(), "unknown")
	if err != nil || found {
		t.Errorf("Expected not found without error, got found=%v err=%v", found, err)
	}

	bad := NewHTTPProvider(srv.URL, "wrong")
	if _, _, err := bad.FetchPodium(context.Background(), "2025-ita-mgp-rac"); err == nil {
		t.Error("Expected an error on 401")
	}
}

type stubProvider struct {
	entries []Entry
	found   bool
	err     error
}

func (s stubProvider) FetchPodium(context.Context, string) ([]Entry, bool, error) {
	return s.entries, s.found, s.err
}

func TestChain(t *testing.T) {
	want := []Entry{{RiderRef: "a", Position: 1}}
	c := Chain{
		stubProvider{err: errors.New("sheet unavailable")},
		stubProvider{},
		stubProvider{entries: want, found: true},
	}
	got, found, err := c.FetchPodium(context.Background(), "x")
	if err != nil || !found || len(got) != 1 {
		t.Errorf("Expected third provider to answer, got %v %v %v", got, found, err)
	}

	_, found, err = Chain{stubProvider{err: errors.New("down")}, stubProvider{}}.FetchPodium(context.Background(), "x")
	if found || err == nil {
		t.Errorf("Expected first error when nobody has results, got found=%v err=%v", found, err)
	}
}
