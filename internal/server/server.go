// Package server exposes races, bets and standings over HTTP, plus signed
// admin endpoints for results and race control.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"podium-bot/internal/betting"
	"podium-bot/internal/catalog"
	"podium-bot/internal/clock"
	"podium-bot/internal/config"
	"podium-bot/internal/race"
	"podium-bot/internal/scheduler"
	"podium-bot/internal/standings"
	"podium-bot/internal/storage"
)

// Deps are the services the API fronts. Catalog may be nil.
type Deps struct {
	Store     storage.Store
	Clock     clock.Clock
	Races     *race.Service
	Ledger    *betting.Ledger
	Standings *standings.Service
	Scheduler *scheduler.Scheduler
	Catalog   *catalog.Syncer
}

type api struct {
	Deps
	season      int
	adminSecret string
	validate    *validator.Validate
	log         zerolog.Logger
}

func New(cfg config.Config, d Deps, log zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           Routes(cfg, d, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Routes builds the router. Admin routes are mounted only when an admin
// secret is configured.
func Routes(cfg config.Config, d Deps, log zerolog.Logger) http.Handler {
	a := &api{
		Deps:        d,
		season:      cfg.Season,
		adminSecret: cfg.AdminSecret,
		validate:    validator.New(),
		log:         log.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", signatureHeader},
		MaxAge:         300,
	}))

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/races", a.listRaces)
		r.Get("/standings", a.getStandings)
		r.Get("/participants/{handle}/bets", a.participantBets)
		r.Post("/bets", a.placeBet)
		r.Put("/bets", a.replaceBet)

		if a.adminSecret == "" {
			return
		}
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireSignature(a.adminSecret))
			r.Post("/races/{id}/results", a.submitResults)
			r.Post("/races/{id}/{action}", a.transitionRace)
			r.Post("/sync", a.syncCatalog)
		})
	})
	return r
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
