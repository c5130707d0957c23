package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"podium-bot/internal/betting"
	"podium-bot/internal/cache"
	"podium-bot/internal/catalog"
	"podium-bot/internal/clock"
	"podium-bot/internal/config"
	"podium-bot/internal/notify"
	"podium-bot/internal/race"
	"podium-bot/internal/results"
	"podium-bot/internal/scheduler"
	"podium-bot/internal/scoring"
	"podium-bot/internal/server"
	"podium-bot/internal/sheets"
	"podium-bot/internal/standings"
	"podium-bot/internal/storage"
	"podium-bot/internal/storage/memory"
	"podium-bot/internal/storage/postgres"
	"podium-bot/internal/tgbot"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("storage")
	}
	defer store.Close()

	if err := catalog.Seed(ctx, store); err != nil {
		log.Fatal().Err(err).Msg("seed catalog")
	}

	clk := clock.System{}
	races := race.NewService(store, clk, log.Logger)
	ledger := betting.NewLedger(store, clk, log.Logger)

	var table *standings.Service
	var locker scheduler.Locker
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		table = standings.NewService(store, cache.NewStandings(rdb, cfg.CacheTTL), log.Logger)
		locker = cache.NewLocker(rdb, "podium:lock:")
	} else {
		table = standings.NewService(store, nil, log.Logger)
	}

	engine := scoring.NewEngine(store, clk, log.Logger)
	engine.SetInvalidator(table)

	var providers results.Chain
	var syncer *catalog.Syncer
	if cfg.SheetsEnabled() {
		sh, err := sheets.New(ctx, cfg.GoogleServiceAccountJSON, cfg.SpreadsheetID)
		if err != nil {
			log.Fatal().Err(err).Msg("sheets")
		}
		providers = append(providers, sh)
		table.SetExporter(sh)
		syncer = catalog.NewSyncer(store, races, sh, cfg.BetCloseOffset, log.Logger)
	}
	if cfg.ResultsURL != "" {
		providers = append(providers, results.NewHTTPProvider(cfg.ResultsURL, cfg.ResultsToken))
	}

	var announcer notify.Announcer
	if cfg.DiscordToken != "" {
		dc, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			log.Fatal().Err(err).Msg("discord")
		}
		defer dc.Close()
		announcer = dc
	}

	deps := tgbot.Deps{
		Repo:      store,
		Clock:     clk,
		Races:     races,
		Ledger:    ledger,
		Standings: table,
		Catalog:   syncer,
	}
	var bot *tgbot.App
	var sender notify.Sender = notify.LogSender{Log: log.Logger}
	if cfg.TelegramToken != "" {
		if bot, err = tgbot.New(cfg, deps, log.Logger); err != nil {
			log.Fatal().Err(err).Msg("telegram")
		}
		sender = bot
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, notifications go to the log")
	}

	dispatcher := notify.NewDispatcher(sender, announcer, cfg.CollaboratorTimeout, log.Logger)
	sched := scheduler.New(store, clk, engine, providers, dispatcher, scheduler.Config{
		CloseInterval:       cfg.CloseInterval,
		WarningInterval:     cfg.WarningInterval,
		ResultInterval:      cfg.ResultInterval,
		WarningLookahead:    cfg.WarningLookahead,
		BettingOpenLead:     cfg.BettingOpenLead,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
		ActionTimeout:       cfg.ActionTimeout,
		WarnAllParticipants: cfg.WarnAllParticipants,
	}, log.Logger)
	if locker != nil {
		sched.SetLocker(locker)
	}
	if bot != nil {
		bot.SetScheduler(sched)
	}

	httpSrv := server.New(cfg, server.Deps{
		Store:     store,
		Clock:     clk,
		Races:     races,
		Ledger:    ledger,
		Standings: table,
		Scheduler: sched,
		Catalog:   syncer,
	}, log.Logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("bot stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	wg.Wait()

	log.Info().Msg("bye")
}

func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.LogJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		return memory.New(), nil
	}
	return postgres.Open(ctx, cfg.DatabaseURL)
}
