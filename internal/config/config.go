package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"podium-bot/internal/util"
)

type Config struct {
	TelegramToken string

	SpreadsheetID            string
	GoogleServiceAccountJSON string

	AdminTGIDs map[int64]bool
	// AdminSecret signs admin HTTP requests. Empty disables the admin API.
	AdminSecret string

	HTTPAddr string
	LogLevel string
	LogJSON  bool

	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	DiscordToken     string
	DiscordChannelID string

	ResultsURL   string
	ResultsToken string

	Season int

	CloseInterval       time.Duration
	WarningInterval     time.Duration
	ResultInterval      time.Duration
	WarningLookahead    time.Duration
	BettingOpenLead     time.Duration
	CollaboratorTimeout time.Duration
	ActionTimeout       time.Duration
	WarnAllParticipants bool
	BetCloseOffset      time.Duration
}

func FromEnv() (Config, error) {
	var c Config
	c.TelegramToken = env("TELEGRAM_BOT_TOKEN")
	c.SpreadsheetID = env("GOOGLE_SHEETS_SPREADSHEET_ID")
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON")
	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))
	c.AdminSecret = env("ADMIN_SECRET")

	c.HTTPAddr = env("HTTP_ADDR")
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	c.LogLevel = strings.ToLower(env("LOG_LEVEL"))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogJSON = util.ParseBool(os.Getenv("LOG_JSON"))

	c.DatabaseURL = env("DATABASE_URL")
	c.RedisURL = env("REDIS_URL")
	c.DiscordToken = env("DISCORD_BOT_TOKEN")
	c.DiscordChannelID = env("DISCORD_CHANNEL_ID")
	c.ResultsURL = strings.TrimRight(env("RESULTS_API_URL"), "/")
	c.ResultsToken = env("RESULTS_API_TOKEN")
	c.WarnAllParticipants = util.ParseBool(os.Getenv("WARN_ALL_PARTICIPANTS"))

	var err error
	if c.Season, err = intEnv("SEASON", time.Now().UTC().Year()); err != nil {
		return c, err
	}
	minutes, err := intEnv("BET_CLOSE_MINUTES", 10)
	if err != nil {
		return c, err
	}
	if minutes < 0 {
		return c, fmt.Errorf("BET_CLOSE_MINUTES must not be negative")
	}
	c.BetCloseOffset = time.Duration(minutes) * time.Minute

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"CLOSE_SWEEP_INTERVAL", time.Minute, &c.CloseInterval},
		{"WARNING_SWEEP_INTERVAL", 5 * time.Minute, &c.WarningInterval},
		{"RESULT_REFRESH_INTERVAL", 15 * time.Minute, &c.ResultInterval},
		{"WARNING_LOOKAHEAD", 15 * time.Minute, &c.WarningLookahead},
		{"BETTING_OPEN_LEAD", 0, &c.BettingOpenLead},
		{"COLLABORATOR_TIMEOUT", 10 * time.Second, &c.CollaboratorTimeout},
		{"ACTION_TIMEOUT", 5 * time.Minute, &c.ActionTimeout},
		{"STANDINGS_CACHE_TTL", 10 * time.Minute, &c.CacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = durationEnv(d.key, d.def); err != nil {
			return c, err
		}
	}

	if (c.SpreadsheetID == "") != (c.GoogleServiceAccountJSON == "") {
		return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON must be set together")
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return c, fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}

	return c, nil
}

func (c Config) SheetsEnabled() bool { return c.SpreadsheetID != "" }

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func intEnv(key string, def int) (int, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
