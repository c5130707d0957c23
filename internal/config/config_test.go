package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("SEASON", "2025")
	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if c.HTTPAddr != ":8080" || c.LogLevel != "info" || c.Season != 2025 {
		t.Errorf("Unexpected defaults %+v", c)
	}
	if c.CloseInterval != time.Minute || c.WarningLookahead != 15*time.Minute || c.BetCloseOffset != 10*time.Minute {
		t.Errorf("Unexpected scheduler defaults %+v", c)
	}
	if c.BettingOpenLead != 0 || c.SheetsEnabled() {
		t.Errorf("Expected optional features off, got %+v", c)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_TG_IDS", "12, 34,x,")
	t.Setenv("WARNING_LOOKAHEAD", "30m")
	t.Setenv("BET_CLOSE_MINUTES", "5")
	t.Setenv("WARN_ALL_PARTICIPANTS", "yes")
	c, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if !c.AdminTGIDs[12] || !c.AdminTGIDs[34] || len(c.AdminTGIDs) != 2 {
		t.Errorf("Unexpected admins %v", c.AdminTGIDs)
	}
	if c.WarningLookahead != 30*time.Minute || c.BetCloseOffset != 5*time.Minute || !c.WarnAllParticipants {
		t.Errorf("Overrides not applied: %+v", c)
	}
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":   {"RESULT_REFRESH_INTERVAL", "soon"},
		"negative":       {"ACTION_TIMEOUT", "-1s"},
		"bad season":     {"SEASON", "twenty"},
		"half of sheets": {"GOOGLE_SHEETS_SPREADSHEET_ID", "abc"},
		"half discord":   {"DISCORD_BOT_TOKEN", "tok"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := FromEnv(); err == nil {
				t.Errorf("Expected error for %s=%s", kv[0], kv[1])
			}
		})
	}
}
