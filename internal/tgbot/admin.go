package tgbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/results"
	"podium-bot/internal/storage"
)

const adminHelp = `🛠 Admin
/openrace <race> · /closerace <race> · /startrace <race> · /cancelrace <race>
/results <race> <rider ref> <rider ref> <rider ref> …  (in finishing order)
/reschedule <race> <start> <close>  (YYYY-MM-DDTHH:MM, UTC)
/sync – import the calendar`

// handleAdminCommand runs an admin text command. handled is false for
// commands it does not know.
func (a *App) handleAdminCommand(ctx context.Context, tgID int64, cmd string, args []string) (bool, error) {
	switch cmd {
	case "/admin":
		return true, a.showAdminMenu(tgID)
	case "/sync":
		return true, a.syncCatalog(ctx, tgID)
	case "/openrace", "/closerace", "/startrace", "/cancelrace":
		if len(args) != 1 {
			return true, a.SendText(tgID, "Usage: "+cmd+" <race id>")
		}
		act, _ := race.ParseAction(strings.TrimSuffix(strings.TrimPrefix(cmd, "/"), "race"))
		return true, a.transition(ctx, tgID, parseID(args[0]), act)
	case "/results":
		if len(args) < 4 {
			return true, a.SendText(tgID, "Usage: /results <race id> <1st ref> <2nd ref> <3rd ref> …")
		}
		entries := make([]results.Entry, 0, len(args)-1)
		for i, ref := range args[1:] {
			entries = append(entries, results.Entry{RiderRef: ref, Position: i + 1, Status: models.FinishClassified})
		}
		n, err := a.deps.Scheduler.SubmitResults(ctx, parseID(args[0]), entries)
		if err != nil {
			return true, a.reply(tgID, err)
		}
		return true, a.SendText(tgID, fmt.Sprintf("✅ Results stored, %d bets scored.", n))
	case "/reschedule":
		if len(args) != 3 {
			return true, a.SendText(tgID, "Usage: /reschedule <race id> <start> <close>")
		}
		return true, a.reschedule(ctx, tgID, parseID(args[0]), args[1], args[2])
	}
	return false, nil
}

func (a *App) showAdminMenu(tgID int64) error {
	msg := tgbotapi.NewMessage(tgID, adminHelp)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Active races", "a:races"),
			tgbotapi.NewInlineKeyboardButtonData("🔄 Sync calendar", "a:sync"),
		),
	)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) handleAdminCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "a:menu":
		return a.showAdminMenu(tgID)
	case "a:sync":
		return a.syncCatalog(ctx, tgID)
	case "a:races":
		return a.showAdminRaces(ctx, tgID)
	}

	// a:<action>:<race id>
	parts := strings.SplitN(data, ":", 3)
	if len(parts) == 3 {
		if act, ok := race.ParseAction(parts[1]); ok && act != race.ActionFinish {
			return a.transition(ctx, tgID, parseID(parts[2]), act)
		}
	}
	return nil
}

func (a *App) showAdminRaces(ctx context.Context, tgID int64) error {
	races, err := a.deps.Races.List(ctx, storage.RaceFilter{Statuses: models.ActiveRaceStatuses})
	if err != nil {
		return a.reply(tgID, err)
	}
	if len(races) == 0 {
		return a.SendText(tgID, "No active races.")
	}
	b := strings.Builder{}
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, d := range races {
		fmt.Fprintf(&b, "#%d %s [%s]\n", d.Race.ID, d.Title(), d.Race.Status)
		var row []tgbotapi.InlineKeyboardButton
		switch d.Race.Status {
		case models.RaceUpcoming:
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("▶ Open #%d", d.Race.ID), fmt.Sprintf("a:open:%d", d.Race.ID)))
		case models.RaceBettingOpen:
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🔒 Close #%d", d.Race.ID), fmt.Sprintf("a:close:%d", d.Race.ID)))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✖ Cancel #%d", d.Race.ID), fmt.Sprintf("a:cancel:%d", d.Race.ID)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	msg := tgbotapi.NewMessage(tgID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) transition(ctx context.Context, tgID, raceID int64, act race.Action) error {
	r, err := a.deps.Races.Transition(ctx, raceID, act)
	if err != nil {
		return a.reply(tgID, err)
	}
	if act == race.ActionClose {
		if err := a.deps.Scheduler.NotifyClosed(ctx, raceID); err != nil {
			a.log.Warn().Err(err).Int64("race", raceID).Msg("closed summary failed")
		}
	}
	return a.SendText(tgID, fmt.Sprintf("✅ Race #%d is now %s.", r.ID, r.Status))
}

func (a *App) reschedule(ctx context.Context, tgID, raceID int64, startRaw, closeRaw string) error {
	const layout = "2006-01-02T15:04"
	start, err := time.Parse(layout, startRaw)
	if err != nil {
		return a.reply(tgID, apperr.ErrBadInput.With("start must look like 2025-07-06T12:00"))
	}
	closeAt, err := time.Parse(layout, closeRaw)
	if err != nil {
		return a.reply(tgID, apperr.ErrBadInput.With("close must look like 2025-07-06T11:50"))
	}
	r, err := a.deps.Races.Reschedule(ctx, raceID, start, closeAt)
	if err != nil {
		return a.reply(tgID, err)
	}
	return a.SendText(tgID, fmt.Sprintf("✅ Race #%d now starts %s, betting %s.",
		r.ID, r.StartsAt.Format("Mon 02 Jan 15:04 UTC"), a.closesLine(r)))
}

func (a *App) syncCatalog(ctx context.Context, tgID int64) error {
	if a.deps.Catalog == nil {
		return a.SendText(tgID, "Calendar sync is not configured.")
	}
	rep, err := a.deps.Catalog.Sync(ctx)
	if err != nil {
		return a.reply(tgID, apperr.ErrTransient.With("calendar sync failed").Wrap(err))
	}
	return a.SendText(tgID, fmt.Sprintf("✅ Synced: %d events, %d riders, %d races created, %d rescheduled, %d skipped.",
		rep.Events, rep.Riders, rep.RacesCreated, rep.RacesMoved, rep.Skipped))
}
