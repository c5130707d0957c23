package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"podium-bot/internal/apperr"
	"podium-bot/internal/betting"
	"podium-bot/internal/models"
	"podium-bot/internal/race"
	"podium-bot/internal/standings"
	"podium-bot/internal/storage"
)

const flowBet = "bet"

var slotNames = [3]string{"🥇 1st", "🥈 2nd", "🥉 3rd"}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return id
}

func (a *App) closesLine(r models.Race) string {
	return fmt.Sprintf("closes %s UTC (%s left)", r.BetCloseAt.UTC().Format("Mon 02 Jan 15:04"), betting.TimeUntilClose(r, a.deps.Clock.Now()))
}

// ---------- Races ----------

func (a *App) showRaces(ctx context.Context, tgID int64) error {
	races, err := a.deps.Races.Bettable(ctx)
	if err != nil {
		return a.reply(tgID, err)
	}
	if len(races) == 0 {
		return a.SendText(tgID, "No races are open for betting right now.")
	}
	b := strings.Builder{}
	b.WriteString("🏁 Open for betting:\n")
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, d := range races {
		fmt.Fprintf(&b, "\n• %s\n  %s", d.Title(), a.closesLine(d.Race))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(d.Title(), fmt.Sprintf("u:race:%d", d.Race.ID)),
		))
	}
	msg := tgbotapi.NewMessage(tgID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) raceDetails(ctx context.Context, raceID int64) (models.RaceDetails, error) {
	r, err := a.deps.Races.Get(ctx, raceID)
	if err != nil {
		return models.RaceDetails{}, err
	}
	return storage.LoadRaceDetails(ctx, a.deps.Repo, r)
}

func (a *App) participant(ctx context.Context, tgID int64) (models.Participant, error) {
	p, err := a.deps.Ledger.Participant(ctx, tgID)
	if errors.Is(err, apperr.ErrNotFound) {
		return p, apperr.ErrNotFound.With("you are not registered yet, send /start first")
	}
	return p, err
}

// ---------- Bet flow ----------

// startBet begins picking riders for a race. An existing bet turns the flow
// into an edit that replaces all three picks.
func (a *App) startBet(ctx context.Context, tgID, raceID int64) error {
	p, err := a.participant(ctx, tgID)
	if err != nil {
		return a.reply(tgID, err)
	}
	d, err := a.raceDetails(ctx, raceID)
	if err != nil {
		return a.reply(tgID, err)
	}
	if !race.IsBettable(d.Race, a.deps.Clock.Now()) {
		return a.reply(tgID, apperr.ErrBettingClosed)
	}

	st := userState{Flow: flowBet, RaceID: raceID}
	_, err = a.deps.Ledger.Get(ctx, p.ID, raceID)
	switch {
	case err == nil:
		st.Edit = true
	case !errors.Is(err, apperr.ErrNoBet):
		return a.reply(tgID, err)
	}
	a.setState(tgID, st)

	intro := "New bet for " + d.Title()
	if st.Edit {
		intro = "Editing your bet for " + d.Title() + ". Choose all three riders again."
	}
	if err := a.SendText(tgID, intro+"\n"+a.closesLine(d.Race)); err != nil {
		return err
	}
	return a.askPick(ctx, tgID, st)
}

func (a *App) askPick(ctx context.Context, tgID int64, st userState) error {
	riders, err := a.deps.Repo.ListRiders(ctx)
	if err != nil {
		return a.reply(tgID, err)
	}
	chosen := map[int64]bool{}
	for _, id := range st.Picks {
		chosen[id] = true
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	var row []tgbotapi.InlineKeyboardButton
	for _, r := range riders {
		if chosen[r.ID] {
			continue
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(r.Label(), fmt.Sprintf("u:pick:%d", r.ID)))
		if len(row) == 2 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", "u:abort"),
	))

	msg := tgbotapi.NewMessage(tgID, slotNames[len(st.Picks)]+" place?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) pickRider(ctx context.Context, tgID, riderID int64) error {
	st := a.getState(tgID)
	if st.Flow != flowBet {
		return a.SendText(tgID, "No bet in progress. Use /races to start one.")
	}
	for _, id := range st.Picks {
		if id == riderID {
			return a.reply(tgID, apperr.ErrDuplicatePick)
		}
	}
	if len(st.Picks) >= 3 {
		return a.showConfirm(ctx, tgID, st)
	}
	st.Picks = append(st.Picks, riderID)
	a.setState(tgID, st)
	if len(st.Picks) < 3 {
		return a.askPick(ctx, tgID, st)
	}
	return a.showConfirm(ctx, tgID, st)
}

func (a *App) pickLabels(ctx context.Context, picks []int64) ([]string, error) {
	riders, err := a.deps.Repo.GetRiders(ctx, picks)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(picks))
	for i, id := range picks {
		out[i] = riders[id].Label()
	}
	return out, nil
}

func (a *App) showConfirm(ctx context.Context, tgID int64, st userState) error {
	labels, err := a.pickLabels(ctx, st.Picks)
	if err != nil {
		return a.reply(tgID, err)
	}
	b := strings.Builder{}
	b.WriteString("Your picks:\n")
	for i, l := range labels {
		fmt.Fprintf(&b, "%s: %s\n", slotNames[i], l)
	}
	msg := tgbotapi.NewMessage(tgID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Confirm", "u:confirm"),
			tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", "u:abort"),
		),
	)
	_, err = a.bot.Send(msg)
	return err
}

func (a *App) confirmBet(ctx context.Context, tgID int64) error {
	st := a.getState(tgID)
	if st.Flow != flowBet || len(st.Picks) != 3 {
		a.setState(tgID, userState{})
		return a.SendText(tgID, "No bet in progress. Use /races to start one.")
	}
	// the flow ends here whatever the outcome
	a.setState(tgID, userState{})

	p, err := a.participant(ctx, tgID)
	if err != nil {
		return a.reply(tgID, err)
	}
	picks := models.Picks{st.Picks[0], st.Picks[1], st.Picks[2]}
	write := a.deps.Ledger.Place
	if st.Edit {
		write = a.deps.Ledger.Replace
	}
	if _, err := write(ctx, p.ID, st.RaceID, picks); err != nil {
		return a.reply(tgID, err)
	}

	d, err := a.raceDetails(ctx, st.RaceID)
	if err != nil {
		return a.reply(tgID, err)
	}
	labels, err := a.pickLabels(ctx, st.Picks)
	if err != nil {
		return a.reply(tgID, err)
	}
	verb := "saved"
	if st.Edit {
		verb = "updated"
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "✅ Bet %s for %s\n", verb, d.Title())
	for i, l := range labels {
		fmt.Fprintf(&b, "%s: %s\n", slotNames[i], l)
	}
	fmt.Fprintf(&b, "\nBetting %s. You can edit until then with /mybets.", a.closesLine(d.Race))
	return a.SendText(tgID, b.String())
}

// ---------- My bets ----------

func (a *App) showMyBets(ctx context.Context, tgID int64) error {
	p, err := a.participant(ctx, tgID)
	if err != nil {
		return a.reply(tgID, err)
	}
	views, err := a.deps.Ledger.ListActive(ctx, p.ID)
	if err != nil {
		return a.reply(tgID, err)
	}
	if len(views) == 0 {
		return a.SendText(tgID, "You have no active bets. Use /races to place one.")
	}

	now := a.deps.Clock.Now()
	b := strings.Builder{}
	b.WriteString("📋 Your active bets:\n")
	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, v := range views {
		fmt.Fprintf(&b, "\n%s\n", v.Race.Title())
		for i, r := range v.Riders {
			fmt.Fprintf(&b, "  %s: %s\n", slotNames[i], r.Label())
		}
		if race.IsBettable(v.Race.Race, now) {
			fmt.Fprintf(&b, "  Betting %s\n", a.closesLine(v.Race.Race))
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Edit "+v.Race.Title(), fmt.Sprintf("u:race:%d", v.Bet.RaceID)),
			))
		} else {
			b.WriteString("  Betting closed, waiting for results\n")
		}
	}
	msg := tgbotapi.NewMessage(tgID, b.String())
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	_, err = a.bot.Send(msg)
	return err
}

// ---------- Standings ----------

func (a *App) showStandings(ctx context.Context, tgID int64, code string) error {
	t, err := a.deps.Standings.Standings(ctx, a.cfg.Season, code, 20)
	if err != nil {
		return a.reply(tgID, err)
	}
	cats, err := a.deps.Repo.ListCategories(ctx)
	if err != nil {
		return a.reply(tgID, err)
	}
	title := fmt.Sprintf("Overall %d", a.cfg.Season)
	buttons := []tgbotapi.InlineKeyboardButton{tgbotapi.NewInlineKeyboardButtonData("Overall", "u:standings:")}
	for _, c := range cats {
		if strings.EqualFold(c.Code, code) {
			title = fmt.Sprintf("%s %d", c.Name, a.cfg.Season)
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Name, "u:standings:"+c.Code))
	}
	msg := tgbotapi.NewMessage(tgID, standings.Format(t, title))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	_, err = a.bot.Send(msg)
	return err
}
