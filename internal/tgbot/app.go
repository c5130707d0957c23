package tgbot

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"podium-bot/internal/apperr"
	"podium-bot/internal/betting"
	"podium-bot/internal/catalog"
	"podium-bot/internal/clock"
	"podium-bot/internal/config"
	"podium-bot/internal/race"
	"podium-bot/internal/scheduler"
	"podium-bot/internal/standings"
	"podium-bot/internal/storage"
)

// messenger is the part of the Bot API the handlers use.
type messenger interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deps are the services behind the bot. Catalog may be nil.
type Deps struct {
	Repo      storage.Repo
	Clock     clock.Clock
	Races     *race.Service
	Ledger    *betting.Ledger
	Standings *standings.Service
	Scheduler *scheduler.Scheduler
	Catalog   *catalog.Syncer
}

type App struct {
	cfg  config.Config
	api  *tgbotapi.BotAPI
	bot  messenger
	deps Deps
	log  zerolog.Logger

	// in-memory state for the bet flow, keyed by Telegram user id
	mu    sync.Mutex
	state map[int64]userState
}

type userState struct {
	Flow   string
	RaceID int64
	Edit   bool
	Picks  []int64
}

// pollTimeout is how long getUpdates is held open by Telegram.
const pollTimeout = 30 * time.Second

// httpClient bounds every Bot API request. Long polls run up to pollTimeout
// on the same client, so the limit is the collaborator timeout on top of it.
func httpClient(cfg config.Config) *http.Client {
	timeout := cfg.CollaboratorTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: pollTimeout + timeout}
}

func New(cfg config.Config, d Deps, log zerolog.Logger) (*App, error) {
	b, err := tgbotapi.NewBotAPIWithClient(cfg.TelegramToken, tgbotapi.APIEndpoint, httpClient(cfg))
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := newApp(cfg, b, d, log)
	a.api = b
	return a, nil
}

func newApp(cfg config.Config, bot messenger, d Deps, log zerolog.Logger) *App {
	return &App{
		cfg:   cfg,
		bot:   bot,
		deps:  d,
		log:   log.With().Str("component", "telegram").Logger(),
		state: map[int64]userState{},
	}
}

// SetScheduler attaches the scheduler after construction. The scheduler sends
// its notifications through the App, so it is built second.
func (a *App) SetScheduler(s *scheduler.Scheduler) { a.deps.Scheduler = s }

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(pollTimeout / time.Second)

	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					a.log.Error().Err(err).Int64("user", upd.Message.From.ID).Msg("handle message")
				}
			} else if upd.CallbackQuery != nil {
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					a.log.Error().Err(err).Int64("user", upd.CallbackQuery.From.ID).Msg("handle callback")
				}
			}
		}
	}
}

// Send delivers a notification to a participant's private chat. It returns
// when ctx is done even if the request is still in flight; the HTTP client
// timeout ends that request later.
func (a *App) Send(ctx context.Context, handle int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- a.SendText(handle, text) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

// reply shows err to the user. App validation and state errors end there;
// anything else is also returned for logging.
func (a *App) reply(tgID int64, err error) error {
	if err == nil {
		return nil
	}
	if sendErr := a.SendText(tgID, "⚠️ "+apperr.Message(err)); sendErr != nil {
		return sendErr
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindState:
		return nil
	}
	return err
}

func (a *App) isAdmin(tgID int64) bool {
	return a.cfg.AdminTGIDs[tgID]
}

func (a *App) getState(tgID int64) userState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state[tgID]
}

func (a *App) setState(tgID int64, st userState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if st.Flow == "" {
		delete(a.state, tgID)
		return
	}
	a.state[tgID] = st
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	if m.From == nil {
		return nil
	}
	tgID := m.From.ID
	txt := strings.TrimSpace(m.Text)
	cmd, args := splitCommand(txt)

	switch cmd {
	case "/start":
		a.setState(tgID, userState{})
		return a.showStart(ctx, m.From)
	case "/help":
		return a.SendText(tgID, helpText)
	case "/races":
		return a.showRaces(ctx, tgID)
	case "/mybets":
		return a.showMyBets(ctx, tgID)
	case "/standings":
		code := ""
		if len(args) > 0 {
			code = args[0]
		}
		return a.showStandings(ctx, tgID, code)
	case "/cancel":
		a.setState(tgID, userState{})
		return a.SendText(tgID, "Cancelled. /races to start again.")
	}

	if strings.HasPrefix(cmd, "/") && a.isAdmin(tgID) {
		if handled, err := a.handleAdminCommand(ctx, tgID, cmd, args); handled {
			return err
		}
	}

	return a.showMainMenu(tgID)
}

func splitCommand(txt string) (string, []string) {
	fields := strings.Fields(txt)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	// "/races@PodiumBot" in group chats
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

const helpText = `🏍 Podium predictions

/races – races open for betting
/mybets – your active bets, with edit
/standings [MGP|MT2|MT3] – season standings
/cancel – abandon the current bet

Pick the top three for a race before betting closes. A rider in the exact slot scores more than one on the podium in the wrong slot. A perfect podium earns a bonus.`

func (a *App) showStart(ctx context.Context, from *tgbotapi.User) error {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	if name == "" {
		name = from.UserName
	}
	if _, err := a.deps.Ledger.Register(ctx, from.ID, name); err != nil {
		return a.reply(from.ID, err)
	}
	msg := tgbotapi.NewMessage(from.ID, "👋 Welcome, "+name+"!\n\n"+helpText)
	msg.ReplyMarkup = mainKeyboard()
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) showMainMenu(tgID int64) error {
	msg := tgbotapi.NewMessage(tgID, "What next?")
	msg.ReplyMarkup = mainKeyboard()
	_, err := a.bot.Send(msg)
	return err
}

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏁 Races", "u:races"),
			tgbotapi.NewInlineKeyboardButtonData("📋 My bets", "u:mybets"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏆 Standings", "u:standings"),
		),
	)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	if strings.HasPrefix(data, "u:") {
		return a.handleUserCallback(ctx, tgID, data)
	}
	if strings.HasPrefix(data, "a:") {
		if !a.isAdmin(tgID) {
			return a.SendText(tgID, "Access denied.")
		}
		return a.handleAdminCallback(ctx, tgID, data)
	}
	return nil
}

func (a *App) handleUserCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "u:races":
		return a.showRaces(ctx, tgID)
	case "u:mybets":
		return a.showMyBets(ctx, tgID)
	case "u:standings":
		return a.showStandings(ctx, tgID, "")
	case "u:confirm":
		return a.confirmBet(ctx, tgID)
	case "u:abort":
		a.setState(tgID, userState{})
		return a.SendText(tgID, "Bet discarded.")
	}

	switch {
	case strings.HasPrefix(data, "u:race:"):
		return a.startBet(ctx, tgID, parseID(strings.TrimPrefix(data, "u:race:")))
	case strings.HasPrefix(data, "u:pick:"):
		return a.pickRider(ctx, tgID, parseID(strings.TrimPrefix(data, "u:pick:")))
	case strings.HasPrefix(data, "u:standings:"):
		return a.showStandings(ctx, tgID, strings.TrimPrefix(data, "u:standings:"))
	}
	return nil
}
