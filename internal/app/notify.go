package app

import (
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"engagebot/internal/config"
	logx "engagebot/pkg/logx"
)

// notifyTimeout bounds every Telegram API call; telebot's default
// client would otherwise wait forever on a wedged API.
const notifyTimeout = 10 * time.Second

// Notifier pushes one-way operator messages over Telegram. Delivery is
// best-effort; a down Telegram API never blocks the scheduler for more
// than notifyTimeout.
type Notifier struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func NewNotifier(cfg *config.NotifierConfig, log logx.Logger) (*Notifier, error) {
	// Send-only: no poller, and Offline skips the startup getMe probe so
	// a flaky Telegram API cannot fail process startup.
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: notifyTimeout},
	})
	if err != nil {
		return nil, err
	}
	return &Notifier{
		bot:  bot,
		chat: &tele.Chat{ID: cfg.ChatID},
		log:  log.With(logx.String("component", "notifier")),
	}, nil
}

func (n *Notifier) Send(text string) {
	if n == nil {
		return
	}
	if _, err := n.bot.Send(n.chat, text); err != nil {
		n.log.Warn("notify failed", logx.Err(err))
	}
}
