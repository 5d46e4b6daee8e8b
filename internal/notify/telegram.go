package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"taskpace/pkg/logx"
)

// TelegramConfig configures the Telegram delivery transport.
type TelegramConfig struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
}

// Telegram delivers notifications as Telegram messages. It remembers the
// messages it sent so ClearAll can retract them.
type Telegram struct {
	cfg TelegramConfig
	log logx.Logger
	bot *tele.Bot

	mu   sync.Mutex
	sent []tele.Editable
}

// maxRetract caps how many delivered messages are kept for retraction.
const maxRetract = 50

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Telegram{cfg: cfg, log: log, bot: b}, nil
}

func (t *Telegram) Send(ctx context.Context, title, body string) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	text := title
	if body != "" {
		text = title + "\n\n" + body
	}
	chat := &tele.Chat{ID: t.cfg.ChatID}
	msg, err := t.bot.Send(chat, text, &tele.SendOptions{
		ThreadID:              t.cfg.ThreadID,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.sent = append(t.sent, msg)
	if len(t.sent) > maxRetract {
		t.sent = t.sent[len(t.sent)-maxRetract:]
	}
	t.mu.Unlock()
	return nil
}

// Clear deletes the messages this transport delivered. Best-effort: a
// message already deleted (or too old to delete) is skipped.
func (t *Telegram) Clear(ctx context.Context) error {
	t.mu.Lock()
	sent := t.sent
	t.sent = nil
	t.mu.Unlock()

	for _, m := range sent {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := t.bot.Delete(m); err != nil {
			t.log.Debug("notification delete failed", logx.Err(err))
		}
	}
	return nil
}
