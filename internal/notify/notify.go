// Package notify delivers triggered alerts to chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"findash/internal/core"
	"findash/internal/log"
)

type Notifier interface {
	Notify(ctx context.Context, a core.Alert) error
}

// Telegram sends alert messages through a bot. A notifier built without a
// token or chat id is disabled and drops every alert.
type Telegram struct {
	bot    *telego.Bot
	chat   telego.ChatID
	logger *log.Logger
}

// NewTelegram creates the notifier. chatID is a numeric id or an @channel name.
func NewTelegram(token, chatID string, opts ...telego.BotOption) (*Telegram, error) {
	t := &Telegram{logger: log.New(log.Config{Component: log.ComponentNotify})}
	token, chatID = strings.TrimSpace(token), strings.TrimSpace(chatID)
	if token == "" || chatID == "" {
		return t, nil
	}
	bot, err := telego.NewBot(token, append([]telego.BotOption{telego.WithDiscardLogger()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	t.bot = bot
	t.chat = parseChatID(chatID)
	return t, nil
}

func parseChatID(s string) telego.ChatID {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(s, "@") {
		s = "@" + s
	}
	return tu.Username(s)
}

// Enabled reports whether alerts are actually sent.
func (t *Telegram) Enabled() bool {
	return t.bot != nil
}

func (t *Telegram) Notify(ctx context.Context, a core.Alert) error {
	if !t.Enabled() {
		t.logger.DebugContext(ctx, "Telegram disabled, alert dropped", log.FieldEventID, a.ID)
		return nil
	}
	if _, err := t.bot.SendMessage(ctx, tu.Message(t.chat, a.Message())); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	t.logger.InfoContext(ctx, "Alert sent to Telegram", log.FieldEventID, a.ID, log.FieldStockCode, a.Code)
	return nil
}

// Logger writes alerts to the log. It is the fallback when no chat is configured.
type Logger struct {
	logger *log.Logger
}

func NewLogger(l *log.Logger) *Logger {
	if l == nil {
		l = log.New(log.Config{Component: log.ComponentNotify})
	}
	return &Logger{logger: l}
}

func (n *Logger) Notify(ctx context.Context, a core.Alert) error {
	n.logger.InfoContext(ctx, "Alert", log.FieldEventID, a.ID, log.FieldStockCode, a.Code, "message", a.Message())
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a core.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
