// Package middleware wraps Telegram handlers with access control, rate
// limiting and logging.
package middleware

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"agenthub/internal/adapter/telegram"
)

// ACL admits the listed Telegram user IDs. An empty list admits everyone.
type ACL struct{ allowed map[int64]struct{} }

// NewACL creates an ACL from ids.
func NewACL(ids []int64) *ACL {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return &ACL{allowed: m}
}

// IsAllowed reports whether id may use the bot.
func (a *ACL) IsAllowed(id int64) bool {
	if len(a.allowed) == 0 {
		return true
	}
	_, ok := a.allowed[id]
	return ok
}

// Middleware answers "Access denied." instead of calling next for other users.
func (a *ACL) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, b telegram.Bot, upd *models.Update) {
		uid, chat := sender(upd)
		if uid == 0 || a.IsAllowed(uid) {
			next(ctx, b, upd)
			return
		}
		if chat != 0 && b != nil {
			_, _ = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: "Access denied."})
		}
	}
}

// sender returns the user and chat of an update (zero when absent).
func sender(upd *models.Update) (uid, chat int64) {
	if m := upd.Message; m != nil {
		chat = m.Chat.ID
		if m.From != nil {
			uid = m.From.ID
		}
	} else if cb := upd.CallbackQuery; cb != nil {
		uid = cb.From.ID
		if cb.Message.Message != nil {
			chat = cb.Message.Message.Chat.ID
		}
	}
	return uid, chat
}
