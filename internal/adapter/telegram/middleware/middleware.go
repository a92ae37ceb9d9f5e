package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-telegram/bot/models"

	"agenthub/internal/adapter/telegram"
)

// Middleware wraps telegram.HandlerFunc.
type Middleware func(telegram.HandlerFunc) telegram.HandlerFunc

// Chain applies middlewares in order.
func Chain(h telegram.HandlerFunc, mws ...Middleware) telegram.HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging logs every update with its handling time.
func Logging(log *slog.Logger) Middleware {
	return func(next telegram.HandlerFunc) telegram.HandlerFunc {
		return func(ctx context.Context, b telegram.Bot, upd *models.Update) {
			start := time.Now()
			next(ctx, b, upd)
			uid, chat := sender(upd)
			log.Debug("telegram update",
				slog.Int64("update", upd.ID),
				slog.Int64("user", uid),
				slog.Int64("chat", chat),
				slog.Duration("dur", time.Since(start)))
		}
	}
}
