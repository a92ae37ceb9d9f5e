package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"agenthub/internal/adapter/telegram"
)

// RateLimiter restricts request frequency per user.
type RateLimiter struct {
	mu   sync.Mutex
	last map[int64]time.Time
	rate time.Duration
	now  func() time.Time
}

// NewRateLimiter creates limiter with given rate.
func NewRateLimiter(rate time.Duration) *RateLimiter {
	return &RateLimiter{last: make(map[int64]time.Time), rate: rate, now: time.Now}
}

// Allow returns false if user hits the limit.
func (r *RateLimiter) Allow(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if t, ok := r.last[userID]; ok && now.Sub(t) < r.rate {
		return false
	}
	r.last[userID] = now
	return true
}

// Prune forgets users idle for longer than the rate.
func (r *RateLimiter) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for id, t := range r.last {
		if now.Sub(t) >= r.rate {
			delete(r.last, id)
			n++
		}
	}
	return n
}

// Middleware checks rate limit before calling next handler.
func (r *RateLimiter) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, b telegram.Bot, upd *models.Update) {
		uid, chat := sender(upd)
		if uid != 0 && !r.Allow(uid) {
			if chat != 0 && b != nil {
				_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chat,
					Text:   "Too many requests, please slow down.",
				})
			}
			return
		}
		next(ctx, b, upd)
	}
}
