package telegram

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Bot is the subset of *bot.Bot the handlers use.
type Bot interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
}

type ctxUpdate struct {
	ctx context.Context
	upd *models.Update
}

// HandlerFunc processes a single update.
type HandlerFunc func(ctx context.Context, b Bot, upd *models.Update)

// Dispatcher routes updates to worker goroutines keeping chat order: all
// updates of one chat are handled by the same worker, one at a time.
type Dispatcher struct {
	bot     Bot
	handler HandlerFunc
	workers int
	chans   []chan ctxUpdate
	log     *slog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates dispatcher with given worker count.
func NewDispatcher(b Bot, workers int, h HandlerFunc, log *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{bot: b, handler: h, workers: workers, chans: make([]chan ctxUpdate, workers), log: log}
	for i := 0; i < workers; i++ {
		d.chans[i] = make(chan ctxUpdate, 100)
		d.wg.Add(1)
		go d.worker(d.chans[i])
	}
	return d
}

// Dispatch sends update to appropriate worker based on chat ID.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *models.Update) {
	chatID := extractChatID(upd)
	idx := 0
	if chatID != 0 {
		idx = int(abs(chatID) % int64(d.workers))
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Debug("telegram update after stop", slog.Int64("chat", chatID))
		return
	}
	select {
	case d.chans[idx] <- ctxUpdate{ctx: ctx, upd: upd}:
	case <-ctx.Done():
		d.log.Warn("telegram update dropped", slog.Int64("chat", chatID), slog.Any("error", ctx.Err()))
	}
}

// Stop closes the queues and waits for in-flight updates. Updates dispatched
// afterwards are dropped.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.chans {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(in <-chan ctxUpdate) {
	defer d.wg.Done()
	for item := range in {
		d.handle(item)
	}
}

func (d *Dispatcher) handle(item ctxUpdate) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("telegram handler panic", slog.Int64("chat", extractChatID(item.upd)), slog.Any("panic", r))
		}
	}()
	d.handler(item.ctx, d.bot, item.upd)
}

func extractChatID(u *models.Update) int64 {
	if u.Message != nil {
		return u.Message.Chat.ID
	}
	if u.CallbackQuery != nil && u.CallbackQuery.Message.Message != nil {
		return u.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

func abs(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}
