package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"

	"agenthub/internal/platform/logger"
)

func TestDispatcher_KeepsChatOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	d := NewDispatcher(nil, 4, func(_ context.Context, _ Bot, upd *models.Update) {
		mu.Lock()
		got[upd.Message.Chat.ID] = append(got[upd.Message.Chat.ID], upd.Message.ID)
		mu.Unlock()
	}, logger.Discard())

	ctx := context.Background()
	for i := 1; i <= 50; i++ {
		for _, chat := range []int64{7, -12, 99} {
			d.Dispatch(ctx, &models.Update{Message: &models.Message{ID: i, Chat: models.Chat{ID: chat}}})
		}
	}
	d.Stop()

	for _, chat := range []int64{7, -12, 99} {
		ids := got[chat]
		assert.Len(t, ids, 50)
		for i := range ids {
			assert.Equal(t, i+1, ids[i])
		}
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	calls := 0
	d := NewDispatcher(nil, 1, func(_ context.Context, _ Bot, upd *models.Update) {
		calls++
		if upd.Message.ID == 1 {
			panic("boom")
		}
	}, logger.Discard())
	d.Dispatch(context.Background(), &models.Update{Message: &models.Message{ID: 1}})
	d.Dispatch(context.Background(), &models.Update{Message: &models.Message{ID: 2}})
	d.Stop()
	assert.Equal(t, 2, calls)
}

func TestDispatcher_DropsAfterStop(t *testing.T) {
	var n int32
	d := NewDispatcher(nil, 2, func(context.Context, Bot, *models.Update) { atomic.AddInt32(&n, 1) }, logger.Discard())
	d.Stop()
	d.Stop()

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), &models.Update{Message: &models.Message{Chat: models.Chat{ID: 1}}})
	})
	assert.Equal(t, int32(0), atomic.LoadInt32(&n))
}
