package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/adapter/cache"
	"agenthub/internal/platform/logger"
)

type summary struct {
	Ticker   string `json:"ticker"`
	Markdown string `json:"markdown"`
}

func TestRedis_SetGet(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := cache.NewRedis(ctx, "redis://"+mr.Addr(), "agenthub:", logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	var got summary
	ok, err := c.Get(ctx, "fin:NVDA", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	want := summary{Ticker: "NVDA", Markdown: "| Rating | Count |"}
	require.NoError(t, c.Set(ctx, "fin:NVDA", want, time.Minute))
	assert.True(t, mr.Exists("agenthub:fin:NVDA"))

	ok, err = c.Get(ctx, "fin:NVDA", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, "fin:NVDA", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_UndecodableIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("p:k", "not json"))

	c, err := cache.NewRedis(ctx, "redis://"+mr.Addr(), "p:", logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	var got summary
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("p:k"))
}

func TestNewRedis_Errors(t *testing.T) {
	_, err := cache.NewRedis(context.Background(), "://bad", "", logger.Discard())
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = cache.NewRedis(context.Background(), "redis://"+addr, "", logger.Discard())
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var c cache.Cache = cache.Noop{}
	require.NoError(t, c.Set(context.Background(), "k", 1, time.Minute))
	ok, err := c.Get(context.Background(), "k", new(int))
	require.NoError(t, err)
	assert.False(t, ok)
}
