package financial_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	einoagent "github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/adapter/cache"
	"agenthub/internal/adapter/external/stocks"
	"agenthub/internal/agent/financial"
	"agenthub/internal/metrics"
	"agenthub/internal/platform/logger"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

// scriptedGenerator returns the queued results in order.
type scriptedGenerator struct {
	results []genResult
	calls   int
	prompts []string
}

type genResult struct {
	msg *schema.Message
	err error
}

func (g *scriptedGenerator) Generate(_ context.Context, in []*schema.Message, _ ...einoagent.AgentOption) (*schema.Message, error) {
	g.prompts = append(g.prompts, in[len(in)-1].Content)
	r := g.results[g.calls]
	g.calls++
	return r.msg, r.err
}

func newCaller(t *testing.T, maxRetries int, opts ...retry.Option) *retry.Caller {
	t.Helper()
	opts = append([]retry.Option{
		retry.WithLogger(logger.Discard()),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
	}, opts...)
	c, err := retry.New(retry.Policy{MaxRetries: maxRetries, BaseDelay: time.Second, Multiplier: 2}, opts...)
	require.NoError(t, err)
	return c
}

func TestSummarize(t *testing.T) {
	gen := &scriptedGenerator{results: []genResult{
		{msg: schema.AssistantMessage("NVDA is a **buy**. Source: https://example.com/nvda?x=1 and www.bad.example", nil)},
	}}
	a := financial.New(gen, newCaller(t, 3), financial.WithLogger(logger.Discard()))

	s, err := a.Summarize(context.Background(), " nvda ", nil)
	require.NoError(t, err)
	assert.Equal(t, "NVDA", s.Ticker)
	assert.Contains(t, s.Markdown, "https://example.com/nvda?x=1")
	assert.Contains(t, s.Markdown, "#invalid-url")
	assert.NotContains(t, s.Markdown, "www.bad.example")
	assert.Equal(t, []string{"Summarize analyst recommendation and share the latest news for NVDA"}, gen.prompts)
}

func TestSummarize_EmptyTicker(t *testing.T) {
	gen := &scriptedGenerator{}
	a := financial.New(gen, newCaller(t, 3))
	_, err := a.Summarize(context.Background(), "  ", nil)
	require.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, "please enter a stock ticker", shared.Message(err))
	assert.Zero(t, gen.calls)
}

func TestSummarize_RetriesRateLimit(t *testing.T) {
	rl := errors.New("error, status code: 429, message: Rate limit reached")
	gen := &scriptedGenerator{results: []genResult{
		{err: rl}, {err: rl}, {err: rl},
		{msg: schema.AssistantMessage("ok", nil)},
	}}
	m := metrics.New()
	a := financial.New(gen, newCaller(t, 3, retry.WithObserver(m.RetryObserver("financial"))),
		financial.WithMetrics(m), financial.WithLogger(logger.Discard()))

	var notices []string
	s, err := a.Summarize(context.Background(), "AAPL", func(msg string) { notices = append(notices, msg) })
	require.NoError(t, err)
	assert.Equal(t, "ok", s.Markdown)
	assert.Equal(t, 4, gen.calls)
	require.Len(t, notices, 3)
	assert.Regexp(t, `^Rate limit exceeded\. Retrying in \d+\.\d{2} seconds\.\.\.$`, notices[0])
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RetryAttempts.WithLabelValues("financial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("financial", "success")))
}

func TestSummarize_Exhausted(t *testing.T) {
	rl := errors.New("rate_limit_exceeded")
	gen := &scriptedGenerator{results: []genResult{{err: rl}, {err: rl}, {err: rl}}}
	a := financial.New(gen, newCaller(t, 2), financial.WithLogger(logger.Discard()))

	_, err := a.Summarize(context.Background(), "AAPL", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Equal(t, shared.KindRateLimited, shared.KindOf(err))
	assert.Equal(t, 3, gen.calls)
}

func TestSummarize_FatalNotRetried(t *testing.T) {
	boom := errors.New("invalid api key")
	gen := &scriptedGenerator{results: []genResult{{err: boom}}}
	a := financial.New(gen, newCaller(t, 5), financial.WithLogger(logger.Discard()))

	_, err := a.Summarize(context.Background(), "AAPL", nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, shared.KindDependencyFailure, shared.KindOf(err))
	assert.Equal(t, 1, gen.calls)
}

func TestSummarize_EmptyContent(t *testing.T) {
	gen := &scriptedGenerator{results: []genResult{{msg: schema.AssistantMessage("   ", nil)}}}
	a := financial.New(gen, newCaller(t, 1), financial.WithLogger(logger.Discard()))

	_, err := a.Summarize(context.Background(), "AAPL", nil)
	require.ErrorIs(t, err, financial.ErrNoContent)
}

func TestSummarize_Cache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	rc, err := cache.NewRedis(ctx, "redis://"+mr.Addr(), "test:", logger.Discard())
	require.NoError(t, err)
	defer rc.Close()

	gen := &scriptedGenerator{results: []genResult{{msg: schema.AssistantMessage("fresh", nil)}}}
	m := metrics.New()
	a := financial.New(gen, newCaller(t, 1), financial.WithCache(rc, time.Minute),
		financial.WithMetrics(m), financial.WithLogger(logger.Discard()))

	first, err := a.Summarize(ctx, "msft", nil)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := a.Summarize(ctx, "MSFT", nil)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "fresh", second.Markdown)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("financial", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("financial", "hit")))
}

type fakeQuotes struct {
	q   stocks.Quote
	err error
}

func (f fakeQuotes) Quote(context.Context, string, int) (stocks.Quote, error) { return f.q, f.err }

func TestQuoteTool(t *testing.T) {
	ctx := context.Background()

	qt, err := financial.NewQuoteTool(fakeQuotes{q: stocks.Quote{Symbol: "NVDA", Price: 120}})
	require.NoError(t, err)
	info, err := qt.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "get_stock_quote", info.Name)

	out, err := qt.InvokableRun(ctx, `{"symbol":"NVDA"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"symbol":"NVDA"`)
	assert.Contains(t, out, `"price":120`)

	missing, err := financial.NewQuoteTool(fakeQuotes{err: shared.Validation(`"??" is not a valid ticker symbol`)})
	require.NoError(t, err)
	out, err = missing.InvokableRun(ctx, `{"symbol":"??"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "not a valid ticker symbol")

	broken, err := financial.NewQuoteTool(fakeQuotes{err: errors.New("unexpected status 429")})
	require.NoError(t, err)
	_, err = broken.InvokableRun(ctx, `{"symbol":"NVDA"}`)
	require.Error(t, err)
	assert.True(t, retry.IsRateLimited(err))
}
