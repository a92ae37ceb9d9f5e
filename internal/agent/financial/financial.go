// Package financial summarizes analyst recommendations and news for a stock
// ticker with a tool-using react agent.
package financial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	einoagent "github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/schema"

	"agenthub/internal/adapter/cache"
	"agenthub/internal/adapter/external/stocks"
	"agenthub/internal/agent"
	"agenthub/internal/metrics"
	"agenthub/internal/sanitize"
	"agenthub/pkg/retry"
)

// ErrNoContent is returned when the model answered with an empty message.
var ErrNoContent = errors.New("could not retrieve response content")

// Generator is the part of *react.Agent the summarizer needs.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...einoagent.AgentOption) (*schema.Message, error)
}

// Summary is one rendered answer.
type Summary struct {
	Ticker      string        `json:"ticker"`
	Markdown    string        `json:"markdown"`
	Elapsed     time.Duration `json:"elapsed"`
	GeneratedAt time.Time     `json:"generated_at"`
	Cached      bool          `json:"-"`
}

// Agent answers Summarize requests.
type Agent struct {
	gen      Generator
	caller   *retry.Caller
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// Option configures Agent.
type Option func(*Agent)

// WithCache stores summaries for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Agent) {
		if c != nil {
			a.cache = c
			a.cacheTTL = ttl
		}
	}
}

// WithMetrics records invocation durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithLogger sets logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates Agent. caller decides how rate-limited generations are retried.
func New(gen Generator, caller *retry.Caller, opts ...Option) *Agent {
	a := &Agent{
		gen:    gen,
		caller: caller,
		cache:  cache.Noop{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Prompt is the request sent to the agent for ticker.
func Prompt(ticker string) string {
	return fmt.Sprintf("Summarize analyst recommendation and share the latest news for %s", ticker)
}

// Summarize validates ticker, then returns a cached or freshly generated
// summary. notify receives a notice before every rate-limit retry.
func (a *Agent) Summarize(ctx context.Context, ticker string, notify agent.Notifier) (Summary, error) {
	sym, err := stocks.NormalizeSymbol(ticker)
	if err != nil {
		return Summary{}, err
	}
	log := a.log.With(slog.String("agent", agent.Financial), slog.String("ticker", sym))

	key := agent.Financial + ":" + sym
	var cached Summary
	ok, err := a.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn("cache get failed", slog.Any("error", err))
	}
	if a.metrics != nil {
		a.metrics.ObserveCache(agent.Financial, ok && err == nil)
	}
	if ok && err == nil {
		cached.Cached = true
		return cached, nil
	}

	start := a.now()
	if a.metrics != nil {
		defer a.metrics.ObserveAgent(agent.Financial, start)
	}

	msg, err := retry.Call(ctx, a.caller, func(ctx context.Context) (*schema.Message, error) {
		return a.gen.Generate(ctx, []*schema.Message{schema.UserMessage(Prompt(sym))})
	}, agent.OnRetry(notify))
	if err != nil {
		log.Error("summarize failed", slog.Any("error", err))
		return Summary{}, agent.CallError("error fetching data", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return Summary{}, agent.CallError("summarize "+sym, ErrNoContent)
	}

	s := Summary{
		Ticker:      sym,
		Markdown:    sanitize.Links(msg.Content),
		Elapsed:     a.now().Sub(start),
		GeneratedAt: start,
	}
	if err := a.cache.Set(ctx, key, s, a.cacheTTL); err != nil {
		log.Warn("cache set failed", slog.Any("error", err))
	}
	log.Info("summary generated", slog.Duration("elapsed", s.Elapsed))
	return s, nil
}
