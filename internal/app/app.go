// Package app wires configuration, storage, SaaS adapters and agents into the
// dashboard server and the optional Telegram bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"agenthub/internal/adapter/cache"
	"agenthub/internal/adapter/external/gemini"
	"agenthub/internal/adapter/external/openai"
	"agenthub/internal/adapter/external/stocks"
	"agenthub/internal/adapter/scheduler"
	"agenthub/internal/adapter/telegram"
	"agenthub/internal/adapter/telegram/handlers"
	"agenthub/internal/adapter/telegram/middleware"
	"agenthub/internal/adapter/web"
	"agenthub/internal/agent"
	"agenthub/internal/agent/financial"
	"agenthub/internal/agent/pdf"
	"agenthub/internal/agent/video"
	"agenthub/internal/config"
	"agenthub/internal/metrics"
	"agenthub/internal/platform/httpclient"
	"agenthub/internal/platform/logger"
	"agenthub/internal/platform/pg"
	"agenthub/internal/render"
	"agenthub/internal/session"
	"agenthub/internal/shared"
	"agenthub/internal/storage/pgstore"
	"agenthub/internal/storage/sqlitestore"
	"agenthub/pkg/retry"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New loads configuration and builds the logger.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "agenthub",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.log }

// agents holds the configured agents; unconfigured ones stay nil.
type agents struct {
	financial   *financial.Agent
	pdf         *pdf.Assistant
	video       *video.Analyzer
	transcriber *openai.Transcriber
	sttCaller   *retry.Caller
}

// Run serves until SIGINT or SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting", slog.String("addr", a.cfg.HTTP.Addr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(a.cfg.Uploads.Dir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	c, closeCache, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	m := metrics.New()
	ag, err := a.buildAgents(ctx, store, c, m)
	if err != nil {
		return err
	}

	rate := middleware.NewRateLimiter(a.cfg.Telegram.RateLimit)
	sched := scheduler.New(ctx, scheduler.Config{
		Logger:   a.log.With(slog.String("component", "scheduler")),
		JobHooks: scheduler.JobHooks{OnJobFinish: m.ObserveJob},
	})
	if err := a.scheduleJobs(sched, store, rate); err != nil {
		return err
	}
	sched.Start()

	opts := web.Options{
		Store:        store,
		Renderer:     render.New(),
		Log:          a.log.With(slog.String("component", "web")),
		CookieName:   a.cfg.HTTP.CookieName,
		SecureCookie: a.cfg.HTTP.SecureCookie,
		SessionTTL:   a.cfg.Session.TTL,
		UploadDir:    a.cfg.Uploads.Dir,
		MaxUpload:    a.cfg.Uploads.MaxBytes,
		Metrics:      m.Handler(),
	}
	if ag.financial != nil {
		opts.Financial = ag.financial
	}
	if ag.pdf != nil {
		opts.PDF = ag.pdf
	}
	if ag.video != nil {
		opts.Video = ag.video
	}

	var stopBot func()
	if a.cfg.Telegram.Token != "" {
		webhook, stopFn, err := a.startBot(ctx, store, ag, rate)
		if err != nil {
			return err
		}
		opts.Webhook = webhook
		stopBot = stopFn
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           web.New(opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn("http shutdown", slog.Any("error", serr))
	}
	if stopBot != nil {
		stopBot()
	}
	if serr := sched.StopContext(shutdownCtx); serr != nil {
		a.log.Warn("scheduler shutdown", slog.Any("error", serr))
	}
	return err
}

func (a *App) openStore(ctx context.Context) (session.Store, error) {
	if dsn := a.cfg.Storage.DatabaseURL; dsn != "" {
		target, err := pg.ParseDSN(dsn)
		if err != nil {
			return nil, err
		}
		a.log.Info("using postgres storage", slog.String("db", target.String()))
		return pgstore.Open(ctx, dsn, a.log.With(slog.String("component", "pgstore")))
	}
	a.log.Info("using sqlite storage", slog.String("path", a.cfg.Storage.SQLitePath))
	return sqlitestore.Open(ctx, a.cfg.Storage.SQLitePath)
}

func (a *App) openCache(ctx context.Context) (cache.Cache, func(), error) {
	if a.cfg.Redis.URL == "" {
		return cache.Noop{}, func() {}, nil
	}
	r, err := cache.NewRedis(ctx, a.cfg.Redis.URL, "agenthub:", a.log.With(slog.String("component", "cache")))
	if err != nil {
		return nil, nil, err
	}
	return r, func() { _ = r.Close() }, nil
}

// caller builds the retrying caller of one agent.
func (a *App) caller(op string, m *metrics.Metrics) (*retry.Caller, error) {
	return retry.New(a.cfg.Retry,
		retry.WithLogger(a.log.With(slog.String("op", op))),
		retry.WithObserver(m.RetryObserver(op)),
	)
}

// buildAgents constructs every agent whose credentials are configured.
func (a *App) buildAgents(ctx context.Context, store session.Store, c cache.Cache, m *metrics.Metrics) (agents, error) {
	var ag agents
	client := httpclient.New(httpclient.WithLogger(a.log))

	openaiCM, err := openai.NewChatModel(ctx, openai.ChatConfig{
		Provider:   "openai",
		APIKey:     a.cfg.OpenAI.APIKey,
		BaseURL:    a.cfg.OpenAI.BaseURL,
		Model:      a.cfg.OpenAI.Model,
		HTTPClient: client.HTTPClient(),
	})
	switch {
	case shared.IsUnavailable(err):
		a.log.Warn("financial agent disabled", slog.Any("reason", err))
	case err != nil:
		return ag, err
	default:
		stockClient := httpclient.New(
			httpclient.WithLogger(a.log),
			httpclient.WithHeaders(map[string]string{"User-Agent": "Mozilla/5.0 (compatible; agenthub/1.0)"}),
		)
		quotes, err := financial.NewQuoteTool(stocks.New(stockClient, a.cfg.Stock.BaseURL))
		if err != nil {
			return ag, err
		}
		search, err := financial.NewSearchTool(ctx, a.cfg.Search.MaxResults, 15*time.Second)
		if err != nil {
			return ag, err
		}
		react, err := financial.NewReactAgent(ctx, openaiCM, search, quotes)
		if err != nil {
			return ag, err
		}
		caller, err := a.caller(agent.Financial, m)
		if err != nil {
			return ag, err
		}
		ag.financial = financial.New(react, caller,
			financial.WithCache(c, a.cfg.Redis.TTL),
			financial.WithMetrics(m),
			financial.WithLogger(a.log.With(slog.String("agent", agent.Financial))),
		)
	}

	groqCM, err := openai.NewChatModel(ctx, openai.ChatConfig{
		Provider:   "groq",
		APIKey:     a.cfg.Groq.APIKey,
		BaseURL:    a.cfg.Groq.BaseURL,
		Model:      a.cfg.Groq.Model,
		HTTPClient: client.HTTPClient(),
	})
	switch {
	case shared.IsUnavailable(err):
		a.log.Warn("pdf assistant disabled", slog.Any("reason", err))
	case err != nil:
		return ag, err
	default:
		parser, err := pdf.NewParser(ctx)
		if err != nil {
			return ag, err
		}
		caller, err := a.caller(agent.PDF, m)
		if err != nil {
			return ag, err
		}
		ag.pdf = pdf.New(store, parser, groqCM, caller, pdf.DefaultOptions(), m,
			a.log.With(slog.String("agent", agent.PDF)))
	}

	geminiClient := httpclient.New(
		httpclient.WithLogger(a.log),
		httpclient.WithTimeout(a.cfg.Gemini.ProcessTimeout),
	)
	files, err := gemini.New(geminiClient, a.cfg.Gemini.BaseURL, a.cfg.Gemini.APIKey, a.cfg.Gemini.Model, a.cfg.Gemini.PollInterval)
	switch {
	case shared.IsUnavailable(err):
		a.log.Warn("video analyzer disabled", slog.Any("reason", err))
	case err != nil:
		return ag, err
	default:
		caller, err := a.caller(agent.Video, m)
		if err != nil {
			return ag, err
		}
		ag.video = video.New(files, caller, a.cfg.Gemini.ProcessTimeout, m,
			a.log.With(slog.String("agent", agent.Video)))
	}

	tr, err := openai.NewTranscriber(client, openai.TranscriberConfig{
		APIKey:  a.cfg.OpenAI.APIKey,
		BaseURL: a.cfg.OpenAI.BaseURL,
		Model:   a.cfg.OpenAI.STTModel,
	})
	switch {
	case shared.IsUnavailable(err):
		a.log.Warn("voice questions disabled", slog.Any("reason", err))
	case err != nil:
		return ag, err
	default:
		ag.transcriber = tr
		if ag.sttCaller, err = a.caller("transcription", m); err != nil {
			return ag, err
		}
	}
	return ag, nil
}

func (a *App) scheduleJobs(s *scheduler.Scheduler, store session.Store, rate *middleware.RateLimiter) error {
	log := a.log.With(slog.String("component", "jobs"))
	jobs := []struct {
		spec string
		job  scheduler.JobFunc
		opts scheduler.JobOptions
	}{
		{"@every 10m", scheduler.UploadJanitor(a.cfg.Uploads.Dir, a.cfg.Uploads.TTL, log),
			scheduler.JobOptions{Name: "upload-janitor", Timeout: 5 * time.Minute, OverlapPolicy: scheduler.SkipIfRunning}},
		{"@hourly", scheduler.SessionPruner(store, a.cfg.Session.TTL, log),
			scheduler.JobOptions{Name: "session-pruner", Timeout: 5 * time.Minute, OverlapPolicy: scheduler.SkipIfRunning}},
		{"@every 10m", scheduler.PruneJob(rate),
			scheduler.JobOptions{Name: "ratelimit-prune", OverlapPolicy: scheduler.SkipIfRunning}},
	}
	for _, j := range jobs {
		if _, err := s.Add(j.spec, j.job, j.opts); err != nil {
			return err
		}
	}
	return nil
}

// startBot starts the Telegram bot. In webhook mode the returned handler
// must be mounted by the web server; in polling mode it is nil.
func (a *App) startBot(ctx context.Context, store session.Store, ag agents, rate *middleware.RateLimiter) (http.Handler, func(), error) {
	log := a.log.With(slog.String("component", "telegram"))
	tgClient := httpclient.New(
		httpclient.WithLogger(log),
		httpclient.WithURLRedactor(telegram.RedactToken),
	)
	deps := handlers.Deps{
		Store:      store,
		Downloader: telegram.NewDownloader(tgClient, a.cfg.Telegram.Token, a.cfg.Telegram.MaxFileBytes),
		Log:        log,
	}
	if ag.financial != nil {
		deps.Financial = ag.financial
	}
	if ag.pdf != nil {
		deps.PDF = ag.pdf
	}
	if ag.transcriber != nil {
		deps.Transcriber = ag.transcriber
		deps.Caller = ag.sttCaller
	}
	h := middleware.Chain(handlers.New(deps).Handle,
		middleware.Logging(log),
		middleware.NewACL(a.cfg.Telegram.AllowedIDs).Middleware,
		rate.Middleware,
	)

	var disp *telegram.Dispatcher
	opts := []bot.Option{
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, upd *models.Update) {
			disp.Dispatch(ctx, upd)
		}),
		bot.WithAllowedUpdates([]string{"message", "callback_query"}),
	}
	if a.cfg.Telegram.WebhookSecret != "" {
		opts = append(opts, bot.WithWebhookSecretToken(a.cfg.Telegram.WebhookSecret))
	}
	b, err := bot.New(a.cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram bot: %w", err)
	}
	disp = telegram.NewDispatcher(b, a.cfg.Telegram.Workers, h, log)

	if a.cfg.Telegram.WebhookURL != "" {
		if _, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         a.cfg.Telegram.WebhookURL,
			SecretToken: a.cfg.Telegram.WebhookSecret,
		}); err != nil {
			return nil, nil, fmt.Errorf("set telegram webhook: %w", err)
		}
		go b.StartWebhook(ctx)
		log.Info("telegram bot started", slog.String("mode", "webhook"))
		return b.WebhookHandler(), disp.Stop, nil
	}

	go b.Start(ctx)
	log.Info("telegram bot started", slog.String("mode", "polling"))
	return nil, disp.Stop, nil
}
