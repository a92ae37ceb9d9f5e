// Package web serves the dashboard: one page per agent, a theme switch and
// the operational endpoints.
package web

import (
	"context"
	"embed"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agenthub/internal/agent"
	"agenthub/internal/agent/financial"
	"agenthub/internal/agent/pdf"
	"agenthub/internal/agent/video"
	"agenthub/internal/render"
	"agenthub/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// FinancialAgent summarizes a ticker.
type FinancialAgent interface {
	Summarize(ctx context.Context, ticker string, notify agent.Notifier) (financial.Summary, error)
}

// PDFAssistant answers questions about an uploaded PDF.
type PDFAssistant interface {
	Load(ctx context.Context, sess *session.Session, name string, r io.Reader) (session.Document, int, error)
	Ask(ctx context.Context, sess *session.Session, question string, notify agent.Notifier) (pdf.Answer, error)
	Reset(ctx context.Context, sess *session.Session) error
}

// VideoAnalyzer analyzes an uploaded video.
type VideoAnalyzer interface {
	Analyze(ctx context.Context, req video.Request, notify agent.Notifier) (video.Result, error)
}

// Options configure Server. A nil agent is shown as not configured.
type Options struct {
	Store     session.Store
	Financial FinancialAgent
	PDF       PDFAssistant
	Video     VideoAnalyzer
	Renderer  *render.Renderer
	Log       *slog.Logger

	CookieName   string
	SecureCookie bool
	SessionTTL   time.Duration
	UploadDir    string
	MaxUpload    int64

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Webhook is mounted at POST /telegram/webhook when set.
	Webhook http.Handler
}

// Server holds the dashboard handlers.
type Server struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time
}

// New creates Server.
func New(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Renderer == nil {
		opts.Renderer = render.New()
	}
	if opts.CookieName == "" {
		opts.CookieName = "agenthub_session"
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * 24 * time.Hour
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 200 << 20
	}
	return &Server{opts: opts, log: opts.Log, now: time.Now}
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())
	r.MaxMultipartMemory = 32 << 20
	r.SetHTMLTemplate(template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")))

	r.GET("/healthz", s.healthz)
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
	if s.opts.Webhook != nil {
		r.POST("/telegram/webhook", gin.WrapH(s.opts.Webhook))
	}

	pages := r.Group("/", s.sessions())
	pages.GET("/", func(c *gin.Context) { c.Redirect(http.StatusSeeOther, "/video") })
	pages.POST("/theme", s.setTheme)

	pages.GET("/video", s.videoPage)
	pages.POST("/video", s.limitBody(), s.analyzeVideo)

	pages.GET("/financial", s.financialPage)
	pages.POST("/financial", s.summarize)

	pages.GET("/pdf", s.pdfPage)
	pages.POST("/pdf/upload", s.limitBody(), s.uploadPDF)
	pages.POST("/pdf/ask", s.askPDF)
	pages.POST("/pdf/reset", s.resetPDF)
	return r
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.opts.Store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("dur", time.Since(start)))
	}
}

// limitBody caps the request body at MaxUpload plus room for form fields.
func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.opts.MaxUpload + 1<<20
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.String(http.StatusRequestEntityTooLarge, "the upload is too large")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
