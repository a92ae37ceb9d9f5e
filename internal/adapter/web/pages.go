package web

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"agenthub/internal/agent/video"
	"agenthub/internal/session"
	"agenthub/internal/shared"
)

type navItem struct {
	Path  string
	Label string
}

var agents = []navItem{
	{"/video", "Video Analyzer"},
	{"/financial", "Financial Agent"},
	{"/pdf", "PDF Assistant"},
}

// Notice levels match CSS classes.
const (
	levelInfo    = "info"
	levelSuccess = "success"
	levelWarning = "warning"
	levelError   = "error"
)

type notice struct {
	Level string
	Text  string
}

type page struct {
	Title     string
	Header    string
	Path      string
	Agents    []navItem
	Theme     session.Theme
	Available bool
	Notices   []notice
	Result    template.HTML
	Form      map[string]string
	Session   *session.Session
	Extra     map[string]any
}

// notices collects progress messages from an agent call. Agents may notify
// from their own goroutines.
type notices struct {
	mu    sync.Mutex
	items []notice
}

func (n *notices) add(level, text string) {
	n.mu.Lock()
	n.items = append(n.items, notice{Level: level, Text: text})
	n.mu.Unlock()
}

func (n *notices) warn(msg string) { n.add(levelWarning, msg) }

func (n *notices) list() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.items...)
}

func (s *Server) newPage(c *gin.Context, path, header string, available bool) *page {
	sess := currentSession(c)
	return &page{
		Title:     "AI Agent Hub",
		Header:    header,
		Path:      path,
		Agents:    agents,
		Theme:     sess.Theme,
		Available: available,
		Form:      map[string]string{},
		Session:   sess,
		Extra:     map[string]any{},
	}
}

func (s *Server) render(c *gin.Context, status int, tmpl string, p *page) {
	c.HTML(status, tmpl, p)
}

func (s *Server) markdown(md string) template.HTML {
	out, err := s.opts.Renderer.Markdown(md)
	if err != nil {
		s.log.Warn("render markdown", slog.Any("error", err))
		return template.HTML("<pre>" + template.HTMLEscapeString(md) + "</pre>")
	}
	return out
}

// fail renders p with err as an error notice and the matching status.
func (s *Server) fail(c *gin.Context, tmpl string, p *page, n *notices, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("agent request failed", slog.String("path", p.Path), slog.Int("status", status), slog.Any("error", err))
	}
	p.Notices = append(n.list(), notice{Level: levelError, Text: userMessage(err)})
	s.render(c, status, tmpl, p)
}

func unavailable(name string) error {
	return fmt.Errorf("%s agent: %w", name, shared.ErrUnavailable)
}

// video

func (s *Server) videoPage(c *gin.Context) {
	p := s.newPage(c, "/video", "🎥 Video AI Analyzer", s.opts.Video != nil)
	p.Extra["Samples"] = video.SampleQueries
	p.Extra["Accept"] = strings.Join(video.Extensions(), ",")
	if !p.Available {
		p.Notices = append(p.Notices, notice{levelWarning, userMessage(unavailable("video"))})
	} else {
		p.Notices = append(p.Notices, notice{levelInfo, "👆 Upload a video to get started!"})
	}
	s.render(c, http.StatusOK, "video.html", p)
}

func (s *Server) analyzeVideo(c *gin.Context) {
	p := s.newPage(c, "/video", "🎥 Video AI Analyzer", s.opts.Video != nil)
	p.Extra["Samples"] = video.SampleQueries
	p.Extra["Accept"] = strings.Join(video.Extensions(), ",")
	n := &notices{}
	if !p.Available {
		s.fail(c, "video.html", p, n, unavailable("video"))
		return
	}

	query := c.PostForm("query")
	p.Form["query"] = query
	fh, err := c.FormFile("video")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = shared.Validation("please upload a video")
		}
		s.fail(c, "video.html", p, n, err)
		return
	}
	if _, ok := video.MimeType(fh.Filename); !ok {
		s.fail(c, "video.html", p, n, shared.Validation("unsupported video format, use MP4, AVI, MOV or MKV"))
		return
	}
	if fh.Size > s.opts.MaxUpload {
		s.fail(c, "video.html", p, n, shared.Validation(fmt.Sprintf("videos must be under %d MB", s.opts.MaxUpload>>20)))
		return
	}

	tmp := filepath.Join(s.opts.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		s.fail(c, "video.html", p, n, shared.Wrap(err, "upload dir"))
		return
	}
	if err := c.SaveUploadedFile(fh, tmp); err != nil {
		s.fail(c, "video.html", p, n, shared.Wrap(err, "save upload"))
		return
	}

	res, err := s.opts.Video.Analyze(c.Request.Context(), video.Request{Path: tmp, Filename: fh.Filename, Query: query}, n.warn)
	if err != nil {
		s.fail(c, "video.html", p, n, err)
		return
	}
	p.Notices = n.list()
	p.Extra["GenerationTime"] = fmt.Sprintf("%.2f", res.GenerationTime.Seconds())
	if res.Warning != "" {
		p.Notices = append(p.Notices, notice{levelWarning, "⚠️ " + res.Warning})
	} else {
		p.Result = s.markdown(res.Markdown)
	}
	s.render(c, http.StatusOK, "video.html", p)
}

// financial

func (s *Server) financialPage(c *gin.Context) {
	p := s.newPage(c, "/financial", "📈 Financial Agent", s.opts.Financial != nil)
	if !p.Available {
		p.Notices = append(p.Notices, notice{levelWarning, userMessage(unavailable("financial"))})
	}
	s.render(c, http.StatusOK, "financial.html", p)
}

func (s *Server) summarize(c *gin.Context) {
	p := s.newPage(c, "/financial", "📈 Financial Agent", s.opts.Financial != nil)
	n := &notices{}
	if !p.Available {
		s.fail(c, "financial.html", p, n, unavailable("financial"))
		return
	}
	ticker := c.PostForm("ticker")
	p.Form["ticker"] = ticker

	sum, err := s.opts.Financial.Summarize(c.Request.Context(), ticker, n.warn)
	if err != nil {
		s.fail(c, "financial.html", p, n, err)
		return
	}
	p.Notices = n.list()
	p.Form["ticker"] = sum.Ticker
	p.Extra["Elapsed"] = fmt.Sprintf("%.2f", sum.Elapsed.Seconds())
	p.Extra["Cached"] = sum.Cached
	p.Result = s.markdown(sum.Markdown)
	s.render(c, http.StatusOK, "financial.html", p)
}

// pdf

func (s *Server) pdfPage(c *gin.Context) {
	p := s.newPage(c, "/pdf", "📄 PDF Assistant", s.opts.PDF != nil)
	switch {
	case !p.Available:
		p.Notices = append(p.Notices, notice{levelWarning, userMessage(unavailable("pdf"))})
	case !p.Session.HasDocument():
		p.Notices = append(p.Notices, notice{levelInfo, "Please upload a PDF file to get started."})
	}
	s.render(c, http.StatusOK, "pdf.html", p)
}

func (s *Server) uploadPDF(c *gin.Context) {
	p := s.newPage(c, "/pdf", "📄 PDF Assistant", s.opts.PDF != nil)
	n := &notices{}
	if !p.Available {
		s.fail(c, "pdf.html", p, n, unavailable("pdf"))
		return
	}
	fh, err := c.FormFile("pdf")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			err = shared.Validation("please upload a PDF file")
		}
		s.fail(c, "pdf.html", p, n, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, "pdf.html", p, n, shared.Wrap(err, "open upload"))
		return
	}
	defer f.Close()

	doc, chunks, err := s.opts.PDF.Load(c.Request.Context(), p.Session, fh.Filename, f)
	if err != nil {
		s.fail(c, "pdf.html", p, n, err)
		return
	}
	p.Notices = append(p.Notices, notice{levelSuccess,
		fmt.Sprintf("PDF Knowledge Base initialized! %s (%d passages)", doc.Name, chunks)})
	s.render(c, http.StatusOK, "pdf.html", p)
}

func (s *Server) askPDF(c *gin.Context) {
	p := s.newPage(c, "/pdf", "📄 PDF Assistant", s.opts.PDF != nil)
	n := &notices{}
	if !p.Available {
		s.fail(c, "pdf.html", p, n, unavailable("pdf"))
		return
	}
	question := c.PostForm("question")
	p.Form["question"] = question

	ans, err := s.opts.PDF.Ask(c.Request.Context(), p.Session, question, n.warn)
	if ans.RunID != "" {
		p.Extra["RunNotice"] = ans.RunNotice()
	}
	if err != nil {
		s.fail(c, "pdf.html", p, n, err)
		return
	}
	p.Notices = n.list()
	p.Result = s.markdown(ans.Markdown)
	s.render(c, http.StatusOK, "pdf.html", p)
}

func (s *Server) resetPDF(c *gin.Context) {
	if s.opts.PDF != nil {
		if err := s.opts.PDF.Reset(c.Request.Context(), currentSession(c)); err != nil {
			s.log.Warn("reset pdf", slog.Any("error", err))
		}
	}
	c.Redirect(http.StatusSeeOther, "/pdf")
}
