// Package video analyzes uploaded videos with a multimodal model.
package video

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agenthub/internal/adapter/external/gemini"
	"agenthub/internal/agent"
	"agenthub/internal/metrics"
	"agenthub/internal/sanitize"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

// EmptyWarning is shown when the model returned no text.
const EmptyWarning = "No insights could be generated for this video (empty response)."

// SampleQueries are offered next to the upload form.
var SampleQueries = []string{
	"Summarize the main events in this video",
	"What are the key messages conveyed?",
	"Describe the visual style and transitions",
	"Analyze the tone and mood of the video",
}

var mimeTypes = map[string]string{
	".mp4": "video/mp4",
	".avi": "video/x-msvideo",
	".mov": "video/quicktime",
	".mkv": "video/x-matroska",
}

// Extensions lists the accepted file extensions.
func Extensions() []string { return []string{".mp4", ".avi", ".mov", ".mkv"} }

// MimeType returns the content type for a supported file name.
func MimeType(name string) (string, bool) {
	mt, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]
	return mt, ok
}

// Prompt builds the structured analysis request for query.
func Prompt(query string) string {
	return fmt.Sprintf(`Please analyze this video and provide insights for the following query:

QUERY: %s

Please structure your response as follows:
1. 📝 Video Description: A detailed overview of what you observe
2. 🎯 Analysis: Specific answers to the query
3. 🔍 Additional Insights: Any relevant context or observations`, query)
}

// Files is the Gemini Files API plus generation.
type Files interface {
	Upload(ctx context.Context, displayName, mimeType string, size int64, r io.Reader) (gemini.File, error)
	WaitActive(ctx context.Context, f gemini.File) (gemini.File, error)
	GenerateContent(ctx context.Context, f gemini.File, prompt string) (string, error)
	DeleteFile(ctx context.Context, name string) error
}

// Request is one analysis. Path is a temporary file owned by the analyzer
// from the moment Analyze is called.
type Request struct {
	Path     string
	Filename string
	Query    string
}

// Result of an analysis. Warning is set instead of Markdown when the model
// produced nothing.
type Result struct {
	Markdown       string
	Warning        string
	GenerationTime time.Duration
}

// Analyzer runs video analyses.
type Analyzer struct {
	files          Files
	caller         *retry.Caller
	processTimeout time.Duration
	metrics        *metrics.Metrics
	log            *slog.Logger
}

// New creates Analyzer. processTimeout bounds the wait for the upload to
// become ACTIVE. metrics may be nil.
func New(files Files, caller *retry.Caller, processTimeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Analyzer {
	if processTimeout <= 0 {
		processTimeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		files:          files,
		caller:         caller,
		processTimeout: processTimeout,
		metrics:        m,
		log:            log.With(slog.String("agent", agent.Video)),
	}
}

// Analyze uploads the video, waits for processing and asks the model about
// it. The temporary file and the remote copy are always removed.
func (a *Analyzer) Analyze(ctx context.Context, req Request, notify agent.Notifier) (Result, error) {
	defer func() {
		if err := os.Remove(req.Path); err != nil && !os.IsNotExist(err) {
			a.log.Warn("remove temp video", slog.String("path", req.Path), slog.Any("error", err))
		}
	}()

	mimeType, ok := MimeType(req.Filename)
	if !ok {
		return Result{}, shared.Validation("unsupported video format, use MP4, AVI, MOV or MKV")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, shared.Validation("please provide a question or topic to analyze")
	}

	st, err := os.Stat(req.Path)
	if err != nil {
		return Result{}, shared.Wrap(err, "stat upload")
	}
	if st.Size() == 0 {
		return Result{}, shared.Validation("the uploaded video is empty")
	}

	if a.metrics != nil {
		defer a.metrics.ObserveAgent(agent.Video, time.Now())
	}

	onRetry := agent.OnRetry(notify)
	f, err := retry.Call(ctx, a.caller, func(ctx context.Context) (gemini.File, error) {
		fh, err := os.Open(req.Path)
		if err != nil {
			return gemini.File{}, err
		}
		defer fh.Close()
		return a.files.Upload(ctx, filepath.Base(req.Filename), mimeType, st.Size(), fh)
	}, onRetry)
	if err != nil {
		return Result{}, agent.CallError("processing error: upload", err)
	}
	defer a.deleteRemote(f.Name)
	notify.Notify("upload processed")

	wctx, cancel := context.WithTimeout(ctx, a.processTimeout)
	f, err = retry.Call(wctx, a.caller, func(ctx context.Context) (gemini.File, error) {
		return a.files.WaitActive(ctx, f)
	}, onRetry)
	cancel()
	if err != nil {
		return Result{}, agent.CallError("processing error", err)
	}

	start := time.Now()
	text, err := retry.Call(ctx, a.caller, func(ctx context.Context) (string, error) {
		return a.files.GenerateContent(ctx, f, Prompt(query))
	}, onRetry)
	res := Result{GenerationTime: time.Since(start)}
	if err != nil {
		return Result{}, agent.CallError("processing error", err)
	}
	if strings.TrimSpace(text) == "" {
		res.Warning = EmptyWarning
		a.log.Warn("empty analysis", slog.String("file", f.Name))
		return res, nil
	}
	res.Markdown = sanitize.Links(text)
	a.log.Info("video analyzed", slog.String("file", f.Name), slog.Int64("bytes", st.Size()),
		slog.Duration("generation", res.GenerationTime))
	return res, nil
}

func (a *Analyzer) deleteRemote(name string) {
	if name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.files.DeleteFile(ctx, name); err != nil {
		a.log.Warn("delete remote video", slog.String("file", name), slog.Any("error", err))
	}
}
