// Package pdf answers questions about an uploaded PDF. Documents are parsed
// once, split into chunks and stored; each question is answered from the
// best matching chunks plus the recent history of the user's run.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"agenthub/internal/agent"
	"agenthub/internal/metrics"
	"agenthub/internal/sanitize"
	"agenthub/internal/session"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

// ErrNoContent is returned when the model answered with an empty message.
var ErrNoContent = errors.New("could not retrieve response content")

// Instructions frame every answer.
const Instructions = `You answer questions about a PDF document the user uploaded.
Use the excerpts below as your knowledge base and the earlier conversation for context.
If the excerpts do not contain the answer, say so instead of guessing.
Answer in markdown.`

// ChatModel is the part of an eino chat model the assistant needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Options tune chunking and retrieval.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	HistoryLimit int
}

// DefaultOptions returns 1000-byte chunks, 4 excerpts and 10 history messages.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, ChunkOverlap: 200, TopK: 4, HistoryLimit: 10}
}

// Answer is the result of Ask.
type Answer struct {
	RunID    string
	NewRun   bool
	Markdown string
	// Sources are the indexes of the chunks given to the model.
	Sources []int
	Elapsed time.Duration
}

// RunNotice reports whether the run was started or continued.
func (a Answer) RunNotice() string {
	if a.NewRun {
		return "Started Run: " + a.RunID
	}
	return "Continuing Run: " + a.RunID
}

// Assistant implements Load, Ask and Reset.
type Assistant struct {
	store   session.Store
	parser  parser.Parser
	chat    ChatModel
	caller  *retry.Caller
	opts    Options
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates Assistant. metrics may be nil.
func New(store session.Store, p parser.Parser, chat ChatModel, caller *retry.Caller, opts Options, m *metrics.Metrics, log *slog.Logger) *Assistant {
	d := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = d.ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.TopK <= 0 {
		opts.TopK = d.TopK
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assistant{
		store:   store,
		parser:  p,
		chat:    chat,
		caller:  caller,
		opts:    opts,
		metrics: m,
		log:     log.With(slog.String("agent", agent.PDF)),
		now:     time.Now,
	}
}

// Load parses the PDF read from r, stores it and attaches it to sess. The
// updated session is persisted.
func (a *Assistant) Load(ctx context.Context, sess *session.Session, name string, r io.Reader) (session.Document, int, error) {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return session.Document{}, 0, shared.Validation("please upload a PDF file")
	}
	docs, err := a.parser.Parse(ctx, r, parser.WithURI(name))
	if err != nil {
		return session.Document{}, 0, shared.MarkKind(fmt.Errorf("error loading PDF: %w", err), shared.KindValidation)
	}

	doc := session.Document{ID: uuid.NewString(), Name: filepath.Base(name), CreatedAt: a.now().UTC()}
	var chunks []session.Chunk
	for _, d := range docs {
		if d == nil {
			continue
		}
		// pages are split separately so no chunk spans a page break
		for _, text := range Split(d.Content, a.opts.ChunkSize, a.opts.ChunkOverlap) {
			chunks = append(chunks, session.Chunk{DocumentID: doc.ID, Index: len(chunks), Content: text})
		}
	}
	if len(chunks) == 0 {
		return session.Document{}, 0, shared.Validation("no text could be extracted from the PDF")
	}

	if err := a.store.SaveDocument(ctx, doc, chunks); err != nil {
		return session.Document{}, 0, shared.Wrap(err, "save document")
	}
	sess.AttachDocument(doc.ID, doc.Name)
	sess.UpdatedAt = a.now().UTC()
	if err := a.store.SaveSession(ctx, *sess); err != nil {
		return session.Document{}, 0, shared.Wrap(err, "save session")
	}
	a.log.Info("pdf loaded", slog.String("document", doc.ID), slog.String("name", doc.Name),
		slog.Int("pages", len(docs)), slog.Int("chunks", len(chunks)))
	return doc, len(chunks), nil
}

// Reset detaches the loaded document from sess.
func (a *Assistant) Reset(ctx context.Context, sess *session.Session) error {
	sess.DetachDocument()
	sess.UpdatedAt = a.now().UTC()
	return shared.Wrap(a.store.SaveSession(ctx, *sess), "save session")
}

// Ask answers question from the document loaded into sess. The user's most
// recent run is continued when there is one.
func (a *Assistant) Ask(ctx context.Context, sess *session.Session, question string, notify agent.Notifier) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, shared.Validation("please enter a question")
	}
	if !sess.HasDocument() {
		return Answer{}, shared.Validation("please upload a PDF file to get started")
	}

	start := a.now()
	if a.metrics != nil {
		defer a.metrics.ObserveAgent(agent.PDF, start)
	}

	ans := Answer{}
	run, isNew, err := a.resolveRun(ctx, sess)
	if err != nil {
		return Answer{}, err
	}
	ans.RunID, ans.NewRun = run.ID, isNew

	chunks, err := a.store.Chunks(ctx, sess.DocumentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// the document was pruned underneath the session
			_ = a.Reset(ctx, sess)
			return Answer{}, shared.Validation("the uploaded PDF has expired, please upload it again")
		}
		return Answer{}, shared.Wrap(err, "load chunks")
	}
	excerpts := Retrieve(chunks, question, a.opts.TopK)
	for _, c := range excerpts {
		ans.Sources = append(ans.Sources, c.Index)
	}

	var history []session.Message
	if a.opts.HistoryLimit > 0 {
		if history, err = a.store.RecentMessages(ctx, run.ID, a.opts.HistoryLimit); err != nil {
			return Answer{}, shared.Wrap(err, "load history")
		}
	}

	input := buildMessages(sess.DocumentName, excerpts, history, question)
	msg, err := retry.Call(ctx, a.caller, func(ctx context.Context) (*schema.Message, error) {
		return a.chat.Generate(ctx, input)
	}, agent.OnRetry(notify))
	if err != nil {
		a.log.Error("ask failed", slog.String("run", run.ID), slog.Any("error", err))
		return ans, agent.CallError("error answering question", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return ans, agent.CallError("answer", ErrNoContent)
	}
	ans.Markdown = sanitize.Links(msg.Content)

	now := a.now().UTC()
	if err := a.store.AppendMessages(ctx,
		session.Message{RunID: run.ID, Role: session.RoleUser, Content: question, CreatedAt: now},
		session.Message{RunID: run.ID, Role: session.RoleAssistant, Content: msg.Content, CreatedAt: now},
	); err != nil {
		a.log.Warn("save run messages failed", slog.String("run", run.ID), slog.Any("error", err))
	}
	ans.Elapsed = a.now().Sub(start)
	return ans, nil
}

// resolveRun returns the session's run, else the user's latest run, else a
// new one. The session is saved when its run changes.
func (a *Assistant) resolveRun(ctx context.Context, sess *session.Session) (session.Run, bool, error) {
	if sess.RunID != "" {
		return session.Run{ID: sess.RunID, UserID: sess.UserID}, false, nil
	}

	run, err := a.store.LatestRun(ctx, sess.UserID)
	isNew := false
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNotFound):
		run = session.Run{ID: uuid.NewString(), UserID: sess.UserID, CreatedAt: a.now().UTC()}
		if err := a.store.CreateRun(ctx, run); err != nil {
			return session.Run{}, false, shared.Wrap(err, "create run")
		}
		isNew = true
	default:
		return session.Run{}, false, shared.Wrap(err, "load run")
	}

	sess.RunID = run.ID
	sess.UpdatedAt = a.now().UTC()
	if err := a.store.SaveSession(ctx, *sess); err != nil {
		return session.Run{}, false, shared.Wrap(err, "save session")
	}
	if isNew {
		a.log.Info("run started", slog.String("run", run.ID), slog.String("user", sess.UserID))
	}
	return run, isNew, nil
}

func buildMessages(docName string, excerpts []session.Chunk, history []session.Message, question string) []*schema.Message {
	var sb strings.Builder
	sb.WriteString(Instructions)
	fmt.Fprintf(&sb, "\n\nDocument: %s\n", docName)
	for _, c := range excerpts {
		fmt.Fprintf(&sb, "\n[excerpt %d]\n%s\n", c.Index+1, c.Content)
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(sb.String()))
	for _, m := range history {
		switch m.Role {
		case session.RoleUser:
			msgs = append(msgs, schema.UserMessage(m.Content))
		case session.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		}
	}
	return append(msgs, schema.UserMessage(question))
}
