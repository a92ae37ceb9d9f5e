// Package handlers answers Telegram updates with the dashboard agents: the
// financial summary by command, the PDF assistant by document upload, text
// questions and voice questions.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"agenthub/internal/adapter/telegram"
	"agenthub/internal/agent"
	"agenthub/internal/agent/financial"
	"agenthub/internal/agent/pdf"
	"agenthub/internal/session"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

// maxMessage keeps replies under Telegram's 4096 character limit.
const maxMessage = 4000

const helpText = `Commands:
/ticker SYMBOL - analyst recommendations and latest news for a stock
/reset - forget the loaded PDF
/ping - check the bot is alive

Send a PDF to load it, then ask questions about it as text or voice.`

// FinancialAgent summarizes a ticker.
type FinancialAgent interface {
	Summarize(ctx context.Context, ticker string, notify agent.Notifier) (financial.Summary, error)
}

// PDFAssistant answers questions about a loaded PDF.
type PDFAssistant interface {
	Load(ctx context.Context, sess *session.Session, name string, r io.Reader) (session.Document, int, error)
	Ask(ctx context.Context, sess *session.Session, question string, notify agent.Notifier) (pdf.Answer, error)
	Reset(ctx context.Context, sess *session.Session) error
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

// Downloader fetches files attached to messages.
type Downloader interface {
	Download(ctx context.Context, b telegram.Bot, fileID string) (telegram.File, error)
}

// Deps are the handler dependencies. A nil agent is reported as not
// configured.
type Deps struct {
	Store       session.Store
	Financial   FinancialAgent
	PDF         PDFAssistant
	Transcriber Transcriber
	Downloader  Downloader
	Log         *slog.Logger
	Now         func() time.Time

	// Caller retries rate-limited transcriptions. Nil means a single attempt.
	Caller *retry.Caller
}

// Handlers routes updates.
type Handlers struct {
	d Deps
}

// New creates Handlers.
func New(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{d: d}
}

// Handle is a telegram.HandlerFunc.
func (h *Handlers) Handle(ctx context.Context, b telegram.Bot, upd *models.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	switch {
	case strings.HasPrefix(msg.Text, "/"):
		h.command(ctx, b, msg)
	case msg.Document != nil && telegram.IsPDF(msg.Document.MimeType, msg.Document.FileName):
		h.loadPDF(ctx, b, msg)
	case msg.Voice != nil:
		h.voice(ctx, b, msg, msg.Voice.FileID)
	case msg.Audio != nil:
		h.voice(ctx, b, msg, msg.Audio.FileID)
	case msg.Document != nil && telegram.IsSupportedAudio(msg.Document.MimeType, msg.Document.FileName):
		h.voice(ctx, b, msg, msg.Document.FileID)
	case msg.Document != nil:
		h.reply(ctx, b, msg.Chat.ID, "Unsupported file. Send a PDF or a voice message.")
	case strings.TrimSpace(msg.Text) != "":
		h.ask(ctx, b, msg, msg.Text)
	}
}

func (h *Handlers) command(ctx context.Context, b telegram.Bot, msg *models.Message) {
	name, arg, _ := strings.Cut(strings.TrimSpace(msg.Text), " ")
	// "/ticker@hub_bot" in group chats
	name, _, _ = strings.Cut(strings.TrimPrefix(name, "/"), "@")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "start":
		h.reply(ctx, b, msg.Chat.ID, "Welcome to the AI Agents Dashboard.\n\n"+helpText)
	case "help":
		h.reply(ctx, b, msg.Chat.ID, helpText)
	case "ping":
		h.reply(ctx, b, msg.Chat.ID, "pong")
	case "ticker":
		h.ticker(ctx, b, msg, arg)
	case "reset":
		h.reset(ctx, b, msg)
	default:
		h.reply(ctx, b, msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (h *Handlers) ticker(ctx context.Context, b telegram.Bot, msg *models.Message, symbol string) {
	if h.d.Financial == nil {
		h.fail(ctx, b, msg.Chat.ID, shared.MarkKind(errors.New("financial agent"), shared.KindUnavailable))
		return
	}
	if symbol == "" {
		h.reply(ctx, b, msg.Chat.ID, "Usage: /ticker SYMBOL, for example /ticker NVDA")
		return
	}
	h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("Fetching data for %s...", strings.ToUpper(symbol)))
	h.typing(ctx, b, msg.Chat.ID)

	sum, err := h.d.Financial.Summarize(ctx, symbol, h.notifier(ctx, b, msg.Chat.ID))
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, sum.Markdown)
}

func (h *Handlers) reset(ctx context.Context, b telegram.Bot, msg *models.Message) {
	if h.d.PDF == nil {
		h.fail(ctx, b, msg.Chat.ID, shared.MarkKind(errors.New("pdf assistant"), shared.KindUnavailable))
		return
	}
	sess, err := h.session(ctx, msg.Chat.ID)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	if err := h.d.PDF.Reset(ctx, &sess); err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, "PDF Knowledge Base cleared.")
}

func (h *Handlers) loadPDF(ctx context.Context, b telegram.Bot, msg *models.Message) {
	if h.d.PDF == nil {
		h.fail(ctx, b, msg.Chat.ID, shared.MarkKind(errors.New("pdf assistant"), shared.KindUnavailable))
		return
	}
	sess, err := h.session(ctx, msg.Chat.ID)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	h.typing(ctx, b, msg.Chat.ID)
	f, err := h.d.Downloader.Download(ctx, b, msg.Document.FileID)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	name := msg.Document.FileName
	if name == "" {
		name = f.Name
	}
	doc, n, err := h.d.PDF.Load(ctx, &sess, name, bytes.NewReader(f.Data))
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	h.reply(ctx, b, msg.Chat.ID, fmt.Sprintf("PDF Knowledge Base initialized! %s (%d passages). Ask me anything about it.", doc.Name, n))
}

func (h *Handlers) voice(ctx context.Context, b telegram.Bot, msg *models.Message, fileID string) {
	if h.d.Transcriber == nil {
		h.fail(ctx, b, msg.Chat.ID, shared.MarkKind(errors.New("speech recognition"), shared.KindUnavailable))
		return
	}
	h.typing(ctx, b, msg.Chat.ID)
	f, err := h.d.Downloader.Download(ctx, b, fileID)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	text, err := h.transcribe(ctx, b, msg.Chat.ID, f)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, agent.CallError("error transcribing voice message", err))
		return
	}
	if text == "" {
		h.reply(ctx, b, msg.Chat.ID, "I could not hear a question in that message.")
		return
	}
	h.reply(ctx, b, msg.Chat.ID, "🎙 "+text)
	h.ask(ctx, b, msg, text)
}

func (h *Handlers) transcribe(ctx context.Context, b telegram.Bot, chatID int64, f telegram.File) (string, error) {
	op := func(ctx context.Context) (string, error) {
		return h.d.Transcriber.Transcribe(ctx, f.Name, f.ContentType, f.Data)
	}
	if h.d.Caller == nil {
		return op(ctx)
	}
	return retry.Call(ctx, h.d.Caller, op, agent.OnRetry(h.notifier(ctx, b, chatID)))
}

func (h *Handlers) ask(ctx context.Context, b telegram.Bot, msg *models.Message, question string) {
	if h.d.PDF == nil {
		h.fail(ctx, b, msg.Chat.ID, shared.MarkKind(errors.New("pdf assistant"), shared.KindUnavailable))
		return
	}
	sess, err := h.session(ctx, msg.Chat.ID)
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	if !sess.HasDocument() {
		h.reply(ctx, b, msg.Chat.ID, "Send me a PDF first, then ask questions about it. /help lists the other commands.")
		return
	}
	h.typing(ctx, b, msg.Chat.ID)
	ans, err := h.d.PDF.Ask(ctx, &sess, question, h.notifier(ctx, b, msg.Chat.ID))
	if err != nil {
		h.fail(ctx, b, msg.Chat.ID, err)
		return
	}
	if ans.NewRun {
		h.reply(ctx, b, msg.Chat.ID, ans.RunNotice())
	}
	h.reply(ctx, b, msg.Chat.ID, ans.Markdown)
}

// sessionID is the session key of a chat.
func sessionID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// session loads the chat session, creating it on first use.
func (h *Handlers) session(ctx context.Context, chatID int64) (session.Session, error) {
	id := sessionID(chatID)
	s, err := h.d.Store.GetSession(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return session.Session{}, shared.Wrap(err, "load session")
	}
	s = session.Session{ID: id, UserID: id, Theme: session.ThemeDark, UpdatedAt: h.d.Now()}
	if err := h.d.Store.SaveSession(ctx, s); err != nil {
		return session.Session{}, shared.Wrap(err, "create session")
	}
	return s, nil
}

func (h *Handlers) notifier(ctx context.Context, b telegram.Bot, chatID int64) agent.Notifier {
	return func(msg string) { h.reply(ctx, b, chatID, msg) }
}

func (h *Handlers) typing(ctx context.Context, b telegram.Bot, chatID int64) {
	if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
		h.d.Log.Debug("send chat action", slog.Any("error", err))
	}
}

func (h *Handlers) reply(ctx context.Context, b telegram.Bot, chatID int64, text string) {
	for _, part := range split(text, maxMessage) {
		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: part}); err != nil {
			h.d.Log.Warn("send message", slog.Int64("chat", chatID), slog.Any("error", err))
			return
		}
	}
}

func (h *Handlers) fail(ctx context.Context, b telegram.Bot, chatID int64, err error) {
	kind := shared.KindOf(err)
	if kind == shared.KindValidation || kind == shared.KindNotFound {
		h.d.Log.Debug("telegram request rejected", slog.Any("error", err))
	} else {
		h.d.Log.Error("telegram request failed", slog.Int64("chat", chatID), slog.Any("error", err))
	}
	h.reply(ctx, b, chatID, userMessage(err))
}

// userMessage is the reply text for err.
func userMessage(err error) string {
	switch shared.KindOf(err) {
	case shared.KindValidation:
		return shared.Message(err)
	case shared.KindNotFound:
		return "Nothing was found for that request."
	case shared.KindRateLimited:
		return "Max retries exceeded. API rate limit."
	case shared.KindUnavailable:
		return "This feature is not configured."
	case shared.KindTimeout, shared.KindCanceled:
		return "The request took too long, please try again."
	case shared.KindDependencyFailure:
		return err.Error()
	default:
		return "Something went wrong, please try again."
	}
}

// split cuts text into parts of at most limit runes, preferring line breaks.
func split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteIndex(text, limit)
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > cut/2 {
			cut = nl
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// byteIndex returns the byte offset of the n-th rune.
func byteIndex(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
