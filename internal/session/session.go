// Package session holds per-user dashboard state and the persistence contract
// for it. A Session is loaded per request and passed explicitly to agents.
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Theme is the dashboard color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// ParseTheme accepts "light" or "dark" in any case; anything else is dark.
func ParseTheme(s string) Theme {
	if strings.EqualFold(strings.TrimSpace(s), string(ThemeLight)) {
		return ThemeLight
	}
	return ThemeDark
}

// Session is the state the dashboard keeps between requests.
type Session struct {
	ID     string
	UserID string
	Theme  Theme
	// RunID is the PDF assistant conversation currently continued.
	RunID string
	// DocumentID is the PDF loaded into the knowledge base, empty if none.
	DocumentID   string
	DocumentName string
	UpdatedAt    time.Time
}

// New returns a fresh session with the default theme. An empty userID makes
// the session its own user.
func New(userID string, now time.Time) Session {
	id := uuid.NewString()
	if userID == "" {
		userID = id
	}
	return Session{ID: id, UserID: userID, Theme: ThemeDark, UpdatedAt: now}
}

// HasDocument reports whether a PDF is attached.
func (s Session) HasDocument() bool { return s.DocumentID != "" }

// AttachDocument replaces the loaded document.
func (s *Session) AttachDocument(id, name string) {
	s.DocumentID = id
	s.DocumentName = name
}

// DetachDocument clears the loaded document.
func (s *Session) DetachDocument() {
	s.DocumentID = ""
	s.DocumentName = ""
}

// Run is one PDF assistant conversation.
type Run struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// Role of a run message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a run.
type Message struct {
	RunID     string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Document is a parsed PDF.
type Document struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Chunk is a retrievable slice of a document.
type Chunk struct {
	DocumentID string
	Index      int
	Content    string
}

// Store persists sessions, runs and documents. Lookups of missing rows return
// an error matching shared.ErrNotFound.
type Store interface {
	GetSession(ctx context.Context, id string) (Session, error)
	SaveSession(ctx context.Context, s Session) error
	// PruneSessions deletes sessions idle since before and documents no
	// session references any more.
	PruneSessions(ctx context.Context, before time.Time) (int64, error)

	// LatestRun returns the user's most recent run.
	LatestRun(ctx context.Context, userID string) (Run, error)
	CreateRun(ctx context.Context, r Run) error
	AppendMessages(ctx context.Context, msgs ...Message) error
	// RecentMessages returns up to limit of the newest messages, oldest first.
	RecentMessages(ctx context.Context, runID string, limit int) ([]Message, error)

	SaveDocument(ctx context.Context, d Document, chunks []Chunk) error
	Chunks(ctx context.Context, documentID string) ([]Chunk, error)

	Ping(ctx context.Context) error
	Close() error
}
