package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agenthub/internal/session"
)

func TestParseTheme(t *testing.T) {
	assert.Equal(t, session.ThemeLight, session.ParseTheme("Light"))
	assert.Equal(t, session.ThemeLight, session.ParseTheme(" light "))
	assert.Equal(t, session.ThemeDark, session.ParseTheme("dark"))
	assert.Equal(t, session.ThemeDark, session.ParseTheme(""))
	assert.Equal(t, session.ThemeDark, session.ParseTheme("solarized"))
}

func TestNew(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	s := session.New("", now)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, s.ID, s.UserID)
	assert.Equal(t, session.ThemeDark, s.Theme)
	assert.Equal(t, now, s.UpdatedAt)
	assert.False(t, s.HasDocument())

	tg := session.New("tg:42", now)
	assert.Equal(t, "tg:42", tg.UserID)
	assert.NotEqual(t, s.ID, tg.ID)
}

func TestDocumentAttachment(t *testing.T) {
	s := session.New("", time.Now())
	s.AttachDocument("doc-1", "report.pdf")
	assert.True(t, s.HasDocument())
	assert.Equal(t, "report.pdf", s.DocumentName)

	s.DetachDocument()
	assert.False(t, s.HasDocument())
	assert.Empty(t, s.DocumentName)
}
