package sqlitestore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/platform/sqlite"
	"agenthub/internal/session"
	"agenthub/internal/shared"
	"agenthub/internal/storage/sqlitestore"
)

func newStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.New(sqlite.NewTestDB(t))
	require.NoError(t, err)
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.GetSession(ctx, "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)

	ss := session.New("", now)
	require.NoError(t, s.SaveSession(ctx, ss))

	ss.Theme = session.ThemeLight
	ss.RunID = "run-1"
	ss.AttachDocument("doc-1", "report.pdf")
	ss.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, s.SaveSession(ctx, ss))

	got, err := s.GetSession(ctx, ss.ID)
	require.NoError(t, err)
	assert.Equal(t, ss, got)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	created, isNew, err := session.Resolve(ctx, s, "", now)
	require.NoError(t, err)
	assert.True(t, isNew)

	again, isNew, err := session.Resolve(ctx, s, created.ID, now)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created, again)

	other, isNew, err := session.Resolve(ctx, s, "stale-cookie", now)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NotEqual(t, "stale-cookie", other.ID)
}

func TestRunsAndMessages(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.LatestRun(ctx, "u1")
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, s.CreateRun(ctx, session.Run{ID: "old", UserID: "u1", CreatedAt: t0}))
	require.NoError(t, s.CreateRun(ctx, session.Run{ID: "new", UserID: "u1", CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, s.CreateRun(ctx, session.Run{ID: "other", UserID: "u2", CreatedAt: t0.Add(2 * time.Hour)}))

	r, err := s.LatestRun(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", r.ID)
	assert.Equal(t, t0.Add(time.Hour), r.CreatedAt)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessages(ctx,
			session.Message{RunID: "new", Role: session.RoleUser, Content: fmt.Sprintf("q%d", i), CreatedAt: t0},
			session.Message{RunID: "new", Role: session.RoleAssistant, Content: fmt.Sprintf("a%d", i), CreatedAt: t0},
		))
	}

	msgs, err := s.RecentMessages(ctx, "new", 4)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "q3", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[3].Role)
	assert.Equal(t, "a4", msgs[3].Content)

	msgs, err = s.RecentMessages(ctx, "old", 4)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDocumentsAndPrune(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Chunks(ctx, "doc-1")
	require.ErrorIs(t, err, shared.ErrNotFound)

	chunks := []session.Chunk{{Index: 1, Content: "second"}, {Index: 0, Content: "first"}}
	require.NoError(t, s.SaveDocument(ctx, session.Document{ID: "doc-1", Name: "a.pdf", CreatedAt: now}, chunks))
	require.NoError(t, s.SaveDocument(ctx, session.Document{ID: "doc-2", Name: "b.pdf", CreatedAt: now}, chunks[:1]))

	got, err := s.Chunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Content)
	assert.Equal(t, "doc-1", got[0].DocumentID)

	idle := session.New("", now.Add(-48*time.Hour))
	idle.AttachDocument("doc-1", "a.pdf")
	active := session.New("", now)
	active.AttachDocument("doc-2", "b.pdf")
	require.NoError(t, s.SaveSession(ctx, idle))
	require.NoError(t, s.SaveSession(ctx, active))

	n, err := s.PruneSessions(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSession(ctx, idle.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = s.Chunks(ctx, "doc-1")
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = s.Chunks(ctx, "doc-2")
	require.NoError(t, err)
}

func TestOpen_File(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "hub.db")

	s, err := sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	s, err = sqlitestore.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
