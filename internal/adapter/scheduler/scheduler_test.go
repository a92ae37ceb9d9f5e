package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/platform/logger"
	"agenthub/internal/platform/sqlite"
	"agenthub/internal/session"
	"agenthub/internal/storage/sqlitestore"
)

func newScheduler(t *testing.T, hooks JobHooks) *Scheduler {
	t.Helper()
	s := New(context.Background(), Config{Logger: logger.Discard(), JobHooks: hooks})
	t.Cleanup(s.Stop)
	return s
}

func TestScheduler_RunsJob(t *testing.T) {
	s := newScheduler(t, JobHooks{})
	var n int64
	_, err := s.Add("@every 1s", func(context.Context) error {
		atomic.AddInt64(&n, 1)
		return nil
	}, JobOptions{Name: "count"})
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&n) >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := newScheduler(t, JobHooks{})
	_, err := s.Add("every now and then", func(context.Context) error { return nil }, JobOptions{Name: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestScheduler_HooksSeeErrorsAndPanics(t *testing.T) {
	var (
		mu   sync.Mutex
		errs = map[string]error{}
	)
	s := newScheduler(t, JobHooks{OnJobFinish: func(name string, _ time.Duration, err error) {
		mu.Lock()
		errs[name] = err
		mu.Unlock()
	}})
	_, err := s.Add("@every 1s", func(context.Context) error { return errors.New("boom") }, JobOptions{Name: "fails"})
	require.NoError(t, err)
	_, err = s.Add("@every 1s", func(context.Context) error { panic("oops") }, JobOptions{Name: "panics"})
	require.NoError(t, err)
	s.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 2
	}, 3*time.Second, 20*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.EqualError(t, errs["fails"], "boom")
	assert.EqualError(t, errs["panics"], "panic: oops")
}

func TestScheduler_TimeoutCancelsJob(t *testing.T) {
	done := make(chan error, 1)
	s := newScheduler(t, JobHooks{})
	_, err := s.Add("@every 1s", func(ctx context.Context) error {
		<-ctx.Done()
		select {
		case done <- ctx.Err():
		default:
		}
		return ctx.Err()
	}, JobOptions{Name: "slow", Timeout: 50 * time.Millisecond, OverlapPolicy: SkipIfRunning})
	require.NoError(t, err)
	s.Start()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not canceled")
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(context.Background(), Config{Logger: logger.Discard()})
	s.Start()
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	require.NoError(t, s.StopContext(context.Background()))
}

func TestScheduler_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, Config{Logger: logger.Discard()})
	s.Start()
	cancel()
	assert.Eventually(t, func() bool { return !s.Running() }, time.Second, 10*time.Millisecond)
}

func TestUploadJanitor(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.mp4")
	fresh := filepath.Join(dir, "new.mp4")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	require.NoError(t, UploadJanitor(dir, time.Hour, logger.Discard())(context.Background()))

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "sub"))

	require.NoError(t, UploadJanitor(filepath.Join(dir, "missing"), time.Hour, logger.Discard())(context.Background()))
}

func TestSessionPruner(t *testing.T) {
	store, err := sqlitestore.New(sqlite.NewTestDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	idle := session.New("", time.Now().Add(-48*time.Hour))
	active := session.New("", time.Now())
	require.NoError(t, store.SaveSession(ctx, idle))
	require.NoError(t, store.SaveSession(ctx, active))

	require.NoError(t, SessionPruner(store, 24*time.Hour, logger.Discard())(ctx))

	_, err = store.GetSession(ctx, idle.ID)
	assert.Error(t, err)
	_, err = store.GetSession(ctx, active.ID)
	assert.NoError(t, err)
}

type countPruner struct{ n int }

func (c *countPruner) Prune() int { c.n++; return 0 }

func TestPruneJob(t *testing.T) {
	p := &countPruner{}
	require.NoError(t, PruneJob(p)(context.Background()))
	assert.Equal(t, 1, p.n)
}
