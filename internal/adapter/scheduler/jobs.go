package scheduler

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"agenthub/internal/session"
)

// UploadJanitor removes regular files in dir last modified more than ttl ago.
// Video uploads are deleted after analysis; this catches the ones a crash or
// an aborted request left behind.
func UploadJanitor(dir string, ttl time.Duration, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-ttl)
		removed := 0
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Warn("remove stale upload", slog.String("file", e.Name()), slog.Any("error", err))
				continue
			}
			removed++
		}
		if removed > 0 {
			log.Info("stale uploads removed", slog.Int("count", removed))
		}
		return nil
	}
}

// SessionPruner deletes sessions idle for longer than ttl along with
// documents no session uses any more.
func SessionPruner(store session.Store, ttl time.Duration, log *slog.Logger) JobFunc {
	return func(ctx context.Context) error {
		n, err := store.PruneSessions(ctx, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		if n > 0 {
			log.Info("idle sessions pruned", slog.Int64("count", n))
		}
		return nil
	}
}

// Pruner is anything that forgets stale in-memory state.
type Pruner interface {
	Prune() int
}

// PruneJob wraps a Pruner.
func PruneJob(p Pruner) JobFunc {
	return func(context.Context) error {
		p.Prune()
		return nil
	}
}
