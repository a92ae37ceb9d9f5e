package session

import (
	"context"
	"errors"
	"time"

	"agenthub/internal/shared"
)

// Resolve loads the session with the given id or starts a new one when id is
// empty or unknown. The second result reports whether a new session was made.
func Resolve(ctx context.Context, store Store, id string, now time.Time) (Session, bool, error) {
	if id != "" {
		s, err := store.GetSession(ctx, id)
		if err == nil {
			return s, false, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return Session{}, false, shared.Wrap(err, "load session")
		}
	}
	s := New("", now)
	if err := store.SaveSession(ctx, s); err != nil {
		return Session{}, false, shared.Wrap(err, "create session")
	}
	return s, true, nil
}
