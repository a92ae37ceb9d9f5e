// Package sqlitestore implements session.Store on an embedded SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"agenthub/internal/platform/sqlite"
	"agenthub/internal/session"
	"agenthub/internal/shared"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite-backed session.Store. Times are stored as unix milliseconds.
type Store struct {
	db *sql.DB
	tx *sqlite.TxRunner
}

var _ session.Store = (*Store)(nil)

// New migrates db and wraps it.
func New(db *sql.DB) (*Store, error) {
	if err := sqlite.Migrate(db, migrations, "migrations"); err != nil {
		return nil, err
	}
	return &Store{db: db, tx: sqlite.NewTxRunner(db)}, nil
}

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(ctx, path, sqlite.DefaultOptions())
	if err != nil {
		return nil, err
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func fromMS(v int64) time.Time { return time.UnixMilli(v).UTC() }

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, shared.ErrNotFound)
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		out     session.Session
		theme   string
		updated int64
	)
	err := s.tx.Querier(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, theme, run_id, document_id, document_name, updated_at
		   FROM sessions WHERE id = ?`, id).
		Scan(&out.ID, &out.UserID, &theme, &out.RunID, &out.DocumentID, &out.DocumentName, &updated)
	if err != nil {
		return session.Session{}, notFound(err, "session "+id)
	}
	out.Theme = session.ParseTheme(theme)
	out.UpdatedAt = fromMS(updated)
	return out, nil
}

func (s *Store) SaveSession(ctx context.Context, ss session.Session) error {
	_, err := s.tx.Querier(ctx).ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, theme, run_id, document_id, document_name, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   theme = excluded.theme,
		   run_id = excluded.run_id,
		   document_id = excluded.document_id,
		   document_name = excluded.document_name,
		   updated_at = excluded.updated_at`,
		ss.ID, ss.UserID, string(ss.Theme), ss.RunID, ss.DocumentID, ss.DocumentName, ms(ss.UpdatedAt))
	return err
}

func (s *Store) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, ms(before))
		if err != nil {
			return err
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`DELETE FROM documents WHERE id NOT IN (SELECT document_id FROM sessions)`)
		return err
	})
	return n, err
}

func (s *Store) LatestRun(ctx context.Context, userID string) (session.Run, error) {
	var (
		r       session.Run
		created int64
	)
	err := s.tx.Querier(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, created_at FROM runs
		  WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, userID).
		Scan(&r.ID, &r.UserID, &created)
	if err != nil {
		return session.Run{}, notFound(err, "run for "+userID)
	}
	r.CreatedAt = fromMS(created)
	return r, nil
}

func (s *Store) CreateRun(ctx context.Context, r session.Run) error {
	_, err := s.tx.Querier(ctx).ExecContext(ctx,
		`INSERT INTO runs (id, user_id, created_at) VALUES (?, ?, ?)`,
		r.ID, r.UserID, ms(r.CreatedAt))
	return err
}

func (s *Store) AppendMessages(ctx context.Context, msgs ...session.Message) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		for _, m := range msgs {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO run_messages (run_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
				m.RunID, string(m.Role), m.Content, ms(m.CreatedAt)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RecentMessages(ctx context.Context, runID string, limit int) ([]session.Message, error) {
	rows, err := s.tx.Querier(ctx).QueryContext(ctx,
		`SELECT run_id, role, content, created_at FROM (
		   SELECT id, run_id, role, content, created_at FROM run_messages
		    WHERE run_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Message
	for rows.Next() {
		var (
			m       session.Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.RunID, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = session.Role(role)
		m.CreatedAt = fromMS(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SaveDocument(ctx context.Context, d session.Document, chunks []session.Chunk) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		if _, err := q.ExecContext(ctx,
			`INSERT INTO documents (id, name, created_at) VALUES (?, ?, ?)`,
			d.ID, d.Name, ms(d.CreatedAt)); err != nil {
			return err
		}
		for _, c := range chunks {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO chunks (document_id, idx, content) VALUES (?, ?, ?)`,
				d.ID, c.Index, c.Content); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Chunks(ctx context.Context, documentID string) ([]session.Chunk, error) {
	rows, err := s.tx.Querier(ctx).QueryContext(ctx,
		`SELECT document_id, idx, content FROM chunks WHERE document_id = ? ORDER BY idx`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Chunk
	for rows.Next() {
		var c session.Chunk
		if err := rows.Scan(&c.DocumentID, &c.Index, &c.Content); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, shared.ErrNotFound)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }
