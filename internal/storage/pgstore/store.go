// Package pgstore implements session.Store on PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"agenthub/internal/platform/pg"
	"agenthub/internal/session"
	"agenthub/internal/shared"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a PostgreSQL-backed session.Store.
type Store struct {
	pool *pgxpool.Pool
	tx   *pg.TxRunner
}

var _ session.Store = (*Store)(nil)

// Open waits for the database, applies migrations and connects a pool.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	wait := pg.DefaultWaitOptions()
	wait.Log = log
	if err := pg.WaitForDB(ctx, dsn, wait); err != nil {
		return nil, fmt.Errorf("wait for database: %w", err)
	}
	version, err := pg.Migrate(dsn, migrations, "migrations")
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Info("postgres schema ready", slog.Uint64("version", uint64(version)))
	}
	pool, err := pg.NewPool(ctx, dsn, pg.DefaultPoolOptions())
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// New wraps an already migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, tx: pg.NewTxRunner(pool)}
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, shared.ErrNotFound)
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	var (
		out   session.Session
		theme string
	)
	err := s.tx.Querier(ctx).QueryRow(ctx,
		`SELECT id, user_id, theme, run_id, document_id, document_name, updated_at
		   FROM sessions WHERE id = $1`, id).
		Scan(&out.ID, &out.UserID, &theme, &out.RunID, &out.DocumentID, &out.DocumentName, &out.UpdatedAt)
	if err != nil {
		return session.Session{}, notFound(err, "session "+id)
	}
	out.Theme = session.ParseTheme(theme)
	out.UpdatedAt = out.UpdatedAt.UTC()
	return out, nil
}

func (s *Store) SaveSession(ctx context.Context, ss session.Session) error {
	_, err := s.tx.Querier(ctx).Exec(ctx,
		`INSERT INTO sessions (id, user_id, theme, run_id, document_id, document_name, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   theme = EXCLUDED.theme,
		   run_id = EXCLUDED.run_id,
		   document_id = EXCLUDED.document_id,
		   document_name = EXCLUDED.document_name,
		   updated_at = EXCLUDED.updated_at`,
		ss.ID, ss.UserID, string(ss.Theme), ss.RunID, ss.DocumentID, ss.DocumentName, ss.UpdatedAt)
	return err
}

func (s *Store) PruneSessions(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.Querier(ctx)
		tag, err := q.Exec(ctx, `DELETE FROM sessions WHERE updated_at < $1`, before)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		_, err = q.Exec(ctx,
			`DELETE FROM documents d WHERE NOT EXISTS (SELECT 1 FROM sessions s WHERE s.document_id = d.id)`)
		return err
	})
	return n, err
}

func (s *Store) LatestRun(ctx context.Context, userID string) (session.Run, error) {
	var r session.Run
	err := s.tx.Querier(ctx).QueryRow(ctx,
		`SELECT id, user_id, created_at FROM runs
		  WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&r.ID, &r.UserID, &r.CreatedAt)
	if err != nil {
		return session.Run{}, notFound(err, "run for "+userID)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *Store) CreateRun(ctx context.Context, r session.Run) error {
	_, err := s.tx.Querier(ctx).Exec(ctx,
		`INSERT INTO runs (id, user_id, created_at) VALUES ($1, $2, $3)`,
		r.ID, r.UserID, r.CreatedAt)
	return err
}

func (s *Store) AppendMessages(ctx context.Context, msgs ...session.Message) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		tx, _ := pg.PgxTx(ctx)
		batch := &pgx.Batch{}
		for _, m := range msgs {
			batch.Queue(`INSERT INTO run_messages (run_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
				m.RunID, string(m.Role), m.Content, m.CreatedAt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) RecentMessages(ctx context.Context, runID string, limit int) ([]session.Message, error) {
	rows, err := s.tx.Querier(ctx).Query(ctx,
		`SELECT run_id, role, content, created_at FROM (
		   SELECT id, run_id, role, content, created_at FROM run_messages
		    WHERE run_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent ORDER BY id ASC`, runID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (session.Message, error) {
		var (
			m    session.Message
			role string
		)
		err := row.Scan(&m.RunID, &role, &m.Content, &m.CreatedAt)
		m.Role = session.Role(role)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
}

func (s *Store) SaveDocument(ctx context.Context, d session.Document, chunks []session.Chunk) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		tx, _ := pg.PgxTx(ctx)
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (id, name, created_at) VALUES ($1, $2, $3)`,
			d.ID, d.Name, d.CreatedAt); err != nil {
			return err
		}
		rows := make([][]any, len(chunks))
		for i, c := range chunks {
			rows[i] = []any{d.ID, c.Index, c.Content}
		}
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"chunks"},
			[]string{"document_id", "idx", "content"}, pgx.CopyFromRows(rows))
		return err
	})
}

func (s *Store) Chunks(ctx context.Context, documentID string) ([]session.Chunk, error) {
	rows, err := s.tx.Querier(ctx).Query(ctx,
		`SELECT document_id, idx, content FROM chunks WHERE document_id = $1 ORDER BY idx`, documentID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByPos[session.Chunk])
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, shared.ErrNotFound)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return pg.HealthCheckPool(ctx, s.pool) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
