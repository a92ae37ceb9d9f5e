// Package sqlite provides the embedded SQLite database (modernc.org/sqlite, no cgo).
//
// It is used when DATABASE_URL is not set. The dashboard then keeps sessions,
// PDF assistant runs and document chunks in a single file.
//
// # Opening
//
//	db, err := sqlite.Open(ctx, "data/agenthub.db", sqlite.DefaultOptions())
//
// # Migrations
//
// Migrations are embedded in the binary and applied to an open *sql.DB, so
// they work for in-memory databases too:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//	err = sqlite.Migrate(db, migrations, "migrations")
//
// # Transactions
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.Querier(ctx)
//		_, err := q.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
//		return err
//	})
//
// SQLITE_BUSY is retried with exponential backoff.
//
// # Testing
//
//	db := sqlite.NewTestDB(t) // in-memory, closed in t.Cleanup
package sqlite
