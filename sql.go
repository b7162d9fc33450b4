package goMagicLink

import (
	"context"
	"database/sql"

	"github.com/MrEthical07/goMagicLink/internal/stores/sqlstore"
)

// MigrateSQL describes the migratesql operation and its observable behavior.
//
// MigrateSQL applies the embedded schema migrations for dialect ("sqlite" or "postgres") to dsn. Running it on an up-to-date database is a no-op.
// MigrateSQL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func MigrateSQL(dialect, dsn string) error {
	d, err := sqlstore.ParseDialect(dialect)
	if err != nil {
		return err
	}
	return sqlstore.Migrate(d, dsn)
}

// OpenSQL describes the opensql operation and its observable behavior.
//
// OpenSQL opens dsn with the driver registered for dialect and pings it. SQLite handles are pinned to one connection. The caller owns the returned handle.
// OpenSQL does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func OpenSQL(ctx context.Context, dialect, dsn string) (*sql.DB, error) {
	d, err := sqlstore.ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	s, err := sqlstore.Open(ctx, d, dsn)
	if err != nil {
		return nil, err
	}
	return s.DB(), nil
}
