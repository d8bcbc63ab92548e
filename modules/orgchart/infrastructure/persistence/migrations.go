package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	gerrors "github.com/go-faster/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration for dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) (int, error) {
	var dir string
	switch dialect {
	case goose.DialectSQLite3:
		dir = "migrations/sqlite"
	case goose.DialectPostgres:
		dir = "migrations/postgres"
	default:
		return 0, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	sub, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return 0, gerrors.Wrap(err, "migrations fs")
	}
	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return 0, gerrors.Wrap(err, "goose provider")
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return 0, gerrors.Wrap(err, "apply migrations")
	}
	return len(results), nil
}
