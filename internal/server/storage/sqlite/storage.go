package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	sqlitedrv "modernc.org/sqlite" // SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iudanet/boardsync/internal/server/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// dbtx общий интерфейс *sql.DB и *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries реализует запросы поверх соединения или транзакции
type queries struct {
	db dbtx
}

// Storage represents SQLite storage implementation
type Storage struct {
	*queries
	db *sql.DB
}

var (
	_ storage.UserStorage = (*Storage)(nil)
	_ storage.CVRStorage  = (*Storage)(nil)
	_ storage.TxRunner    = (*Storage)(nil)
	_ storage.Tx          = (*queries)(nil)
)

// connPragmas выполняются на единственном соединении сразу после открытия
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// New открывает базу и применяет миграции.
// ":memory:" годится для тестов: соединение одно, все видят одну БД.
func New(ctx context.Context, dbPath string) (_ *Storage, err error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	// один писатель: транзакции сериализуются на единственном соединении
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range connPragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := migrate(ctx, db); err != nil {
		return nil, err
	}

	return &Storage{db: db, queries: &queries{db: db}}, nil
}

// migrate накатывает встроенные goose миграции
func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, mustSub(embedMigrations, "migrations"))
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB отдает соединение для health check и тестов
func (s *Storage) DB() *sql.DB {
	return s.db
}

// InTx runs fn inside a transaction. Busy/locked errors are marked with
// storage.ErrTransient so callers can retry the whole unit.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return markTransient(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(ctx, &queries{db: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return markTransient(errors.Join(err, fmt.Errorf("failed to rollback: %w", rbErr)))
		}
		return markTransient(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return markTransient(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

// markTransient оборачивает SQLITE_BUSY/SQLITE_LOCKED в storage.ErrTransient
func markTransient(err error) error {
	if err == nil || storage.IsTransient(err) {
		return err
	}

	var sqliteErr *sqlitedrv.Error
	if errors.As(err, &sqliteErr) {
		// младший байт - основной код, старшие - расширенный
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", storage.ErrTransient, err)
		}
	}

	return err
}

// isUniqueViolation сообщает о нарушении UNIQUE/PRIMARY KEY
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedrv.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
