package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	_ "github.com/lib/pq"           // PostgreSQL 驱动
	_ "github.com/mattn/go-sqlite3" // SQLite 驱动
)

// SQL stores documents through database/sql. It speaks to PostgreSQL (driver
// "postgres") and SQLite (driver "sqlite3"); sqlx rebinds placeholders.
type SQL struct {
	db *sqlx.DB
}

type documentRow struct {
	Key       string    `db:"key"`
	Version   int       `db:"version"`
	Data      string    `db:"data"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewSQL opens dsn with driver and creates the document table if needed.
func NewSQL(driver, dsn string) (*SQL, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping %s", driver)
	}

	if driver == "sqlite3" {
		// a single connection keeps ":memory:" databases alive and avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := initTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS soundbeats_documents (
            key VARCHAR(255) PRIMARY KEY,
            version INTEGER NOT NULL DEFAULT 1,
            data TEXT NOT NULL,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )
    `)
	return errors.Wrap(err, "create soundbeats_documents")
}

func (s *SQL) Load(ctx context.Context, key string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var row documentRow
	query := s.db.Rebind(`SELECT key, version, data, updated_at FROM soundbeats_documents WHERE key = ?`)
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Wrapf(err, "load %s", key)
	}

	return &Document{
		Key:       row.Key,
		Version:   row.Version,
		Data:      []byte(row.Data),
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *SQL) Save(ctx context.Context, doc *Document) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	updatedAt := doc.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := s.db.Rebind(`
        INSERT INTO soundbeats_documents (key, version, data, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (key)
        DO UPDATE SET version = excluded.version, data = excluded.data, updated_at = excluded.updated_at
    `)

	_, err := s.db.ExecContext(ctx, query, doc.Key, doc.Version, string(doc.Data), updatedAt.UTC())
	return errors.Wrapf(err, "save %s", doc.Key)
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM soundbeats_documents WHERE key = ?`), key)
	return errors.Wrapf(err, "delete %s", key)
}

func (s *SQL) Close() error {
	return s.db.Close()
}
