package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-election-merge/internal/model"

	"github.com/mattn/go-sqlite3"
)

// SQLite persists stored records in a single sqlite table.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the database at dbPath and creates the schema.
func Open(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	recordTable := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	`
	recordIndex := `
	CREATE INDEX IF NOT EXISTS records_lookup ON records (collection, run_id, kind);
	`

	for _, stmt := range []string{recordTable, recordIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Create inserts all records in one transaction.
func (s *SQLite) Create(ctx context.Context, recs []model.StoredRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (collection, run_id, kind, key, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range recs {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, rec.Collection, rec.RunID, rec.Kind, rec.Key, string(rec.Body), createdAt.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Read returns matching records in insertion order.
func (s *SQLite) Read(ctx context.Context, f model.Filter) ([]model.StoredRecord, error) {
	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, run_id, kind, key, body, created_at FROM records`+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StoredRecord
	for rows.Next() {
		var rec model.StoredRecord
		var body string
		if err := rows.Scan(&rec.Collection, &rec.RunID, &rec.Kind, &rec.Key, &body, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Body = []byte(body)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes matching records and reports how many went.
func (s *SQLite) Delete(ctx context.Context, f model.Filter) (int64, error) {
	where, args := whereClause(f)
	res, err := s.db.ExecContext(ctx, `DELETE FROM records`+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func whereClause(f model.Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	for _, c := range []struct{ col, val string }{
		{"collection", f.Collection},
		{"run_id", f.RunID},
		{"kind", f.Kind},
		{"key", f.Key},
	} {
		if c.val != "" {
			conds = append(conds, c.col+" = ?")
			args = append(args, c.val)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// IsRetryable reports whether err is a transient sqlite locking error.
func IsRetryable(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
