// Package storage keeps the ledger tables in a SQLite database whose schema
// is managed by versioned migrations.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gastos/internal/core"
	ports "gastos/internal/sheets"

	_ "modernc.org/sqlite"
)

const medium = "sqlite"

type SQLiteRepository struct {
	db   *sql.DB
	path string
}

var (
	_ ports.Medium      = (*SQLiteRepository)(nil)
	_ ports.RowAppender = (*SQLiteRepository)(nil)
)

// NewSQLiteRepository opens the database at dbPath, creating its directory,
// and applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, core.NewBackingStoreError(medium, "create db directory", filepath.Dir(dbPath), err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.NewBackingStoreError(medium, "open", dbPath, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, core.NewBackingStoreError(medium, "ping", dbPath, err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, core.NewBackingStoreError(medium, "migrate", dbPath, err)
	}

	return &SQLiteRepository{db: db, path: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	schema, err := ports.Lookup(name)
	if err != nil {
		return ports.Table{}, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", name))
	if err != nil {
		return ports.Table{}, core.NewBackingStoreError(medium, "query", name, err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return ports.Table{}, core.NewBackingStoreError(medium, "columns", name, err)
	}

	var records [][]string
	values := make([]any, len(header))
	dest := make([]any, len(header))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return ports.Table{}, core.NewBackingStoreError(medium, "scan", name, err)
		}
		rec := make([]string, len(values))
		for i, v := range values {
			rec[i] = cell(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return ports.Table{}, core.NewBackingStoreError(medium, "iterate", name, err)
	}

	slog.DebugContext(ctx, "Read SQLite table", "table", name, "rows", len(records))
	return schema.Decode(header, records), nil
}

// WriteTable replaces every row of the table inside one transaction.
func (r *SQLiteRepository) WriteTable(ctx context.Context, name string, rows []ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewBackingStoreError(medium, "begin", name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", name)); err != nil {
		return core.NewBackingStoreError(medium, "clear", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(schema))
	if err != nil {
		return core.NewBackingStoreError(medium, "prepare insert", name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(schema, row)...); err != nil {
			return core.NewBackingStoreError(medium, "insert", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return core.NewBackingStoreError(medium, "commit", name, err)
	}

	slog.DebugContext(ctx, "Replaced SQLite table", "table", name, "rows", len(rows))
	return nil
}

func (r *SQLiteRepository) AppendRow(ctx context.Context, name string, row ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, insertSQL(schema), args(schema, row)...); err != nil {
		return core.NewBackingStoreError(medium, "insert", name, err)
	}
	slog.DebugContext(ctx, "Appended SQLite row", "table", name)
	return nil
}

func insertSQL(s ports.Schema) string {
	cols := make([]string, len(s.Columns))
	marks := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = strconv.Quote(c)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.Name, strings.Join(cols, ", "), strings.Join(marks, ", "))
}

func args(s ports.Schema, row ports.Row) []any {
	enc := s.Encode(row, s.Columns)
	out := make([]any, len(enc))
	for i, v := range enc {
		out[i] = v
	}
	return out
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
