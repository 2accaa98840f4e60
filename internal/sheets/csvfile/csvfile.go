// Package csvfile stores each logical table as a CSV file in a directory.
package csvfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gastos/internal/core"
	ports "gastos/internal/sheets"
)

const medium = "csv"

type Store struct {
	mu  sync.Mutex
	dir string
	// file name per logical table, without directory
	files map[string]string
}

var (
	_ ports.Medium      = (*Store)(nil)
	_ ports.RowAppender = (*Store)(nil)
)

// New returns a store rooted at dir. The directory is created on first write.
// files optionally overrides the file name of a table; the default is
// "<table>.csv".
func New(dir string, files map[string]string) *Store {
	s := &Store{dir: dir, files: map[string]string{}}
	for _, name := range ports.TableNames() {
		s.files[name] = name + ".csv"
	}
	for name, file := range files {
		if strings.TrimSpace(file) != "" {
			s.files[name] = file
		}
	}
	return s
}

// Path returns the file backing a table.
func (s *Store) Path(name string) string {
	file, ok := s.files[name]
	if !ok {
		file = name + ".csv"
	}
	return filepath.Join(s.dir, file)
}

func (s *Store) ReadTable(ctx context.Context, name string) (ports.Table, error) {
	schema, err := ports.Lookup(name)
	if err != nil {
		return ports.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	header, records, err := s.readFile(s.Path(name))
	if err != nil {
		return ports.Table{}, err
	}
	if header == nil {
		return schema.Empty(), nil
	}
	slog.DebugContext(ctx, "Read CSV table", "table", name, "rows", len(records))
	return schema.Decode(header, records), nil
}

// WriteTable replaces the file atomically: rows go to a temporary file in the
// same directory which is then renamed over the original.
func (s *Store) WriteTable(ctx context.Context, name string, rows []ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewBackingStoreError(medium, "create directory", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return core.NewBackingStoreError(medium, "create temp file", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := encode(tmp, schema, rows); err != nil {
		tmp.Close()
		return core.NewBackingStoreError(medium, "write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return core.NewBackingStoreError(medium, "sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		return core.NewBackingStoreError(medium, "close", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return core.NewBackingStoreError(medium, "replace", path, err)
	}
	slog.DebugContext(ctx, "Wrote CSV table", "table", name, "rows", len(rows), "path", path)
	return nil
}

// Export writes rows of the named table to w as CSV: the schema header first,
// then each row in schema column order.
func Export(w io.Writer, name string, rows []ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	return encode(w, schema, rows)
}

func encode(w io.Writer, schema ports.Schema, rows []ports.Row) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, schema.Columns)
	for _, r := range rows {
		records = append(records, schema.Encode(r, schema.Columns))
	}
	return csv.NewWriter(w).WriteAll(records)
}

// AppendRow appends one record in the order of the file's header, writing
// the schema header first when the file is new or empty.
func (s *Store) AppendRow(ctx context.Context, name string, row ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(name)
	header, _, err := s.readFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.NewBackingStoreError(medium, "create directory", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return core.NewBackingStoreError(medium, "open", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	order := schema.Columns
	if header == nil {
		if err := w.Write(schema.Columns); err != nil {
			return core.NewBackingStoreError(medium, "write header", path, err)
		}
	} else {
		order = make([]string, len(header))
		for i, h := range header {
			order[i] = ports.CanonicalColumn(h)
		}
		if err := ensureTrailingNewline(f, path); err != nil {
			return err
		}
	}
	if err := w.Write(schema.Encode(row, order)); err != nil {
		return core.NewBackingStoreError(medium, "append", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return core.NewBackingStoreError(medium, "append", path, err)
	}
	slog.DebugContext(ctx, "Appended CSV row", "table", name, "path", path)
	return nil
}

// readFile returns a nil header when the file is missing or empty.
func (s *Store) readFile(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, core.NewBackingStoreError(medium, "open", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if bom, err := br.Peek(3); err == nil && string(bom) == "\xef\xbb\xbf" {
		_, _ = br.Discard(3)
	}
	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, core.NewBackingStoreError(medium, "parse header", path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, core.NewBackingStoreError(medium, "parse", path, err)
	}
	return header, records, nil
}

// ensureTrailingNewline keeps an append from gluing onto a last line that was
// written without a line terminator by another tool.
func ensureTrailingNewline(f *os.File, path string) error {
	info, err := f.Stat()
	if err != nil {
		return core.NewBackingStoreError(medium, "stat", path, err)
	}
	if info.Size() == 0 {
		return nil
	}
	rf, err := os.Open(path)
	if err != nil {
		return core.NewBackingStoreError(medium, "open", path, err)
	}
	defer rf.Close()
	last := make([]byte, 1)
	if _, err := rf.ReadAt(last, info.Size()-1); err != nil {
		return core.NewBackingStoreError(medium, "read", path, err)
	}
	if last[0] != '\n' {
		if _, err := f.Write([]byte("\n")); err != nil {
			return core.NewBackingStoreError(medium, "append", path, err)
		}
	}
	return nil
}
