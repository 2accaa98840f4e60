// Package memory is an in-process backing medium, used by tests and by the
// "memory" backend.
package memory

import (
	"context"
	"sync"

	ports "gastos/internal/sheets"
)

type table struct {
	header  []string
	records [][]string
}

type Store struct {
	mu     sync.Mutex
	tables map[string]*table
	writes int
}

var (
	_ ports.Medium      = (*Store)(nil)
	_ ports.RowAppender = (*Store)(nil)
)

func New() *Store {
	return &Store{tables: map[string]*table{}}
}

// Seed installs a raw table, header and records exactly as given. Tests use
// it to simulate tables written by older schema versions.
func (s *Store) Seed(name string, header []string, records [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{header: copyStrings(header), records: copyRecords(records)}
}

// Raw returns the stored header and records of a table.
func (s *Store) Raw(name string) ([]string, [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil, nil
	}
	return copyStrings(t.header), copyRecords(t.records)
}

// Writes counts the full overwrites and appends performed so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) ReadTable(_ context.Context, name string) (ports.Table, error) {
	schema, err := ports.Lookup(name)
	if err != nil {
		return ports.Table{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return schema.Empty(), nil
	}
	return schema.Decode(t.header, t.records), nil
}

func (s *Store) WriteTable(_ context.Context, name string, rows []ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, schema.Encode(r, schema.Columns))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{header: copyStrings(schema.Columns), records: records}
	s.writes++
	return nil
}

// AppendRow stores the row in the order of the existing header.
func (s *Store) AppendRow(_ context.Context, name string, row ports.Row) error {
	schema, err := ports.Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok || len(t.header) == 0 {
		t = &table{header: copyStrings(schema.Columns)}
		s.tables[name] = t
	}
	order := make([]string, len(t.header))
	for i, h := range t.header {
		order[i] = ports.CanonicalColumn(h)
	}
	t.records = append(t.records, schema.Encode(row, order))
	s.writes++
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func copyRecords(in [][]string) [][]string {
	out := make([][]string, len(in))
	for i, r := range in {
		out[i] = copyStrings(r)
	}
	return out
}
