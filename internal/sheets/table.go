// Package sheets defines the tabular model shared by every backing medium
// and the ports the record store talks to.
package sheets

import (
	"fmt"
	"strings"
)

// Logical table names.
const (
	MovementsTable  = "movements"
	CategoriesTable = "categories"
)

// Movement and category column names.
const (
	ColID          = "id"
	ColUser        = "user"
	ColTimestamp   = "timestamp"
	ColAmount      = "amount"
	ColDescription = "description"
	ColCategory    = "category"
	ColKind        = "kind"
)

type (
	// Row is a record keyed by canonical column name.
	Row map[string]string

	// Table is a snapshot of a logical table.
	//
	// Columns is always the schema order. Stored is the header physically
	// present in the medium, nil when the table does not exist there yet.
	// Rows are conformed: a column missing from Stored is filled with its
	// schema default.
	Table struct {
		Name    string
		Columns []string
		Stored  []string
		Rows    []Row
	}

	// Schema describes the expected shape of a logical table.
	Schema struct {
		Name     string
		Columns  []string
		Defaults map[string]string
		Numeric  map[string]bool
	}
)

var (
	Movements = Schema{
		Name:     MovementsTable,
		Columns:  []string{ColID, ColUser, ColTimestamp, ColAmount, ColDescription, ColCategory, ColKind},
		Defaults: map[string]string{ColKind: "Expense"},
		Numeric:  map[string]bool{ColAmount: true},
	}

	Categories = Schema{
		Name:    CategoriesTable,
		Columns: []string{ColUser, ColCategory},
	}

	schemas = map[string]Schema{
		MovementsTable:  Movements,
		CategoriesTable: Categories,
	}

	// Headers written by earlier versions of the ledger.
	headerAliases = map[string]string{
		"usuario":   ColUser,
		"fecha":     ColTimestamp,
		"monto":     ColAmount,
		"nombre":    ColDescription,
		"categoría": ColCategory,
		"categoria": ColCategory,
		"tipo":      ColKind,
	}
)

// Lookup returns the schema registered for a logical table.
func Lookup(name string) (Schema, error) {
	s, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown table %q", name)
	}
	return s, nil
}

// TableNames lists every logical table in migration order.
func TableNames() []string {
	return []string{MovementsTable, CategoriesTable}
}

// CanonicalColumn maps a stored header cell onto a column name.
func CanonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	if alias, ok := headerAliases[h]; ok {
		return alias
	}
	return h
}

// Empty returns a table with no rows that does not exist in the medium.
func (s Schema) Empty() Table {
	return Table{Name: s.Name, Columns: append([]string(nil), s.Columns...)}
}

// Missing lists the schema columns absent from a stored header.
func (s Schema) Missing(stored []string) []string {
	have := make(map[string]bool, len(stored))
	for _, c := range stored {
		have[c] = true
	}
	var out []string
	for _, c := range s.Columns {
		if !have[c] {
			out = append(out, c)
		}
	}
	return out
}

// Decode turns a raw header and records into a conformed table. Header cells
// are canonicalised, blank records skipped, short records padded.
func (s Schema) Decode(header []string, records [][]string) Table {
	if len(header) == 0 {
		return s.Empty()
	}
	stored := make([]string, len(header))
	for i, h := range header {
		stored[i] = CanonicalColumn(h)
	}
	t := Table{Name: s.Name, Columns: append([]string(nil), s.Columns...), Stored: stored}
	for _, rec := range records {
		if blank(rec) {
			continue
		}
		row := make(Row, len(s.Columns))
		for i, col := range stored {
			if i < len(rec) {
				row[col] = strings.TrimSpace(rec[i])
			}
		}
		t.Rows = append(t.Rows, s.Conform(row))
	}
	return t
}

// Conform returns a copy of row holding exactly the schema columns, with
// defaults for the missing ones.
func (s Schema) Conform(row Row) Row {
	out := make(Row, len(s.Columns))
	for _, c := range s.Columns {
		v, ok := row[c]
		if !ok || v == "" {
			v = s.Defaults[c]
		}
		out[c] = v
	}
	return out
}

// Encode renders row in the given column order.
func (s Schema) Encode(row Row, order []string) []string {
	out := make([]string, len(order))
	for i, c := range order {
		v, ok := row[c]
		if !ok || v == "" {
			v = s.Defaults[c]
		}
		out[i] = v
	}
	return out
}

// Clone deep-copies a table so callers can mutate the result freely.
func (t Table) Clone() Table {
	out := Table{
		Name:    t.Name,
		Columns: append([]string(nil), t.Columns...),
		Stored:  append([]string(nil), t.Stored...),
	}
	if t.Stored == nil {
		out.Stored = nil
	}
	if t.Rows != nil {
		out.Rows = make([]Row, len(t.Rows))
		for i, r := range t.Rows {
			cp := make(Row, len(r))
			for k, v := range r {
				cp[k] = v
			}
			out.Rows[i] = cp
		}
	}
	return out
}

// Exists reports whether the table is present in the medium.
func (t Table) Exists() bool { return t.Stored != nil }

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
