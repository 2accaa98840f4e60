package services

import (
	"context"
	"fmt"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/sheets"
)

// Migration is one versioned, idempotent change to the stored tables. Apply
// inspects the stored headers and reports whether it changed anything.
type Migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, m sheets.Medium) (bool, error)
}

// Migrations lists every migration in the order Init runs them.
var Migrations = []Migration{
	{Version: 1, Name: "create-tables", Apply: createTables},
	{Version: 2, Name: "add-kind-column", Apply: addKindColumn},
}

// Init runs the migrations against the medium and returns the ones that
// changed something. Running it again is a no-op. The cache is cleared
// afterwards either way.
func (s *RecordStore) Init(ctx context.Context) ([]Migration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.Invalidate("")

	var applied []Migration
	for _, m := range Migrations {
		changed, err := m.Apply(ctx, s.medium)
		if err != nil {
			return applied, fmt.Errorf("migration %d %s: %w", m.Version, m.Name, err)
		}
		if !changed {
			continue
		}
		applied = append(applied, m)
		s.logger.InfoContext(ctx, "Migration applied",
			log.FieldVersion, m.Version,
			"name", m.Name,
			log.FieldOperation, log.OpMigrate)
	}
	if len(applied) > 0 {
		s.publish(ctx, core.ChangeEvent{Op: core.ChangeMigrate})
	} else {
		s.logger.DebugContext(ctx, "Schema up to date", log.FieldVersion, len(Migrations))
	}
	return applied, nil
}

// createTables writes the header of every table missing from the medium.
func createTables(ctx context.Context, m sheets.Medium) (bool, error) {
	changed := false
	for _, name := range sheets.TableNames() {
		t, err := m.ReadTable(ctx, name)
		if err != nil {
			return false, err
		}
		if t.Exists() {
			continue
		}
		if err := m.WriteTable(ctx, name, nil); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

// addKindColumn rewrites a movements table stored without the kind column.
// Conformed rows already carry the Expense default, so the rewrite persists it.
func addKindColumn(ctx context.Context, m sheets.Medium) (bool, error) {
	t, err := m.ReadTable(ctx, sheets.MovementsTable)
	if err != nil {
		return false, err
	}
	if !t.Exists() || !missing(t, sheets.ColKind) {
		return false, nil
	}
	if err := m.WriteTable(ctx, sheets.MovementsTable, t.Rows); err != nil {
		return false, err
	}
	return true, nil
}

func missing(t sheets.Table, col string) bool {
	schema, err := sheets.Lookup(t.Name)
	if err != nil {
		return false
	}
	for _, c := range schema.Missing(t.Stored) {
		if c == col {
			return true
		}
	}
	return false
}
