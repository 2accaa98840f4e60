package services

import (
	"context"
	"fmt"
	"strings"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/sheets"
)

// ListCategories returns the user's category names in storage order. A user
// without categories is seeded with the default set first.
func (s *RecordStore) ListCategories(ctx context.Context, user string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.categories(ctx, user)
}

// categories is ListCategories for callers already holding s.mu.
func (s *RecordStore) categories(ctx context.Context, user string) ([]string, error) {
	user = strings.TrimSpace(user)
	t, err := s.read(ctx, sheets.CategoriesTable)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if names := userCategories(t.Rows, user); len(names) > 0 || user == "" {
		return names, nil
	}
	return s.seed(ctx, user)
}

// seed writes the default categories for a user that has none. The check is
// repeated against the medium so a stale cache cannot cause a second seeding.
func (s *RecordStore) seed(ctx context.Context, user string) ([]string, error) {
	t, err := s.medium.ReadTable(ctx, sheets.CategoriesTable)
	if err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	if names := userCategories(t.Rows, user); len(names) > 0 {
		s.Invalidate(sheets.CategoriesTable)
		return names, nil
	}
	if len(s.defaults) == 0 {
		return nil, nil
	}

	rows := t.Rows
	for _, name := range s.defaults {
		rows = append(rows, categoryRow(user, name))
	}
	err = s.medium.WriteTable(ctx, sheets.CategoriesTable, rows)
	s.Invalidate(sheets.CategoriesTable)
	if err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}

	s.logger.InfoContext(ctx, "Default categories seeded",
		log.FieldUser, user,
		log.FieldRows, len(s.defaults),
		log.FieldOperation, log.OpSeed)
	s.publish(ctx, core.ChangeEvent{Table: sheets.CategoriesTable, Op: core.ChangeSeed, User: user})
	return append([]string(nil), s.defaults...), nil
}

// AddCategory stores a new category for user and returns the trimmed name.
// A name matching an existing one case-insensitively is a *core.DuplicateError.
func (s *RecordStore) AddCategory(ctx context.Context, user, name string) (string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return "", &core.ValidationError{Field: "user", Reason: "must not be empty", Err: core.ErrEmptyUser}
	}
	name, err := core.ValidateCategoryName(name)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.medium.ReadTable(ctx, sheets.CategoriesTable)
	if err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}
	if existing, ok := matchName(userCategories(t.Rows, user), name); ok {
		return "", &core.DuplicateError{User: user, Name: existing}
	}

	err = s.appendRow(ctx, sheets.CategoriesTable, categoryRow(user, name))
	s.Invalidate(sheets.CategoriesTable)
	if err != nil {
		return "", fmt.Errorf("add category: %w", err)
	}

	s.logger.InfoContext(ctx, "Category added",
		log.FieldUser, user,
		log.FieldCategory, name,
		log.FieldOperation, log.OpAppend)
	s.publish(ctx, core.ChangeEvent{Table: sheets.CategoriesTable, Op: core.ChangeAdd, Key: name, User: user})
	return name, nil
}

// DeleteCategory removes the user's category with exactly this name. Movements
// tagged with it are left alone. It reports false, without writing, when
// nothing matched.
func (s *RecordStore) DeleteCategory(ctx context.Context, user, name string) (bool, error) {
	user = strings.TrimSpace(user)
	name = strings.TrimSpace(name)
	if user == "" || name == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.medium.ReadTable(ctx, sheets.CategoriesTable)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	kept := make([]sheets.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r[sheets.ColUser] == user && strings.TrimSpace(r[sheets.ColCategory]) == name {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == len(t.Rows) {
		return false, nil
	}

	err = s.medium.WriteTable(ctx, sheets.CategoriesTable, kept)
	s.Invalidate(sheets.CategoriesTable)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}

	s.logger.InfoContext(ctx, "Category deleted",
		log.FieldUser, user,
		log.FieldCategory, name,
		log.FieldOperation, log.OpDelete)
	s.publish(ctx, core.ChangeEvent{Table: sheets.CategoriesTable, Op: core.ChangeDelete, Key: name, User: user})
	return true, nil
}
