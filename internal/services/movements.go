package services

import (
	"context"
	"fmt"
	"strings"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/sheets"
)

// ListMovements returns the user's movements in storage order.
func (s *RecordStore) ListMovements(ctx context.Context, user string) ([]core.Movement, error) {
	t, err := s.read(ctx, sheets.MovementsTable)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	user = strings.TrimSpace(user)
	out := make([]core.Movement, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r[sheets.ColUser] == user {
			out = append(out, movementFromRow(r))
		}
	}
	return out, nil
}

// FindMovements lists the user's movements that pass f.
func (s *RecordStore) FindMovements(ctx context.Context, user string, f core.MovementFilter) ([]core.Movement, error) {
	ms, err := s.ListMovements(ctx, user)
	if err != nil {
		return nil, err
	}
	return core.FilterMovements(ms, f), nil
}

// AddMovement validates in, stores it under a fresh id and returns the stored
// movement. The category must be one of the user's categories; it is stored
// with the user's spelling.
func (s *RecordStore) AddMovement(ctx context.Context, in core.MovementInput) (core.Movement, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Movement{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cats, err := s.categories(ctx, in.User)
	if err != nil {
		return core.Movement{}, fmt.Errorf("add movement: %w", err)
	}
	category, ok := matchName(cats, in.Category)
	if !ok {
		return core.Movement{}, &core.ValidationError{
			Field:  "category",
			Reason: fmt.Sprintf("%q is not one of the user's categories", in.Category),
			Err:    core.ErrUnknownCategory,
		}
	}

	m := core.Movement{
		ID:          s.newID(),
		User:        in.User,
		Timestamp:   in.Timestamp,
		Amount:      in.Amount,
		Description: in.Description,
		Category:    category,
		Kind:        in.Kind,
	}
	if m.Timestamp == "" {
		m.Timestamp = core.FormatTimestamp(s.now())
	}

	err = s.appendRow(ctx, sheets.MovementsTable, movementToRow(m))
	s.Invalidate(sheets.MovementsTable)
	if err != nil {
		return core.Movement{}, fmt.Errorf("add movement: %w", err)
	}

	s.logger.InfoContext(ctx, "Movement added", log.NewFields().
		WithMovement(m.ID, m.User, m.Amount.String(), m.Category, m.Kind.String()).
		WithOperation(log.OpAppend).ToSlice()...)
	s.publish(ctx, core.ChangeEvent{Table: sheets.MovementsTable, Op: core.ChangeAdd, Key: m.ID, User: m.User})
	return m, nil
}

// DeleteMovement removes the movement with the given id. It reports false,
// without writing, when no such movement exists. Rows sharing the id, which
// only hand edits of the medium can produce, all go.
func (s *RecordStore) DeleteMovement(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.medium.ReadTable(ctx, sheets.MovementsTable)
	if err != nil {
		return false, fmt.Errorf("delete movement: %w", err)
	}
	kept := make([]sheets.Row, 0, len(t.Rows))
	var removed sheets.Row
	for _, r := range t.Rows {
		if r[sheets.ColID] == id {
			removed = r
			continue
		}
		kept = append(kept, r)
	}
	if removed == nil {
		return false, nil
	}

	err = s.medium.WriteTable(ctx, sheets.MovementsTable, kept)
	s.Invalidate(sheets.MovementsTable)
	if err != nil {
		return false, fmt.Errorf("delete movement: %w", err)
	}

	s.logger.InfoContext(ctx, "Movement deleted",
		log.FieldMovementID, id,
		log.FieldUser, removed[sheets.ColUser],
		log.FieldOperation, log.OpDelete)
	s.publish(ctx, core.ChangeEvent{Table: sheets.MovementsTable, Op: core.ChangeDelete, Key: id, User: removed[sheets.ColUser]})
	return true, nil
}
