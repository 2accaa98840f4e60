package services

import (
	"strings"

	"gastos/internal/core"
	"gastos/internal/sheets"
)

func movementFromRow(r sheets.Row) core.Movement {
	return core.Movement{
		ID:          r[sheets.ColID],
		User:        r[sheets.ColUser],
		Timestamp:   r[sheets.ColTimestamp],
		Amount:      core.AmountFromCell(r[sheets.ColAmount]),
		Description: r[sheets.ColDescription],
		Category:    r[sheets.ColCategory],
		Kind:        core.ParseKind(r[sheets.ColKind]),
	}
}

func movementToRow(m core.Movement) sheets.Row {
	return sheets.Row{
		sheets.ColID:          m.ID,
		sheets.ColUser:        m.User,
		sheets.ColTimestamp:   m.Timestamp,
		sheets.ColAmount:      core.AmountToCell(m.Amount),
		sheets.ColDescription: m.Description,
		sheets.ColCategory:    m.Category,
		sheets.ColKind:        m.Kind.String(),
	}
}

// MovementRows converts movements to rows of the movements table, e.g. for
// export.
func MovementRows(ms []core.Movement) []sheets.Row {
	rows := make([]sheets.Row, 0, len(ms))
	for _, m := range ms {
		rows = append(rows, movementToRow(m))
	}
	return rows
}

func categoryRow(user, name string) sheets.Row {
	return sheets.Row{sheets.ColUser: user, sheets.ColCategory: name}
}

// userCategories returns the distinct category names of user in storage
// order. Names differing only in case count once, first spelling wins.
func userCategories(rows []sheets.Row, user string) []string {
	var out []string
	for _, r := range rows {
		if r[sheets.ColUser] != user {
			continue
		}
		name := strings.TrimSpace(r[sheets.ColCategory])
		if name == "" || containsName(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func containsName(names []string, name string) bool {
	_, ok := matchName(names, name)
	return ok
}

// matchName finds name among names case-insensitively and returns the stored
// spelling.
func matchName(names []string, name string) (string, bool) {
	for _, n := range names {
		if core.SameName(n, name) {
			return n, true
		}
	}
	return "", false
}
