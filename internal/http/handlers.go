package http

import (
	"context"
	"mime"
	"net/http"
	"strings"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/sheets"
	"gastos/internal/sheets/csvfile"

	"github.com/shopspring/decimal"
)

type movementView struct {
	core.Movement
	AmountDisplay string `json:"amount_display"`
}

type summaryView struct {
	core.Summary
	IncomeDisplay  string `json:"income_display"`
	ExpenseDisplay string `json:"expense_display"`
	NetDisplay     string `json:"net_display"`
}

type categoryTotalView struct {
	core.CategoryAmount
	AmountDisplay string `json:"amount_display"`
}

type movementsResponse struct {
	Movements        []movementView      `json:"movements"`
	Summary          summaryView         `json:"summary"`
	ByCategory       []categoryTotalView `json:"by_category"`
	IncomeByCategory []categoryTotalView `json:"income_by_category"`
	// Categories lists the categories present in range, for a category filter.
	Categories       []string            `json:"categories"`
}

type categoriesResponse struct {
	User       string   `json:"user"`
	Categories       []string            `json:"categories"`
}

func (s *Server) display(d decimal.Decimal) string { return s.currency.Amount(d) }

func (s *Server) movementView(m core.Movement) movementView {
	return movementView{Movement: m, AmountDisplay: s.display(m.Amount)}
}

func (s *Server) totalsView(totals []core.CategoryAmount) []categoryTotalView {
	out := make([]categoryTotalView, 0, len(totals))
	for _, t := range totals {
		out = append(out, categoryTotalView{CategoryAmount: t, AmountDisplay: s.display(t.Amount)})
	}
	return out
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	user := sanitizeInput(r.PathValue("user"))
	filter := ParseMovementFilter(r.URL.Query())
	// The category choices come from the movements in range before the
	// category filter narrows them.
	scope := filter
	scope.Categories = nil
	scoped, err := s.ledger.FindMovements(ctx, user, scope)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	ms := core.FilterMovements(scoped, core.MovementFilter{Categories: filter.Categories})

	if strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		s.writeMovementsCSV(w, r, user, ms)
		return
	}

	sum := core.Summarize(ms)
	resp := movementsResponse{
		Movements: make([]movementView, 0, len(ms)),
		Summary: summaryView{
			Summary:        sum,
			IncomeDisplay:  s.display(sum.Income),
			ExpenseDisplay: s.display(sum.Expense),
			NetDisplay:     s.display(sum.Net),
		},
		ByCategory:       s.totalsView(core.TotalsByCategory(ms, core.KindExpense)),
		IncomeByCategory: s.totalsView(core.TotalsByCategory(ms, core.KindIncome)),
		Categories:       append([]string{}, core.DistinctCategories(scoped)...),
	}
	for _, m := range ms {
		resp.Movements = append(resp.Movements, s.movementView(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeMovementsCSV(w http.ResponseWriter, r *http.Request, user string, ms []core.Movement) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": "movimientos_" + user + ".csv"}))
	w.WriteHeader(http.StatusOK)
	if err := csvfile.Export(w, sheets.MovementsTable, services.MovementRows(ms)); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to write CSV export",
			log.FieldUser, user,
			log.FieldError, err)
	}
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	in, err := ParseMovementInput(p, sanitizeInput(r.PathValue("user")))
	if err != nil {
		s.writeError(w, r, log.OpAppend, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	m, err := s.ledger.AddMovement(ctx, in)
	if err != nil {
		s.writeError(w, r, log.OpAppend, err)
		return
	}
	w.Header().Set("Location", "/api/movements/"+m.ID)
	writeJSON(w, http.StatusCreated, s.movementView(m))
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	id := sanitizeInput(r.PathValue("id"))
	removed, err := s.ledger.DeleteMovement(ctx, id)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "movement not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	user := sanitizeInput(r.PathValue("user"))
	cats, err := s.ledger.ListCategories(ctx, user)
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, categoriesResponse{User: user, Categories: cats})
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	user := sanitizeInput(r.PathValue("user"))
	name, err := s.ledger.AddCategory(ctx, user, p.Get("name"))
	if err != nil {
		s.writeError(w, r, log.OpAppend, err)
		return
	}
	writeJSON(w, http.StatusCreated, core.Category{User: user, Name: name})
}

// handleDeleteCategory refuses to remove a user's last category, since new
// movements could no longer be recorded.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	user := sanitizeInput(r.PathValue("user"))
	name := sanitizeInput(r.PathValue("name"))

	cats, err := s.ledger.ListCategories(ctx, user)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if len(cats) == 1 && strings.TrimSpace(cats[0]) == name {
		writeJSON(w, http.StatusConflict, errorBody{Error: "cannot delete the last category"})
		return
	}

	removed, err := s.ledger.DeleteCategory(ctx, user, name)
	if err != nil {
		s.writeError(w, r, log.OpDelete, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "category not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	table := sanitizeInput(r.URL.Query().Get("table"))
	if table != "" {
		if _, err := sheets.Lookup(table); err != nil {
			s.writeError(w, r, log.OpInvalidate, &core.ValidationError{Field: "table", Reason: "unknown table " + table})
			return
		}
	}
	s.ledger.Invalidate(table)
	log.FromContext(r.Context()).InfoContext(r.Context(), "Cache invalidated on request",
		log.FieldTable, table,
		log.FieldOperation, log.OpInvalidate)
	w.WriteHeader(http.StatusNoContent)
}
