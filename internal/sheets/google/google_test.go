package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gastos/internal/core"
	ports "gastos/internal/sheets"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
)

func TestSpreadsheetID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0", "1AbC-d_9"},
		{"https://docs.google.com/spreadsheets/d/1AbC-d_9", "1AbC-d_9"},
		{"  1AbC-d_9 ", "1AbC-d_9"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SpreadsheetID(tt.in); got != tt.want {
			t.Errorf("SpreadsheetID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClientRequiresSpreadsheet(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	if !errors.Is(err, core.ErrBackingStore) || !errors.Is(err, core.ErrMissingResource) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), Config{Spreadsheet: "abc"})
	if !errors.Is(err, core.ErrMissingCredentials) {
		t.Fatalf("err = %v, want missing credentials", err)
	}
}

func TestNewClientUnreadableCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := NewClient(context.Background(), Config{Spreadsheet: "abc", CredentialsFile: path})
	var bse *core.BackingStoreError
	if !errors.As(err, &bse) {
		t.Fatalf("err = %v, want BackingStoreError", err)
	}
	if bse.Resource != path || !errors.Is(err, core.ErrMissingCredentials) {
		t.Fatalf("err = %+v", bse)
	}
}

func TestNewClientForbidden(t *testing.T) {
	fake := newFakeSheets("sheet-1")
	fake.forbidden = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := NewClient(context.Background(), Config{Spreadsheet: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	var bse *core.BackingStoreError
	if !errors.As(err, &bse) {
		t.Fatalf("err = %v, want BackingStoreError", err)
	}
	if bse.Op != "open spreadsheet" || bse.Resource != "sheet-1" {
		t.Fatalf("err = %+v", bse)
	}
}

func TestWrapNamesServiceAccount(t *testing.T) {
	c := &Client{serviceAccount: "ledger@project.iam.gserviceaccount.com"}
	err := c.wrap("open spreadsheet", "sheet-1", &googleapi.Error{Code: http.StatusForbidden, Message: "denied"})
	if !strings.Contains(err.Error(), "ledger@project.iam.gserviceaccount.com") {
		t.Fatalf("err = %v, want service account hint", err)
	}

	err = c.wrap("read", "gastos", &googleapi.Error{Code: http.StatusNotFound, Message: "gone"})
	if !errors.Is(err, core.ErrMissingResource) {
		t.Fatalf("err = %v, want missing resource", err)
	}
}

func TestReadCreatesMissingWorksheet(t *testing.T) {
	fake := newFakeSheets("sheet-1")
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.MovementsTable: "gastos"}})

	tbl, err := c.ReadTable(context.Background(), ports.MovementsTable)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if tbl.Exists() || len(tbl.Rows) != 0 {
		t.Fatalf("got exists=%v rows=%d", tbl.Exists(), len(tbl.Rows))
	}
	if fake.count("batchUpdate") != 1 {
		t.Fatalf("batchUpdate calls = %d, want 1", fake.count("batchUpdate"))
	}

	// second read goes to the now existing worksheet
	if _, err := c.ReadTable(context.Background(), ports.MovementsTable); err != nil {
		t.Fatal(err)
	}
	if fake.count("batchUpdate") != 1 || fake.count("values.get") != 1 {
		t.Fatalf("calls = %v", fake.calls)
	}
}

func TestReadLegacyHeader(t *testing.T) {
	fake := newFakeSheets("sheet-1", "gastos")
	fake.set("gastos", [][]any{
		{"Id", "Usuario", "Fecha", "Monto", "Nombre", "Categoría"},
		{"1", "felipe", "2023-05-01 12:00", float64(15000), "Almuerzo", "Comida"},
		{},
		{"2", "felipe", "2023-05-02 12:00", "12,5", "Cafe", "Comida"},
	})
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.MovementsTable: "gastos"}})

	tbl, err := c.ReadTable(context.Background(), ports.MovementsTable)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(tbl.Rows))
	}
	if got := tbl.Rows[0]["amount"]; got != "15000" {
		t.Errorf("amount = %q", got)
	}
	if got := tbl.Rows[1]["kind"]; got != "Expense" {
		t.Errorf("kind = %q", got)
	}
	if missing := ports.Movements.Missing(tbl.Stored); len(missing) != 1 || missing[0] != "kind" {
		t.Errorf("missing = %v", missing)
	}
}

func TestWriteTableIsSinglePaddedUpdate(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets("sheet-1", "categorias")
	fake.set("categorias", [][]any{
		{"user", "category", "notes"},
		{"ana", "Comida", "x"},
		{"ana", "Ocio"},
		{"ana", "Otros"},
	})
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.CategoriesTable: "categorias"}})

	err := c.WriteTable(ctx, ports.CategoriesTable, []ports.Row{{"user": "ana", "category": "Ocio"}})
	if err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if got := fake.count("values.update"); got != 1 {
		t.Fatalf("values.update calls = %d, want 1", got)
	}

	got := fake.values("categorias")
	if len(got) != 2 {
		t.Fatalf("values = %v, want header and one row", got)
	}
	if len(got[0]) != 2 || got[0][0] != "user" || got[0][1] != "category" {
		t.Errorf("header = %v", got[0])
	}
	if got[1][1] != "Ocio" {
		t.Errorf("row = %v", got[1])
	}
}

func TestWriteTableAmountIsNumber(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets("sheet-1", "gastos")
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.MovementsTable: "gastos"}})

	rows := []ports.Row{{"id": "1", "user": "felipe", "timestamp": "2024-01-02 10:00", "amount": "15000", "description": "Almuerzo", "category": "Comida", "kind": "Expense"}}
	if err := c.WriteTable(ctx, ports.MovementsTable, rows); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	got := fake.values("gastos")
	if len(got) != 2 {
		t.Fatalf("values = %v", got)
	}
	if _, ok := got[1][3].(float64); !ok {
		t.Fatalf("amount cell = %#v, want a number", got[1][3])
	}

	tbl, err := c.ReadTable(ctx, ports.MovementsTable)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Rows[0]["amount"] != "15000" || tbl.Rows[0]["description"] != "Almuerzo" {
		t.Fatalf("row = %v", tbl.Rows[0])
	}
}

func TestAppendRowUsesStoredHeaderOrder(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets("sheet-1", "categorias")
	fake.set("categorias", [][]any{{"Categoría", "Usuario"}, {"Comida", "ana"}})
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.CategoriesTable: "categorias"}})

	if err := c.AppendRow(ctx, ports.CategoriesTable, ports.Row{"user": "ana", "category": "Ocio"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	if fake.count("values.append") != 1 {
		t.Fatalf("values.append calls = %d", fake.count("values.append"))
	}
	got := fake.values("categorias")
	if len(got) != 3 || got[2][0] != "Ocio" || got[2][1] != "ana" {
		t.Fatalf("values = %v", got)
	}
}

func TestAppendRowToNewWorksheetWritesHeader(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets("sheet-1")
	c := newTestClient(t, fake, Config{})

	if err := c.AppendRow(ctx, ports.CategoriesTable, ports.Row{"user": "ana", "category": "Ocio"}); err != nil {
		t.Fatalf("AppendRow: %v", err)
	}
	got := fake.values(ports.CategoriesTable)
	if len(got) != 2 || got[0][0] != "user" || got[1][1] != "Ocio" {
		t.Fatalf("values = %v", got)
	}
}

func TestLayoutInvalidatedAfterExternalGrowth(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets("sheet-1", "categorias")
	fake.set("categorias", [][]any{{"user", "category"}, {"ana", "A"}, {"ana", "B"}})
	c := newTestClient(t, fake, Config{Worksheets: map[string]string{ports.CategoriesTable: "categorias"}})

	if _, err := c.ReadTable(ctx, ports.CategoriesTable); err != nil {
		t.Fatal(err)
	}
	// someone else grows the sheet; the remembered layout is stale until dropped
	fake.set("categorias", [][]any{{"user", "category"}, {"ana", "A"}, {"ana", "B"}, {"ana", "C"}, {"ana", "D"}})
	c.InvalidateLayout()

	if err := c.WriteTable(ctx, ports.CategoriesTable, []ports.Row{{"user": "ana", "category": "A"}}); err != nil {
		t.Fatal(err)
	}
	if got := fake.values("categorias"); len(got) != 2 {
		t.Fatalf("values = %v, want only header and one row", got)
	}
}

func TestCredentialsFromFileAreParsed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account","client_email":"ledger@p.iam.gserviceaccount.com"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	data, source, err := loadCredentials(Config{CredentialsFile: path})
	if err != nil {
		t.Fatal(err)
	}
	if source != path {
		t.Errorf("source = %q", source)
	}
	if got := serviceAccountEmail(data); got != "ledger@p.iam.gserviceaccount.com" {
		t.Errorf("email = %q", got)
	}

	data, source, _ = loadCredentials(Config{CredentialsFile: path, CredentialsJSON: `{"client_email":"inline@x"}`})
	if source != "GOOGLE_CREDENTIALS_JSON" || !strings.Contains(string(data), "inline@x") {
		t.Errorf("inline JSON should win, got source %q", source)
	}
}
