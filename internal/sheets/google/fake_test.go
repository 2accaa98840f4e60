package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
)

// fakeSheets is a minimal in-memory Sheets API v4 server.
type fakeSheets struct {
	mu     sync.Mutex
	id     string
	sheets map[string][][]any
	order  []string
	calls  map[string]int
	// forbidden makes every request fail with 403
	forbidden bool
}

func newFakeSheets(id string, titles ...string) *fakeSheets {
	f := &fakeSheets{id: id, sheets: map[string][][]any{}, calls: map[string]int{}}
	for _, t := range titles {
		f.sheets[t] = nil
		f.order = append(f.order, t)
	}
	return f
}

func (f *fakeSheets) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeSheets) values(title string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return trimValues(f.sheets[title])
}

func (f *fakeSheets) set(title string, values [][]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sheets[title]; !ok {
		f.order = append(f.order, title)
	}
	f.sheets[title] = values
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.forbidden {
		writeError(w, http.StatusForbidden, "The caller does not have permission")
		return
	}

	prefix := "/v4/spreadsheets/" + f.id
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		f.calls["get"]++
		var sheets []map[string]any
		for _, t := range f.order {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		writeJSON(w, map[string]any{"spreadsheetId": f.id, "properties": map[string]any{"title": "Gastos"}, "sheets": sheets})

	case rest == ":batchUpdate" && r.Method == http.MethodPost:
		f.calls["batchUpdate"]++
		var body struct {
			Requests []struct {
				AddSheet *struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, req := range body.Requests {
			if req.AddSheet != nil {
				t := req.AddSheet.Properties.Title
				f.sheets[t] = nil
				f.order = append(f.order, t)
			}
		}
		writeJSON(w, map[string]any{"spreadsheetId": f.id})

	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		appendCall := strings.HasSuffix(rng, ":append")
		rng = strings.TrimSuffix(rng, ":append")
		title := sheetTitle(rng)
		cur, ok := f.sheets[title]
		if !ok {
			writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
			return
		}
		switch {
		case r.Method == http.MethodGet:
			f.calls["values.get"]++
			writeJSON(w, map[string]any{"range": rng, "majorDimension": "ROWS", "values": trimValues(cur)})
		case r.Method == http.MethodPut:
			f.calls["values.update"]++
			var vr struct {
				Values [][]any `json:"values"`
			}
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			for i, row := range vr.Values {
				for len(cur) <= i {
					cur = append(cur, nil)
				}
				for j, v := range row {
					for len(cur[i]) <= j {
						cur[i] = append(cur[i], "")
					}
					cur[i][j] = v
				}
			}
			f.sheets[title] = cur
			writeJSON(w, map[string]any{"spreadsheetId": f.id, "updatedRows": len(vr.Values)})
		case r.Method == http.MethodPost && appendCall:
			f.calls["values.append"]++
			var vr struct {
				Values [][]any `json:"values"`
			}
			if err := json.NewDecoder(r.Body).Decode(&vr); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			cur = trimValues(cur)
			cur = append(cur, vr.Values...)
			f.sheets[title] = cur
			writeJSON(w, map[string]any{"spreadsheetId": f.id})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}

	default:
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
	}
}

func sheetTitle(rng string) string {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[:i]
	}
	rng = strings.TrimPrefix(rng, "'")
	rng = strings.TrimSuffix(rng, "'")
	return strings.ReplaceAll(rng, "''", "'")
}

// trimValues drops trailing blank cells and rows, as the real API does.
func trimValues(in [][]any) [][]any {
	out := make([][]any, 0, len(in))
	for _, row := range in {
		end := len(row)
		for end > 0 && fmt.Sprint(row[end-1]) == "" {
			end--
		}
		out = append(out, append([]any(nil), row[:end]...))
	}
	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func newTestClient(t *testing.T, fake *fakeSheets, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	if cfg.Spreadsheet == "" {
		cfg.Spreadsheet = fake.id
	}
	c, err := NewClient(context.Background(), cfg,
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}
