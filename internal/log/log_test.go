package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerTagsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: slog.LevelDebug}).WithComponent(ComponentLedger)
	l.Info("movement added", FieldUser, "felipe")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Fatalf("component should appear once: %s", out)
	}
	if !strings.Contains(out, "component=ledger") || !strings.Contains(out, "user=felipe") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestMiddlewareLogsAndSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf, Level: slog.LevelDebug})

	var seen string
	h := Middleware(l, func(*http.Request) string { return "10.0.0.1" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	h.ServeHTTP(rr, req)

	if seen != "req-42" || rr.Header().Get(HeaderRequestID) != "req-42" {
		t.Fatalf("request id = %q / %q", seen, rr.Header().Get(HeaderRequestID))
	}
	out := buf.String()
	for _, want := range []string{"request_id=req-42", "status_code=418", "level=WARN", "client_ip=10.0.0.1", "component=http"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestMiddlewareGeneratesRequestID(t *testing.T) {
	h := Middleware(Discard(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get(HeaderRequestID) == "" {
		t.Fatal("expected a generated request id")
	}
}
