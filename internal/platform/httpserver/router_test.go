package httpserver

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestProbes(t *testing.T) {
	cases := []struct {
		name     string
		cfg      RouterConfig
		path     string
		wantCode int
		wantBody string
	}{
		{"liveness", RouterConfig{}, "/healthz", http.StatusOK, "ok"},
		{"ready without check", RouterConfig{}, "/readyz", http.StatusOK, "ready"},
		{"ready check passes", RouterConfig{ReadyFunc: func() error { return nil }}, "/readyz", http.StatusOK, "ready"},
		{"ready check fails", RouterConfig{ReadyFunc: func() error { return errors.New("postgres: ping timeout") }},
			"/readyz", http.StatusServiceUnavailable, "not ready: postgres: ping timeout"},
	}
	for _, c := range cases {
		r := chi.NewRouter()
		SetupRouter(r, c.cfg)
		rr := serve(r, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rr.Code != c.wantCode || rr.Body.String() != c.wantBody {
			t.Fatalf("%s: got %d %q, want %d %q", c.name, rr.Code, rr.Body.String(), c.wantCode, c.wantBody)
		}
	}
}

func TestAccessLog_RecordsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := chi.NewRouter()
	SetupRouter(r, RouterConfig{Logger: zap.New(core)})
	r.Post("/v1/courses/{course_id}/quizzes/{quiz_id}/complete", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/courses/c1/quizzes/1/complete", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	if rr := serve(r, req); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("access log must not alter the status, got %d", rr.Code)
	}

	entries := logs.FilterMessage("http request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["method"] != http.MethodPost || fields["path"] != "/v1/courses/c1/quizzes/1/complete" {
		t.Fatalf("unexpected method/path fields: %v", fields)
	}
	if fields["status"] != int64(http.StatusTooManyRequests) || fields["bytes"] != int64(len("slow down")) {
		t.Fatalf("unexpected status/bytes fields: %v", fields)
	}
	if fields["request_id"] != "req-42" {
		t.Fatalf("expected request id in log, got %v", fields["request_id"])
	}
}

func TestAccessLog_DisabledWithoutLogger(t *testing.T) {
	r := chi.NewRouter()
	SetupRouter(r)
	if rr := serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	long := strings.Repeat("x", 129)
	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"minted when absent", "", false},
		{"kept when supplied", "abc-123", true},
		{"trimmed and kept", "  abc-123  ", true},
		{"kept at the cap", strings.Repeat("y", 128), true},
		{"replaced over the cap", long, false},
	}
	for _, c := range cases {
		var seen string
		h := RequestIDMiddleware("")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			seen = RequestIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.incoming != "" {
			req.Header.Set(RequestIDHeader, c.incoming)
		}
		rr := serve(h, req)

		if seen == "" || rr.Header().Get(RequestIDHeader) != seen {
			t.Fatalf("%s: context %q and header %q must match", c.name, seen, rr.Header().Get(RequestIDHeader))
		}
		if got := seen == strings.TrimSpace(c.incoming); got != c.keep {
			t.Fatalf("%s: kept=%v, want %v (id %q)", c.name, got, c.keep, seen)
		}
	}
}

func TestRequestIDMiddleware_CustomHeader(t *testing.T) {
	h := RequestIDMiddleware("X-Correlation-Id")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-Id", "corr-1")
	if got := serve(h, req).Header().Get("X-Correlation-Id"); got != "corr-1" {
		t.Fatalf("expected corr-1, got %q", got)
	}
}

func TestCORS_PreflightAllowsEventStreamResume(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://lems.example")
	r := chi.NewRouter()
	SetupRouter(r)
	r.Get("/v1/progress/events", func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodOptions, "/v1/progress/events", nil)
	req.Header.Set("Origin", "https://lems.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Last-Event-ID")
	rr := serve(r, req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://lems.example" {
		t.Fatalf("expected configured origin, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(strings.ToLower(rr.Header().Get("Access-Control-Allow-Headers")), "last-event-id") {
		t.Fatalf("expected Last-Event-ID to be allowed, got %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestParseCORSOrigins(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", []string{"*"}},
		{" , ", []string{"*"}},
		{"https://lems.example", []string{"https://lems.example"}},
		{"https://lems.example , https://www.lems.example", []string{"https://lems.example", "https://www.lems.example"}},
	}
	for _, c := range cases {
		if got := parseCORSOrigins(c.raw); !slices.Equal(got, c.want) {
			t.Fatalf("parseCORSOrigins(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}
