package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	h := New(WithChecker(Configured("recognizer", func() bool { return false })))

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	ok := func(context.Context) error { return nil }
	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "journal", Check: ok}, Configured("recognizer", func() bool { return true })},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"journal": "ok", "recognizer": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "journal", Check: func(context.Context) error { return errors.New("database is locked") }},
				Configured("recognizer", func() bool { return true }),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"journal": "fail: database is locked", "recognizer": "ok"},
		},
		{
			name:       "recognizer without credentials",
			checkers:   []Checker{Configured("recognizer", func() bool { return false })},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"recognizer": "fail: not configured"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts []Option
			for _, c := range tt.checkers {
				opts = append(opts, WithChecker(c))
			}
			code, body := readyz(t, New(opts...), context.Background())
			if code != tt.wantCode || body.Status != tt.wantStatus {
				t.Errorf("got %d %q, want %d %q", code, body.Status, tt.wantCode, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_RunsChecksConcurrently(t *testing.T) {
	t.Parallel()
	var inFlight, peak atomic.Int32
	slow := func(context.Context) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	h := New(WithChecker(Checker{Name: "a", Check: slow}), WithChecker(Checker{Name: "b", Check: slow}))

	if code, _ := readyz(t, h, context.Background()); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if peak.Load() != 2 {
		t.Errorf("peak concurrent checks = %d, want 2", peak.Load())
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(WithChecker(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	type snapshot struct {
		State string `json:"state"`
		Index int    `json:"index"`
	}
	h := New(WithStatus(func(context.Context) (any, error) {
		return snapshot{State: "active", Index: 2}, nil
	}))
	mux := http.NewServeMux()
	h.Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if got.State != "active" || got.Index != 2 {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestStatus_Error(t *testing.T) {
	t.Parallel()
	h := New(WithStatus(func(context.Context) (any, error) {
		return nil, errors.New("loop stopped")
	}))
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRegister_Routes(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New().Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/status", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", tc.path, nil))
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
