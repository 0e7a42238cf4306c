// Package health serves the liveness, readiness and status endpoints.
//
//   - /healthz: liveness; always 200 while the process serves HTTP.
//   - /readyz: 200 only when every registered [Checker] passes.
//   - /status: the current session snapshot as JSON, when a [StatusFunc] is
//     configured.
//
// Health responses carry a top-level "status" field ("ok" or "fail") and a
// "checks" map with the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency
// is usable.
type Checker struct {
	// Name is the key in the JSON response, e.g. "recognizer" or "journal".
	Name string

	// Check tests the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// StatusFunc returns a JSON-encodable snapshot of the running session.
type StatusFunc func(ctx context.Context) (any, error)

// result is the JSON body of the health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithChecker adds a readiness check.
func WithChecker(c Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, c) }
}

// WithStatus enables /status.
func WithStatus(fn StatusFunc) Option {
	return func(h *Handler) { h.status = fn }
}

// Handler serves the health endpoints. The configuration is fixed at
// construction time.
type Handler struct {
	checkers []Checker
	status   StatusFunc
}

// New creates a [Handler].
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz runs every checker concurrently, each with a [checkTimeout]
// deadline, and reports 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Checks: checks}
	code := http.StatusOK
	if !allOK {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Status writes the session snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.status == nil {
		http.NotFound(w, r)
		return
	}
	v, err := h.status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, result{Status: "fail", Checks: map[string]string{"status": err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if h.status != nil {
		mux.HandleFunc("GET /status", h.Status)
	}
}

// ErrNotConfigured is reported by [Configured] checkers.
var ErrNotConfigured = errors.New("not configured")

// Configured returns a checker that fails while ok reports false, e.g. when
// the speech recognizer has no credentials.
func Configured(name string, ok func() bool) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !ok() {
			return ErrNotConfigured
		}
		return nil
	}}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
