package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/session"
)

// DefaultBuffer is the number of entries a [Recorder] queues before it
// starts dropping.
const DefaultBuffer = 256

// writeTimeout bounds a single store write.
const writeTimeout = 5 * time.Second

var _ session.Observer = (*Recorder)(nil)

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithBuffer sets the queue size.
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.buffer = n
		}
	}
}

// WithStoreTranscripts keeps raw transcripts. Without it every transcript is
// replaced by [RedactedText].
func WithStoreTranscripts(v bool) RecorderOption {
	return func(r *Recorder) { r.storeTranscripts = v }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides time.Now for entry timestamps.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// Recorder queues entries and writes them to a [Store] from a background
// goroutine. Record never blocks; when the queue is full the entry is
// dropped and counted.
type Recorder struct {
	store            Store
	buffer           int
	storeTranscripts bool
	metrics          *observe.Metrics
	now              func() time.Time

	mu     sync.Mutex
	closed bool
	ch     chan Entry
	done   chan struct{}
}

// NewRecorder starts a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		buffer:  DefaultBuffer,
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.ch = make(chan Entry, r.buffer)
	go r.run()
	return r
}

// Record queues e. A zero At is set to the current time.
func (r *Recorder) Record(e Entry) {
	if e.At.IsZero() {
		e.At = r.now().UTC()
	}
	if !r.storeTranscripts && e.Transcript != "" {
		e.Transcript = RedactedText
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- e:
	default:
		r.metrics.JournalDropped.Add(context.Background(), 1)
		slog.Warn("journal: queue full, dropping entry", "kind", e.Kind, "session_id", e.SessionID)
	}
}

// SessionEvent implements [session.Observer].
func (r *Recorder) SessionEvent(e session.Event) {
	entry := Entry{
		SessionID: e.SessionID,
		Kind:      string(e.Kind),
		State:     e.To.String(),
		Step:      e.Step,
	}
	if e.Command != 0 {
		entry.Command = e.Command.String()
	}
	r.Record(entry)
}

// Recent reads from the underlying store.
func (r *Recorder) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	return r.store.Recent(ctx, sessionID, limit)
}

// Close stops accepting entries, writes what is queued and closes the store.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.ch)
	r.mu.Unlock()

	<-r.done
	return r.store.Close()
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.store.Append(ctx, e); err != nil {
			slog.Warn("journal: write failed", "kind", e.Kind, "error", err)
		}
		cancel()
	}
}
