package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Reload is one accepted version of the config file, compared against the
// version it replaces.
type Reload struct {
	Prev *Config
	Next *Config
	Diff ConfigDiff
}

// fileVersion identifies what the watcher last read from disk.
type fileVersion struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a config file and hands every effective change to a
// callback as a [Reload].
//
// A new version is parsed with the watcher's load options and diffed
// against the current one. Versions that only touch the file, or that
// parse to an identical config (comments, key order), are not delivered.
// A version that fails to load is rejected once and the current config
// stays in place until the file changes again.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(Reload)
	reject   func(error)
	load     []LoadOption

	mu   sync.Mutex
	cur  *Config
	seen fileVersion

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Zero or less keeps
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLoadOptions passes opts to every load, e.g. [WithLookup] and
// [WithOverride] so environment and flag overrides survive a reload.
func WithLoadOptions(opts ...LoadOption) WatcherOption {
	return func(w *Watcher) { w.load = append(w.load, opts...) }
}

// WithOnError sets the callback for rejected versions. The default logs a
// warning.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.reject = fn }
}

// NewWatcher loads path and starts polling it. apply may be nil. It is
// called from the polling goroutine, one reload at a time.
func NewWatcher(path string, apply func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		apply:    apply,
		reject: func(err error) {
			slog.Warn("config: keeping previous config", "err", err)
		},
		stop: make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	v, data, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), w.load...)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.cur, w.seen = cfg, v

	go w.run()
	return w, nil
}

// Current returns the config of the last accepted version.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cur
}

// Stop ends polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

func (w *Watcher) run() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if r, ok := w.poll(); ok && w.apply != nil {
				w.apply(r)
			}
		}
	}
}

// poll reads the file if its mtime moved and returns the resulting reload,
// if any.
func (w *Watcher) poll() (Reload, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Debug("config: stat failed", "path", w.path, "err", err)
		return Reload{}, false
	}
	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return Reload{}, false
	}

	v, data, err := w.read()
	if err != nil {
		slog.Debug("config: read failed", "path", w.path, "err", err)
		return Reload{}, false
	}

	w.mu.Lock()
	same := v.sum == w.seen.sum
	// Recording the version before parsing reports a broken file once.
	w.seen = v
	w.mu.Unlock()
	if same {
		return Reload{}, false
	}

	next, err := LoadFromReader(bytes.NewReader(data), w.load...)
	if err != nil {
		w.reject(fmt.Errorf("config: reload %q: %w", w.path, err))
		return Reload{}, false
	}

	w.mu.Lock()
	r := Reload{Prev: w.cur, Next: next, Diff: Diff(w.cur, next)}
	w.cur = next
	w.mu.Unlock()

	if r.Diff.Empty() {
		slog.Debug("config: file changed without effect", "path", w.path)
		return Reload{}, false
	}
	slog.Info("config: new version accepted",
		"path", w.path,
		"hot", r.Diff.Reloadable(),
		"restart_required", r.Diff.RestartRequired,
	)
	return r, true
}

// read returns the file contents and their version.
func (w *Watcher) read() (fileVersion, []byte, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileVersion{}, nil, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fileVersion{}, nil, err
	}
	return fileVersion{mtime: info.ModTime(), sum: sha256.Sum256(data)}, data, nil
}
