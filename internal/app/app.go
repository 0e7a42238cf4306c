// Package app wires all speakeasy subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the event loop, the recognizer dispatcher, the
// HTTP server and the terminal UI, and Shutdown tears everything down in
// order.
//
// For testing, inject doubles via functional options (WithJournalStore,
// WithPresenter, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/speakeasy/internal/command"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/health"
	"github.com/MrWong99/speakeasy/internal/journal"
	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/internal/listen"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/present/sound"
	"github.com/MrWong99/speakeasy/internal/present/tui"
	"github.com/MrWong99/speakeasy/internal/present/wsbridge"
	"github.com/MrWong99/speakeasy/internal/sched"
	"github.com/MrWong99/speakeasy/internal/session"
	"github.com/MrWong99/speakeasy/internal/steps"
	"github.com/MrWong99/speakeasy/internal/transcript"
	"github.com/MrWong99/speakeasy/internal/transcript/phonetic"
	"github.com/MrWong99/speakeasy/internal/voice"
	"github.com/MrWong99/speakeasy/internal/voicecmd"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// keywordBoost is the boost sent with every command phrase to recognizers
// that support vocabulary biasing.
const keywordBoost = 2

// Providers holds the speech backends. Populated by main via the config
// registry.
type Providers struct {
	// STT is the recognizer, usually a failover group. Nil when no provider
	// has credentials; listening then reports the service as not
	// configured.
	STT stt.Provider

	// STTNames lists the recognizers behind STT in failover order.
	STTNames []string

	// Source captures audio. An *audio.PushSource is fed by the WebSocket
	// bridge.
	Source audio.Source
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	loop       *sched.Loop
	timers     *sched.Timers
	machine    *session.Machine
	controller *listen.Controller
	service    *voice.STTService
	dispatcher *voicecmd.Dispatcher
	presenter  present.Presenter
	recorder   *journal.Recorder
	hub        *wsbridge.Hub
	tui        *tui.Presenter
	health     *health.Handler
	server     *http.Server

	// observers receive machine events. The machine is built before the
	// dispatcher, so it forwards through this slice.
	observers []session.Observer

	// Injected or defaulted dependencies.
	store        journal.Store
	extra        []present.Presenter
	metrics      *observe.Metrics
	metricsHTTP  http.Handler
	levelVar     *slog.LevelVar
	logger       *slog.Logger
	soundOptions []sound.Option
	headless     bool

	// life bounds recognizer activations. Shutdown cancels it; the
	// context passed to New only contributes values.
	life    context.Context
	endLife context.CancelFunc

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithJournalStore injects a journal store instead of opening the configured
// backend.
func WithJournalStore(s journal.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPresenter adds a presenter to the fan-out.
func WithPresenter(p present.Presenter) Option {
	return func(a *App) { a.extra = append(a.extra, p) }
}

// WithMetrics sets the metrics sink and the handler served at /metrics.
// Either may be nil.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		if m != nil {
			a.metrics = m
		}
		a.metricsHTTP = handler
	}
}

// WithLevelVar lets hot reload change the log level.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithSoundOptions passes options to the sound presenter, e.g. a player
// that does not need an audio device.
func WithSoundOptions(opts ...sound.Option) Option {
	return func(a *App) { a.soundOptions = opts }
}

// WithHeadless disables the terminal UI regardless of ui.mode.
func WithHeadless() Option {
	return func(a *App) { a.headless = true }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. providers comes from
// main (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		metrics:   observe.DefaultMetrics(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	a.loop = sched.NewLoop(0)
	a.timers = sched.NewTimers(a.loop)
	a.closers = append(a.closers, func() error { a.timers.Stop(); return nil })
	a.life, a.endLife = context.WithCancel(context.WithoutCancel(ctx))
	a.closers = append(a.closers, func() error { a.endLife(); return nil })

	// ── 1. Journal ───────────────────────────────────────────────────────
	if err := a.initJournal(ctx); err != nil {
		return nil, fmt.Errorf("app: init journal: %w", err)
	}

	// ── 2. Presenters ────────────────────────────────────────────────────
	if err := a.initPresenters(); err != nil {
		return nil, fmt.Errorf("app: init presenters: %w", err)
	}

	// ── 3. Session machine ───────────────────────────────────────────────
	if err := a.initMachine(); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	// ── 4. Recognizer + listening ────────────────────────────────────────
	interp, table, err := BuildInterpreter(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: init interpreter: %w", err)
	}
	a.initListening(table.Keywords())

	// ── 5. Dispatcher ────────────────────────────────────────────────────
	dopts := []voicecmd.Option{voicecmd.WithLoop(a.loop), voicecmd.WithMetrics(a.metrics)}
	if a.recorder != nil {
		dopts = append(dopts, voicecmd.WithJournal(a.recorder))
	}
	a.dispatcher = voicecmd.New(a.service, a.machine, a.controller, a.presenter, interp, dopts...)
	a.observers = append(a.observers, a.dispatcher)
	if a.recorder != nil {
		a.observers = append(a.observers, a.recorder)
	}
	if a.hub != nil {
		// The hub is not serving yet.
		wsbridge.WithControls(a.dispatcher)(a.hub)
	}

	// ── 6. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initJournal opens the configured backend unless a store was injected.
func (a *App) initJournal(ctx context.Context) error {
	if a.store == nil {
		store, err := OpenJournal(ctx, a.cfg.Journal)
		if err != nil {
			return err
		}
		a.store = store
	}
	if a.store == nil {
		return nil
	}
	a.recorder = journal.NewRecorder(a.store,
		journal.WithBuffer(a.cfg.Journal.Buffer),
		journal.WithStoreTranscripts(a.cfg.Privacy.StoreTranscripts),
		journal.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.recorder.Close)
	return nil
}

// OpenJournal opens the store for cfg.Backend. It returns a nil store for
// the none backend.
func OpenJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Backend {
	case config.JournalSQLite:
		return journal.OpenSQLite(ctx, cfg.Path)
	case config.JournalPostgres:
		return journal.OpenPostgres(ctx, cfg.DSN)
	case config.JournalFile:
		return journal.NewFileStore(cfg.Path), nil
	case config.JournalNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}

// initPresenters builds the fan-out: log, terminal UI, sounds, bridge and
// any injected presenters.
func (a *App) initPresenters() error {
	multi := present.Multi{present.NewLog(a.logger)}

	if a.cfg.UI.Mode == config.UIModeTUI && !a.headless {
		a.tui = tui.NewPresenter()
		multi = append(multi, a.tui)
	}

	if a.cfg.UI.Sounds.Enabled {
		sp, err := sound.New(a.cfg.UI.Sounds, a.soundOptions...)
		if err != nil {
			return err
		}
		multi = append(multi, sp)
	}

	if a.cfg.Bridge.Enabled {
		hopts := []wsbridge.Option{
			wsbridge.WithMetrics(a.metrics),
			wsbridge.WithOriginPatterns(a.cfg.Bridge.OriginPatterns...),
		}
		if push, ok := a.providers.Source.(*audio.PushSource); ok {
			hopts = append(hopts, wsbridge.WithAudio(push, a.cfg.Voice.SampleRate, 1))
		}
		a.hub = wsbridge.New(hopts...)
		multi = append(multi, a.hub)
	}

	multi = append(multi, a.extra...)
	a.presenter = multi
	return nil
}

// initMachine builds the steps and the session state machine.
func (a *App) initMachine() error {
	stepCfg := a.cfg.Session.Steps
	if len(stepCfg) == 0 {
		stepCfg = steps.Default()
	}
	built, err := steps.Build(stepCfg, a.presenter, a.timers)
	if err != nil {
		return err
	}
	forward := session.ObserverFunc(func(e session.Event) {
		for _, o := range a.observers {
			o.SessionEvent(e)
		}
	})
	a.machine, err = session.New(built, a.presenter, a.timers,
		session.WithCommandTimeout(a.cfg.Session.CommandTimeout),
		session.WithObserver(forward),
		session.WithLogger(a.logger),
	)
	return err
}

// initListening builds the recognizer service and the listening controller.
func (a *App) initListening(keywords []string) {
	boosts := make([]types.KeywordBoost, len(keywords))
	for i, k := range keywords {
		boosts[i] = types.KeywordBoost{Keyword: k, Boost: keywordBoost}
	}
	a.service = voice.NewSTTService(a.providers.STT, a.providers.Source,
		voice.WithListenTimeout(a.cfg.Voice.ListenTimeout),
		voice.WithMetrics(a.metrics),
		voice.WithStreamConfig(stt.StreamConfig{
			SampleRate: a.cfg.Voice.SampleRate,
			Channels:   1,
			Language:   a.cfg.Voice.Language,
			Keywords:   boosts,
		}),
	)
	a.closers = append(a.closers, a.service.Close)
	if c, ok := a.providers.STT.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if a.providers.Source != nil {
		a.closers = append(a.closers, a.providers.Source.Close)
	}

	l := a.cfg.Listening
	a.controller = listen.New(a.service, a.timers, a.presenter, a.machine.State,
		listen.WithMaxRetries(l.MaxRetries),
		listen.WithAcceptRestartDelay(l.AcceptRestartDelay),
		listen.WithErrorRestartDelay(l.ErrorRestartDelay),
		listen.WithAbortRestartDelay(l.AbortRestartDelay),
		listen.WithIdleReactivate(l.IdleReactivate),
		listen.WithQuickRetry(l.QuickRetry),
		listen.WithConfigured(a.providers.STT != nil && a.providers.Source != nil),
		listen.WithMetrics(a.metrics),
		listen.WithLifetime(a.life),
	)
}

// BuildInterpreter builds the command interpreter for cfg's vocabulary and
// matching settings.
func BuildInterpreter(cfg *config.Config) (*command.Interpreter, lexicon.Table, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, table, err
	}
	normOpts := []transcript.Option{transcript.WithThreshold(cfg.Matching.SimilarityThreshold)}
	if cfg.Matching.Phonetic {
		normOpts = append(normOpts, transcript.WithPhonetic(phonetic.New()))
	}
	interp := command.NewInterpreter(table,
		command.WithNormalizerOptions(normOpts...),
		command.WithIntentThreshold(cfg.Matching.IntentThreshold),
	)
	return interp, table, nil
}

// initHTTP builds the health, metrics and bridge endpoints.
func (a *App) initHTTP() {
	hopts := []health.Option{
		health.WithChecker(health.Configured("recognizer", func() bool {
			return a.providers.STT != nil && a.providers.Source != nil
		})),
		health.WithChecker(health.Checker{Name: "recognizer_circuits", Check: a.checkCircuits}),
		health.WithStatus(a.Status),
	}
	if a.store != nil {
		hopts = append(hopts, health.WithChecker(health.Checker{
			Name: "journal",
			Check: func(ctx context.Context) error {
				_, err := a.store.Recent(ctx, "", 1)
				return err
			},
		}))
	}
	a.health = health.New(hopts...)

	if a.cfg.Server.ListenAddr == "" {
		return
	}
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.metricsHTTP != nil {
		mux.Handle("GET /metrics", a.metricsHTTP)
	}
	if a.hub != nil {
		mux.Handle(a.cfg.Bridge.Path, a.hub)
	}
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the HTTP handler for health, status, metrics and the
// bridge. Nil when no listen address is configured.
func (a *App) Handler() http.Handler {
	if a.server == nil {
		return nil
	}
	return a.server.Handler
}

// Dispatcher returns the command dispatcher, e.g. for manual controls.
func (a *App) Dispatcher() *voicecmd.Dispatcher { return a.dispatcher }

// ─── Run ─────────────────────────────────────────────────────────────────────

// ErrQuit is returned by Run when the user quit from the terminal UI.
var ErrQuit = tui.ErrQuit

// Run shows the welcome screen, starts listening and blocks until ctx is
// cancelled or the user quits the terminal UI.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.loop.Run(gctx) })
	g.Go(func() error { return a.dispatcher.Run(gctx) })

	if a.server != nil {
		g.Go(func() error { return a.serve(gctx) })
	}
	if a.tui != nil {
		g.Go(func() error {
			return tui.Run(gctx, a.tui, a.dispatcher)
		})
	}

	a.loop.Post(func() {
		a.presenter.ShowWelcome()
		if err := a.controller.StartListening(gctx); err != nil {
			a.logger.Warn("listening not started", "err", err)
		}
	})

	a.logger.Info("speakeasy running",
		"recognizer", a.providers.STTNames,
		"steps", len(a.machine.Steps()),
		"ui", a.cfg.UI.Mode,
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", "err", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
