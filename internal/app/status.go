package app

import (
	"context"
	"errors"

	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/internal/session"
)

// errCircuitsOpen fails readiness while every recognizer is cooling down.
var errCircuitsOpen = errors.New("all recognizer circuits open")

// recognizerHealth is implemented by failover groups such as
// [resilience.STTFallback].
type recognizerHealth interface {
	Health() []resilience.EntryHealth
	Available() bool
}

// Status is the JSON body of GET /status.
type Status struct {
	Session    session.Snapshot         `json:"session"`
	Listening  bool                     `json:"listening"`
	Retries    int                      `json:"retries"`
	Configured bool                     `json:"configured"`
	Recognizer []resilience.EntryHealth `json:"recognizer,omitempty"`
	Clients    int                      `json:"bridge_clients"`
}

// Status reads the session and listening state on the event loop.
func (a *App) Status(ctx context.Context) (any, error) {
	var st Status
	err := a.loop.Do(ctx, func() {
		st = Status{
			Session:    a.machine.Snapshot(),
			Listening:  a.controller.Listening(),
			Retries:    a.controller.Retries(),
			Configured: a.controller.Configured(),
		}
	})
	if err != nil {
		return nil, err
	}
	st.Recognizer = a.recognizers()
	if a.hub != nil {
		st.Clients = a.hub.Clients()
	}
	return st, nil
}

// recognizers lists the configured recognizers with their circuit state.
// Providers without breakers are reported as closed.
func (a *App) recognizers() []resilience.EntryHealth {
	if rh, ok := a.providers.STT.(recognizerHealth); ok {
		return rh.Health()
	}
	out := make([]resilience.EntryHealth, len(a.providers.STTNames))
	for i, n := range a.providers.STTNames {
		out[i] = resilience.EntryHealth{Name: n, State: resilience.StateClosed}
	}
	return out
}

// checkCircuits is the readiness check for recognizer failover.
func (a *App) checkCircuits(context.Context) error {
	if rh, ok := a.providers.STT.(recognizerHealth); ok && !rh.Available() {
		return errCircuitsOpen
	}
	return nil
}
