package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrQuit is returned by [Run] when the user quit the UI.
var ErrQuit = errors.New("tui: quit")

// Run shows the UI on the terminal until the user quits or ctx is done.
func Run(ctx context.Context, p *Presenter, controls Controls, opts ...Option) error {
	prog := tea.NewProgram(NewModel(ctx, p, controls, opts...),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := prog.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tui: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrQuit
}
