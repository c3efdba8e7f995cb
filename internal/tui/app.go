package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/prefs"
)

// Run starts the TUI application against opts.Host
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(opts)
	model.restorePrefs(opts.Defaults)

	// Subscribe before announcing readiness so no outbound message is missed
	ch, err := opts.Host.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribing to host: %w", err)
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	model.out.OnError(func(err error) { p.Send(SendErrorMsg{Err: err}) })
	go model.out.run(ctx)
	go forwardHost(ctx, p, ch)

	model.out.Send(domain.ReadyMsg{})
	model.out.Send(domain.VisibleMsg{})

	final, runErr := p.Run()
	if errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil {
		runErr = nil
	}

	if fm, ok := final.(Model); ok {
		fm.savePrefs()
	} else {
		model.savePrefs()
	}

	// An attached viewer leaves the server streaming without a consumer
	if opts.Attached {
		hideCtx, hideCancel := context.WithTimeout(context.Background(), constants.DefaultRequestTimeout)
		if err := opts.Host.Send(hideCtx, domain.HiddenMsg{}); err != nil {
			log.WithError(err).Debug("announcing hidden viewer")
		}
		hideCancel()
	}

	return runErr
}

// forwardHost forwards outbound messages to the TUI program.
// It exits when the context is cancelled or the channel is closed.
func forwardHost(ctx context.Context, p *tea.Program, ch <-chan domain.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				p.Send(HostClosedMsg{})
				return
			}
			p.Send(HostMsg{Msg: msg})
		}
	}
}

// restorePrefs applies the saved view state, or defaults when none was saved
func (m *Model) restorePrefs(defaults domain.ViewState) {
	state := prefs.Load(m.prefsPath)
	if state == (domain.ViewState{}) {
		state = defaults
	}
	m.engine.RestoreState(state)
	if state.Serial != "" {
		m.serial = state.Serial
	}
}

// savePrefs stores the view state for the next run
func (m Model) savePrefs() {
	state := m.engine.State()
	if m.serial != "" {
		state.Serial = m.serial
	}
	if err := prefs.Save(m.prefsPath, state); err != nil {
		log.WithError(err).Debug("saving preferences")
	}
}
