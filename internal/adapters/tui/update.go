package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/view"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case resultMsg:
		follow := m.machine.Apply(msg.result)
		return m, tea.Batch(m.run(follow), m.sync())
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			return m, tea.Quit
		}
		m.notice = ""
		cmd := m.handleKey(msg)
		return m, tea.Batch(cmd, m.sync())
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.screen().Page == view.PageLogin {
		return m.loginKey(msg)
	}

	switch msg.Type {
	case tea.KeyTab:
		return m.cycle(1)
	case tea.KeyShiftTab:
		return m.cycle(-1)
	case tea.KeyCtrlB:
		return m.buildForm()
	case tea.KeyCtrlS:
		if !view.SubmitEnabled(m.machine.State()) {
			return nil
		}
		calls, _ := m.machine.Submit()
		return m.run(calls)
	case tea.KeyCtrlL:
		m.machine.Clear()
		m.bloque = ""
		return nil
	case tea.KeyCtrlR:
		calls, _ := m.machine.ReloadBlocks()
		return m.run(calls)
	case tea.KeyCtrlA:
		if err := m.machine.ToggleAdmin(); err != nil {
			m.notice = domain.UserMessage(err)
		}
		return nil
	case tea.KeyCtrlF:
		return m.findSessions()
	case tea.KeyCtrlO:
		m.focus = widgetUser
		m.user, m.pin, m.bloque = "", "", ""
		return m.run(m.machine.Logout())
	}

	switch m.focus {
	case widgetBloque:
		m.bloque = edit(m.bloque, msg)
	case widgetModo:
		switch msg.Type {
		case tea.KeySpace, tea.KeyLeft, tea.KeyRight:
			return m.run(m.machine.ChangeMode(m.machine.State().Form.Modo.Toggle()))
		}
	case widgetN:
		m.machine.SetN(edit(m.machine.State().Form.N, msg))
	case widgetObs:
		m.machine.SetObservation(edit(m.machine.State().Form.Observacion, msg))
	case widgetGrid:
		m.gridKey(msg)
	case widgetAdmin:
		return m.adminKey(msg)
	}
	return nil
}

func (m *Model) loginKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab:
		return m.cycle(1)
	case tea.KeyEnter:
		if m.focus == widgetUser {
			return m.setFocus(widgetPIN)
		}
		calls, _ := m.machine.Login(m.user, m.pin)
		return m.run(calls)
	}
	if m.focus == widgetUser {
		m.user = edit(m.user, msg)
	} else {
		m.pin = edit(m.pin, msg)
	}
	return nil
}

func (m *Model) buildForm() tea.Cmd {
	bloque := m.bloque
	if m.focus != widgetBloque {
		bloque = m.machine.State().Form.Bloque
	}
	state := m.machine.State()
	calls, err := m.machine.BuildForm(bloque, state.Form.Modo, state.Form.N)
	m.bloque = m.machine.State().Form.Bloque
	cmd := m.run(calls)
	if err != nil {
		return cmd
	}
	return tea.Batch(cmd, m.setFocus(widgetGrid))
}

func (m *Model) findSessions() tea.Cmd {
	if !m.screen().AdminOpen {
		return nil
	}
	bloque := m.machine.State().Form.Bloque
	if m.focus == widgetBloque {
		bloque = m.bloque
	}
	calls, _ := m.machine.FindSessions(bloque, m.machine.State().Form.Modo)
	return m.run(calls)
}

func (m *Model) gridKey(msg tea.KeyMsg) {
	g := m.machine.State().Grid
	switch msg.Type {
	case tea.KeyEnter:
		if next, ok := m.machine.FocusNext(m.cursor); ok {
			m.cursor = next
		}
		return
	case tea.KeyUp:
		m.cursor = g.Move(m.cursor, -1, 0)
		return
	case tea.KeyDown:
		m.cursor = g.Move(m.cursor, 1, 0)
		return
	case tea.KeyLeft:
		m.cursor = g.Move(m.cursor, 0, -1)
		return
	case tea.KeyRight:
		m.cursor = g.Move(m.cursor, 0, 1)
		return
	}
	if msg.Paste {
		if _, handled := m.machine.PasteCell(m.cursor, string(msg.Runes)); handled {
			return
		}
	}
	if err := m.machine.EditCell(m.cursor, edit(g.Text(m.cursor), msg)); err != nil {
		m.notice = domain.UserMessage(err)
	}
}

func (m *Model) adminKey(msg tea.KeyMsg) tea.Cmd {
	sessions := m.screen().AdminSessions
	switch msg.Type {
	case tea.KeyUp:
		m.adminIdx = clamp(m.adminIdx-1, 0, len(sessions)-1)
	case tea.KeyDown:
		m.adminIdx = clamp(m.adminIdx+1, 0, len(sessions)-1)
	case tea.KeyEnter:
		if m.adminIdx < len(sessions) {
			calls, _ := m.machine.LoadForReplace(sessions[m.adminIdx].SessionID)
			return m.run(calls)
		}
	}
	return nil
}

// edit applies a text-editing key to s. Keys that do not edit leave s as is.
func edit(s string, msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeyRunes:
		return s + string(msg.Runes)
	case tea.KeySpace:
		return s + " "
	case tea.KeyBackspace:
		r := []rune(s)
		if len(r) == 0 {
			return s
		}
		return string(r[:len(r)-1])
	}
	return s
}
