// Package tui is the terminal front end. Keys and pastes become workflow
// intents; backend calls run as tea.Cmds and come back as resultMsg.
package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/viralforge/fieldcapture/internal/grid"
	"github.com/viralforge/fieldcapture/internal/ports"
	"github.com/viralforge/fieldcapture/internal/view"
	"github.com/viralforge/fieldcapture/internal/workflow"
)

type widget int

const (
	widgetUser widget = iota
	widgetPIN
	widgetBloque
	widgetModo
	widgetN
	widgetObs
	widgetGrid
	widgetAdmin
)

type resultMsg struct {
	result workflow.Result
}

// Model owns the machine. Update is the only place the machine is touched.
type Model struct {
	ctx     context.Context
	machine *workflow.Machine
	backend ports.Backend

	focus  widget
	user   string
	pin    string
	bloque string
	cursor grid.Pos

	adminIdx int
	notice   string
	width    int
	quitting bool
}

func New(ctx context.Context, machine *workflow.Machine, backend ports.Backend) Model {
	return Model{ctx: ctx, machine: machine, backend: backend, focus: widgetUser}
}

func (m Model) Init() tea.Cmd {
	return m.run(m.machine.Init())
}

// run turns calls into commands. Each command performs one call off the
// update loop.
func (m Model) run(calls []workflow.Call) tea.Cmd {
	if len(calls) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(calls))
	for _, call := range calls {
		call := call
		cmds = append(cmds, func() tea.Msg {
			return resultMsg{result: workflow.Perform(m.ctx, m.backend, call)}
		})
	}
	return tea.Batch(cmds...)
}

func (m Model) screen() view.Screen {
	return view.Bind(m.machine.State())
}

// widgets lists the focusable widgets of the current page in tab order.
func (m Model) widgets() []widget {
	sc := m.screen()
	if sc.Page == view.PageLogin {
		return []widget{widgetUser, widgetPIN}
	}
	out := []widget{widgetBloque, widgetModo, widgetN, widgetObs}
	if len(sc.Rows) > 0 {
		out = append(out, widgetGrid)
	}
	if sc.AdminOpen && len(sc.AdminSessions) > 0 {
		out = append(out, widgetAdmin)
	}
	return out
}

// sync keeps focus on a widget that exists on the current page.
func (m *Model) sync() tea.Cmd {
	ws := m.widgets()
	for _, w := range ws {
		if w != m.focus {
			continue
		}
		switch w {
		case widgetGrid:
			g := m.machine.State().Grid
			if _, ok := g.Cell(m.cursor); !ok {
				m.cursor, _ = g.First()
			}
		case widgetAdmin:
			m.adminIdx = clamp(m.adminIdx, 0, len(m.screen().AdminSessions)-1)
		}
		return nil
	}
	return m.setFocus(ws[0])
}

// setFocus moves focus to w. Leaving the bloque field commits its text.
func (m *Model) setFocus(w widget) tea.Cmd {
	if m.focus == w {
		return nil
	}
	var calls []workflow.Call
	if m.focus == widgetBloque {
		calls = m.machine.ChangeBlock(m.bloque)
	}
	m.focus = w
	switch w {
	case widgetBloque:
		m.bloque = m.machine.State().Form.Bloque
	case widgetGrid:
		m.cursor, _ = m.machine.State().Grid.First()
	case widgetAdmin:
		m.adminIdx = 0
	}
	return m.run(calls)
}

// cycle moves focus by delta through the page's widgets, wrapping.
func (m *Model) cycle(delta int) tea.Cmd {
	ws := m.widgets()
	at := 0
	for i, w := range ws {
		if w == m.focus {
			at = i
		}
	}
	next := ((at+delta)%len(ws) + len(ws)) % len(ws)
	return m.setFocus(ws[next])
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
