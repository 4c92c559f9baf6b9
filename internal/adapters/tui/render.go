package tui

import (
	"fmt"
	"strings"

	"github.com/viralforge/fieldcapture/internal/view"
)

const keyHelp = "Tab/Shift+Tab campos · Ctrl+B crear · Ctrl+S enviar · Ctrl+L limpiar · Ctrl+R bloques · Ctrl+A admin · Ctrl+F buscar · Ctrl+O salir · Ctrl+C cerrar"

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sc := m.screen()
	var b strings.Builder
	if sc.Page == view.PageLogin {
		m.renderLogin(&b, sc)
	} else {
		m.renderCapture(&b, sc)
	}
	if m.notice != "" {
		fmt.Fprintf(&b, "\n! %s\n", m.notice)
	}
	return b.String()
}

func (m Model) renderLogin(b *strings.Builder, sc view.Screen) {
	b.WriteString("Captura de muestras · Ingreso\n\n")
	fmt.Fprintf(b, "%s Usuario: %s\n", m.marker(widgetUser), m.user)
	fmt.Fprintf(b, "%s PIN:     %s\n", m.marker(widgetPIN), strings.Repeat("•", len([]rune(m.pin))))
	line(b, sc.LoginMsg)
	b.WriteString("\n")
	line(b, sc.Status)
	b.WriteString("Enter ingresar · Ctrl+C cerrar\n")
}

func (m Model) renderCapture(b *strings.Builder, sc view.Screen) {
	fmt.Fprintf(b, "Usuario: %s (%s) · %s\n", sc.User, sc.Role, sc.Fecha)
	line(b, sc.Status)
	line(b, sc.ModeHint)
	line(b, sc.RangeHint)
	line(b, sc.BlockHint)
	b.WriteString("\n")

	bloque := sc.Bloque
	if m.focus == widgetBloque {
		bloque = m.bloque
	}
	mark := ""
	if bloque != "" && !view.BlockExists(m.machine.State(), bloque) {
		mark = "  (no ACTIVO)"
	}
	fmt.Fprintf(b, "%s Bloque: %s%s\n", m.marker(widgetBloque), bloque, mark)
	fmt.Fprintf(b, "%s Modo:   %s\n", m.marker(widgetModo), sc.Modo)
	fmt.Fprintf(b, "%s N:      %s\n", m.marker(widgetN), sc.N)
	fmt.Fprintf(b, "%s Obs.:   %s\n", m.marker(widgetObs), sc.Observacion)
	line(b, sc.FormMsg)
	line(b, sc.Duplicate)
	line(b, sc.ReplaceBanner)

	if len(sc.Rows) > 0 {
		b.WriteString("\n   #")
		for _, c := range sc.Columns {
			fmt.Fprintf(b, " | %-18s", c.Label)
		}
		b.WriteString("\n")
		for _, row := range sc.Rows {
			fmt.Fprintf(b, "%4d", row.Index)
			for _, cell := range row.Cells {
				text := cell.Text
				if cell.Invalid {
					text += " ✗"
				}
				left, right := " ", " "
				if m.focus == widgetGrid && cell.Pos == m.cursor {
					left, right = "[", "]"
				}
				fmt.Fprintf(b, " |%s%-17s%s", left, text, right)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case sc.Submitting:
		b.WriteString("Enviando…\n")
	case sc.SubmitEnabled:
		b.WriteString("Listo para enviar (Ctrl+S)\n")
	}
	line(b, sc.SubmitMsg)
	line(b, sc.FinalMsg)

	if sc.AdminOpen {
		b.WriteString("\n── Admin ──\n")
		line(b, sc.AdminMsg)
		for i, item := range sc.AdminSessions {
			cursor := "  "
			if m.focus == widgetAdmin && i == m.adminIdx {
				cursor = "> "
			}
			fmt.Fprintf(b, "%s%s\n", cursor, item.Label)
		}
	}
	b.WriteString("\n" + keyHelp + "\n")
}

func (m Model) marker(w widget) string {
	if m.focus == w {
		return ">"
	}
	return " "
}

func line(b *strings.Builder, s string) {
	if s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
}
