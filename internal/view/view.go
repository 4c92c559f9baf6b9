// Package view projects workflow state onto screen regions. It holds no
// state of its own; every field of Screen is derived from workflow.State.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
	"github.com/viralforge/fieldcapture/internal/workflow"
)

type Page int

const (
	PageLogin Page = iota
	PageCapture
)

type Column struct {
	Field domain.Field
	Label string
}

type Row struct {
	Index int
	Cells []grid.Cell
}

type SessionItem struct {
	SessionID string
	Label     string
}

type Screen struct {
	Page     Page
	Status   string
	LoginMsg string

	User      string
	Role      string
	Fecha     string
	ShowAdmin bool
	AdminOpen bool

	ModeHint  string
	RangeHint string
	BlockHint string

	Bloque       string
	BlockExists  bool
	Modo         domain.Mode
	N            string
	Observacion  string
	FormMsg      string
	BuildEnabled bool

	Duplicate     string
	ReplaceBanner string

	Columns       []Column
	Rows          []Row
	SubmitEnabled bool
	Submitting    bool
	SubmitMsg     string
	FinalMsg      string

	AdminMsg      string
	AdminSessions []SessionItem
}

// BlockExists reports whether name is an active block.
func BlockExists(s workflow.State, name string) bool {
	return s.BlockActive(strings.TrimSpace(name))
}

// SubmitEnabled is the single readiness flag gating submission.
func SubmitEnabled(s workflow.State) bool {
	return s.Auth != nil && !s.Pending[workflow.KindSubmit] && s.Grid.Ready()
}

func Bind(s workflow.State) Screen {
	sc := Screen{
		Status:   s.Messages.Status,
		LoginMsg: s.Messages.Login,
	}
	if s.Auth == nil {
		sc.Page = PageLogin
		return sc
	}

	sc.Page = PageCapture
	sc.User = s.Auth.UserID
	sc.Role = s.Auth.Role
	sc.Fecha = s.Auth.LoggedAt.Format("02/01/2006")
	sc.ShowAdmin = s.Auth.Admin()
	sc.AdminOpen = sc.ShowAdmin && s.AdminOpen

	if s.Config.Loaded() {
		sc.ModeHint, sc.RangeHint = hints(s.Config)
	}
	sc.BlockHint = s.Messages.BlockHint

	sc.Bloque = s.Form.Bloque
	sc.BlockExists = BlockExists(s, s.Form.Bloque)
	sc.Modo = s.Form.Modo
	sc.N = s.Form.N
	sc.Observacion = s.Form.Observacion
	sc.FormMsg = s.Messages.Form
	sc.BuildEnabled = sc.BlockExists

	if s.Duplicate != nil {
		sc.Duplicate = fmt.Sprintf("Ya existe(n) %d sesión(es) vigentes HOY (%s) para este bloque/modo. Se permitirá guardar, pero se marcará DUPLICADO.", s.Duplicate.Count, s.Duplicate.Fecha)
	}
	sc.ReplaceBanner = s.Messages.Replace

	if s.Grid != nil {
		for _, f := range s.Grid.Columns() {
			sc.Columns = append(sc.Columns, Column{Field: f, Label: f.Label()})
		}
		width := len(sc.Columns)
		cells := s.Grid.Cells()
		for i := 0; i+width <= len(cells) && width > 0; i += width {
			sc.Rows = append(sc.Rows, Row{Index: cells[i].Row, Cells: cells[i : i+width]})
		}
	}
	sc.SubmitEnabled = SubmitEnabled(s)
	sc.Submitting = s.Pending[workflow.KindSubmit]
	sc.SubmitMsg = s.Messages.Submit
	sc.FinalMsg = s.Messages.Final

	if sc.AdminOpen {
		sc.AdminMsg = s.Messages.Admin
		for _, item := range s.AdminSessions {
			sc.AdminSessions = append(sc.AdminSessions, SessionItem{
				SessionID: item.SessionID,
				Label:     fmt.Sprintf("%s · filas=%d", item.SessionID, item.Count),
			})
		}
	}
	return sc
}

func hints(cfg domain.ValidationConfig) (mode string, ranges string) {
	d := cfg.Defaults()
	mode = fmt.Sprintf("ALTURA default=%d · COMPLETO default=%d", d.NAltura, d.NCompleto)
	parts := make([]string, 0, len(domain.AllFields))
	for _, f := range domain.AllFields {
		r := cfg.Range(f)
		name := strings.ToLower(strings.SplitN(f.Label(), " ", 2)[0])
		parts = append(parts, fmt.Sprintf("%s [%s, %s] %s", name, num(r.Min), num(r.Max), f.Unit()))
	}
	return mode, "Validaciones: " + strings.Join(parts, " · ")
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
