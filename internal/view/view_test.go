package view

import (
	"strings"
	"testing"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
	"github.com/viralforge/fieldcapture/internal/workflow"
)

func capturingState(t *testing.T) workflow.State {
	t.Helper()
	cfg, err := domain.NewValidationConfig(domain.ConfigDocument{
		Defaults: domain.Defaults{NAltura: 5, NCompleto: 3},
		Validation: map[domain.Field]domain.Range{
			domain.FieldAltura:     {Min: 0, Max: 500},
			domain.FieldEstructura: {Min: 0, Max: 300},
			domain.FieldDiametro:   {Min: 1, Max: 80},
		},
	})
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return workflow.State{
		Phase:        workflow.PhaseFormBuilt,
		Auth:         &workflow.Auth{UserID: "adm", Role: domain.RoleAdmin, LoggedAt: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)},
		Config:       cfg,
		ActiveBlocks: []string{"B1", "B2"},
		Form:         workflow.Form{Bloque: "B1", Modo: domain.ModeCompleto, N: "2"},
		Grid:         grid.Build(cfg, domain.ModeCompleto, 2, nil),
		BuiltN:       2,
		Pending:      map[workflow.Kind]bool{},
	}
}

func TestBindLoginPage(t *testing.T) {
	t.Parallel()

	sc := Bind(workflow.State{Messages: workflow.Messages{Status: "Servidor OK · TZ=UTC", Login: "Validando…"}})
	if sc.Page != PageLogin || sc.Status != "Servidor OK · TZ=UTC" || sc.LoginMsg != "Validando…" {
		t.Fatalf("unexpected login screen %+v", sc)
	}
	if sc.SubmitEnabled || len(sc.Rows) != 0 {
		t.Fatalf("login page must not expose the grid")
	}
}

func TestBindCaptureScreen(t *testing.T) {
	t.Parallel()

	s := capturingState(t)
	sc := Bind(s)
	if sc.Page != PageCapture || !sc.ShowAdmin || sc.Fecha != "19/10/2026" {
		t.Fatalf("unexpected header %+v", sc)
	}
	if sc.ModeHint != "ALTURA default=5 · COMPLETO default=3" {
		t.Fatalf("unexpected mode hint %q", sc.ModeHint)
	}
	if sc.RangeHint != "Validaciones: altura [0, 500] cm · estructura [0, 300] cm · diámetro [1, 80] mm" {
		t.Fatalf("unexpected range hint %q", sc.RangeHint)
	}
	if len(sc.Columns) != 3 || len(sc.Rows) != 2 || len(sc.Rows[1].Cells) != 3 || sc.Rows[1].Index != 2 {
		t.Fatalf("unexpected grid projection: %d columns %d rows", len(sc.Columns), len(sc.Rows))
	}
	if !sc.BlockExists || !sc.BuildEnabled {
		t.Fatalf("B1 is active")
	}
	if sc.SubmitEnabled {
		t.Fatalf("empty grid must not enable submit")
	}
}

func TestSubmitEnabledTracksReadinessAndPending(t *testing.T) {
	t.Parallel()

	s := capturingState(t)
	for row := 1; row <= 2; row++ {
		for _, f := range s.Grid.Columns() {
			if err := s.Grid.Set(grid.Pos{Row: row, Field: f}, "10"); err != nil {
				t.Fatalf("set: %v", err)
			}
		}
	}
	if !Bind(s).SubmitEnabled {
		t.Fatalf("ready grid must enable submit")
	}
	s.Pending[workflow.KindSubmit] = true
	if Bind(s).SubmitEnabled {
		t.Fatalf("pending submit must disable submit")
	}
}

func TestBindBanners(t *testing.T) {
	t.Parallel()

	s := capturingState(t)
	s.Duplicate = &workflow.DuplicateWarning{Count: 2, Fecha: "2026-10-19"}
	s.Messages.Replace = "Modo REEMPLAZO activo: al enviar se reemplazará S-1."
	s.AdminOpen = true
	s.AdminSessions = []domain.SessionSummary{{SessionID: "S-1", Count: 4}}
	sc := Bind(s)
	if !strings.Contains(sc.Duplicate, "Ya existe(n) 2 sesión(es) vigentes HOY (2026-10-19)") {
		t.Fatalf("unexpected duplicate banner %q", sc.Duplicate)
	}
	if sc.ReplaceBanner == "" {
		t.Fatalf("expected replace banner")
	}
	if len(sc.AdminSessions) != 1 || sc.AdminSessions[0].Label != "S-1 · filas=4" {
		t.Fatalf("unexpected admin sessions %+v", sc.AdminSessions)
	}

	s.Auth.Role = domain.RoleOperator
	if sc := Bind(s); sc.AdminOpen || len(sc.AdminSessions) != 0 {
		t.Fatalf("operators never see the admin panel")
	}
	if BlockExists(s, " B9 ") || !BlockExists(s, " B2 ") {
		t.Fatalf("unexpected block existence checks")
	}
}
