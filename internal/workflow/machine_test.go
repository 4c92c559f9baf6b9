package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
	"github.com/viralforge/fieldcapture/internal/ports"
)

type recordedCall struct {
	Action string
	Params map[string]any
}

type fakeBackend struct {
	handlers map[string]func(params map[string]any) map[string]any
	calls    []recordedCall
}

func newFakeBackend() *fakeBackend {
	f := &fakeBackend{}
	f.handlers = map[string]func(map[string]any) map[string]any{
		domain.ActionDefaults: func(map[string]any) map[string]any {
			return map[string]any{
				"ok":       true,
				"defaults": map[string]any{"nAltura": 5, "nCompleto": 3},
				"validation": map[string]any{
					"altura_cm":     map[string]any{"min": 0, "max": 500},
					"estructura_cm": map[string]any{"min": 0, "max": 300},
					"diametro_mm":   map[string]any{"min": 1, "max": 80},
				},
			}
		},
		domain.ActionPing: func(map[string]any) map[string]any {
			return map[string]any{"ok": true, "tz": "America/Guayaquil"}
		},
		domain.ActionAuth: func(p map[string]any) map[string]any {
			switch {
			case p["user_id"] == "op1" && p["pin"] == "1234":
				return map[string]any{"ok": true, "user": map[string]any{"user_id": "op1", "role": "operator"}}
			case p["user_id"] == "adm" && p["pin"] == "9999":
				return map[string]any{"ok": true, "user": map[string]any{"user_id": "adm", "role": "admin"}}
			default:
				return map[string]any{"ok": false, "error": "Usuario o PIN inválido."}
			}
		},
		domain.ActionGetBlocks: func(map[string]any) map[string]any {
			return map[string]any{"ok": true, "bloques": []string{"B1", "B2"}}
		},
		domain.ActionListSessionsToday: func(map[string]any) map[string]any {
			return map[string]any{"ok": true, "sessions": []any{}, "fecha": "2026-10-19"}
		},
		domain.ActionSubmit: func(map[string]any) map[string]any {
			return map[string]any{"ok": true, "session_id": "S-new", "duplicate_warning": false, "inserted": 5}
		},
		domain.ActionGetSession: func(p map[string]any) map[string]any {
			return map[string]any{"ok": true, "session": map[string]any{
				"session_id":  p["session_id"],
				"bloque":      "B2",
				"modo":        "COMPLETO",
				"n":           2,
				"observacion": "",
				"samples": []any{
					map[string]any{"altura_cm": 100, "estructura_cm": 40, "diametro_mm": 12},
					map[string]any{"altura_cm": 120, "estructura_cm": 45, "diametro_mm": 14},
				},
			}}
		},
		domain.ActionReplaceSession: func(map[string]any) map[string]any {
			return map[string]any{"ok": true, "session_id_new": "S-2", "replacedCount": 2, "inserted": 2}
		},
	}
	return f
}

func (f *fakeBackend) Call(_ context.Context, action string, data map[string]any) (ports.Reply, error) {
	f.calls = append(f.calls, recordedCall{Action: action, Params: data})
	h, ok := f.handlers[action]
	if !ok {
		return toReply(map[string]any{"ok": false, "error": "acción desconocida"}), nil
	}
	return toReply(h(data)), nil
}

func (f *fakeBackend) actions() []string {
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Action)
	}
	return out
}

func (f *fakeBackend) count(action string) int {
	n := 0
	for _, c := range f.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (f *fakeBackend) last(action string) (recordedCall, bool) {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Action == action {
			return f.calls[i], true
		}
	}
	return recordedCall{}, false
}

func toReply(v map[string]any) ports.Reply {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var reply ports.Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		panic(err)
	}
	return reply
}

func loggedIn(t *testing.T, userID, pin string) (*Driver, *fakeBackend) {
	t.Helper()
	backend := newFakeBackend()
	machine := New(Config{Now: func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) }})
	d := NewDriver(machine, backend)
	ctx := context.Background()
	d.Run(ctx, machine.Init())
	if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.Login(userID, pin) }); err != nil {
		t.Fatalf("login: %v", err)
	}
	if machine.State().Auth == nil {
		t.Fatalf("expected authenticated state, login message %q", machine.State().Messages.Login)
	}
	return d, backend
}

func build(t *testing.T, d *Driver, bloque string, modo domain.Mode, n string) {
	t.Helper()
	err := d.Do(context.Background(), func(m *Machine) ([]Call, error) { return m.BuildForm(bloque, modo, n) })
	if err != nil {
		t.Fatalf("build form: %v", err)
	}
}

func fill(t *testing.T, m *Machine, values map[domain.Field]string) {
	t.Helper()
	g := m.State().Grid
	for row := 1; row <= g.Rows(); row++ {
		for _, f := range g.Columns() {
			if err := m.EditCell(grid.Pos{Row: row, Field: f}, values[f]); err != nil {
				t.Fatalf("edit row %d %s: %v", row, f, err)
			}
		}
	}
}

func TestInitAndLoginFlow(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	s := d.Machine.State()
	want := []string{domain.ActionDefaults, domain.ActionPing, domain.ActionAuth, domain.ActionGetBlocks}
	got := backend.actions()
	if len(got) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, got)
		}
	}
	if s.Phase != PhaseIdle {
		t.Fatalf("expected idle phase, got %s", s.Phase)
	}
	if s.Messages.Status != "Servidor OK · TZ=America/Guayaquil" {
		t.Fatalf("unexpected status %q", s.Messages.Status)
	}
	if s.Messages.BlockHint != "2 bloques ACTIVO cargados." {
		t.Fatalf("unexpected block hint %q", s.Messages.BlockHint)
	}
	if s.Form.Modo != domain.ModeAltura || s.Form.N != "5" {
		t.Fatalf("expected ALTURA with default n, got %+v", s.Form)
	}
	if s.Auth.Role != domain.RoleOperator {
		t.Fatalf("expected operator role, got %q", s.Auth.Role)
	}
}

func TestLoginRejectedStaysUnauthenticated(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	machine := New(Config{})
	d := NewDriver(machine, backend)
	d.Run(context.Background(), machine.Init())
	if err := d.Do(context.Background(), func(m *Machine) ([]Call, error) { return m.Login("op1", "0000") }); err != nil {
		t.Fatalf("login intent: %v", err)
	}
	s := machine.State()
	if s.Auth != nil || s.Phase != PhaseUnauthenticated {
		t.Fatalf("expected unauthenticated state, got phase %s", s.Phase)
	}
	if s.Messages.Login != "Usuario o PIN inválido." {
		t.Fatalf("unexpected login message %q", s.Messages.Login)
	}
	if backend.count(domain.ActionGetBlocks) != 0 {
		t.Fatalf("blocks must not load after a failed login")
	}
}

func TestMissingValidationRangeIsFatal(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.handlers[domain.ActionDefaults] = func(map[string]any) map[string]any {
		return map[string]any{
			"ok":         true,
			"defaults":   map[string]any{"nAltura": 5, "nCompleto": 3},
			"validation": map[string]any{"altura_cm": map[string]any{"min": 0, "max": 500}},
		}
	}
	machine := New(Config{})
	d := NewDriver(machine, backend)
	d.Run(context.Background(), machine.Init())
	if !errors.Is(machine.State().ConfigErr, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", machine.State().ConfigErr)
	}
	if _, err := machine.Login("op1", "1234"); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected login to be refused with config error, got %v", err)
	}
	if backend.count(domain.ActionPing) != 0 || backend.count(domain.ActionAuth) != 0 {
		t.Fatalf("no call may follow a broken config, got %v", backend.actions())
	}
}

func TestBuildFormPreconditions(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	m := d.Machine

	_, err := m.BuildForm("B9", domain.ModeAltura, "5")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || m.State().Messages.Form != "Bloque inválido/no ACTIVO." {
		t.Fatalf("expected inactive block rejection, got %v", err)
	}
	for _, n := range []string{"0", "-2", "abc", "2.5", ""} {
		m.SetN(n)
		if _, err := m.BuildForm("B1", domain.ModeAltura, ""); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected n %q to be rejected, got %v", n, err)
		}
		if m.State().Grid != nil {
			t.Fatalf("rejected build must not create a grid")
		}
	}

	build(t, d, "B1", domain.ModeAltura, "5")
	s := m.State()
	if s.Phase != PhaseFormBuilt || s.Grid.Len() != 5 || s.BuiltN != 5 {
		t.Fatalf("expected 5-row ALTURA grid, got phase %s len %d", s.Phase, s.Grid.Len())
	}
	dup, ok := backend.last(domain.ActionListSessionsToday)
	if !ok || dup.Params["bloque"] != "B1" || dup.Params["modo"] != domain.ModeAltura {
		t.Fatalf("expected duplicate check for B1/ALTURA, got %+v", dup)
	}
}

func TestReadinessScenario(t *testing.T) {
	t.Parallel()

	d, _ := loggedIn(t, "op1", "1234")
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})
	if !m.State().Grid.Ready() {
		t.Fatalf("expected ready grid")
	}
	row3 := grid.Pos{Row: 3, Field: domain.FieldAltura}
	if err := m.EditCell(row3, "501"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if m.State().Grid.Ready() {
		t.Fatalf("501 must disable submission")
	}
	if err := m.EditCell(row3, "250"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !m.State().Grid.Ready() {
		t.Fatalf("250 must re-enable submission")
	}
}

func TestDuplicateWarningDoesNotBlockSubmit(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	backend.handlers[domain.ActionListSessionsToday] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true, "fecha": "2026-10-19", "sessions": []any{
			map[string]any{"session_id": "S-a", "count": 5},
			map[string]any{"session_id": "S-b", "count": 5},
		}}
	}
	backend.handlers[domain.ActionSubmit] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true, "session_id": "S-new", "duplicate_warning": true}
	}
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	dup := m.State().Duplicate
	if dup == nil || dup.Count != 2 || dup.Fecha != "2026-10-19" {
		t.Fatalf("expected duplicate warning for 2 sessions, got %+v", dup)
	}

	fill(t, m, map[domain.Field]string{domain.FieldAltura: "120"})
	if err := d.Do(context.Background(), (*Machine).Submit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	s := m.State()
	if s.Messages.Submit != "OK. session_id=S-new. Filas=5. (DUPLICADO marcado)" {
		t.Fatalf("unexpected submit message %q", s.Messages.Submit)
	}
	if s.Grid != nil || s.BuiltN != 0 || s.Phase != PhaseDone {
		t.Fatalf("plain submit must tear down the grid, got phase %s", s.Phase)
	}
	if _, err := m.Submit(); !errors.Is(err, domain.ErrValidation) || s.Messages.Final == "" {
		t.Fatalf("resubmission without a new build must be refused, got %v", err)
	}
}

func TestSubmitAbortsOnFirstBadRow(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	build(t, d, "B1", domain.ModeCompleto, "3")
	m := d.Machine
	fill(t, m, map[domain.Field]string{
		domain.FieldAltura:     "100",
		domain.FieldEstructura: "50",
		domain.FieldDiametro:   "10",
	})
	if err := m.EditCell(grid.Pos{Row: 2, Field: domain.FieldDiametro}, "81"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	calls, err := m.Submit()
	var ve *domain.ValidationError
	if !errors.As(err, &ve) || ve.Row != 2 || ve.Field != domain.FieldDiametro {
		t.Fatalf("expected row 2 diametro failure, got %v", err)
	}
	if len(calls) != 0 || backend.count(domain.ActionSubmit) != 0 {
		t.Fatalf("no call may be issued for an invalid grid")
	}
	if got := m.State().Messages.Submit; got != "Error: Diámetro inválido en muestra 2" {
		t.Fatalf("unexpected submit message %q", got)
	}
}

func TestSubmitRequiresBuiltGrid(t *testing.T) {
	t.Parallel()

	d, _ := loggedIn(t, "op1", "1234")
	m := d.Machine
	m.ChangeBlock("B1")
	if _, err := m.Submit(); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if got := m.State().Messages.Submit; got != "Error: Primero crea el formulario." {
		t.Fatalf("unexpected submit message %q", got)
	}
}

func TestSubmitInFlightGuard(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})

	calls, err := m.Submit()
	if err != nil || len(calls) != 1 {
		t.Fatalf("expected one submit call, got %d err=%v", len(calls), err)
	}
	if m.State().Phase != PhaseSubmitting {
		t.Fatalf("expected submitting phase")
	}
	if _, err := m.Submit(); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected busy error for overlapping submit, got %v", err)
	}
	m.Apply(Perform(context.Background(), backend, calls[0]))
	if backend.count(domain.ActionSubmit) != 1 {
		t.Fatalf("expected exactly one submit call, got %d", backend.count(domain.ActionSubmit))
	}
	if m.State().Phase != PhaseDone {
		t.Fatalf("expected done phase, got %s", m.State().Phase)
	}
}

func TestBackendSubmitErrorKeepsGrid(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	backend.handlers[domain.ActionSubmit] = func(map[string]any) map[string]any {
		return map[string]any{"ok": false, "error": "Bloque no ACTIVO."}
	}
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})
	if err := d.Do(context.Background(), (*Machine).Submit); err != nil {
		t.Fatalf("submit intent: %v", err)
	}
	s := m.State()
	if s.Messages.Submit != "Error: Bloque no ACTIVO." {
		t.Fatalf("unexpected submit message %q", s.Messages.Submit)
	}
	if s.Grid == nil || s.Phase != PhaseFormBuilt {
		t.Fatalf("failed submit must leave the grid, got phase %s", s.Phase)
	}
}

func TestReplaceThenRevertToSubmit(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "adm", "9999")
	m := d.Machine
	ctx := context.Background()

	if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.LoadForReplace("S-old") }); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := m.State()
	if s.ReplaceTarget != "S-old" || s.LoadedSession == nil {
		t.Fatalf("expected replace target and loaded session together")
	}
	if s.Form.Bloque != "B2" || s.Form.Modo != domain.ModeCompleto || s.Form.N != "2" {
		t.Fatalf("expected header from loaded session, got %+v", s.Form)
	}
	if s.Form.Observacion != "REEMPLAZO de S-old" {
		t.Fatalf("unexpected observation %q", s.Form.Observacion)
	}
	if s.Grid.Text(grid.Pos{Row: 2, Field: domain.FieldDiametro}) != "14" || !s.Grid.Ready() {
		t.Fatalf("expected prefilled ready grid")
	}

	if err := d.Do(ctx, (*Machine).Submit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.count(domain.ActionSubmit) != 0 || backend.count(domain.ActionReplaceSession) != 1 {
		t.Fatalf("expected replace_session only, got %v", backend.actions())
	}
	call, _ := backend.last(domain.ActionReplaceSession)
	payload := call.Params["payload"].(domain.Replacement)
	if payload.OldSessionID != "S-old" || payload.N != 2 || len(payload.Samples) != 2 {
		t.Fatalf("unexpected replace payload %+v", payload)
	}
	s = m.State()
	if s.ReplaceTarget != "" || s.LoadedSession != nil {
		t.Fatalf("replace state must clear after success")
	}
	if s.Grid == nil || s.Phase != PhaseFormBuilt {
		t.Fatalf("replace must keep the grid")
	}
	if s.Messages.Submit != "OK reemplazo. Nueva sesión=S-2. Reemplazadas=2. Insertadas=2." {
		t.Fatalf("unexpected message %q", s.Messages.Submit)
	}

	// A mode change after loading drops the replace intent.
	if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.LoadForReplace("S-old") }); err != nil {
		t.Fatalf("reload: %v", err)
	}
	d.Run(ctx, m.ChangeMode(domain.ModeAltura))
	s = m.State()
	if s.ReplaceTarget != "" || s.LoadedSession != nil || s.Grid != nil {
		t.Fatalf("mode change must clear replace state and grid")
	}
	if s.Form.N != "5" {
		t.Fatalf("mode change must reset n to the ALTURA default, got %q", s.Form.N)
	}
	build(t, d, "B2", domain.ModeAltura, "5")
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "80"})
	if err := d.Do(ctx, (*Machine).Submit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.count(domain.ActionSubmit) != 1 || backend.count(domain.ActionReplaceSession) != 1 {
		t.Fatalf("expected plain submit after mode change, got %v", backend.actions())
	}
}

func TestClearAndBlockChangeDropReplace(t *testing.T) {
	t.Parallel()

	d, _ := loggedIn(t, "adm", "9999")
	m := d.Machine
	ctx := context.Background()
	load := func() {
		if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.LoadForReplace("S-old") }); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	load()
	m.Clear()
	s := m.State()
	if s.ReplaceTarget != "" || s.LoadedSession != nil || s.Grid != nil {
		t.Fatalf("clear must drop replace state and grid")
	}
	if s.Form.Bloque != "" || s.Form.Modo != domain.ModeAltura || s.Form.N != "5" || s.Form.Observacion != "" {
		t.Fatalf("clear must reset the header, got %+v", s.Form)
	}

	load()
	d.Run(ctx, m.ChangeBlock("B1"))
	s = m.State()
	if s.ReplaceTarget != "" || s.LoadedSession != nil || s.Grid != nil {
		t.Fatalf("block change must drop replace state and grid")
	}
	if s.Form.Modo != domain.ModeCompleto {
		t.Fatalf("block change keeps the mode")
	}
}

func TestLateReplaceReplyKeepsNewerReplaceTarget(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "adm", "9999")
	m := d.Machine
	ctx := context.Background()
	load := func(id string) {
		if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.LoadForReplace(id) }); err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
	}

	load("S-A")
	calls, err := m.Submit()
	if err != nil || len(calls) != 1 || calls[0].Action != domain.ActionReplaceSession {
		t.Fatalf("expected one replace call, got %v err=%v", calls, err)
	}
	m.Clear()
	if m.State().Pending[KindSubmit] {
		t.Fatalf("clear must forget the outstanding replace")
	}
	load("S-B")

	m.Apply(Perform(ctx, backend, calls[0]))
	s := m.State()
	if s.ReplaceTarget != "S-B" || s.LoadedSession == nil || s.Grid == nil {
		t.Fatalf("late reply for S-A must not touch S-B, got target %q", s.ReplaceTarget)
	}
	if s.Phase != PhaseFormBuilt {
		t.Fatalf("expected form_built, got %s", s.Phase)
	}

	if err := d.Do(ctx, (*Machine).Submit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if backend.count(domain.ActionSubmit) != 0 || backend.count(domain.ActionReplaceSession) != 2 {
		t.Fatalf("expected a second replace and no plain submit, got %v", backend.actions())
	}
	call, _ := backend.last(domain.ActionReplaceSession)
	if got := call.Params["payload"].(domain.Replacement).OldSessionID; got != "S-B" {
		t.Fatalf("expected replace of S-B, got %q", got)
	}
}

func TestLateSubmitReplyKeepsRebuiltGrid(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})

	calls, err := m.Submit()
	if err != nil || len(calls) != 1 {
		t.Fatalf("expected one submit call, got %d err=%v", len(calls), err)
	}
	m.Clear()
	build(t, d, "B2", domain.ModeAltura, "3")
	if err := m.EditCell(grid.Pos{Row: 1, Field: domain.FieldAltura}, "42"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	m.Apply(Perform(context.Background(), backend, calls[0]))
	s := m.State()
	if s.Grid == nil || s.BuiltN != 3 || s.Phase != PhaseFormBuilt {
		t.Fatalf("late submit reply must not reset the rebuilt grid, got grid=%v n=%d phase=%s", s.Grid != nil, s.BuiltN, s.Phase)
	}
	if got := s.Grid.Text(grid.Pos{Row: 1, Field: domain.FieldAltura}); got != "42" {
		t.Fatalf("expected typed text kept, got %q", got)
	}
}

func TestUnreadableWriteReplyIsReported(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "adm", "9999")
	backend.handlers[domain.ActionSubmit] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true}
	}
	backend.handlers[domain.ActionReplaceSession] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true, "session_id_new": 7}
	}
	m := d.Machine
	ctx := context.Background()

	build(t, d, "B1", domain.ModeAltura, "5")
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})
	if err := d.Do(ctx, (*Machine).Submit); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s := m.State(); s.Messages.Final != unreadableReply || s.Phase != PhaseDone {
		t.Fatalf("expected unreadable reply notice, got %q phase %s", s.Messages.Final, s.Phase)
	}

	if err := d.Do(ctx, func(m *Machine) ([]Call, error) { return m.LoadForReplace("S-old") }); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := d.Do(ctx, (*Machine).Submit); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if s := m.State(); s.Messages.Final != unreadableReply {
		t.Fatalf("expected unreadable reply notice after replace, got %q", s.Messages.Final)
	}
}

func TestStaleDuplicateReplyIsDropped(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	m := d.Machine
	first := m.ChangeBlock("B1")
	second := m.ChangeBlock("B2")
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one duplicate check per change")
	}
	backend.handlers[domain.ActionListSessionsToday] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true, "fecha": "2026-10-19", "sessions": []any{map[string]any{"session_id": "S-a", "count": 1}}}
	}
	m.Apply(Perform(context.Background(), backend, first[0]))
	if m.State().Duplicate != nil {
		t.Fatalf("reply for the previous block must be ignored")
	}
	m.Apply(Perform(context.Background(), backend, second[0]))
	if m.State().Duplicate == nil {
		t.Fatalf("reply for the current block must be shown")
	}
}

func TestLogoutDiscardsStateAndLateReplies(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	build(t, d, "B1", domain.ModeAltura, "5")
	m := d.Machine
	fill(t, m, map[domain.Field]string{domain.FieldAltura: "100"})
	calls, err := m.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	initCalls := m.Logout()
	if len(initCalls) != 1 || initCalls[0].Action != domain.ActionDefaults {
		t.Fatalf("logout must restart init, got %+v", initCalls)
	}
	m.Apply(Perform(context.Background(), backend, calls[0]))
	s := m.State()
	if s.Auth != nil || s.Phase != PhaseUnauthenticated || s.Grid != nil || len(s.ActiveBlocks) != 0 {
		t.Fatalf("expected a fresh unauthenticated state, got phase %s", s.Phase)
	}
	if s.Messages.Submit != "" {
		t.Fatalf("late submit reply must be ignored, got %q", s.Messages.Submit)
	}
}

func TestAdminActionsRequireAdminRole(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "op1", "1234")
	m := d.Machine
	if err := m.ToggleAdmin(); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden toggle, got %v", err)
	}
	if _, err := m.FindSessions("B1", domain.ModeAltura); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden find, got %v", err)
	}
	if _, err := m.LoadForReplace("S-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden load, got %v", err)
	}
	if backend.count(domain.ActionGetSession) != 0 {
		t.Fatalf("no get_session call may be issued")
	}
}

func TestFindSessionsListsToday(t *testing.T) {
	t.Parallel()

	d, backend := loggedIn(t, "adm", "9999")
	m := d.Machine
	if err := m.ToggleAdmin(); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := m.FindSessions("B9", domain.ModeAltura); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected inactive block rejection, got %v", err)
	}
	if got := m.State().Messages.Admin; got != "Bloque inválido/no ACTIVO." {
		t.Fatalf("unexpected admin message %q", got)
	}

	if err := d.Do(context.Background(), func(m *Machine) ([]Call, error) { return m.FindSessions("B1", domain.ModeAltura) }); err != nil {
		t.Fatalf("find: %v", err)
	}
	if got := m.State().Messages.Admin; got != "No hay sesiones vigentes hoy para ese bloque/modo." {
		t.Fatalf("unexpected admin message %q", got)
	}

	backend.handlers[domain.ActionListSessionsToday] = func(map[string]any) map[string]any {
		return map[string]any{"ok": true, "fecha": "2026-10-19", "sessions": []any{map[string]any{"session_id": "S-a", "count": 4}}}
	}
	if err := d.Do(context.Background(), func(m *Machine) ([]Call, error) { return m.FindSessions("B1", domain.ModeAltura) }); err != nil {
		t.Fatalf("find: %v", err)
	}
	s := m.State()
	if s.Messages.Admin != "Sesiones hoy (2026-10-19): 1" || len(s.AdminSessions) != 1 || s.AdminSessions[0].Count != 4 {
		t.Fatalf("unexpected admin result %q %+v", s.Messages.Admin, s.AdminSessions)
	}
}
