// Package workflow is the capture session state machine. Intents mutate the
// state synchronously and return the backend calls to perform; replies come
// back through Apply. Nothing here performs I/O.
package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
)

type Config struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Machine owns the workflow state. It is not safe for concurrent use; a
// single goroutine applies intents and results.
type Machine struct {
	logger *slog.Logger
	nowFn  func() time.Time

	state   State
	pin     string
	seq     uint64
	pending map[Kind]uint64
}

func New(cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	m := &Machine{logger: logger, nowFn: nowFn}
	m.reset()
	return m
}

func (m *Machine) reset() {
	m.state = State{Phase: PhaseUnauthenticated, Form: Form{Modo: domain.ModeAltura}}
	m.pin = ""
	m.pending = make(map[Kind]uint64)
}

// State returns a snapshot. Slices are copied.
func (m *Machine) State() State {
	s := m.state
	s.ActiveBlocks = append([]string(nil), m.state.ActiveBlocks...)
	s.AdminSessions = append([]domain.SessionSummary(nil), m.state.AdminSessions...)
	s.Pending = make(map[Kind]bool, len(m.pending))
	for k := range m.pending {
		s.Pending[k] = true
	}
	return s
}

// Init loads the validation config and pings the server.
func (m *Machine) Init() []Call {
	m.state.Messages.Status = "Inicializando…"
	call, err := m.issue(KindInit, domain.ActionDefaults, nil)
	if err != nil {
		return nil
	}
	return []Call{call}
}

// Login authenticates; on success the blocks are fetched and a duplicate
// check runs.
func (m *Machine) Login(userID, pin string) ([]Call, error) {
	if err := m.configReady(); err != nil {
		m.state.Messages.Login = domain.UserMessage(err)
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	pin = strings.TrimSpace(pin)
	if userID == "" || pin == "" {
		err := domain.NewValidationError("Usuario y PIN requeridos.")
		m.state.Messages.Login = err.Reason
		return nil, err
	}
	call, err := m.issue(KindLogin, domain.ActionAuth, map[string]any{"user_id": userID, "pin": pin})
	if err != nil {
		return nil, err
	}
	m.pin = pin
	m.state.Messages.Login = "Validando…"
	return []Call{call}, nil
}

// Logout discards everything and starts over, including init.
func (m *Machine) Logout() []Call {
	m.logger.Debug("logout",
		"module", "workflow",
		"layer", "domain",
		"operation", "logout",
		"outcome", "success",
	)
	m.reset()
	return m.Init()
}

// ReloadBlocks re-fetches the active block set without touching the form.
func (m *Machine) ReloadBlocks() ([]Call, error) {
	if err := m.authenticated(); err != nil {
		m.state.Messages.Form = domain.UserMessage(err)
		return nil, err
	}
	call, err := m.issue(KindBlocks, domain.ActionGetBlocks, m.credentials())
	if err != nil {
		return nil, err
	}
	m.state.Messages.Form = "Cargando bloques…"
	return []Call{call}, nil
}

// ChangeBlock drops any replace intent and the grid, then re-checks
// duplicates for the new block. An unchanged block is a no-op.
func (m *Machine) ChangeBlock(bloque string) []Call {
	bloque = strings.TrimSpace(bloque)
	if bloque == m.state.Form.Bloque {
		return nil
	}
	m.state.Form.Bloque = bloque
	m.clearReplace()
	m.resetFormOnly()
	return m.checkDuplicate()
}

// ChangeMode behaves like ChangeBlock and also resets n to the mode default.
func (m *Machine) ChangeMode(modo domain.Mode) []Call {
	if !modo.Valid() || modo == m.state.Form.Modo {
		return nil
	}
	m.state.Form.Modo = modo
	if m.state.Config.Loaded() {
		m.state.Form.N = strconv.Itoa(m.state.Config.DefaultRows(modo))
	}
	m.clearReplace()
	m.resetFormOnly()
	return m.checkDuplicate()
}

// SetN records the raw row count text. It is parsed by BuildForm.
func (m *Machine) SetN(text string) { m.state.Form.N = text }

func (m *Machine) SetObservation(text string) { m.state.Form.Observacion = text }

// BuildForm commits bloque and modo, then builds an empty grid of n rows.
// A bad block or n leaves the grid untouched.
func (m *Machine) BuildForm(bloque string, modo domain.Mode, n string) ([]Call, error) {
	if err := m.authenticated(); err != nil {
		m.state.Messages.Form = domain.UserMessage(err)
		return nil, err
	}
	calls := m.ChangeBlock(bloque)
	calls = append(calls, m.ChangeMode(modo)...)
	if n != "" {
		m.state.Form.N = n
	}

	if !m.state.BlockActive(m.state.Form.Bloque) {
		err := domain.NewValidationError("Bloque inválido/no ACTIVO.")
		m.state.Messages.Form = err.Reason
		return calls, err
	}
	rows, err := strconv.Atoi(strings.TrimSpace(m.state.Form.N))
	if err != nil || rows < 1 {
		verr := domain.NewValidationError("N inválido.")
		m.state.Messages.Form = verr.Reason
		return calls, verr
	}

	m.state.Messages.Form = ""
	m.supersedeSubmit("build_form")
	m.state.Grid = grid.Build(m.state.Config, m.state.Form.Modo, rows, nil)
	m.state.BuiltN = rows
	m.state.Phase = PhaseFormBuilt
	return append(withoutKind(calls, KindDuplicate), m.checkDuplicate()...), nil
}

// Clear resets the header to defaults and drops grid and replace intent.
func (m *Machine) Clear() {
	m.state.Form.Bloque = ""
	m.state.Form.Modo = domain.ModeAltura
	if m.state.Config.Loaded() {
		m.state.Form.N = strconv.Itoa(m.state.Config.DefaultRows(domain.ModeAltura))
	}
	m.clearReplace()
	m.resetFormOnly()
}

// Submit validates every row of the built grid and sends either submit or,
// when a replace target is set, replace_session. The first bad row aborts
// with no call issued.
func (m *Machine) Submit() ([]Call, error) {
	calls, err := m.submit()
	if err != nil {
		m.state.Messages.Submit = "Error: " + domain.UserMessage(err)
	}
	return calls, err
}

func (m *Machine) submit() ([]Call, error) {
	if err := m.authenticated(); err != nil {
		return nil, err
	}
	if _, busy := m.pending[KindSubmit]; busy {
		return nil, fmt.Errorf("%w: %s", domain.ErrBusy, KindSubmit)
	}
	m.state.Messages.Submit = "Validando…"
	s := m.state
	if !s.BlockActive(s.Form.Bloque) {
		return nil, domain.NewValidationError("Bloque no ACTIVO.")
	}
	if !s.Form.Modo.Valid() {
		return nil, domain.NewValidationError("Modo inválido.")
	}
	if s.BuiltN < 1 || s.Grid.Rows() != s.BuiltN {
		return nil, domain.NewValidationError("Primero crea el formulario.")
	}

	samples := s.Grid.Samples()
	if err := domain.ValidateSamples(s.Config, s.Grid.Mode(), samples); err != nil {
		return nil, err
	}
	submission := domain.Submission{
		Bloque:      s.Form.Bloque,
		Modo:        s.Grid.Mode(),
		N:           s.BuiltN,
		Observacion: strings.TrimSpace(s.Form.Observacion),
		Samples:     samples,
	}

	params := m.credentials()
	action := domain.ActionSubmit
	if s.ReplaceTarget != "" {
		action = domain.ActionReplaceSession
		params["payload"] = domain.Replacement{OldSessionID: s.ReplaceTarget, Submission: submission}
		m.state.Messages.Submit = "Reemplazando sesión (auditoría)…"
	} else {
		params["payload"] = submission
		m.state.Messages.Submit = "Enviando…"
	}
	call, err := m.issue(KindSubmit, action, params)
	if err != nil {
		return nil, err
	}
	m.state.Phase = PhaseSubmitting
	return []Call{call}, nil
}

// ToggleAdmin opens or closes the admin panel. Only admins have one.
func (m *Machine) ToggleAdmin() error {
	if m.state.Auth == nil || !m.state.Auth.Admin() {
		return fmt.Errorf("%w: admin panel", domain.ErrForbidden)
	}
	m.state.AdminOpen = !m.state.AdminOpen
	m.state.Messages.Admin = ""
	m.state.Messages.Replace = ""
	m.state.AdminSessions = nil
	m.state.AdminFecha = ""
	return nil
}

// FindSessions lists today's active sessions for (bloque, modo).
func (m *Machine) FindSessions(bloque string, modo domain.Mode) ([]Call, error) {
	if err := m.adminOnly(); err != nil {
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return nil, err
	}
	bloque = strings.TrimSpace(bloque)
	if !m.state.BlockActive(bloque) {
		err := domain.NewValidationError("Bloque inválido/no ACTIVO.")
		m.state.Messages.Admin = err.Reason
		return nil, err
	}
	if !modo.Valid() {
		err := domain.NewValidationError("Modo inválido.")
		m.state.Messages.Admin = err.Reason
		return nil, err
	}
	params := m.credentials()
	params["bloque"] = bloque
	params["modo"] = modo
	call, err := m.issue(KindFind, domain.ActionListSessionsToday, params)
	if err != nil {
		return nil, err
	}
	m.state.Messages.Admin = "Buscando…"
	m.state.AdminSessions = nil
	return []Call{call}, nil
}

// LoadForReplace fetches a session; the reply rebuilds the grid from it and
// arms the replace intent.
func (m *Machine) LoadForReplace(sessionID string) ([]Call, error) {
	if err := m.adminOnly(); err != nil {
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return nil, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		err := domain.NewValidationError("session_id requerido.")
		m.state.Messages.Admin = err.Reason
		return nil, err
	}
	params := m.credentials()
	params["session_id"] = sessionID
	call, err := m.issue(KindLoad, domain.ActionGetSession, params)
	if err != nil {
		return nil, err
	}
	m.state.Messages.Replace = "Cargando sesión…"
	return []Call{call}, nil
}

// EditCell sets one grid cell.
func (m *Machine) EditCell(pos grid.Pos, text string) error {
	if m.state.Grid == nil {
		return domain.NewValidationError("Primero crea el formulario.")
	}
	return m.state.Grid.Set(pos, text)
}

// PasteCell applies a clipboard paste at pos; see grid.Grid.Paste.
func (m *Machine) PasteCell(pos grid.Pos, clip string) (filled int, handled bool) {
	if m.state.Grid == nil {
		return 0, false
	}
	return m.state.Grid.Paste(pos, clip)
}

// FocusNext returns the cell after pos. It does not wrap.
func (m *Machine) FocusNext(pos grid.Pos) (grid.Pos, bool) {
	return m.state.Grid.Next(pos)
}

func (m *Machine) checkDuplicate() []Call {
	bloque := m.state.Form.Bloque
	if m.state.Auth == nil || bloque == "" || !m.state.BlockActive(bloque) {
		delete(m.pending, KindDuplicate)
		return nil
	}
	params := m.credentials()
	params["bloque"] = bloque
	params["modo"] = m.state.Form.Modo
	call, err := m.issue(KindDuplicate, domain.ActionListSessionsToday, params)
	if err != nil {
		return nil
	}
	return []Call{call}
}

func (m *Machine) resetFormOnly() {
	m.state.Form.Observacion = ""
	m.state.Grid = nil
	m.state.BuiltN = 0
	m.state.Duplicate = nil
	m.state.Messages.Submit = ""
	m.state.Messages.Final = ""
	delete(m.pending, KindDuplicate)
	if m.state.Auth != nil {
		m.state.Phase = PhaseIdle
	}
	m.supersedeSubmit("reset_form")
}

// supersedeSubmit forgets an outstanding submit or replace once the grid or
// replace target it was built from is replaced. Its reply is then dropped
// as stale and cannot touch the newer form.
func (m *Machine) supersedeSubmit(reason string) {
	seq, ok := m.pending[KindSubmit]
	if !ok {
		return
	}
	delete(m.pending, KindSubmit)
	m.logger.Info("pending submit superseded",
		"module", "workflow",
		"layer", "domain",
		"operation", reason,
		"outcome", "superseded",
		"seq", seq,
	)
	m.state.Messages.Submit = "Envío anterior descartado de la pantalla; revisa las sesiones de hoy."
	if m.state.Phase == PhaseSubmitting {
		m.state.Phase = m.formPhase()
	}
}

// clearReplace drops replaceTarget and loadedSession together.
func (m *Machine) clearReplace() {
	m.state.ReplaceTarget = ""
	m.state.LoadedSession = nil
	m.state.Messages.Replace = ""
}

func (m *Machine) issue(kind Kind, action string, params map[string]any) (Call, error) {
	if _, busy := m.pending[kind]; busy && kind != KindDuplicate {
		return Call{}, fmt.Errorf("%w: %s", domain.ErrBusy, kind)
	}
	m.seq++
	m.pending[kind] = m.seq
	return Call{Seq: m.seq, Kind: kind, Action: action, Params: params}, nil
}

// withoutKind drops calls superseded by a newer call of the same kind.
func withoutKind(calls []Call, kind Kind) []Call {
	out := calls[:0]
	for _, c := range calls {
		if c.Kind != kind {
			out = append(out, c)
		}
	}
	return out
}

func (m *Machine) credentials() map[string]any {
	return map[string]any{"user_id": m.state.Auth.UserID, "pin": m.pin}
}

func (m *Machine) configReady() error {
	if m.state.ConfigErr != nil {
		return m.state.ConfigErr
	}
	if !m.state.Config.Loaded() {
		return fmt.Errorf("%w: configuración no cargada", domain.ErrConfig)
	}
	return nil
}

func (m *Machine) authenticated() error {
	if err := m.configReady(); err != nil {
		return err
	}
	if m.state.Auth == nil {
		return domain.ErrUnauthenticated
	}
	return nil
}

func (m *Machine) adminOnly() error {
	if err := m.authenticated(); err != nil {
		return err
	}
	if !m.state.Auth.Admin() {
		return fmt.Errorf("%w: requiere rol admin", domain.ErrForbidden)
	}
	return nil
}
