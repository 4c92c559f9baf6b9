package workflow

import (
	"fmt"
	"strconv"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
)

// Apply feeds a performed call back into the machine and returns follow-up
// calls. Results whose call is no longer the outstanding one for its kind
// are dropped.
func (m *Machine) Apply(res Result) []Call {
	seq, ok := m.pending[res.Call.Kind]
	if !ok || seq != res.Call.Seq {
		m.logger.Debug("stale reply dropped",
			"module", "workflow",
			"layer", "domain",
			"operation", "apply",
			"outcome", "dropped",
			"action", res.Call.Action,
			"seq", res.Call.Seq,
		)
		return nil
	}
	delete(m.pending, res.Call.Kind)

	switch res.Call.Action {
	case domain.ActionDefaults:
		return m.applyDefaults(res)
	case domain.ActionPing:
		m.applyPing(res)
	case domain.ActionAuth:
		return m.applyAuth(res)
	case domain.ActionGetBlocks:
		return m.applyBlocks(res)
	case domain.ActionListSessionsToday:
		if res.Call.Kind == KindFind {
			m.applyFind(res)
		} else {
			m.applyDuplicate(res)
		}
	case domain.ActionSubmit:
		m.applySubmit(res)
	case domain.ActionReplaceSession:
		m.applyReplace(res)
	case domain.ActionGetSession:
		return m.applyLoad(res)
	}
	return nil
}

func (m *Machine) applyDefaults(res Result) []Call {
	if err := replyError(res, "defaults falló"); err != nil {
		m.failed(res, err)
		m.state.Messages.Status = "Error inicializando: " + domain.UserMessage(err)
		return nil
	}
	var doc domain.ConfigDocument
	if err := res.Reply.Decode(&doc); err != nil {
		m.state.ConfigErr = fmt.Errorf("%w: %v", domain.ErrConfig, err)
		m.state.Messages.Status = "Error inicializando: " + m.state.ConfigErr.Error()
		return nil
	}
	cfg, err := domain.NewValidationConfig(doc)
	if err != nil {
		m.failed(res, err)
		m.state.ConfigErr = err
		m.state.Messages.Status = "Error inicializando: " + err.Error()
		return nil
	}
	m.state.Config = cfg
	m.state.ConfigErr = nil
	if m.state.Form.N == "" {
		m.state.Form.N = strconv.Itoa(cfg.DefaultRows(m.state.Form.Modo))
	}
	call, err := m.issue(KindInit, domain.ActionPing, nil)
	if err != nil {
		return nil
	}
	return []Call{call}
}

func (m *Machine) applyPing(res Result) {
	if err := replyError(res, "ping falló"); err != nil {
		m.failed(res, err)
		m.state.Messages.Status = "Error inicializando: " + domain.UserMessage(err)
		return
	}
	var tz string
	_ = res.Reply.Field("tz", &tz)
	m.state.ServerTZ = tz
	m.state.Messages.Status = "Servidor OK · TZ=" + tz
}

func (m *Machine) applyAuth(res Result) []Call {
	if err := replyError(res, "Login inválido."); err != nil {
		m.failed(res, err)
		m.pin = ""
		m.state.Messages.Login = domain.UserMessage(err)
		return nil
	}
	var user struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := res.Reply.Field("user", &user); err != nil {
		m.failed(res, err)
		m.pin = ""
		m.state.Messages.Login = domain.UserMessage(err)
		return nil
	}
	userID, _ := res.Call.Params["user_id"].(string)
	m.state.Auth = &Auth{UserID: userID, Role: user.Role, LoggedAt: m.nowFn()}
	m.state.Phase = PhaseIdle
	m.state.Messages.Login = "OK."
	m.state.Form.Modo = domain.ModeAltura
	m.state.Form.N = strconv.Itoa(m.state.Config.DefaultRows(domain.ModeAltura))

	call, err := m.issue(KindLogin, domain.ActionGetBlocks, m.credentials())
	if err != nil {
		return nil
	}
	m.state.Messages.Form = "Cargando bloques…"
	return []Call{call}
}

func (m *Machine) applyBlocks(res Result) []Call {
	if m.state.Auth == nil {
		return nil
	}
	if err := replyError(res, "No se pudo cargar bloques."); err != nil {
		m.failed(res, err)
		m.state.Messages.Form = domain.UserMessage(err)
		return nil
	}
	var blocks []string
	if err := res.Reply.Field("bloques", &blocks); err != nil {
		m.failed(res, err)
		m.state.Messages.Form = domain.UserMessage(err)
		return nil
	}
	m.state.ActiveBlocks = blocks
	m.state.Messages.BlockHint = fmt.Sprintf("%d bloques ACTIVO cargados.", len(blocks))
	m.state.Messages.Form = ""
	if res.Call.Kind == KindLogin {
		return m.checkDuplicate()
	}
	return nil
}

type sessionsReply struct {
	Sessions []domain.SessionSummary `json:"sessions"`
	Fecha    string                  `json:"fecha"`
}

// applyDuplicate never blocks anything; failures only leave the banner as is.
func (m *Machine) applyDuplicate(res Result) {
	if err := replyError(res, ""); err != nil {
		m.failed(res, err)
		return
	}
	var r sessionsReply
	if err := res.Reply.Decode(&r); err != nil {
		m.failed(res, err)
		return
	}
	if len(r.Sessions) == 0 {
		m.state.Duplicate = nil
		return
	}
	m.state.Duplicate = &DuplicateWarning{Count: len(r.Sessions), Fecha: r.Fecha}
}

func (m *Machine) applySubmit(res Result) {
	if err := replyError(res, "Error guardando."); err != nil {
		m.failed(res, err)
		m.submitFailed(err)
		return
	}
	var r struct {
		SessionID        string `json:"session_id"`
		DuplicateWarning bool   `json:"duplicate_warning"`
	}
	decodeErr := res.Reply.Decode(&r)
	if decodeErr == nil && r.SessionID == "" {
		decodeErr = fmt.Errorf("%w: missing session_id", domain.ErrDecode)
	}
	if decodeErr != nil {
		m.failed(res, decodeErr)
	}
	n := m.state.BuiltN
	if payload, ok := res.Call.Params["payload"].(domain.Submission); ok {
		n = payload.N
	}
	msg := fmt.Sprintf("OK. session_id=%s. Filas=%d.", r.SessionID, n)
	final := ""
	if r.DuplicateWarning {
		msg += " (DUPLICADO marcado)"
		final = "Advertencia: guardado como DUPLICADO."
	}
	if decodeErr != nil {
		final = unreadableReply
	}
	m.state.Messages.Submit = msg
	m.state.Messages.Final = final
	m.state.Grid = nil
	m.state.BuiltN = 0
	m.state.Phase = PhaseDone
}

// applyReplace keeps the grid on success; only the replace intent is dropped.
func (m *Machine) applyReplace(res Result) {
	if err := replyError(res, "Error reemplazando."); err != nil {
		m.failed(res, err)
		m.submitFailed(err)
		return
	}
	var r struct {
		SessionIDNew  string `json:"session_id_new"`
		ReplacedCount int    `json:"replacedCount"`
		Inserted      int    `json:"inserted"`
	}
	decodeErr := res.Reply.Decode(&r)
	if decodeErr == nil && r.SessionIDNew == "" {
		decodeErr = fmt.Errorf("%w: missing session_id_new", domain.ErrDecode)
	}
	m.state.Messages.Submit = fmt.Sprintf("OK reemplazo. Nueva sesión=%s. Reemplazadas=%d. Insertadas=%d.", r.SessionIDNew, r.ReplacedCount, r.Inserted)
	m.state.Messages.Final = "Auditoría OK: viejas FALSE, nuevas TRUE."
	if decodeErr != nil {
		m.failed(res, decodeErr)
		m.state.Messages.Final = unreadableReply
	}
	m.clearReplace()
	m.state.Phase = m.formPhase()
}

// unreadableReply is shown when the backend accepted a write but its reply
// could not be decoded.
const unreadableReply = "Guardado, pero la respuesta del servidor no se pudo leer; revisa las sesiones de hoy."

func (m *Machine) submitFailed(err error) {
	m.state.Messages.Submit = "Error: " + domain.UserMessage(err)
	m.state.Phase = m.formPhase()
}

func (m *Machine) applyFind(res Result) {
	if err := replyError(res, "Error."); err != nil {
		m.failed(res, err)
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return
	}
	var r sessionsReply
	if err := res.Reply.Decode(&r); err != nil {
		m.failed(res, err)
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return
	}
	m.state.AdminSessions = r.Sessions
	m.state.AdminFecha = r.Fecha
	if len(r.Sessions) == 0 {
		m.state.Messages.Admin = "No hay sesiones vigentes hoy para ese bloque/modo."
		return
	}
	m.state.Messages.Admin = fmt.Sprintf("Sesiones hoy (%s): %d", r.Fecha, len(r.Sessions))
}

// applyLoad overwrites the header from the loaded session, rebuilds the
// grid from its samples and arms replace mode.
func (m *Machine) applyLoad(res Result) []Call {
	if err := replyError(res, "No se pudo cargar sesión."); err != nil {
		m.failed(res, err)
		m.state.Messages.Replace = ""
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return nil
	}
	var session domain.Session
	if err := res.Reply.Field("session", &session); err != nil {
		m.failed(res, err)
		m.state.Messages.Replace = ""
		m.state.Messages.Admin = "Error: " + domain.UserMessage(err)
		return nil
	}
	if !session.Modo.Valid() || session.N < 1 {
		m.state.Messages.Replace = ""
		m.state.Messages.Admin = "Error: sesión con modo o n inválidos."
		return nil
	}

	m.supersedeSubmit("load_for_replace")
	m.state.LoadedSession = &session
	m.state.ReplaceTarget = session.SessionID
	m.state.Form = Form{
		Bloque:      session.Bloque,
		Modo:        session.Modo,
		N:           strconv.Itoa(session.N),
		Observacion: "REEMPLAZO de " + session.SessionID,
	}
	m.state.Grid = grid.Build(m.state.Config, session.Modo, session.N, domain.Prefill(session.Samples))
	m.state.BuiltN = session.N
	m.state.Phase = PhaseFormBuilt
	m.state.Messages.Replace = fmt.Sprintf("Modo REEMPLAZO activo: al enviar se reemplazará %s.", session.SessionID)
	return m.checkDuplicate()
}

func (m *Machine) formPhase() Phase {
	switch {
	case m.state.Auth == nil:
		return PhaseUnauthenticated
	case m.state.Grid != nil:
		return PhaseFormBuilt
	default:
		return PhaseIdle
	}
}

func (m *Machine) failed(res Result, err error) {
	m.logger.Warn("backend call failed",
		"module", "workflow",
		"layer", "domain",
		"operation", string(res.Call.Kind),
		"outcome", "failure",
		"action", res.Call.Action,
		"error", err.Error(),
	)
}

// replyError turns a transport error or an ok=false reply into an error.
func replyError(res Result, fallback string) error {
	if res.Err != nil {
		return res.Err
	}
	if !res.Reply.OK() {
		msg := res.Reply.ErrorMessage()
		if msg == "" {
			msg = fallback
		}
		return &domain.BackendError{Action: res.Call.Action, Message: msg}
	}
	return nil
}
