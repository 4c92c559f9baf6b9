package workflow

import (
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/grid"
	"github.com/viralforge/fieldcapture/internal/ports"
)

type Phase int

const (
	PhaseUnauthenticated Phase = iota
	PhaseIdle
	PhaseFormBuilt
	PhaseSubmitting
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseIdle:
		return "idle"
	case PhaseFormBuilt:
		return "form_built"
	case PhaseSubmitting:
		return "submitting"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Kind groups calls for the in-flight guard. At most one call per kind is
// outstanding; KindDuplicate is latest-wins, every other kind refuses a
// second intent with domain.ErrBusy.
type Kind string

const (
	KindInit      Kind = "init"
	KindLogin     Kind = "login"
	KindBlocks    Kind = "blocks"
	KindDuplicate Kind = "duplicate"
	KindSubmit    Kind = "submit"
	KindFind      Kind = "find"
	KindLoad      Kind = "load"
)

// Call is an effect: one backend action the caller must perform and feed
// back through Machine.Apply.
type Call struct {
	Seq    uint64
	Kind   Kind
	Action string
	Params map[string]any
}

// Result is the outcome of performing a Call.
type Result struct {
	Call  Call
	Reply ports.Reply
	Err   error
}

type Auth struct {
	UserID   string
	Role     string
	LoggedAt time.Time
}

func (a Auth) Admin() bool { return a.Role == domain.RoleAdmin }

// Form holds the header fields as the operator last committed them.
// N stays raw text until BuildForm parses it.
type Form struct {
	Bloque      string
	Modo        domain.Mode
	N           string
	Observacion string
}

// DuplicateWarning is shown when same-day sessions already exist.
type DuplicateWarning struct {
	Count int
	Fecha string
}

// Messages are the text regions of the screen.
type Messages struct {
	Status    string
	Login     string
	Form      string
	BlockHint string
	Submit    string
	Final     string
	Admin     string
	Replace   string
}

// State is a snapshot of the workflow. Grid is shared with the machine and
// must be treated as read-only by callers.
type State struct {
	Phase         Phase
	Auth          *Auth
	Config        domain.ValidationConfig
	ConfigErr     error
	ServerTZ      string
	ActiveBlocks  []string
	Form          Form
	Grid          *grid.Grid
	BuiltN        int
	ReplaceTarget string
	LoadedSession *domain.Session
	Duplicate     *DuplicateWarning
	Messages      Messages
	AdminOpen     bool
	AdminSessions []domain.SessionSummary
	AdminFecha    string
	Pending       map[Kind]bool
}

// BlockActive reports whether name is in the active block set.
func (s State) BlockActive(name string) bool {
	for _, b := range s.ActiveBlocks {
		if b == name {
			return true
		}
	}
	return false
}
