package domain

// Backend action names.
const (
	ActionDefaults          = "defaults"
	ActionPing              = "ping"
	ActionAuth              = "auth"
	ActionGetBlocks         = "get_blocks"
	ActionListSessionsToday = "list_sessions_today"
	ActionGetSession        = "get_session"
	ActionSubmit            = "submit"
	ActionReplaceSession    = "replace_session"
)

// DateLayout is the wire format of fecha.
const DateLayout = "2006-01-02"
