package domain

const (
	EventSessionSubmitted = "field.session.submitted"
	EventSessionReplaced  = "field.session.replaced"
)
