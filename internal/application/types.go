package application

import (
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
)

type Config struct {
	ServiceName   string
	Location      *time.Location
	Capture       domain.ValidationConfig
	BlocksTTL     time.Duration
	MaxSampleRows int
}

// Credentials are re-sent with every protected action.
type Credentials struct {
	UserID string `json:"user_id"`
	PIN    string `json:"pin"`
}

type AuthResponse struct {
	User UserView `json:"user"`
}

type UserView struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type PingResponse struct {
	TZ  string `json:"tz"`
	Now string `json:"now"`
}

type BlocksResponse struct {
	Bloques []string `json:"bloques"`
}

type ListSessionsRequest struct {
	Credentials
	Bloque string      `json:"bloque"`
	Modo   domain.Mode `json:"modo"`
}

type ListSessionsResponse struct {
	Sessions []domain.SessionSummary `json:"sessions"`
	Fecha    string                  `json:"fecha"`
}

type GetSessionRequest struct {
	Credentials
	SessionID string `json:"session_id"`
}

type GetSessionResponse struct {
	Session domain.Session `json:"session"`
}

type SubmitRequest struct {
	Credentials
	Payload domain.Submission `json:"payload"`
}

type SubmitResponse struct {
	SessionID        string `json:"session_id"`
	DuplicateWarning bool   `json:"duplicate_warning"`
	Inserted         int    `json:"inserted"`
}

type ReplaceRequest struct {
	Credentials
	Payload domain.Replacement `json:"payload"`
}

type ReplaceResponse struct {
	SessionIDNew  string `json:"session_id_new"`
	ReplacedCount int    `json:"replacedCount"`
	Inserted      int    `json:"inserted"`
}
