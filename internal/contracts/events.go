package contracts

import (
	"encoding/json"
	"strings"
	"time"
)

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

// Valid reports whether every required envelope field is set.
func (e EventEnvelope) Valid() bool {
	for _, v := range []string{e.EventID, e.EventType, e.PartitionKeyPath, e.PartitionKey, e.SourceService, e.TraceID, e.SchemaVersion} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return !e.OccurredAt.IsZero() && len(e.Data) > 0
}

type SessionSubmittedPayload struct {
	SessionID   string `json:"session_id"`
	Bloque      string `json:"bloque"`
	Modo        string `json:"modo"`
	N           int    `json:"n"`
	UserID      string `json:"user_id"`
	Fecha       string `json:"fecha"`
	Duplicate   bool   `json:"duplicate"`
	SubmittedAt string `json:"submitted_at"`
}

type SessionReplacedPayload struct {
	OldSessionID  string `json:"old_session_id"`
	NewSessionID  string `json:"new_session_id"`
	Bloque        string `json:"bloque"`
	Modo          string `json:"modo"`
	ReplacedCount int    `json:"replaced_count"`
	Inserted      int    `json:"inserted"`
	UserID        string `json:"user_id"`
	ReplacedAt    string `json:"replaced_at"`
}
