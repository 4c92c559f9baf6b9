package postgres

import (
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
)

type userModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	PINHash   string    `gorm:"column:pin_hash"`
	Role      string    `gorm:"column:role"`
	IsActive  bool      `gorm:"column:is_active"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "capture_users" }

type blockModel struct {
	Name      string    `gorm:"column:name;primaryKey"`
	IsActive  bool      `gorm:"column:is_active"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (blockModel) TableName() string { return "capture_blocks" }

type sessionModel struct {
	SessionID   string     `gorm:"column:session_id;primaryKey"`
	Bloque      string     `gorm:"column:bloque"`
	Modo        string     `gorm:"column:modo"`
	N           int        `gorm:"column:n"`
	Observacion string     `gorm:"column:observacion"`
	Fecha       time.Time  `gorm:"column:fecha;type:date"`
	UserID      string     `gorm:"column:user_id"`
	IsDuplicate bool       `gorm:"column:is_duplicate"`
	IsActive    bool       `gorm:"column:is_active"`
	Replaces    *string    `gorm:"column:replaces"`
	ReplacedBy  *string    `gorm:"column:replaced_by"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	ReplacedAt  *time.Time `gorm:"column:replaced_at"`
}

func (sessionModel) TableName() string { return "capture_sessions" }

type sampleModel struct {
	ID           int64    `gorm:"column:id;primaryKey"`
	SessionID    string   `gorm:"column:session_id"`
	Idx          int      `gorm:"column:idx"`
	AlturaCM     *float64 `gorm:"column:altura_cm"`
	EstructuraCM *float64 `gorm:"column:estructura_cm"`
	DiametroMM   *float64 `gorm:"column:diametro_mm"`
	IsActive     bool     `gorm:"column:is_active"`
}

func (sampleModel) TableName() string { return "capture_samples" }

type sessionCountRow struct {
	SessionID string `gorm:"column:session_id"`
	Count     int    `gorm:"column:count"`
}

func toDomainUser(m userModel) domain.User {
	return domain.User{UserID: m.UserID, PINHash: m.PINHash, Role: m.Role, Active: m.IsActive, CreatedAt: m.CreatedAt}
}

func toSessionModel(s domain.Session) (sessionModel, error) {
	fecha, err := time.Parse(domain.DateLayout, s.Fecha)
	if err != nil {
		return sessionModel{}, err
	}
	return sessionModel{
		SessionID:   s.SessionID,
		Bloque:      s.Bloque,
		Modo:        string(s.Modo),
		N:           s.N,
		Observacion: s.Observacion,
		Fecha:       fecha,
		UserID:      s.UserID,
		IsDuplicate: s.Duplicate,
		IsActive:    s.Active,
		Replaces:    nullableString(s.Replaces),
		ReplacedBy:  nullableString(s.ReplacedBy),
		CreatedAt:   s.CreatedAt,
	}, nil
}

func toSampleModels(sessionID string, active bool, samples []domain.Sample) []sampleModel {
	out := make([]sampleModel, 0, len(samples))
	for i, s := range samples {
		out = append(out, sampleModel{
			SessionID:    sessionID,
			Idx:          i + 1,
			AlturaCM:     measurementPtr(s.AlturaCM),
			EstructuraCM: measurementPtr(s.EstructuraCM),
			DiametroMM:   measurementPtr(s.DiametroMM),
			IsActive:     active,
		})
	}
	return out
}

func toDomainSession(m sessionModel, samples []sampleModel) domain.Session {
	out := domain.Session{
		SessionID:   m.SessionID,
		Bloque:      m.Bloque,
		Modo:        domain.Mode(m.Modo),
		N:           m.N,
		Observacion: m.Observacion,
		Fecha:       m.Fecha.Format(domain.DateLayout),
		UserID:      m.UserID,
		Duplicate:   m.IsDuplicate,
		Active:      m.IsActive,
		CreatedAt:   m.CreatedAt,
		Samples:     make([]domain.Sample, 0, len(samples)),
	}
	if m.Replaces != nil {
		out.Replaces = *m.Replaces
	}
	if m.ReplacedBy != nil {
		out.ReplacedBy = *m.ReplacedBy
	}
	for _, s := range samples {
		out.Samples = append(out.Samples, domain.Sample{
			AlturaCM:     measurementOf(s.AlturaCM),
			EstructuraCM: measurementOf(s.EstructuraCM),
			DiametroMM:   measurementOf(s.DiametroMM),
		})
	}
	return out
}

func measurementPtr(m domain.Measurement) *float64 {
	if !m.Set {
		return nil
	}
	v := m.Value
	return &v
}

func measurementOf(v *float64) domain.Measurement {
	if v == nil {
		return domain.Measurement{}
	}
	return domain.Value(*v)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
