package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/ports"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repositories struct {
	Users    ports.UserRepository
	Blocks   ports.BlockRepository
	Sessions ports.SessionRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Users:    &userRepository{db: db},
		Blocks:   &blockRepository{db: db},
		Sessions: &sessionRepository{db: db},
	}
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) GetByID(ctx context.Context, userID string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

func (r *userRepository) Upsert(ctx context.Context, user domain.User) error {
	now := time.Now().UTC()
	rec := userModel{
		UserID:    user.UserID,
		PINHash:   user.PINHash,
		Role:      user.Role,
		IsActive:  user.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pin_hash", "role", "is_active", "updated_at"}),
	}).Create(&rec).Error
}

type blockRepository struct {
	db *gorm.DB
}

func (r *blockRepository) ListActive(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&blockModel{}).
		Where("is_active").
		Order("name ASC").
		Pluck("name", &names).Error
	return names, err
}

func (r *blockRepository) Upsert(ctx context.Context, block domain.Block) error {
	rec := blockModel{Name: block.Name, IsActive: block.Active, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_active", "updated_at"}),
	}).Create(&rec).Error
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session domain.Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertSession(tx, session)
	})
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (domain.Session, error) {
	var rec sessionModel
	db := r.db.WithContext(ctx)
	if err := db.Where("session_id = ?", sessionID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, err
	}
	var samples []sampleModel
	if err := db.Where("session_id = ?", sessionID).Order("idx ASC").Find(&samples).Error; err != nil {
		return domain.Session{}, err
	}
	return toDomainSession(rec, samples), nil
}

func (r *sessionRepository) ListActiveOn(ctx context.Context, bloque string, modo domain.Mode, day string) ([]domain.SessionSummary, error) {
	fecha, err := time.Parse(domain.DateLayout, day)
	if err != nil {
		return nil, fmt.Errorf("%w: fecha %q", domain.ErrInvalidInput, day)
	}
	var rows []sessionCountRow
	err = r.db.WithContext(ctx).
		Table("capture_sessions AS s").
		Select("s.session_id, COUNT(x.id) AS count").
		Joins("LEFT JOIN capture_samples AS x ON x.session_id = s.session_id AND x.is_active").
		Where("s.bloque = ? AND s.modo = ? AND s.fecha = ? AND s.is_active", bloque, string(modo), fecha).
		Group("s.session_id, s.created_at").
		Order("s.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SessionSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SessionSummary{SessionID: row.SessionID, Count: row.Count})
	}
	return out, nil
}

// Replace locks the old session row, deactivates it with its samples and
// inserts the new session in the same transaction.
func (r *sessionRepository) Replace(ctx context.Context, params ports.ReplaceSessionParams) (ports.ReplaceSessionResult, error) {
	var result ports.ReplaceSessionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old sessionModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", params.OldSessionID).
			Take(&old).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !old.IsActive {
			return fmt.Errorf("%w: session %s already replaced", domain.ErrConflict, old.SessionID)
		}

		res := tx.Model(&sampleModel{}).
			Where("session_id = ? AND is_active", old.SessionID).
			Update("is_active", false)
		if res.Error != nil {
			return res.Error
		}
		result.ReplacedCount = int(res.RowsAffected)

		replacedAt := params.ReplacedAt
		if err := tx.Model(&sessionModel{}).
			Where("session_id = ?", old.SessionID).
			Updates(map[string]any{
				"is_active":   false,
				"replaced_by": params.New.SessionID,
				"replaced_at": replacedAt,
			}).Error; err != nil {
			return err
		}

		if err := insertSession(tx, params.New); err != nil {
			return err
		}
		result.Inserted = len(params.New.Samples)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ports.ReplaceSessionResult{}, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return ports.ReplaceSessionResult{}, err
	}
	return result, nil
}

func insertSession(tx *gorm.DB, session domain.Session) error {
	rec, err := toSessionModel(session)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := tx.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: session %s exists", domain.ErrConflict, session.SessionID)
		}
		return err
	}
	samples := toSampleModels(session.SessionID, session.Active, session.Samples)
	if len(samples) == 0 {
		return nil
	}
	return tx.CreateInBatches(&samples, 200).Error
}
