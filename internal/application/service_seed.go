package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/viralforge/fieldcapture/internal/domain"
)

type SeedUser struct {
	UserID string
	PIN    string
	Role   string
}

// SeedBlocks upserts blocks as active and drops the cached block list.
func (s *Service) SeedBlocks(ctx context.Context, names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := s.blocks.Upsert(ctx, domain.Block{Name: name, Active: true}); err != nil {
			return fmt.Errorf("seed block %s: %w", name, err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.warn(ctx, "block_cache_invalidate", err)
		}
	}
	return nil
}

// SeedUsers upserts users with hashed PINs.
func (s *Service) SeedUsers(ctx context.Context, users []SeedUser) error {
	for _, u := range users {
		userID := strings.TrimSpace(u.UserID)
		if userID == "" || strings.TrimSpace(u.PIN) == "" {
			return fmt.Errorf("%w: seed user requires user_id and pin", domain.ErrInvalidInput)
		}
		role := strings.ToLower(strings.TrimSpace(u.Role))
		if role == "" {
			role = domain.RoleOperator
		}
		if role != domain.RoleOperator && role != domain.RoleAdmin {
			return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, u.Role)
		}
		hash, err := s.hasher.Hash(strings.TrimSpace(u.PIN))
		if err != nil {
			return fmt.Errorf("hash pin for %s: %w", userID, err)
		}
		if err := s.users.Upsert(ctx, domain.User{UserID: userID, PINHash: hash, Role: role, Active: true, CreatedAt: s.nowFn()}); err != nil {
			return fmt.Errorf("seed user %s: %w", userID, err)
		}
	}
	return nil
}
