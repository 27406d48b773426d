package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"relations-go/internal/apperrors"
	"relations-go/internal/models"
	"relations-go/internal/storage"
)

// InviteService manages registration invite codes.
type InviteService interface {
	Create(ctx context.Context, maxUses int, ttl time.Duration) (*models.Invite, error)
	Redeem(ctx context.Context, userID uint, code string) error
}

type inviteService struct {
	inviteRepo storage.InviteRepository
}

// NewInviteService creates a new InviteService instance.
func NewInviteService(inviteRepo storage.InviteRepository) InviteService {
	return &inviteService{inviteRepo: inviteRepo}
}

// Create mints a new invite code. ttl == 0 means no expiry.
func (s *inviteService) Create(ctx context.Context, maxUses int, ttl time.Duration) (*models.Invite, error) {
	invite := &models.Invite{
		Code:    strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
		MaxUses: maxUses,
	}
	if ttl > 0 {
		expiry := time.Now().Add(ttl)
		invite.ExpiresAt = &expiry
	}
	if err := s.inviteRepo.Create(ctx, invite); err != nil {
		return nil, fmt.Errorf("创建邀请码失败: %w", err)
	}
	return invite, nil
}

// Redeem validates the code and consumes one use for the given user.
// Invalid, expired and exhausted codes each fail with a field-scoped error
// on the invite field.
func (s *inviteService) Redeem(ctx context.Context, userID uint, code string) error {
	invite, err := s.inviteRepo.GetByCode(ctx, code)
	if err != nil {
		return fmt.Errorf("查询邀请码失败: %w", err)
	}
	if invite == nil {
		return apperrors.NewFieldError("invite", apperrors.CodeInviteInvalid, "Unknown invite code.")
	}
	if invite.Expired(time.Now()) {
		return apperrors.NewFieldError("invite", apperrors.CodeInviteExpired, "This invite has expired.")
	}
	if invite.Exhausted() {
		return apperrors.NewFieldError("invite", apperrors.CodeInviteExhausted, "This invite has no uses left.")
	}

	if err := s.inviteRepo.IncrementUses(ctx, code); err != nil {
		return fmt.Errorf("更新邀请码使用次数失败: %w", err)
	}
	log.Printf("Invite %s redeemed by user %d", code, userID)
	return nil
}
