package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"relations-go/internal/models"
)

// InviteRepository defines the interface for invite code operations.
type InviteRepository interface {
	Create(ctx context.Context, invite *models.Invite) error
	GetByCode(ctx context.Context, code string) (*models.Invite, error)
	IncrementUses(ctx context.Context, code string) error
}

type gormInviteRepository struct {
	db *gorm.DB
}

// NewGormInviteRepository creates a new GORM-based InviteRepository.
func NewGormInviteRepository(db *gorm.DB) InviteRepository {
	return &gormInviteRepository{db: db}
}

// Create persists a new invite.
func (r *gormInviteRepository) Create(ctx context.Context, invite *models.Invite) error {
	return r.db.WithContext(ctx).Create(invite).Error
}

// GetByCode retrieves an invite by its code. Returns (nil, nil) when the
// code is unknown.
func (r *gormInviteRepository) GetByCode(ctx context.Context, code string) (*models.Invite, error) {
	var invite models.Invite
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&invite).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invite, nil
}

// IncrementUses bumps the redemption counter for the code.
func (r *gormInviteRepository) IncrementUses(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.Invite{}).
		Where("code = ?", code).
		UpdateColumn("uses", gorm.Expr("uses + 1")).Error
}
