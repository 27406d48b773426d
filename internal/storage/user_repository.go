package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"relations-go/internal/models"
)

// UserRepository defines the interface for user directory operations.
// The relationship engine only reads from it; the registration pipeline
// also creates accounts.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByHandle(ctx context.Context, username, discriminator string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error)
	GetPublicInfoByID(ctx context.Context, id uint) (*models.UserPublicInfo, error)
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &user, nil
}

// GetByHandle retrieves a user by username and discriminator. The caller
// is expected to zero-pad the discriminator to four digits beforehand.
func (r *gormUserRepository) GetByHandle(ctx context.Context, username, discriminator string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? AND discriminator = ?", username, discriminator).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their (already normalized) email.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByFingerprint reports whether any account carries the given client
// fingerprint. Fingerprints are stored comma-separated on the user row.
func (r *gormUserRepository) ExistsByFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	if fingerprint == "" {
		return false, nil
	}
	var count int64
	pattern := fmt.Sprintf("%%%s%%", fingerprint)
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("fingerprints LIKE ?", pattern).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetPublicInfoByID retrieves the public identity of a user by ID.
func (r *gormUserRepository) GetPublicInfoByID(ctx context.Context, id uint) (*models.UserPublicInfo, error) {
	var info models.UserPublicInfo
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "username", "discriminator").
		Where("id = ?", id).
		First(&info).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &info, nil
}
