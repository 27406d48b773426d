package models

import (
	"time"

	"gorm.io/gorm"
)

// BaseModel defines the common fields shared by account-level models.
// It includes an auto-incrementing ID and CreatedAt/UpdatedAt timestamps.
type BaseModel struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"` // For soft deletes
}
