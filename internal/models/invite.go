package models

import "time"

// Invite is a redeemable registration invite code.
// MaxUses == 0 means unlimited; a nil ExpiresAt never expires.
type Invite struct {
	BaseModel
	Code      string     `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`
	MaxUses   int        `gorm:"default:0" json:"maxUses"`
	Uses      int        `gorm:"default:0" json:"uses"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Exhausted reports whether the invite has no redemptions left.
func (i *Invite) Exhausted() bool {
	return i.MaxUses > 0 && i.Uses >= i.MaxUses
}

// Expired reports whether the invite is past its expiry time.
func (i *Invite) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// TableName 指定 Invite 模型的表名。
func (Invite) TableName() string {
	return "invites"
}
