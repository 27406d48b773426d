package models

import "time"

// User 代表系统中的一个账户。
// Username and Discriminator together identify a user publicly; the
// discriminator is stored zero-padded to four digits.
type User struct {
	BaseModel
	Username      string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_users_handle" json:"username"`
	Discriminator string     `gorm:"type:char(4);not null;uniqueIndex:idx_users_handle" json:"discriminator"`
	// Email is empty for guest accounts, so uniqueness is enforced by the
	// normalized-email lookup at registration time rather than an index.
	Email         string     `gorm:"type:varchar(100);index" json:"email,omitempty"`
	PasswordHash  string     `gorm:"type:varchar(255)" json:"-"` // empty for guest accounts
	Fingerprints  string     `gorm:"type:text" json:"-"`         // comma-separated client fingerprints
	DateOfBirth   *time.Time `json:"-"`
	Invited       bool       `gorm:"default:false" json:"-"` // account was created through an invite
}

// UserPublicInfo holds the minimal public identity of a user.
// Used in relationship listings and event payloads.
type UserPublicInfo struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}
