package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User presence statuses.
const (
	UserStatusOnline  = "online"
	UserStatusAway    = "away"
	UserStatusBusy    = "busy"
	UserStatusOffline = "offline"
)

// PermanentBan is the sentinel expiry used for bans without an end date.
var PermanentBan = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// User is a lightweight chat profile.
type User struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	Username    string     `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Avatar      *string    `gorm:"size:512" json:"avatar,omitempty"`
	Status      string     `gorm:"size:16;not null;default:online;index" json:"status"`
	IsAdmin     bool       `gorm:"not null;default:false" json:"is_admin"`
	LastSeen    time.Time  `gorm:"index" json:"last_seen"`
	BannedUntil *time.Time `json:"banned_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an identifier when one was not supplied.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// IsBanned reports whether the ban is still active at the given instant.
func (u User) IsBanned(now time.Time) bool {
	return u.BannedUntil != nil && u.BannedUntil.After(now)
}

// IsValidUserStatus reports whether status is one of the known presence values.
func IsValidUserStatus(status string) bool {
	switch status {
	case UserStatusOnline, UserStatusAway, UserStatusBusy, UserStatusOffline:
		return true
	default:
		return false
	}
}
