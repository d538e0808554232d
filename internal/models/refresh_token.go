package models

import (
	"time"
)

// RefreshToken is an issued doctor refresh token. Rotation revokes the previous one.
type RefreshToken struct {
	BaseModel
	UserID    string    `gorm:"size:64;index;not null" json:"userId"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `gorm:"index" json:"expiresAt"`
	IsRevoked bool      `gorm:"default:false" json:"isRevoked"`
}

// Usable reports whether the token may still be exchanged at t.
func (r *RefreshToken) Usable(t time.Time) bool {
	return !r.IsRevoked && r.ExpiresAt.After(t)
}
