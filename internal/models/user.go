package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

// User is a clinician account allowed to run examination sessions.
type User struct {
	BaseModel
	Email         string  `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password      string  `gorm:"size:255;not null" json:"-"`
	FullName      string  `gorm:"size:255;not null" json:"fullName"`
	Role          Role    `gorm:"size:20;default:'doctor'" json:"role"`
	Department    *string `gorm:"size:100" json:"department,omitempty"`
	LicenseNumber *string `gorm:"size:64" json:"licenseNumber,omitempty"`

	RefreshTokens []RefreshToken `gorm:"foreignKey:UserID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	Role          Role      `json:"role"`
	Department    *string   `json:"department,omitempty"`
	LicenseNumber *string   `json:"licenseNumber,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) == nil
}

// Sanitize strips credentials from the account.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		Department:    u.Department,
		LicenseNumber: u.LicenseNumber,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}
