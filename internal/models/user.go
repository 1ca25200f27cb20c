package models

import (
	"strconv"
	"time"
)

// Principal is the identity bound to a session after a successful login.
type Principal interface {
	GetID() string
	IsActive() bool
	IsAuthenticated() bool
}

// User represents an operator of the catalog.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;size:64;not null"`
	Email        *string   `json:"email,omitempty" gorm:"uniqueIndex;size:120"`
	PasswordHash string    `json:"-" gorm:"size:256;not null"` // never exposed
	Role         string    `json:"role" gorm:"size:64;not null;default:admin"`
	Active       bool      `json:"is_active" gorm:"column:is_active;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DefaultRole is assigned to users provisioned without an explicit role.
const DefaultRole = "admin"

// TableName pins the table name used by the credential store.
func (User) TableName() string {
	return "users"
}

func (u *User) GetID() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

func (u *User) IsActive() bool {
	return u.Active
}

// IsAuthenticated is true for every persisted user; anonymous visitors have no User at all.
func (u *User) IsAuthenticated() bool {
	return u.ID != 0
}
