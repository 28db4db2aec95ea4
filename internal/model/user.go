package model

import (
	"github.com/google/uuid"
)

// User role constants
const (
	RoleLocal    = "LOCAL"
	RoleExternal = "EXTERNAL"
)

// User represents a healthcare professional. LOCAL providers create cases
// and invite help; EXTERNAL specialists join cases by invitation.
type User struct {
	Base
	Name               string      `json:"name" db:"name"`
	Email              string      `json:"email" db:"email"`
	Password           string      `json:"password,omitempty" db:"-"`
	PasswordHash       string      `json:"-" db:"password_hash"`
	Role               string      `json:"role" db:"role"`
	Hospital           *string     `json:"hospital,omitempty" db:"hospital"`
	RegistrationNumber *string     `json:"registration_number,omitempty" db:"registration_number"`
	ReferralCode       *string     `json:"referral_code,omitempty" db:"referral_code"`
	ReferredBy         *uuid.UUID  `json:"referred_by,omitempty" db:"referred_by"`
	Specialties        []Specialty `json:"specialties" db:"-"`
}

// IsLocal reports whether the user holds the LOCAL provider role.
func (u *User) IsLocal() bool {
	return u.Role == RoleLocal
}

// HasSpecialty reports whether the user is tagged with the given specialty.
func (u *User) HasSpecialty(specialtyID uuid.UUID) bool {
	for _, s := range u.Specialties {
		if s.ID == specialtyID {
			return true
		}
	}
	return false
}

// RegisterRequest represents signup parameters
type RegisterRequest struct {
	Name               string      `json:"name" binding:"required,min=2,max=100"`
	Email              string      `json:"email" binding:"required,email"`
	Password           string      `json:"password" binding:"required,min=8"`
	Role               string      `json:"role" binding:"required,oneof=LOCAL EXTERNAL"`
	SpecialtyIDs       []uuid.UUID `json:"specialty_ids" binding:"required,min=1"`
	Hospital           *string     `json:"hospital"`
	RegistrationNumber *string     `json:"registration_number"`
	ReferralCode       string      `json:"referral_code"`
}

// LoginRequest represents authentication parameters
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries a refresh token to exchange for a new pair
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// TokenResponse is returned on successful authentication
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user,omitempty"`
}

// ReferralLookup is the public referral-code validation result
type ReferralLookup struct {
	Valid        bool    `json:"valid"`
	ReferrerName *string `json:"referrer_name,omitempty"`
}
