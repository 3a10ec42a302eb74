// AngelaMos | 2026
// dto.go

package auth

import (
	"time"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// RegisterRequest lets a new account pick member roles only. Staff roles
// are granted through the user administration endpoints.
type RegisterRequest struct {
	Email    string   `json:"email"    validate:"required,email,max=255"`
	Password string   `json:"password" validate:"required,min=8,max=72"`
	Name     string   `json:"name"     validate:"required,min=1,max=100"`
	Roles    []string `json:"roles"    validate:"omitempty,max=6,dive,oneof=buyer seller investor agent msme-owner founder"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=8,max=72"`
}

type TokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int       `json:"expiresIn"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type AuthResponse struct {
	User   *identity.SessionUser `json:"user"`
	Tokens TokenResponse         `json:"tokens"`
}
