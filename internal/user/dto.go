// AngelaMos | 2026
// dto.go

package user

import (
	"time"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type UpdateUserRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
}

type UpdateRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,max=8,dive,oneof=buyer seller investor agent msme-owner founder admin super-admin"`
}

// UpdateSubscriptionRequest is what the payment flow posts once a Pro
// subscription starts or lapses.
type UpdateSubscriptionRequest struct {
	IsPro *bool `json:"isPro" validate:"required"`
}

type UserResponse struct {
	ID             string          `json:"id"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Roles          []identity.Role `json:"roles"`
	IsPro          bool            `json:"isPro"`
	OnboardedProAt *time.Time      `json:"onboardedProAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ListUsersParams struct {
	Page     int
	PageSize int
	Search   string
	Role     string
	IsPro    *bool
}

func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

func ToUserResponse(u *User) UserResponse {
	roles := []identity.Role(u.Roles)
	if roles == nil {
		roles = []identity.Role{}
	}
	return UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Roles:          roles,
		IsPro:          u.IsPro,
		OnboardedProAt: u.OnboardedProAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func ToUserResponseList(users []User) []UserResponse {
	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, ToUserResponse(&users[i]))
	}
	return responses
}
