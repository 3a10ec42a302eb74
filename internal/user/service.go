// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/marketplace-access/internal/auth"
	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

// Create stores a new free-tier member.
func (s *Service) Create(
	ctx context.Context,
	email, passwordHash, name string,
	roles []identity.Role,
) (*auth.UserInfo, error) {
	user := &User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(email),
		PasswordHash: passwordHash,
		Name:         name,
		Roles:        RoleList(roles),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return toUserInfo(user), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateUser(
	ctx context.Context,
	id string,
	req UpdateUserRequest,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// SetProStatus records a subscription change. The first activation stamps
// OnboardedProAt; later lapses and renewals keep the original stamp.
// Tokens issued before the change keep their old tier until refreshed.
func (s *Service) SetProStatus(
	ctx context.Context,
	id string,
	isPro bool,
) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsPro = isPro
	if isPro && user.OnboardedProAt == nil {
		now := s.now().UTC()
		user.OnboardedProAt = &now
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("subscription status changed",
		"user_id", user.ID,
		"is_pro", isPro,
	)

	return user, nil
}

func (s *Service) SetRoles(
	ctx context.Context,
	id string,
	tags []string,
) (*User, error) {
	roles := identity.ParseRoles(tags)
	if len(roles) == 0 || len(roles) != len(tags) {
		return nil, fmt.Errorf(
			"set roles: invalid or duplicate roles %v: %w",
			tags,
			core.ErrInvalidInput,
		)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Roles = RoleList(roles)

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("roles changed",
		"user_id", user.ID,
		"roles", identity.RoleStrings(roles),
	)

	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.repo.SoftDelete(ctx, id)
}

func (s *Service) ListUsers(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) GetMe(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("get me: %w", core.ErrUnauthorized)
	}

	return s.repo.GetByID(ctx, userID)
}

func (s *Service) UpdateMe(
	ctx context.Context,
	userID string,
	req UpdateUserRequest,
) (*User, error) {
	if userID == "" {
		return nil, fmt.Errorf("update me: %w", core.ErrUnauthorized)
	}

	return s.UpdateUser(ctx, userID, req)
}

func (s *Service) DeleteMe(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("delete me: %w", core.ErrUnauthorized)
	}

	return s.repo.SoftDelete(ctx, userID)
}

// CanDeleteUser lets staff remove members. Only a super-admin may remove
// another staff account.
func (s *Service) CanDeleteUser(
	ctx context.Context,
	requester *identity.SessionUser,
	targetID string,
) error {
	if !requester.Authenticated() {
		return fmt.Errorf("delete user: %w", core.ErrUnauthorized)
	}

	if requester.ID == targetID {
		return nil
	}

	if !requester.HasAnyRole(identity.RoleAdmin, identity.RoleSuperAdmin) {
		return fmt.Errorf("delete user: %w", core.ErrForbidden)
	}

	target, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	if target.IsStaff() && !requester.HasRole(identity.RoleSuperAdmin) {
		return fmt.Errorf("cannot delete staff users: %w", core.ErrForbidden)
	}

	return nil
}

func toUserInfo(u *User) *auth.UserInfo {
	return &auth.UserInfo{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		PasswordHash:   u.PasswordHash,
		Roles:          []identity.Role(u.Roles),
		IsPro:          u.IsPro,
		OnboardedProAt: u.OnboardedProAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

var _ auth.UserProvider = (*Service)(nil)
