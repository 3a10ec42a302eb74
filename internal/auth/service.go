// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
)

const expiredTokenRetention = 24 * time.Hour

type UserInfo struct {
	ID             string
	Email          string
	Name           string
	PasswordHash   string
	Roles          []identity.Role
	IsPro          bool
	OnboardedProAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (u *UserInfo) SessionUser() *identity.SessionUser {
	return &identity.SessionUser{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Roles:          u.Roles,
		IsPro:          u.IsPro,
		OnboardedProAt: u.OnboardedProAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

// UserProvider is the password and subscription store behind login. The
// payment webhook that flips IsPro writes through the same store.
type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(
		ctx context.Context,
		email, passwordHash, name string,
		roles []identity.Role,
	) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type Service struct {
	repo         Repository
	tokens       *TokenManager
	users        UserProvider
	passwordCost int
	logger       *slog.Logger
}

func NewService(
	repo Repository,
	tokens *TokenManager,
	users UserProvider,
	passwordCost int,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		tokens:       tokens,
		users:        users,
		passwordCost: passwordCost,
		logger:       logger,
	}
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.DummyVerify(req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !core.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if core.NeedsRehash(user.PasswordHash, s.passwordCost) {
		s.rehash(ctx, user.ID, req.Password)
	}

	return s.createAuthResponse(ctx, user, userAgent, ipAddress, "", nil)
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	newHash, err := core.HashPassword(password, s.passwordCost)
	if err != nil {
		s.logger.Warn("password rehash failed", "user_id", userID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		s.logger.Warn("password rehash not stored", "user_id", userID, "error", err)
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	roles, err := memberRoles(req.Roles)
	if err != nil {
		return nil, err
	}

	passwordHash, err := core.HashPassword(req.Password, s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, req.Email, passwordHash, req.Name, roles)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.createAuthResponse(ctx, user, userAgent, ipAddress, "", nil)
}

// memberRoles turns the requested tags into the roles of a new account.
// Unknown and staff roles are rejected; no tags means buyer.
func memberRoles(tags []string) ([]identity.Role, error) {
	roles := make([]identity.Role, 0, len(tags))
	for _, tag := range tags {
		role, err := identity.ParseRole(tag)
		if err != nil {
			return nil, fmt.Errorf("register: %w: %w", core.ErrInvalidInput, err)
		}
		if role.IsStaff() {
			return nil, fmt.Errorf("register: role %q cannot be self-assigned: %w", role, core.ErrInvalidInput)
		}
		if !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}

	if len(roles) == 0 {
		roles = append(roles, identity.RoleBuyer)
	}
	return roles, nil
}

// Refresh rotates the refresh token and re-reads the user, so role or Pro
// changes made since the last token show up in the new access token.
func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (*AuthResponse, error) {
	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	if storedToken.IsUsed {
		s.revokeFamily(ctx, storedToken.UserID, storedToken.FamilyID)
		return nil, ErrTokenReuse
	}

	if !storedToken.IsValid(time.Now()) {
		if storedToken.IsRevoked() {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	user, err := s.users.GetByID(ctx, storedToken.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return s.createAuthResponse(
		ctx,
		user,
		userAgent,
		ipAddress,
		storedToken.FamilyID,
		&storedToken.ID,
	)
}

func (s *Service) Logout(
	ctx context.Context,
	refreshToken, userID string,
) error {
	storedToken, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("find token: %w", err)
	}

	if storedToken.UserID != userID {
		return fmt.Errorf("logout: %w", core.ErrForbidden)
	}

	if err := s.repo.RevokeByID(ctx, storedToken.ID); err != nil &&
		!errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("revoke token: %w", err)
	}

	return nil
}

// LogoutAll revokes every refresh token of the user. Access tokens already
// issued stay valid until they expire.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if err := s.repo.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}
	return nil
}

func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if !core.VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	newHash, err := core.HashPassword(newPassword, s.passwordCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.LogoutAll(ctx, userID)
}

// PurgeExpired drops refresh tokens that expired more than a day ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, time.Now().Add(-expiredTokenRetention))
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

// revokeFamily ends every session descended from a replayed refresh token.
func (s *Service) revokeFamily(ctx context.Context, userID, familyID string) {
	if err := s.repo.RevokeByFamilyID(ctx, familyID); err != nil {
		s.logger.Error("revoke reused token family",
			"family_id", familyID,
			"error", err,
		)
	}
	s.logger.Warn("refresh token reuse detected",
		"user_id", userID,
		"family_id", familyID,
	)
}

func (s *Service) createAuthResponse(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress, familyID string,
	oldTokenID *string,
) (*AuthResponse, error) {
	session := user.SessionUser()

	accessToken, err := s.tokens.CreateAccessToken(ClaimsFromUser(session))
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refreshData, err := s.tokens.CreateRefreshToken(familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	next := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: refreshData.Hash,
		FamilyID:  refreshData.FamilyID,
		ExpiresAt: refreshData.ExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}

	if oldTokenID == nil {
		if err := s.repo.Create(ctx, next); err != nil {
			return nil, fmt.Errorf("store refresh token: %w", err)
		}
	} else if err := s.repo.Rotate(ctx, *oldTokenID, next); err != nil {
		if errors.Is(err, ErrTokenReuse) {
			s.revokeFamily(ctx, user.ID, refreshData.FamilyID)
			return nil, ErrTokenReuse
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	ttl := s.tokens.AccessTokenTTL()

	return &AuthResponse{
		User: session,
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refreshData.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(ttl / time.Second),
			ExpiresAt:    time.Now().Add(ttl),
		},
	}, nil
}
