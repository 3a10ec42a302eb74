// AngelaMos | 2026
// jwt.go

package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/marketplace-access/internal/config"
	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

const (
	claimEmail          = "email"
	claimName           = "name"
	claimRoles          = "roles"
	claimIsPro          = "isPro"
	claimOnboardedProAt = "onboardedProAt"
	claimCreatedAt      = "createdAt"
	claimUpdatedAt      = "updatedAt"

	minSecretBytes = 32
)

// Claims is everything an access token carries about its subject. Nothing
// secret or payment related belongs here.
type Claims struct {
	UserID         string
	Email          string
	Name           string
	Roles          []identity.Role
	IsPro          bool
	OnboardedProAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	TokenID   string
	ExpiresAt time.Time
}

func ClaimsFromUser(u *identity.SessionUser) Claims {
	return Claims{
		UserID:         u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Roles:          u.Roles,
		IsPro:          u.IsPro,
		OnboardedProAt: u.OnboardedProAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (c *Claims) SessionUser() *identity.SessionUser {
	return &identity.SessionUser{
		ID:             c.UserID,
		Email:          c.Email,
		Name:           c.Name,
		Roles:          c.Roles,
		IsPro:          c.IsPro,
		OnboardedProAt: c.OnboardedProAt,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// CreateToken signs claims with an HMAC secret and the given lifetime.
func CreateToken(claims Claims, secret string, ttl time.Duration) (string, error) {
	return signToken(claims, []byte(secret), ttl, "", "")
}

// VerifyToken returns nil for any token that fails verification.
func VerifyToken(token, secret string) *Claims {
	claims, err := parseToken(token, []byte(secret))
	if err != nil {
		return nil
	}
	return claims
}

type TokenManager struct {
	secret []byte
	config config.AuthConfig
}

func NewTokenManager(cfg config.AuthConfig) (*TokenManager, error) {
	if len(cfg.JWTSecret) < minSecretBytes {
		return nil, fmt.Errorf(
			"new token manager: secret must be at least %d bytes",
			minSecretBytes,
		)
	}
	if cfg.AccessTokenExpire <= 0 {
		return nil, fmt.Errorf("new token manager: access token ttl must be positive")
	}

	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		config: cfg,
	}, nil
}

func (m *TokenManager) AccessTokenTTL() time.Duration {
	return m.config.AccessTokenExpire
}

func (m *TokenManager) CreateAccessToken(claims Claims) (string, error) {
	return signToken(
		claims,
		m.secret,
		m.config.AccessTokenExpire,
		m.config.Issuer,
		m.config.Audience,
	)
}

// ParseToken is VerifyToken with the failure reason kept, wrapping
// core.ErrTokenExpired or core.ErrTokenInvalid.
func (m *TokenManager) ParseToken(token string) (*Claims, error) {
	opts := []jwt.ParseOption{}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.Audience))
	}
	return parseToken(token, m.secret, opts...)
}

func (m *TokenManager) VerifyToken(token string) *Claims {
	claims, err := m.ParseToken(token)
	if err != nil {
		return nil
	}
	return claims
}

func signToken(
	claims Claims,
	secret []byte,
	ttl time.Duration,
	issuer, audience string,
) (string, error) {
	if claims.UserID == "" {
		return "", fmt.Errorf("build token: missing subject: %w", core.ErrInvalidInput)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("build token: non-positive ttl: %w", core.ErrInvalidInput)
	}

	now := time.Now()

	b := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Subject(claims.UserID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Claim(claimEmail, claims.Email).
		Claim(claimName, claims.Name).
		Claim(claimRoles, identity.RoleStrings(claims.Roles)).
		Claim(claimIsPro, claims.IsPro).
		Claim(claimCreatedAt, claims.CreatedAt.Unix()).
		Claim(claimUpdatedAt, claims.UpdatedAt.Unix())

	if claims.OnboardedProAt != nil {
		b = b.Claim(claimOnboardedProAt, claims.OnboardedProAt.Unix())
	}
	if issuer != "" {
		b = b.Issuer(issuer)
	}
	if audience != "" {
		b = b.Audience([]string{audience})
	}

	token, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return string(signed), nil
}

func parseToken(
	tokenString string,
	secret []byte,
	extra ...jwt.ParseOption,
) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("verify token: empty: %w", core.ErrTokenInvalid)
	}

	opts := append([]jwt.ParseOption{
		jwt.WithKey(jwa.HS256(), secret),
		jwt.WithValidate(true),
	}, extra...)

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("verify token: missing subject: %w", core.ErrTokenInvalid)
	}

	claims := &Claims{UserID: subject}

	if jti, ok := token.JwtID(); ok {
		claims.TokenID = jti
	}
	if exp, ok := token.Expiration(); ok {
		claims.ExpiresAt = exp
	}

	var email string
	if err := token.Get(claimEmail, &email); err == nil {
		claims.Email = email
	}

	var name string
	if err := token.Get(claimName, &name); err == nil {
		claims.Name = name
	}

	var isPro bool
	if err := token.Get(claimIsPro, &isPro); err == nil {
		claims.IsPro = isPro
	}

	var rawRoles any
	if err := token.Get(claimRoles, &rawRoles); err == nil {
		claims.Roles = identity.ParseRoles(stringSlice(rawRoles))
	}

	if ts, ok := unixClaim(token, claimCreatedAt); ok {
		claims.CreatedAt = ts
	}
	if ts, ok := unixClaim(token, claimUpdatedAt); ok {
		claims.UpdatedAt = ts
	}
	if ts, ok := unixClaim(token, claimOnboardedProAt); ok {
		claims.OnboardedProAt = &ts
	}

	return claims, nil
}

func stringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func unixClaim(token jwt.Token, name string) (time.Time, bool) {
	var raw any
	if err := token.Get(name, &raw); err != nil {
		return time.Time{}, false
	}

	var secs int64
	switch v := raw.(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case int:
		secs = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		secs = n
	default:
		return time.Time{}, false
	}

	return time.Unix(secs, 0).UTC(), true
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}

type RefreshTokenData struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
	FamilyID  string
}

func (m *TokenManager) CreateRefreshToken(familyID string) (*RefreshTokenData, error) {
	token, err := core.GenerateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if familyID == "" {
		familyID = uuid.New().String()
	}

	return &RefreshTokenData{
		Token:     token,
		Hash:      core.HashToken(token),
		ExpiresAt: time.Now().Add(m.config.RefreshTokenExpire),
		FamilyID:  familyID,
	}, nil
}
