// AngelaMos | 2026
// service_test.go

package auth

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[string]*UserInfo
	nextID  int
	updates int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*UserInfo{}}
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Create(
	_ context.Context,
	email, passwordHash, name string,
	roles []identity.Role,
) (*UserInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			return nil, core.ErrDuplicateKey
		}
	}
	f.nextID++
	now := time.Now().UTC().Truncate(time.Second)
	u := &UserInfo{
		ID:           "user-" + strconv.Itoa(f.nextID),
		Email:        strings.ToLower(email),
		Name:         name,
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = passwordHash
	f.updates++
	return nil
}

func (f *fakeUsers) setPro(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC().Truncate(time.Second)
	f.byID[id].IsPro = true
	f.byID[id].OnboardedProAt = &now
}

type fakeTokens struct {
	mu     sync.Mutex
	byID   map[string]*RefreshToken
	purged time.Time
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byID: map[string]*RefreshToken{}}
}

func (f *fakeTokens) Create(_ context.Context, token *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token.CreatedAt = time.Now()
	cp := *token
	f.byID[token.ID] = &cp
	return nil
}

func (f *fakeTokens) FindByHash(_ context.Context, tokenHash string) (*RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.byID {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeTokens) Rotate(_ context.Context, oldID string, next *RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[oldID]
	if !ok || t.IsUsed || t.RevokedAt != nil {
		return ErrTokenReuse
	}
	now := time.Now()
	t.IsUsed = true
	t.UsedAt = &now
	t.ReplacedByID = &next.ID

	next.CreatedAt = now
	cp := *next
	f.byID[next.ID] = &cp
	return nil
}

func (f *fakeTokens) RevokeByID(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byID[id]
	if !ok || t.RevokedAt != nil {
		return core.ErrNotFound
	}
	now := time.Now()
	t.RevokedAt = &now
	return nil
}

func (f *fakeTokens) revokeWhere(match func(*RefreshToken) bool) {
	now := time.Now()
	for _, t := range f.byID {
		if match(t) && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
}

func (f *fakeTokens) RevokeByFamilyID(_ context.Context, familyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeWhere(func(t *RefreshToken) bool { return t.FamilyID == familyID })
	return nil
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeWhere(func(t *RefreshToken) bool { return t.UserID == userID })
	return nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = before
	var n int64
	for id, t := range f.byID {
		if t.ExpiresAt.Before(before) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) activeFor(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.byID {
		if t.UserID == userID && t.IsValid(time.Now()) {
			n++
		}
	}
	return n
}

type serviceFixture struct {
	svc    *Service
	users  *fakeUsers
	tokens *fakeTokens
	tm     *TokenManager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	tm := newTestTokenManager(t)
	users := newFakeUsers()
	tokens := newFakeTokens()
	return &serviceFixture{
		svc:    NewService(tokens, tm, users, bcrypt.MinCost, nil),
		users:  users,
		tokens: tokens,
		tm:     tm,
	}
}

func (f *serviceFixture) register(t *testing.T, email string, roles ...string) *AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: "correct horse battery",
		Name:     "Test User",
		Roles:    roles,
	}, "go-test", "127.0.0.1")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return resp
}

func TestRegisterDefaultsToBuyer(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.register(t, "new@example.com")

	if !slices.Equal(resp.User.Roles, []identity.Role{identity.RoleBuyer}) {
		t.Errorf("Roles = %v, want [buyer]", resp.User.Roles)
	}
	if resp.User.IsPro {
		t.Error("new user must start on the free tier")
	}

	claims := f.tm.VerifyToken(resp.Tokens.AccessToken)
	if claims == nil {
		t.Fatal("issued access token does not verify")
	}
	if !slices.Equal(claims.Roles, []identity.Role{identity.RoleBuyer}) {
		t.Errorf("token roles = %v", claims.Roles)
	}
	if resp.Tokens.ExpiresIn != int(time.Hour/time.Second) {
		t.Errorf("ExpiresIn = %d", resp.Tokens.ExpiresIn)
	}
}

func TestRegisterKeepsRequestedMemberRoles(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.register(t, "both@example.com", "seller", "investor")

	want := []identity.Role{identity.RoleSeller, identity.RoleInvestor}
	if !slices.Equal(resp.User.Roles, want) {
		t.Errorf("Roles = %v, want %v", resp.User.Roles, want)
	}
}

func TestRegisterRejectsNonMemberRoles(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
	}{
		{"super-admin", []string{"super-admin"}},
		{"admin alongside member role", []string{"seller", "admin"}},
		{"unknown role", []string{"wizard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			email := "role-" + strconv.Itoa(len(tt.roles)) + "@example.com"

			_, err := f.svc.Register(context.Background(), RegisterRequest{
				Email:    email,
				Password: "correct horse battery",
				Name:     "Role Seeker",
				Roles:    tt.roles,
			}, "", "")
			if !errors.Is(err, core.ErrInvalidInput) {
				t.Fatalf("Register() error = %v, want ErrInvalidInput", err)
			}

			if _, err := f.users.GetByEmail(context.Background(), email); !errors.Is(err, core.ErrNotFound) {
				t.Errorf("account created despite rejected roles (lookup error = %v)", err)
			}
		})
	}
}

func TestRegisterDeduplicatesMemberRoles(t *testing.T) {
	f := newServiceFixture(t)

	resp := f.register(t, "twice@example.com", "agent", "agent", "founder")

	want := []identity.Role{identity.RoleAgent, identity.RoleFounder}
	if !slices.Equal(resp.User.Roles, want) {
		t.Errorf("Roles = %v, want %v", resp.User.Roles, want)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "dup@example.com")

	_, err := f.svc.Register(context.Background(), RegisterRequest{
		Email:    "DUP@example.com",
		Password: "another password",
		Name:     "Dup",
	}, "", "")
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("Register() error = %v, want ErrEmailExists", err)
	}
}

func TestLogin(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "login@example.com", "seller")

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"valid", "login@example.com", "correct horse battery", nil},
		{"wrong password", "login@example.com", "wrong horse battery", ErrInvalidCredentials},
		{"unknown email", "ghost@example.com", "correct horse battery", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.Login(context.Background(), LoginRequest{
				Email:    tt.email,
				Password: tt.password,
			}, "", "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !resp.User.HasRole(identity.RoleSeller) {
				t.Errorf("Login() user = %+v", resp.User)
			}
		})
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "weak@example.com")

	f.svc.passwordCost = bcrypt.MinCost + 1

	if _, err := f.svc.Login(context.Background(), LoginRequest{
		Email:    "weak@example.com",
		Password: "correct horse battery",
	}, "", ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	stored, _ := f.users.GetByID(context.Background(), resp.User.ID)
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.MinCost+1 {
		t.Errorf("stored cost = %d, want %d", cost, bcrypt.MinCost+1)
	}
}

func TestRefreshPicksUpProUpgrade(t *testing.T) {
	f := newServiceFixture(t)
	first := f.register(t, "upgrade@example.com", "msme-owner")

	f.users.setPro(first.User.ID)

	second, err := f.svc.Refresh(context.Background(), first.Tokens.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	claims := f.tm.VerifyToken(second.Tokens.AccessToken)
	if claims == nil || !claims.IsPro || claims.OnboardedProAt == nil {
		t.Errorf("refreshed claims = %+v, want Pro with onboarding time", claims)
	}
	if second.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Error("refresh token not rotated")
	}
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	f := newServiceFixture(t)
	first := f.register(t, "reuse@example.com")

	second, err := f.svc.Refresh(context.Background(), first.Tokens.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	_, err = f.svc.Refresh(context.Background(), first.Tokens.RefreshToken, "", "")
	if !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("Refresh(reused) error = %v, want ErrTokenReuse", err)
	}

	_, err = f.svc.Refresh(context.Background(), second.Tokens.RefreshToken, "", "")
	if !errors.Is(err, core.ErrTokenRevoked) {
		t.Errorf("Refresh(after reuse) error = %v, want ErrTokenRevoked", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "race@example.com", "seller")

	const attempts = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		reused int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), resp.Tokens.RefreshToken, "", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrTokenReuse):
				reused++
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful refreshes = %d, want 1", wins)
	}
	if wins+reused != attempts {
		t.Errorf("wins %d + reuse %d != %d", wins, reused, attempts)
	}
	if n := f.tokens.activeFor(resp.User.ID); n != 0 {
		t.Errorf("active tokens after reuse = %d, want 0", n)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Refresh(context.Background(), "nope", "", "")
	if !errors.Is(err, core.ErrTokenInvalid) {
		t.Errorf("Refresh() error = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutOwnershipAndLogoutAll(t *testing.T) {
	f := newServiceFixture(t)
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")

	err := f.svc.Logout(context.Background(), alice.Tokens.RefreshToken, bob.User.ID)
	if !errors.Is(err, core.ErrForbidden) {
		t.Errorf("Logout(other user) error = %v, want ErrForbidden", err)
	}

	if err := f.svc.Logout(context.Background(), alice.Tokens.RefreshToken, alice.User.ID); err != nil {
		t.Errorf("Logout() error = %v", err)
	}
	if n := f.tokens.activeFor(alice.User.ID); n != 0 {
		t.Errorf("alice active tokens = %d, want 0", n)
	}

	if err := f.svc.Logout(context.Background(), "unknown", alice.User.ID); err != nil {
		t.Errorf("Logout(unknown) error = %v, want nil", err)
	}

	if _, err := f.svc.Login(context.Background(), LoginRequest{
		Email: "bob@example.com", Password: "correct horse battery",
	}, "", ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := f.svc.LogoutAll(context.Background(), bob.User.ID); err != nil {
		t.Fatalf("LogoutAll() error = %v", err)
	}
	if n := f.tokens.activeFor(bob.User.ID); n != 0 {
		t.Errorf("bob active tokens = %d, want 0", n)
	}
}

func TestChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "change@example.com")
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, resp.User.ID, "wrong horse battery", "brand new secret")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("ChangePassword(wrong) error = %v", err)
	}

	if err := f.svc.ChangePassword(ctx, resp.User.ID, "correct horse battery", "brand new secret"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	if n := f.tokens.activeFor(resp.User.ID); n != 0 {
		t.Errorf("active tokens after change = %d, want 0", n)
	}

	if _, err := f.svc.Login(ctx, LoginRequest{Email: "change@example.com", Password: "brand new secret"}, "", ""); err != nil {
		t.Errorf("Login(new password) error = %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	f := newServiceFixture(t)
	resp := f.register(t, "purge@example.com")

	old := &RefreshToken{
		ID:        "old",
		UserID:    resp.User.ID,
		TokenHash: "h",
		FamilyID:  "fam",
		ExpiresAt: time.Now().Add(-48 * time.Hour),
	}
	if err := f.tokens.Create(context.Background(), old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	n, err := f.svc.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if time.Since(f.tokens.purged) < expiredTokenRetention {
		t.Errorf("cutoff %v is newer than the retention window", f.tokens.purged)
	}
}
