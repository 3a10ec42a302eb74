// AngelaMos | 2026
// security.go

package core

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultPasswordCost = 12
	maxPasswordBytes    = 72
)

// HashPassword hashes with bcrypt. A cost of 0 selects DefaultPasswordCost;
// any other cost outside bcrypt's range is an error rather than a silent default.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultPasswordCost
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf(
			"hash password: cost %d outside [%d,%d]: %w",
			cost,
			bcrypt.MinCost,
			bcrypt.MaxCost,
			ErrInvalidInput,
		)
	}

	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("hash password: %w", ErrPasswordTooLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports false for mismatches and for malformed hashes.
func VerifyPassword(password, encodedHash string) bool {
	if encodedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
}

func NeedsRehash(encodedHash string, cost int) bool {
	if cost == 0 {
		cost = DefaultPasswordCost
	}

	current, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return true
	}

	return current < cost
}

var (
	dummyHash     string
	dummyHashOnce sync.Once
)

// DummyVerify spends the same time as a real verification so that unknown
// accounts are indistinguishable from wrong passwords at login.
func DummyVerify(password string) {
	dummyHashOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword(
			[]byte("dummy_password_for_timing_attack_prevention"),
			DefaultPasswordCost,
		)
		if err != nil {
			panic(fmt.Sprintf("security: failed to generate dummy hash: %v", err))
		}
		dummyHash = string(hash)
	})

	_ = VerifyPassword(password, dummyHash)
}

func GenerateSecureToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func GenerateRefreshToken() (string, error) {
	return GenerateSecureToken(32)
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func CompareTokenHash(token, hash string) bool {
	tokenHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(hash)) == 1
}
