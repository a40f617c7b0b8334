package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds, in bytes. bcrypt ignores everything past 72 bytes,
// so longer passwords are refused instead of silently truncated.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// DefaultCost is the bcrypt work factor used in production. Each step
// doubles the hashing time; 12 is roughly 250ms on current hardware.
const DefaultCost = 12

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService hashes and verifies passwords with bcrypt.
//
// The hash bcrypt produces embeds its salt and cost:
//
//	$2a$12$<22-char salt><31-char hash>
//
// so it is stored as-is in users.password_hash.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the given bcrypt cost.
// Costs outside bcrypt's accepted range fall back to DefaultCost. Tests pass
// bcrypt.MinCost (4) to keep hashing fast.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of plaintext.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordLength {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A wrong password yields
// ErrPasswordMismatch; a malformed hash yields a different error.
//
// bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
