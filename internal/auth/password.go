package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost applies when BCRYPT_COST is outside bcrypt's accepted range.
const defaultCost = 12

// PasswordService hashes account passwords for the credential store and
// checks them at login. The cost comes from BCRYPT_COST; tests pass
// bcrypt.MinCost.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// ErrPasswordTooLong is returned by Hash for inputs bcrypt would silently
// truncate.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// NewPasswordService creates a PasswordService with the given bcrypt cost.
// A cost outside bcrypt's range falls back to the default (12).
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = defaultCost
	}
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt encoding of plaintext (salt and cost included),
// ready for the users.password_hash column. Inputs over MaxPasswordBytes
// fail with ErrPasswordTooLong instead of being truncated.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A mismatch and a
// malformed hash are both errors; Login treats either as bad credentials.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return fmt.Errorf("auth: invalid password")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// Burn performs a bcrypt comparison whose result is discarded.
//
// Login calls it when the email is unknown so that the response takes about
// as long as a wrong-password attempt, and timing does not reveal whether an
// account exists. The hash it compares against is generated once, at this
// service's cost, on first use.
func (p *PasswordService) Burn(plaintext string) {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("timing-equaliser"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
}
