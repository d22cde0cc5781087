package identity

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// TextCodeEmptyPassword flags hashing of an empty string.
const TextCodeEmptyPassword = "EMPTY_PASSWORD"

// ErrNoEmptyString is returned when an empty password reaches the hasher.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// BcryptHasher hashes passwords with a configurable work factor.
type BcryptHasher struct {
	cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a hasher with the given cost. Costs outside the
// bcrypt range fall back to the package default.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash generates a salted bcrypt hash for the given password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	return string(hashed), nil
}

// Compare validates the given cleartext password against the stored hash.
// A mismatch returns ErrInvalidCredentials; it never distinguishes where the
// comparison failed.
func (h *BcryptHasher) Compare(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to compare password hash")
	}
	return nil
}

// RandomPasswordHash produces a hash for a throwaway password, used to keep
// password comparison time uniform when the account does not exist.
func (h *BcryptHasher) RandomPasswordHash() string {
	pwd := uuid.New()

	hashed, err := h.Hash(pwd.String())
	if err != nil {
		return h.RandomPasswordHash()
	}

	return hashed
}
