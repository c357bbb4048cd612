package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps one-way password hashing with a configurable cost.
type Hasher struct {
	cost int
}

// NewHasher constructs a Hasher. Costs outside bcrypt's range fall
// back to the library default.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Hash hashes a plaintext password.
func (h Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify compares a plaintext password with a stored hash.
func (h Hasher) Verify(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
