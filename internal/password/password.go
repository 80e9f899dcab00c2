package password

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoPassword = errors.New("account has no password")
	ErrMismatch   = errors.New("password mismatch")
	ErrTooLong    = errors.New("password exceeds 72 bytes")
)

// MaxLength is the bcrypt input limit; longer inputs would be silently truncated.
const MaxLength = 72

// Hasher hashes and checks passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Cost() int { return h.cost }

// Hash returns the encoded bcrypt hash of plain.
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) > MaxLength {
		return "", ErrTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Verify checks plain against stored. A nil or empty stored hash fails with ErrNoPassword
// without running a comparison.
func (h *Hasher) Verify(plain string, stored *string) error {
	if stored == nil || *stored == "" {
		return ErrNoPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*stored), []byte(plain)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// Equalize burns one comparison against a fixed hash so that a lookup miss
// costs about as much as a wrong password.
func (h *Hasher) Equalize(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = bcrypt.GenerateFromPassword([]byte("equalize-timing-placeholder"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
