// Package hash wraps bcrypt behind a concurrency bound.
//
// bcrypt at the default cost takes tens of milliseconds of CPU per call.
// Every Hash and Compare acquires one slot of a weighted semaphore, so a
// burst of registrations or logins queues instead of pinning every core.
package hash

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// ErrMismatch is returned by Compare when the password does not match the hash.
var ErrMismatch = errors.New("password does not match hash")

type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher using the given bcrypt cost. Costs outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost; a non-positive
// concurrency is treated as one.
func NewHasher(cost int, maxConcurrency int64) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(maxConcurrency),
	}
}

func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns the bcrypt digest of password. The digest embeds the
// algorithm version, cost and salt.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("waiting for hash slot: %w", err)
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("generating bcrypt hash: %w", err)
	}

	return string(digest), nil
}

// Compare checks password against a stored digest using the cost and salt
// parsed from the digest itself.
func (h *Hasher) Compare(ctx context.Context, digest, password string) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for hash slot: %w", err)
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("comparing bcrypt hash: %w", err)
	}

	return nil
}
