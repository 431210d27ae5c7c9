package security

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// dummyPassword is hashed once per Hasher so lookups for unknown accounts can pay the same
// bcrypt cost as real ones.
const dummyPassword = "authcore-timing-equalizer"

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
//
// HashPassword and VerifyPassword run bcrypt on at most Workers goroutines at a time so a burst of
// logins cannot starve unrelated requests of CPU.
type Hasher struct {
	Cost    int
	Workers int

	slots *semaphore.Weighted
	dummy string
}

// NewHasher returns a Hasher with the given bcrypt cost (4–31). Cost 12 is a
// reasonable default for interactive login. workers <= 0 means GOMAXPROCS.
func NewHasher(cost, workers int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	h := &Hasher{Cost: cost, Workers: workers, slots: semaphore.NewWeighted(int64(workers))}
	if b, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost); err == nil {
		h.dummy = string(b)
	}
	return h
}

// Hash produces a bcrypt hash of password. Every call uses a fresh random salt.
// Returns the hash as a string suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash using constant-time
// comparison. Returns nil if they match; returns an error (including
// bcrypt.ErrMismatchedHashAndPassword) if they do not or on invalid hash.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// HashPassword hashes plain on the offload pool. Returns ctx.Err() if ctx ends first.
func (h *Hasher) HashPassword(ctx context.Context, plain string) (string, error) {
	var out string
	err := h.offload(ctx, func() error {
		var err error
		out, err = h.Hash([]byte(plain))
		return err
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// VerifyPassword reports whether plain matches storedHash. A mismatch or a malformed hash is
// (false, nil); the only error is ctx.Err() when ctx ends before the comparison completes.
func (h *Hasher) VerifyPassword(ctx context.Context, plain, storedHash string) (bool, error) {
	var ok bool
	err := h.offload(ctx, func() error {
		ok = h.Compare(storedHash, []byte(plain)) == nil
		return nil
	})
	if err != nil {
		return false, err
	}
	return ok, nil
}

// VerifyDummy burns one comparison against an internal hash. Used when no credential exists so the
// caller cannot distinguish unknown accounts by latency.
func (h *Hasher) VerifyDummy(ctx context.Context, plain string) error {
	if h.dummy == "" {
		return nil
	}
	_, err := h.VerifyPassword(ctx, plain, h.dummy)
	return err
}

// offload runs fn on a pool slot. If ctx ends while fn is running, offload returns immediately;
// fn finishes in the background and releases its slot. fn must not touch shared state the caller
// reads after a ctx error.
func (h *Hasher) offload(ctx context.Context, fn func() error) error {
	slots := h.slots
	if slots == nil {
		return fn()
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer slots.Release(1)
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
