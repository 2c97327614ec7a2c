// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// Argon2id parameters for newly produced hashes. Verification reads the
// parameters back out of the encoded hash, so these can change without
// invalidating stored credentials.
const (
	argonMemory  uint32 = 100 * 1024 // KiB
	argonTime    uint32 = 2
	argonThreads uint8  = 2
	saltLength          = 16
	keyLength    uint32 = 32
)

// Hasher derives and verifies password hashes. New hashes are Argon2id in PHC
// string form; verification additionally accepts legacy bcrypt hashes so
// accounts created before the migration keep working.
//
// Each derivation pins ~100 MiB for its duration, so concurrent derivations
// are bounded by a semaphore instead of letting a login burst take the
// process down.
type Hasher struct {
	memory  uint32
	time    uint32
	threads uint8
	sem     *semaphore.Weighted
}

// HasherOption configures a Hasher.
type HasherOption func(*Hasher)

// WithConcurrencyLimit bounds the number of in-flight derivations.
// The default is GOMAXPROCS.
func WithConcurrencyLimit(n int64) HasherOption {
	return func(h *Hasher) {
		h.sem = semaphore.NewWeighted(n)
	}
}

// NewHasher creates a Hasher with the production parameters.
func NewHasher(opts ...HasherOption) *Hasher {
	h := &Hasher{
		memory:  argonMemory,
		time:    argonTime,
		threads: argonThreads,
		sem:     semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash derives an Argon2id hash of password and returns it in PHC string
// form: $argon2id$v=19$m=102400,t=2,p=2$<salt>$<key>.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, keyLength)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether password matches the stored hash. A mismatch is
// (false, nil); the error path is reserved for malformed hash material and
// context cancellation. Dispatch is on the hash prefix: $argon2id$ hashes
// are re-derived and compared in constant time, $2a$/$2b$/$2y$ hashes are
// handed to bcrypt.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2id$"):
		return h.verifyArgon2id(ctx, password, encoded)
	case strings.HasPrefix(encoded, "$2a$"), strings.HasPrefix(encoded, "$2b$"), strings.HasPrefix(encoded, "$2y$"):
		return verifyBcrypt(password, encoded)
	default:
		return false, fmt.Errorf("unrecognized hash format")
	}
}

func (h *Hasher) verifyArgon2id(ctx context.Context, password, encoded string) (bool, error) {
	memory, time, threads, salt, key, err := decodeArgon2id(encoded)
	if err != nil {
		return false, err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	derived := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func verifyBcrypt(password, encoded string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case err == bcrypt.ErrMismatchedHashAndPassword:
		return false, nil
	default:
		return false, fmt.Errorf("verifying bcrypt hash: %w", err)
	}
}

// decodeArgon2id unpacks a PHC-form Argon2id hash into its parameters, salt
// and derived key.
func decodeArgon2id(encoded string) (memory, time uint32, threads uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2id version: %w", err)
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("unsupported argon2id version %d", version)
	}

	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2id parameters: %w", err)
	}
	// argon2.IDKey takes the lane count as uint8; a wider value in the
	// hash must fail verification, not wrap.
	if parallelism == 0 || parallelism > math.MaxUint8 {
		return 0, 0, 0, nil, nil, fmt.Errorf("argon2id parallelism %d out of range", parallelism)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2id salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed argon2id key: %w", err)
	}

	return memory, time, uint8(parallelism), salt, key, nil
}
