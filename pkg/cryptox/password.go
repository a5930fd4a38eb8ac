package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

var (
	ErrPasswordMismatch = errors.New("password does not match")
	ErrInvalidHash      = errors.New("invalid hash format")
)

// phcHash is a decoded "$argon2id$v=19$m=X,t=Y,p=Z$salt$hash" string.
type phcHash struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// HashPassword generates a PHC-format Argon2id hash string including salt and parameters.
// Backup codes go through the same primitive, they are credentials of equal strength.
func HashPassword(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret+GetPepper()), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword compares a plaintext secret against a PHC-style Argon2id hash.
// It returns ErrPasswordMismatch on a wrong secret and ErrInvalidHash (wrapped)
// when the stored hash cannot be decoded.
func VerifyPassword(secret, encodedHash string) error {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return err
	}

	computed := argon2.IDKey(
		[]byte(secret+GetPepper()),
		h.salt,
		h.iterations,
		h.memory,
		h.parallelism,
		uint32(len(h.key)), // #nosec G115 - key length comes from our own encoder
	)

	if subtle.ConstantTimeCompare(computed, h.key) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// VerifyDummy burns the same amount of work as VerifyPassword without a stored
// hash. Login calls it for unknown identifiers so response timing does not
// reveal whether an account exists.
func VerifyDummy(secret string) {
	dummyOnce.Do(func() {
		dummyHash, _ = HashPassword("dummy-password-for-timing")
	})
	_ = VerifyPassword(secret, dummyHash)
}

func parsePHC(encoded string) (phcHash, error) {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return phcHash{}, fmt.Errorf("%w: expected 6 parts", ErrInvalidHash)
	}
	if parts[1] != "argon2id" {
		return phcHash{}, fmt.Errorf("%w: not argon2id", ErrInvalidHash)
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phcHash{}, fmt.Errorf("%w: wrong version", ErrInvalidHash)
	}

	var h phcHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.iterations, &h.parallelism); err != nil {
		return phcHash{}, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return phcHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return phcHash{}, fmt.Errorf("%w: hash: %v", ErrInvalidHash, err)
	}
	if len(h.key) == 0 {
		return phcHash{}, fmt.Errorf("%w: empty hash", ErrInvalidHash)
	}

	return h, nil
}
