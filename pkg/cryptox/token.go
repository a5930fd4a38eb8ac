package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Token size constants (in bytes before encoding).
const (
	// TokenSize128 provides 128 bits of entropy (22 chars base64url).
	TokenSize128 = 16
	// TokenSize256 provides 256 bits of entropy (43 chars base64url).
	TokenSize256 = 32
)

// BackupCodeAlphabet is uppercase alphanumeric without the look-alike
// characters I, O, 0 and 1 so codes survive being read off paper.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateToken creates a cryptographically secure random token of the specified byte length.
// The token is returned as a base64url-encoded string (URL-safe, no padding).
//
// Session identifiers use TokenSize256.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCode returns a string of length characters drawn uniformly from
// alphabet using crypto/rand.
func GenerateCode(alphabet string, length int) (string, error) {
	if length <= 0 || alphabet == "" {
		return "", fmt.Errorf("invalid code parameters: length=%d alphabet=%d", length, len(alphabet))
	}

	limit := big.NewInt(int64(len(alphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random code: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}
	return string(out), nil
}

// FingerprintToken returns a deterministic SHA-256 fingerprint of a token,
// base64url encoded (43 chars). Stores key on the fingerprint so a dump of
// the revocation list does not hand out usable tokens.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
