package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Argon2id parameters. Verification lands in the tens of milliseconds on
// commodity hardware.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	pepperMu   sync.Mutex
	pepper     string
	pepperFile = "pepper"
)

// SetPepperPath sets the file the pepper is loaded from (or written to on
// first start). Must be called before the first hash operation.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// GetPepper returns the process-wide pepper, loading or generating it on first use.
func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}

	p, err := loadOrGeneratePepper(pepperFile)
	if err != nil {
		slog.Error("failed to load or generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	pepper = p
	return pepper
}

// loadOrGeneratePepper loads the pepper from a file or generates one if not found.
func loadOrGeneratePepper(file string) (string, error) {
	file = filepath.Clean(file)
	if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return "", fmt.Errorf("create pepper dir: %w", err)
	}

	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if len(data) == 0 {
			return "", fmt.Errorf("pepper file %s is empty", file)
		}
		return string(data), nil
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("read pepper: %w", err)
	}

	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(file, []byte(p), 0o600); err != nil {
		return "", fmt.Errorf("write pepper: %w", err)
	}
	return p, nil
}
