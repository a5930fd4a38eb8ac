package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
)

const (
	TOTPPeriod       = 30
	TOTPDigits       = 6
	DefaultTOTPSkew  = 2
	BackupCodeCount  = 10
	BackupCodeLength = 8
	qrCodeSize       = 200
)

// BackupCodeMatch is the outcome of checking a submitted backup code.
// Remaining holds every hash except the matched one.
type BackupCodeMatch struct {
	Valid     bool
	Matched   string
	Remaining []string
}

// TOTPService wraps secret generation, code checks and backup codes.
type TOTPService struct {
	Issuer string
	// Skew is the number of periods accepted either side of now.
	Skew uint

	now func() time.Time
}

func NewTOTPService(issuer string) *TOTPService {
	return &TOTPService{Issuer: issuer, Skew: DefaultTOTPSkew, now: time.Now}
}

// WithClock replaces the time source used for code validation.
func (s *TOTPService) WithClock(now func() time.Time) *TOTPService {
	s.now = now
	return s
}

// GenerateSecret returns a fresh base32 secret and its otpauth:// URI.
func (s *TOTPService) GenerateSecret(accountName string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      TOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// RenderQR encodes a provisioning URI as a PNG.
func (s *TOTPService) RenderQR(uri string) ([]byte, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("render qr image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}

// QRDataURL renders a PNG as an inline data URL.
func QRDataURL(pngBytes []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
}

// VerifyCode reports whether code is a current TOTP for secret. Anything
// that is not exactly six digits fails before any crypto runs.
func (s *TOTPService) VerifyCode(code, secret string) bool {
	code = strings.TrimSpace(code)
	if len(code) != TOTPDigits || secret == "" {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}

	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    TOTPPeriod,
		Skew:      s.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// GenerateBackupCodes returns BackupCodeCount plaintext codes. They are shown
// once and only their hashes are stored.
func (s *TOTPService) GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, BackupCodeCount)
	for range BackupCodeCount {
		c, err := cryptox.GenerateCode(cryptox.BackupCodeAlphabet, BackupCodeLength)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, nil
}

func (s *TOTPService) HashBackupCodes(codes []string) ([]string, error) {
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := cryptox.HashPassword(normalizeBackupCode(c))
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// VerifyBackupCode compares code against each stored hash and stops at the
// first match.
func (s *TOTPService) VerifyBackupCode(code string, hashes []string) BackupCodeMatch {
	code = normalizeBackupCode(code)
	if len(code) != BackupCodeLength {
		return BackupCodeMatch{Remaining: hashes}
	}

	for i, h := range hashes {
		if cryptox.VerifyPassword(code, h) == nil {
			remaining := make([]string, 0, len(hashes)-1)
			remaining = append(remaining, hashes[:i]...)
			remaining = append(remaining, hashes[i+1:]...)
			return BackupCodeMatch{Valid: true, Matched: h, Remaining: remaining}
		}
	}
	return BackupCodeMatch{Remaining: hashes}
}

// normalizeBackupCode uppercases and drops separators users tend to type.
func normalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
