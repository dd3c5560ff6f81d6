package goMFA

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// CodeDigits is the only accepted one-time code length.
	CodeDigits = 6

	totpSecretBytes = 20
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Verifier checks time-based one-time codes against base32 secrets.
//
// A Verifier holds no mutable state; Verify is a pure function of its
// arguments and can be called concurrently.
type Verifier struct {
	config TOTPConfig
}

// NewVerifier returns a Verifier for cfg. An empty Algorithm means SHA1.
func NewVerifier(cfg TOTPConfig) *Verifier {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Period <= 0 {
		cfg.Period = 30
	}
	if cfg.Skew < 1 {
		cfg.Skew = 1
	}
	return &Verifier{config: cfg}
}

// ValidateCode reports a KindValidation error unless code is exactly
// CodeDigits ASCII digits.
func ValidateCode(code string) error {
	if len(code) != CodeDigits || !isNumericString(code) {
		return validationError("validate_code", "code must be exactly %d digits", CodeDigits)
	}
	return nil
}

// GenerateSecret returns a fresh random seed encoded as unpadded base32.
func (v *Verifier) GenerateSecret() (string, error) {
	if v == nil {
		return "", ErrEngineNotReady
	}
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return secretEncoding.EncodeToString(raw), nil
}

// ProvisionURI renders the otpauth:// URI scanned by authenticator apps.
func (v *Verifier) ProvisionURI(secretBase32, label string) string {
	issuer := v.config.Issuer
	path := url.PathEscape(issuer + ":" + label)

	q := url.Values{}
	q.Set("secret", secretBase32)
	q.Set("issuer", issuer)
	q.Set("period", strconv.Itoa(v.config.Period))
	q.Set("digits", strconv.Itoa(CodeDigits))
	q.Set("algorithm", strings.ToUpper(v.config.Algorithm))

	return "otpauth://totp/" + path + "?" + q.Encode()
}

// Verify reports whether code matches secretBase32 at now, accepting the
// configured number of adjacent time steps on either side.
//
// A malformed code is a KindValidation error, never a false result.
func (v *Verifier) Verify(secretBase32, code string, now time.Time) (bool, error) {
	if v == nil {
		return false, ErrEngineNotReady
	}
	if err := ValidateCode(code); err != nil {
		return false, err
	}
	secret, err := decodeSecret(secretBase32)
	if err != nil {
		return false, err
	}

	baseCounter := now.Unix() / int64(v.config.Period)
	matched := 0
	for step := -v.config.Skew; step <= v.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(secret, counter, CodeDigits, v.config.Algorithm)
		if err != nil {
			return false, err
		}
		// every step is compared so timing does not reveal which one matched
		matched |= subtle.ConstantTimeCompare([]byte(generated), []byte(code))
	}

	return matched == 1, nil
}

// CodeAt returns the code an authenticator holding secretBase32 shows at t.
func (v *Verifier) CodeAt(secretBase32 string, t time.Time) (string, error) {
	if v == nil {
		return "", ErrEngineNotReady
	}
	secret, err := decodeSecret(secretBase32)
	if err != nil {
		return "", err
	}
	return hotpCode(secret, t.Unix()/int64(v.config.Period), CodeDigits, v.config.Algorithm)
}

func decodeSecret(secretBase32 string) ([]byte, error) {
	normalized := strings.ToUpper(strings.TrimRight(strings.TrimSpace(secretBase32), "="))
	if normalized == "" {
		return nil, errors.New("empty totp secret")
	}
	secret, err := secretEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid totp secret encoding: %w", err)
	}
	return secret, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
