package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const challengeTokenSize = 32

// NewChallengeToken returns 256 random bits, base64url without padding.
func NewChallengeToken() (string, error) {
	var raw [challengeTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DeriveChallengeToken maps (service, attemptKey) to a stable token under key.
// The token has the same size and encoding as NewChallengeToken.
func DeriveChallengeToken(key []byte, service, attemptKey string) (string, error) {
	if len(key) == 0 {
		return "", errors.New("empty token key")
	}
	if attemptKey == "" {
		return "", errors.New("empty attempt key")
	}
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(service))
	_, _ = mac.Write([]byte{0})
	_, _ = mac.Write([]byte(attemptKey))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// HashSecret digests a retrieval secret for storage and comparison.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}
