package goMFA

import (
	"errors"
	"strings"
	"time"
)

// Config defines the tunables of an Engine.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Challenge   ChallengeConfig
	TOTP        TOTPConfig
	FirstFactor FirstFactorConfig
	Enrollment  EnrollmentConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
CHALLENGE CONFIG
====================================
*/

// ChallengeConfig controls pending-challenge lifetime and keying.
type ChallengeConfig struct {
	// Window is the absolute lifetime of a pending challenge, measured from
	// its last write.
	Window time.Duration
	// RedisPrefix namespaces challenge keys when the Redis backend is used.
	RedisPrefix string
	// SweepInterval enables the background reclamation loop for stores that
	// support it. Zero disables the loop; expiry is still enforced on read.
	SweepInterval time.Duration
	// TokenKey, when set, derives the challenge token from the first factor's
	// AttemptKey so that a retried first factor re-upserts the same challenge.
	TokenKey []byte
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls the OTP verifier and provisioning URIs.
//
// Codes are always CodeDigits long.
type TOTPConfig struct {
	Issuer    string
	Period    int
	Algorithm string
	Skew      int
}

/*
====================================
FIRST FACTOR CONFIG
====================================
*/

// FirstFactorConfig restricts which first-factor services may start a login.
type FirstFactorConfig struct {
	// Services lists the registered login service names ("password",
	// "github", ...). Empty accepts any service reported by the resolver.
	Services []string
}

/*
====================================
ENROLLMENT CONFIG
====================================
*/

// EnrollmentConfig controls the enrollment lifecycle.
type EnrollmentConfig struct {
	// RequireCodeToDisable demands a valid current code before the enrolled
	// secret is removed.
	RequireCodeToDisable bool
	// MaxLabelLength bounds the account label embedded in provisioning URIs.
	MaxLabelLength int
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultChallengeWindow is the lifetime of a pending challenge.
const DefaultChallengeWindow = 600 * time.Second

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			Window:        DefaultChallengeWindow,
			RedisPrefix:   "mfac",
			SweepInterval: time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:    "goMFA",
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Enrollment: EnrollmentConfig{
			RequireCodeToDisable: true,
			MaxLabelLength:       256,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Challenge.TokenKey = cloneBytes(cfg.Challenge.TokenKey)
	if cfg.FirstFactor.Services != nil {
		out.FirstFactor.Services = append([]string(nil), cfg.FirstFactor.Services...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	// Challenge
	if c.Challenge.Window <= 0 {
		return errors.New("Challenge Window must be > 0")
	}
	if c.Challenge.Window%time.Second != 0 {
		return errors.New("Challenge Window must be a whole number of seconds")
	}
	if c.Challenge.SweepInterval < 0 {
		return errors.New("Challenge SweepInterval must be >= 0")
	}
	if len(c.Challenge.TokenKey) > 0 && len(c.Challenge.TokenKey) < 32 {
		return errors.New("Challenge TokenKey must be at least 32 bytes")
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer is required")
	}
	if strings.Contains(c.TOTP.Issuer, ":") {
		return errors.New("TOTP Issuer must not contain ':'")
	}
	if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
		return errors.New("TOTP Period must be between 15 and 120 seconds")
	}
	if c.TOTP.Skew < 1 || c.TOTP.Skew > 3 {
		return errors.New("TOTP Skew must be between 1 and 3")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256, or SHA512")
	}

	// First factor
	for _, svc := range c.FirstFactor.Services {
		if strings.TrimSpace(svc) == "" {
			return errors.New("FirstFactor Services must not contain empty names")
		}
	}

	// Enrollment
	if c.Enrollment.MaxLabelLength <= 0 {
		return errors.New("Enrollment MaxLabelLength must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
