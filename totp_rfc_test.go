package goMFA

import (
	"errors"
	"testing"
	"time"
)

// RFC 6238 appendix B seed "12345678901234567890" in base32.
const rfcSecretSHA1 = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestHOTPRFCVectorsSHA1(t *testing.T) {
	secret := []byte("12345678901234567890")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "94287082"},
		{1111111109, "07081804"},
		{1111111111, "14050471"},
		{1234567890, "89005924"},
		{2000000000, "69279037"},
		{20000000000, "65353130"},
	}

	for _, tc := range cases {
		got, err := hotpCode(secret, tc.ts/30, 8, "SHA1")
		if err != nil {
			t.Fatalf("hotpCode failed at t=%d: %v", tc.ts, err)
		}
		if got != tc.code {
			t.Fatalf("SHA1 vector failed at t=%d: got %s want %s", tc.ts, got, tc.code)
		}
	}
}

func TestHOTPRFCVectorsSHA256(t *testing.T) {
	secret := []byte("12345678901234567890123456789012")
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "46119246"},
		{1111111109, "68084774"},
		{1234567890, "91819424"},
		{20000000000, "77737706"},
	}

	for _, tc := range cases {
		got, err := hotpCode(secret, tc.ts/30, 8, "SHA256")
		if err != nil || got != tc.code {
			t.Fatalf("SHA256 vector failed at t=%d: got %s err=%v", tc.ts, got, err)
		}
	}
}

func TestVerifySixDigitRFCVectors(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA", Period: 30, Algorithm: "SHA1", Skew: 1})
	cases := []struct {
		ts   int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tc := range cases {
		ok, err := v.Verify(rfcSecretSHA1, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("vector failed at t=%d, ok=%v err=%v", tc.ts, ok, err)
		}
	}
}

func TestVerifyDriftWindowAcceptsAdjacentStep(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA", Period: 30, Algorithm: "SHA1", Skew: 1})
	now := time.Unix(1234567890, 0)

	for _, offset := range []time.Duration{-30 * time.Second, 30 * time.Second} {
		code, err := v.CodeAt(rfcSecretSHA1, now.Add(offset))
		if err != nil {
			t.Fatalf("CodeAt failed: %v", err)
		}
		ok, err := v.Verify(rfcSecretSHA1, code, now)
		if err != nil || !ok {
			t.Fatalf("expected code at offset %v accepted, ok=%v err=%v", offset, ok, err)
		}
	}

	code, err := v.CodeAt(rfcSecretSHA1, now.Add(-90*time.Second))
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}
	current, _ := v.CodeAt(rfcSecretSHA1, now)
	if code != current {
		ok, err := v.Verify(rfcSecretSHA1, code, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatal("expected code three steps back to be rejected")
		}
	}
}

func TestVerifyIsPure(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA", Period: 30, Algorithm: "SHA1", Skew: 1})
	now := time.Unix(1111111111, 0)
	code, err := v.CodeAt(rfcSecretSHA1, now)
	if err != nil {
		t.Fatalf("CodeAt failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := v.Verify(rfcSecretSHA1, code, now)
		if err != nil || !ok {
			t.Fatalf("call %d: ok=%v err=%v", i, ok, err)
		}
	}
}

func TestVerifyRejectsMalformedCodeAsValidation(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA", Period: 30, Algorithm: "SHA1", Skew: 1})
	for _, code := range []string{"", "12345", "1234567", "12a456", " 12345", "１２３４５６"} {
		ok, err := v.Verify(rfcSecretSHA1, code, time.Now())
		if ok {
			t.Fatalf("code %q unexpectedly accepted", code)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("code %q: expected ErrValidation, got %v", code, err)
		}
	}
}

func TestVerifyRejectsBadSecret(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA", Period: 30, Algorithm: "SHA1", Skew: 1})
	if _, err := v.Verify("", "123456", time.Now()); err == nil {
		t.Fatal("expected empty secret error")
	}
	if _, err := v.Verify("not base32!", "123456", time.Now()); err == nil {
		t.Fatal("expected encoding error")
	}
}

func TestProvisionURI(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "Acme", Period: 30, Algorithm: "sha1", Skew: 1})
	uri := v.ProvisionURI("ABCDEF", "alice@example.com")
	want := "otpauth://totp/Acme:alice@example.com?algorithm=SHA1&digits=6&issuer=Acme&period=30&secret=ABCDEF"
	if uri != want {
		t.Fatalf("unexpected uri:\n got %s\nwant %s", uri, want)
	}
}

func TestGenerateSecretRoundTrips(t *testing.T) {
	v := NewVerifier(TOTPConfig{Issuer: "goMFA"})
	secret, err := v.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	raw, err := decodeSecret(secret)
	if err != nil {
		t.Fatalf("decodeSecret failed: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("expected %d bytes, got %d", totpSecretBytes, len(raw))
	}
}
