package token

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSecret = []byte("0123456789abcdef0123456789abcdef")
	testNow    = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
)

const testFingerprint = "9f2c4e1a7b3d5f6e8a0c1b2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f"

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Config{
		Secret:    testSecret,
		Algorithm: HS256,
		Issuer:    "licensecore",
		Audience:  "licensecore-client",
	}, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return c
}

func testPayload() *Payload {
	return &Payload{
		Issuer:             "licensecore",
		Subject:            "ABCD-EFGH-IJKL-MNOP",
		Audience:           "licensecore-client",
		IssuedAt:           testNow.Unix(),
		NotBefore:          testNow.Unix(),
		ExpiresAt:          testNow.Add(time.Hour).Unix(),
		LicenseID:          "lic_01",
		LicenseType:        "professional",
		Fingerprint:        testFingerprint,
		Features:           []string{"basic", "export", "batch", "api"},
		MaxActivations:     5,
		CurrentActivations: 1,
	}
}

func TestRoundTrip(t *testing.T) {
	c := newTestCodec(t, testNow)
	original := testPayload()

	tok, err := c.Create(original)
	require.NoError(t, err)
	assert.Len(t, strings.Split(tok, "."), 3)
	assert.NotEmpty(t, original.ID, "jti assigned on create")

	got, err := c.Validate(tok, testFingerprint)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}

func TestJTIUniquePerIssuance(t *testing.T) {
	c := newTestCodec(t, testNow)
	_, p1, err := c.Issue(IssueRequest{Subject: "s", Fingerprint: testFingerprint, TTL: time.Hour})
	require.NoError(t, err)
	_, p2, err := c.Issue(IssueRequest{Subject: "s", Fingerprint: testFingerprint, TTL: time.Hour})
	require.NoError(t, err)
	assert.NotEqual(t, p1.ID, p2.ID)
}

func TestAnySignatureBitFlipFails(t *testing.T) {
	c := newTestCodec(t, testNow)
	tok, err := c.Create(testPayload())
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)

	for i := 0; i < len(sig)*8; i++ {
		mutated := append([]byte(nil), sig...)
		mutated[i/8] ^= 1 << (i % 8)
		forged := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(mutated)

		_, err := c.Validate(forged, testFingerprint)
		require.Equal(t, CodeInvalidSignature, CodeOf(err), "bit %d", i)
	}
}

func TestAnySignatureCharacterChangeFails(t *testing.T) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	c := newTestCodec(t, testNow)
	tok, err := c.Create(testPayload())
	require.NoError(t, err)
	parts := strings.Split(tok, ".")
	sig := parts[2]

	for i := range sig {
		for _, r := range alphabet {
			if byte(r) == sig[i] {
				continue
			}
			forged := parts[0] + "." + parts[1] + "." + sig[:i] + string(r) + sig[i+1:]
			_, err := c.Validate(forged, testFingerprint)
			require.Equal(t, CodeInvalidSignature, CodeOf(err), "position %d char %q", i, r)
		}
	}
}

func TestTrailingBitsAndLineBreaksRejected(t *testing.T) {
	c := newTestCodec(t, testNow)
	tok, err := c.Create(testPayload())
	require.NoError(t, err)
	parts := strings.Split(tok, ".")

	// 32 signature bytes leave 2 unused bits in the last character.
	last := parts[2][len(parts[2])-1]
	idx := strings.IndexByte("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_", last)
	require.GreaterOrEqual(t, idx, 0)
	require.Zero(t, idx&3)
	sibling := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"[idx|1]
	forged := parts[0] + "." + parts[1] + "." + parts[2][:len(parts[2])-1] + string(sibling)

	_, err = c.Validate(forged, testFingerprint)
	assert.Equal(t, CodeInvalidSignature, CodeOf(err))

	_, err = c.Validate(parts[0]+"."+parts[1]+"\n."+parts[2], testFingerprint)
	assert.Equal(t, CodeInvalidFormat, CodeOf(err))
}

func TestValidateOrder(t *testing.T) {
	c := newTestCodec(t, testNow)

	sign := func(p *Payload) string {
		tok, err := c.Create(p)
		require.NoError(t, err)
		return tok
	}
	encode := func(v any) string {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	valid := sign(testPayload())
	parts := strings.Split(valid, ".")

	tests := []struct {
		name        string
		token       string
		fingerprint string
		want        ErrorCode
	}{
		{"two segments", parts[0] + "." + parts[1], testFingerprint, CodeInvalidFormat},
		{"four segments", valid + ".x", testFingerprint, CodeInvalidFormat},
		{"empty segment", parts[0] + ".." + parts[2], testFingerprint, CodeInvalidFormat},
		{"header not base64", "!!!." + parts[1] + "." + parts[2], testFingerprint, CodeDecodeError},
		{"payload not json", parts[0] + "." + encode("oops")[:4] + "." + parts[2], testFingerprint, CodeDecodeError},
		{"alg none", encode(map[string]string{"alg": "none", "typ": "JWT"}) + "." + parts[1] + "." + parts[2], testFingerprint, CodeDecodeError},
		{"payload tampered", parts[0] + "." + encode(map[string]any{"iss": "licensecore"}) + "." + parts[2], testFingerprint, CodeInvalidSignature},
		{"signature not base64", parts[0] + "." + parts[1] + ".@@@", testFingerprint, CodeInvalidSignature},
		{"wrong issuer", sign(func() *Payload { p := testPayload(); p.Issuer = "evil"; return p }()), testFingerprint, CodeInvalidIssuer},
		{"wrong audience", sign(func() *Payload { p := testPayload(); p.Audience = "other"; return p }()), testFingerprint, CodeInvalidAudience},
		{"not yet valid", sign(func() *Payload {
			p := testPayload()
			p.NotBefore = testNow.Add(time.Minute).Unix()
			return p
		}()), testFingerprint, CodeNotYetValid},
		{"expired", sign(func() *Payload {
			p := testPayload()
			p.NotBefore = testNow.Add(-2 * time.Hour).Unix()
			p.ExpiresAt = testNow.Add(-time.Second).Unix()
			return p
		}()), testFingerprint, CodeExpired},
		{"expires exactly now", sign(func() *Payload {
			p := testPayload()
			p.NotBefore = testNow.Add(-time.Hour).Unix()
			p.ExpiresAt = testNow.Unix()
			return p
		}()), testFingerprint, CodeExpired},
		{"expired beats fingerprint", sign(func() *Payload {
			p := testPayload()
			p.NotBefore = testNow.Add(-2 * time.Hour).Unix()
			p.ExpiresAt = testNow.Add(-time.Hour).Unix()
			return p
		}()), "other-device", CodeExpired},
		{"not yet valid beats fingerprint", sign(func() *Payload {
			p := testPayload()
			p.NotBefore = testNow.Add(time.Hour).Unix()
			p.ExpiresAt = testNow.Add(2 * time.Hour).Unix()
			return p
		}()), "other-device", CodeNotYetValid},
		{"fingerprint mismatch", valid, "other-device", CodeFingerprintMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := c.Validate(tt.token, tt.fingerprint)
			assert.Nil(t, payload)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err))
		})
	}
}

func TestHeaderAlgorithmMustMatchCodec(t *testing.T) {
	hs512, err := NewCodec(Config{Secret: testSecret, Algorithm: HS512, Issuer: "licensecore", Audience: "licensecore-client"},
		WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	tok, err := hs512.Create(testPayload())
	require.NoError(t, err)

	_, err = newTestCodec(t, testNow).Validate(tok, testFingerprint)
	assert.Equal(t, CodeInvalidSignature, CodeOf(err))

	_, err = hs512.Validate(tok, testFingerprint)
	assert.NoError(t, err)
}

func TestCreateRejectsInvertedWindow(t *testing.T) {
	c := newTestCodec(t, testNow)
	p := testPayload()
	p.ExpiresAt = p.NotBefore
	_, err := c.Create(p)
	assert.Error(t, err)
}

func TestNewCodecValidation(t *testing.T) {
	_, err := NewCodec(Config{})
	assert.Error(t, err)
	_, err = NewCodec(Config{Secret: testSecret, Algorithm: "RS256"})
	assert.Error(t, err)
	c, err := NewCodec(Config{Secret: testSecret})
	require.NoError(t, err)
	assert.Equal(t, HS256, c.cfg.Algorithm)
}

func TestShouldRefresh(t *testing.T) {
	c := newTestCodec(t, testNow)
	p := testPayload()

	p.ExpiresAt = testNow.Add(10 * time.Minute).Unix()
	assert.False(t, c.ShouldRefresh(p, 0))

	p.ExpiresAt = testNow.Add(5 * time.Minute).Unix()
	assert.True(t, c.ShouldRefresh(p, 0))

	p.ExpiresAt = testNow.Add(30 * time.Minute).Unix()
	assert.True(t, c.ShouldRefresh(p, time.Hour))
	assert.True(t, c.ShouldRefresh(nil, 0))
}

func TestDecodeWithoutVerification(t *testing.T) {
	c := newTestCodec(t, testNow)
	tok, err := c.Create(testPayload())
	require.NoError(t, err)

	other := newTestCodec(t, testNow.Add(48*time.Hour))
	header, payload, err := other.Decode(tok)
	require.NoError(t, err)
	assert.Equal(t, HS256, header.Alg)
	assert.Equal(t, "JWT", header.Typ)
	assert.Equal(t, "lic_01", payload.LicenseID)
}

func TestInteropWithGolangJWT(t *testing.T) {
	t.Run("library verifies our tokens", func(t *testing.T) {
		c := newTestCodec(t, testNow)
		tok, err := c.Create(testPayload())
		require.NoError(t, err)

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (any, error) { return testSecret, nil },
			jwt.WithValidMethods([]string{"HS256"}),
			jwt.WithIssuer("licensecore"),
			jwt.WithAudience("licensecore-client"),
			jwt.WithTimeFunc(func() time.Time { return testNow }),
		)
		require.NoError(t, err)
		assert.True(t, parsed.Valid)
		assert.Equal(t, testFingerprint, claims["fingerprint"])
	})

	t.Run("we verify library tokens with array audience", func(t *testing.T) {
		type licenseClaims struct {
			jwt.RegisteredClaims
			LicenseID   string   `json:"licenseId"`
			LicenseType string   `json:"licenseType"`
			Fingerprint string   `json:"fingerprint"`
			Features    []string `json:"features"`
		}
		claims := licenseClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "licensecore",
				Subject:   "ABCD-EFGH-IJKL-MNOP",
				Audience:  jwt.ClaimStrings{"licensecore-client"},
				ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
				NotBefore: jwt.NewNumericDate(testNow.Add(-time.Minute)),
				IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
				ID:        "jti-1",
			},
			LicenseID:   "lic_02",
			LicenseType: "standard",
			Fingerprint: testFingerprint,
			Features:    []string{"basic", "export"},
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
		require.NoError(t, err)

		payload, err := newTestCodec(t, testNow).Validate(tok, testFingerprint)
		require.NoError(t, err)
		assert.Equal(t, Audience("licensecore-client"), payload.Audience)
		assert.Equal(t, "lic_02", payload.LicenseID)
		assert.Equal(t, "jti-1", payload.ID)
	})
}
