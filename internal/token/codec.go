// Package token creates and validates the signed license tokens exchanged with
// the license server. Tokens are JWT-shaped (header.payload.signature, each
// segment base64url) and signed with HMAC-SHA2 only.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Algorithm is the HMAC variant named in the token header
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// DefaultRefreshThreshold is how close to expiry a token becomes due for renewal
const DefaultRefreshThreshold = 5 * time.Minute

func (a Algorithm) hasher() (func() hash.Hash, bool) {
	switch a {
	case HS256:
		return sha256.New, true
	case HS384:
		return sha512.New384, true
	case HS512:
		return sha512.New, true
	}
	return nil, false
}

// encoding rejects non-zero trailing bits so every token has exactly one
// textual form.
var encoding = base64.RawURLEncoding.Strict()

// Header is the first token segment
type Header struct {
	Alg Algorithm `json:"alg"`
	Typ string    `json:"typ"`
}

// Config holds the shared secret and the expected issuer and audience
type Config struct {
	Secret    []byte
	Algorithm Algorithm
	Issuer    string
	Audience  string
}

// Codec signs and verifies tokens
type Codec struct {
	cfg Config
	now func() time.Time
}

// Option configures a Codec
type Option func(*Codec)

// WithClock injects the time source used for iat/nbf/exp checks
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec validates cfg and returns a Codec. Algorithm defaults to HS256.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret cannot be empty")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = HS256
	}
	if _, ok := cfg.Algorithm.hasher(); !ok {
		return nil, fmt.Errorf("unsupported token algorithm: %q", cfg.Algorithm)
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	c := &Codec{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueRequest describes a token to mint for a license
type IssueRequest struct {
	Subject            string
	LicenseID          string
	LicenseType        string
	Fingerprint        string
	Features           []string
	MaxActivations     int
	CurrentActivations int
	TTL                time.Duration
}

// Issue fills the registered claims from the codec config and clock and signs the result
func (c *Codec) Issue(req IssueRequest) (string, *Payload, error) {
	if req.TTL <= 0 {
		return "", nil, errors.New("token ttl must be positive")
	}
	now := c.now().Unix()
	p := &Payload{
		Issuer:             c.cfg.Issuer,
		Subject:            req.Subject,
		Audience:           Audience(c.cfg.Audience),
		IssuedAt:           now,
		NotBefore:          now,
		ExpiresAt:          now + int64(req.TTL/time.Second),
		LicenseID:          req.LicenseID,
		LicenseType:        req.LicenseType,
		Fingerprint:        req.Fingerprint,
		Features:           append([]string(nil), req.Features...),
		MaxActivations:     req.MaxActivations,
		CurrentActivations: req.CurrentActivations,
	}
	tok, err := c.Create(p)
	if err != nil {
		return "", nil, err
	}
	return tok, p, nil
}

// Create signs p. A missing jti is assigned a fresh UUID on p.
func (c *Codec) Create(p *Payload) (string, error) {
	if p == nil {
		return "", errors.New("payload cannot be nil")
	}
	if p.ExpiresAt <= p.NotBefore {
		return "", fmt.Errorf("token exp (%d) must be after nbf (%d)", p.ExpiresAt, p.NotBefore)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	header, err := json.Marshal(Header{Alg: c.cfg.Algorithm, Typ: "JWT"})
	if err != nil {
		return "", fmt.Errorf("failed to encode header: %w", err)
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	signingInput := encoding.EncodeToString(header) + "." + encoding.EncodeToString(payload)
	return signingInput + "." + encoding.EncodeToString(c.sign(signingInput)), nil
}

func (c *Codec) sign(signingInput string) []byte {
	newHash, _ := c.cfg.Algorithm.hasher()
	mac := hmac.New(newHash, c.cfg.Secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

// Validate verifies token and returns its payload. Checks run in a fixed
// order and the first failure is returned as a *ValidationError:
// format, decode, signature, issuer, audience, nbf, exp, fingerprint.
func (c *Codec) Validate(token, fingerprint string) (*Payload, error) {
	parts, err := split(token)
	if err != nil {
		return nil, err
	}

	header, payload, err := decodeSegments(parts[0], parts[1])
	if err != nil {
		return nil, err
	}

	// A header naming a different HMAC variant fails the signature check
	// rather than switching the verification algorithm.
	sig, err := encoding.DecodeString(parts[2])
	if err != nil || header.Alg != c.cfg.Algorithm || !hmac.Equal(sig, c.sign(parts[0]+"."+parts[1])) {
		return nil, newError(CodeInvalidSignature, "signature verification failed")
	}

	if payload.Issuer != c.cfg.Issuer {
		return nil, newError(CodeInvalidIssuer, fmt.Sprintf("unexpected issuer %q", payload.Issuer))
	}
	if string(payload.Audience) != c.cfg.Audience {
		return nil, newError(CodeInvalidAudience, fmt.Sprintf("unexpected audience %q", payload.Audience))
	}

	now := c.now().Unix()
	if now < payload.NotBefore {
		return nil, newError(CodeNotYetValid, "token is not valid yet")
	}
	if now >= payload.ExpiresAt {
		return nil, newError(CodeExpired, "token has expired")
	}

	if payload.Fingerprint != fingerprint {
		return nil, newError(CodeFingerprintMismatch, "token is bound to a different device")
	}

	return payload, nil
}

// Decode parses token without verifying it. Use only for inspection.
func (c *Codec) Decode(token string) (*Header, *Payload, error) {
	return Decode(token)
}

// Decode parses token without a codec and without verifying it
func Decode(token string) (*Header, *Payload, error) {
	parts, err := split(token)
	if err != nil {
		return nil, nil, err
	}
	return decodeSegments(parts[0], parts[1])
}

// ShouldRefresh reports whether p expires within threshold.
// A non-positive threshold uses DefaultRefreshThreshold.
func (c *Codec) ShouldRefresh(p *Payload, threshold time.Duration) bool {
	if p == nil {
		return true
	}
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	return !c.now().Add(threshold).Before(p.ExpiresAtTime())
}

func split(token string) ([]string, error) {
	// The decoder skips line breaks; reject them so no segment has two spellings.
	if strings.ContainsAny(token, "\r\n") {
		return nil, newError(CodeInvalidFormat, "token contains line breaks")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, newError(CodeInvalidFormat, fmt.Sprintf("expected 3 segments, got %d", len(parts)))
	}
	for _, part := range parts {
		if part == "" {
			return nil, newError(CodeInvalidFormat, "empty token segment")
		}
	}
	return parts, nil
}

func decodeSegments(headerSeg, payloadSeg string) (*Header, *Payload, error) {
	rawHeader, err := encoding.DecodeString(headerSeg)
	if err != nil {
		return nil, nil, wrapError(CodeDecodeError, "invalid header encoding", err)
	}
	var header Header
	if err := json.Unmarshal(rawHeader, &header); err != nil {
		return nil, nil, wrapError(CodeDecodeError, "invalid header json", err)
	}
	if _, ok := header.Alg.hasher(); !ok {
		return nil, nil, newError(CodeDecodeError, fmt.Sprintf("unsupported algorithm %q", header.Alg))
	}

	rawPayload, err := encoding.DecodeString(payloadSeg)
	if err != nil {
		return nil, nil, wrapError(CodeDecodeError, "invalid payload encoding", err)
	}
	var payload Payload
	if err := json.Unmarshal(rawPayload, &payload); err != nil {
		return nil, nil, wrapError(CodeDecodeError, "invalid payload json", err)
	}
	return &header, &payload, nil
}
