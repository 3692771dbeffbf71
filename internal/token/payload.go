package token

import (
	"encoding/json"
	"errors"
	"time"
)

// Payload is the fixed claim set carried by license tokens. Time claims are
// unix seconds.
type Payload struct {
	Issuer             string   `json:"iss"`
	Subject            string   `json:"sub"`
	Audience           Audience `json:"aud"`
	ExpiresAt          int64    `json:"exp"`
	IssuedAt           int64    `json:"iat"`
	NotBefore          int64    `json:"nbf"`
	ID                 string   `json:"jti"`
	LicenseID          string   `json:"licenseId"`
	LicenseType        string   `json:"licenseType"`
	Fingerprint        string   `json:"fingerprint"`
	Features           []string `json:"features"`
	MaxActivations     int      `json:"maxActivations"`
	CurrentActivations int      `json:"currentActivations"`
}

// ExpiresAtTime returns exp as a time.Time
func (p *Payload) ExpiresAtTime() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}

// IssuedAtTime returns iat as a time.Time
func (p *Payload) IssuedAtTime() time.Time {
	return time.Unix(p.IssuedAt, 0)
}

// Audience is a single audience. It also accepts the one-element array form
// that most JWT libraries emit.
type Audience string

// UnmarshalJSON accepts "aud" or ["aud"]
func (a *Audience) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = Audience(single)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	switch len(many) {
	case 0:
		*a = ""
	case 1:
		*a = Audience(many[0])
	default:
		return errors.New("multiple audiences are not supported")
	}
	return nil
}
