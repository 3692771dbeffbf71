package domain

import "time"

// MachineInfo is optional descriptive data sent on activation
type MachineInfo struct {
	Hostname string `json:"hostname,omitempty"`
	Platform string `json:"platform,omitempty"`
	CPUModel string `json:"cpuModel,omitempty"`
	CPUCores int    `json:"cpuCores,omitempty"`
}

// ActivationRequest is the body of POST /licenses/activate
type ActivationRequest struct {
	LicenseKey          string       `json:"licenseKey" validate:"required,len=19"`
	HardwareFingerprint string       `json:"hardwareFingerprint" validate:"required,hexadecimal"`
	MachineInfo         *MachineInfo `json:"machineInfo,omitempty"`
}

// ActivationResponse is the reply of POST /licenses/activate
type ActivationResponse struct {
	Success   bool       `json:"success"`
	License   *License   `json:"license,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorCode string     `json:"errorCode,omitempty"`
}

// ValidationRequest is the body of POST /licenses/validate
type ValidationRequest struct {
	LicenseKey          string `json:"licenseKey" validate:"required,len=19"`
	HardwareFingerprint string `json:"hardwareFingerprint" validate:"required,hexadecimal"`
	Token               string `json:"token,omitempty"`
}

// ValidationResponse is the reply of POST /licenses/validate
type ValidationResponse struct {
	Valid         bool     `json:"valid"`
	License       *License `json:"license,omitempty"`
	Token         string   `json:"token,omitempty"`
	RemainingDays *int     `json:"remainingDays,omitempty"`
	Error         string   `json:"error,omitempty"`
	ErrorCode     string   `json:"errorCode,omitempty"`
}

// DeactivationRequest is the body of POST /licenses/deactivate
type DeactivationRequest struct {
	LicenseKey          string `json:"licenseKey" validate:"required,len=19"`
	HardwareFingerprint string `json:"hardwareFingerprint" validate:"required,hexadecimal"`
	Token               string `json:"token"`
}

// DeactivationResponse is the reply of POST /licenses/deactivate
type DeactivationResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}
