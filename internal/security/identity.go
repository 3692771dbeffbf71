package security

import (
	"slices"
	"time"
)

// HardwareIdentifiers holds the primary machine identifiers. Empty values mean the probe failed.
type HardwareIdentifiers struct {
	MachineID   string `json:"machineId"`
	SystemUUID  string `json:"systemUuid,omitempty"`
	Hostname    string `json:"hostname,omitempty"`
	Platform    string `json:"platform"`
	CPUModel    string `json:"cpuModel,omitempty"`
	CPUCores    int    `json:"cpuCores,omitempty"`
	TotalMemory uint64 `json:"totalMemory,omitempty"`
}

// FallbackIdentifiers holds secondary identifiers used when primary ones are weak
type FallbackIdentifiers struct {
	PrimaryMAC        string   `json:"primaryMac,omitempty"`
	AllMACs           []string `json:"allMacs"`
	DiskSerial        string   `json:"diskSerial,omitempty"`
	BIOSSerial        string   `json:"biosSerial,omitempty"`
	MotherboardSerial string   `json:"motherboardSerial,omitempty"`
}

// Identity is the immutable result of one collection pass
type Identity struct {
	Hardware    HardwareIdentifiers `json:"hardware"`
	Fallback    FallbackIdentifiers `json:"fallback"`
	CollectedAt time.Time           `json:"collectedAt"`
}

// Clone returns a copy that does not share slices with the receiver
func (id Identity) Clone() Identity {
	id.Fallback.AllMACs = slices.Clone(id.Fallback.AllMACs)
	if id.Fallback.AllMACs == nil {
		id.Fallback.AllMACs = []string{}
	}
	return id
}

// IsEmpty reports whether no identifying probe produced a value
func (id Identity) IsEmpty() bool {
	return id.Hardware.MachineID == "" &&
		id.Hardware.SystemUUID == "" &&
		id.Fallback.PrimaryMAC == "" &&
		id.Fallback.DiskSerial == "" &&
		id.Fallback.BIOSSerial == "" &&
		id.Fallback.MotherboardSerial == ""
}
