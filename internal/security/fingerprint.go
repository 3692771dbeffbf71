package security

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// FingerprintDelimiter separates components before hashing
const FingerprintDelimiter = "|"

// HashAlgorithm selects the fingerprint digest
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
	HashBLAKE3 HashAlgorithm = "blake3"
)

func (a HashAlgorithm) newHash() (hash.Hash, error) {
	switch a {
	case HashSHA256, "":
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	case HashBLAKE3:
		return blake3.New(), nil
	}
	return nil, fmt.Errorf("unsupported fingerprint algorithm: %q", a)
}

// FingerprintConfig selects the optional identifiers hashed into the fingerprint.
// machineId and platform are always included.
type FingerprintConfig struct {
	Algorithm          HashAlgorithm
	IncludeSystemUUID  bool
	IncludeHostname    bool
	IncludeCPU         bool
	IncludeMemory      bool
	IncludeMAC         bool
	IncludeDisk        bool
	IncludeBIOS        bool
	IncludeMotherboard bool
}

// DefaultFingerprintConfig hashes the identifiers that survive OS reinstalls on most hosts
func DefaultFingerprintConfig() FingerprintConfig {
	return FingerprintConfig{
		Algorithm:         HashSHA256,
		IncludeSystemUUID: true,
		IncludeHostname:   true,
		IncludeCPU:        true,
		IncludeMAC:        true,
	}
}

// FingerprintComponents returns the ordered component list hashed by ComputeFingerprint.
// Missing values keep their position as empty strings.
func FingerprintComponents(id Identity, cfg FingerprintConfig) []string {
	hw, fb := id.Hardware, id.Fallback
	components := []string{hw.MachineID, hw.Platform}

	if cfg.IncludeSystemUUID {
		components = append(components, strings.ToLower(hw.SystemUUID))
	}
	if cfg.IncludeHostname {
		components = append(components, strings.ToLower(hw.Hostname))
	}
	if cfg.IncludeCPU {
		cpu := ""
		if hw.CPUModel != "" || hw.CPUCores > 0 {
			cpu = hw.CPUModel + "/" + strconv.Itoa(hw.CPUCores)
		}
		components = append(components, cpu)
	}
	if cfg.IncludeMemory {
		mem := ""
		if hw.TotalMemory > 0 {
			mem = strconv.FormatUint(hw.TotalMemory, 10)
		}
		components = append(components, mem)
	}
	if cfg.IncludeMAC {
		components = append(components, fb.PrimaryMAC)
	}
	if cfg.IncludeDisk {
		components = append(components, fb.DiskSerial)
	}
	if cfg.IncludeBIOS {
		components = append(components, fb.BIOSSerial)
	}
	if cfg.IncludeMotherboard {
		components = append(components, fb.MotherboardSerial)
	}
	return components
}

// ComputeFingerprint hashes the selected identifiers into a hex digest.
// It is a pure function of (id, cfg); CollectedAt never contributes.
func ComputeFingerprint(id Identity, cfg FingerprintConfig) (string, error) {
	h, err := cfg.Algorithm.newHash()
	if err != nil {
		return "", err
	}
	h.Write([]byte(strings.Join(FingerprintComponents(id, cfg), FingerprintDelimiter)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Strength weights. Fallback bonuses make up the remainder up to the cap.
const (
	strengthSystemUUID  = 30
	strengthMachineID   = 40
	strengthPrimaryMAC  = 10
	strengthDisk        = 10
	strengthBIOS        = 5
	strengthMotherboard = 5
	strengthMax         = 100
)

// StrengthScore rates how unique the identity is, 0-100. Advisory only.
func StrengthScore(id Identity) int {
	score := 0
	if id.Hardware.SystemUUID != "" {
		score += strengthSystemUUID
	}
	if id.Hardware.MachineID != "" {
		score += strengthMachineID
	}
	if id.Fallback.PrimaryMAC != "" {
		score += strengthPrimaryMAC
	}
	if id.Fallback.DiskSerial != "" {
		score += strengthDisk
	}
	if id.Fallback.BIOSSerial != "" {
		score += strengthBIOS
	}
	if id.Fallback.MotherboardSerial != "" {
		score += strengthMotherboard
	}
	return min(score, strengthMax)
}
