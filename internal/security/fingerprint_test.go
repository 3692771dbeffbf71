package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIdentity() Identity {
	return Identity{
		Hardware: HardwareIdentifiers{
			MachineID:   "4c4c4544-0042-3510-8052-b4c04f4e3732",
			SystemUUID:  "8A3C2E10-4F1B-11EC-81D3-0242AC130003",
			Hostname:    "build-host",
			Platform:    "linux",
			CPUModel:    "Intel(R) Core(TM) i7-9750H",
			CPUCores:    12,
			TotalMemory: 34359738368,
		},
		Fallback: FallbackIdentifiers{
			PrimaryMAC:        "3c:52:82:11:22:33",
			AllMACs:           []string{"3c:52:82:11:22:33"},
			DiskSerial:        "S3Z9NB0K123456",
			BIOSSerial:        "5CG0123ABC",
			MotherboardSerial: "PKTVR0CJ1234",
		},
		CollectedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestComputeFingerprintDeterminism(t *testing.T) {
	cfg := DefaultFingerprintConfig()
	id := sampleIdentity()

	first, err := ComputeFingerprint(id, cfg)
	require.NoError(t, err)
	second, err := ComputeFingerprint(id, cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "sha256 hex digest")

	id.CollectedAt = id.CollectedAt.Add(time.Hour)
	third, err := ComputeFingerprint(id, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, third, "collection time never contributes")
}

func TestComputeFingerprintSensitivity(t *testing.T) {
	cfg := FingerprintConfig{
		Algorithm:         HashSHA256,
		IncludeSystemUUID: true,
		IncludeHostname:   true,
		IncludeMAC:        true,
	}
	base, err := ComputeFingerprint(sampleIdentity(), cfg)
	require.NoError(t, err)

	tests := []struct {
		name     string
		mutate   func(*Identity)
		included bool
	}{
		{"machine id", func(id *Identity) { id.Hardware.MachineID = "other" }, true},
		{"platform", func(id *Identity) { id.Hardware.Platform = "darwin" }, true},
		{"system uuid", func(id *Identity) { id.Hardware.SystemUUID = "00000000-1111-2222-3333-444444444444" }, true},
		{"hostname", func(id *Identity) { id.Hardware.Hostname = "renamed" }, true},
		{"primary mac", func(id *Identity) { id.Fallback.PrimaryMAC = "3c:52:82:99:99:99" }, true},
		{"cpu model", func(id *Identity) { id.Hardware.CPUModel = "AMD Ryzen 9" }, false},
		{"cpu cores", func(id *Identity) { id.Hardware.CPUCores = 4 }, false},
		{"memory", func(id *Identity) { id.Hardware.TotalMemory = 1 }, false},
		{"disk serial", func(id *Identity) { id.Fallback.DiskSerial = "X" }, false},
		{"bios serial", func(id *Identity) { id.Fallback.BIOSSerial = "X" }, false},
		{"motherboard serial", func(id *Identity) { id.Fallback.MotherboardSerial = "X" }, false},
		{"secondary macs", func(id *Identity) { id.Fallback.AllMACs = append(id.Fallback.AllMACs, "3c:52:82:00:00:01") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := sampleIdentity()
			tt.mutate(&id)
			got, err := ComputeFingerprint(id, cfg)
			require.NoError(t, err)
			if tt.included {
				assert.NotEqual(t, base, got)
			} else {
				assert.Equal(t, base, got)
			}
		})
	}
}

func TestFingerprintComponentsKeepPositions(t *testing.T) {
	cfg := FingerprintConfig{IncludeSystemUUID: true, IncludeHostname: true, IncludeMAC: true}
	id := sampleIdentity()
	id.Hardware.SystemUUID = ""

	components := FingerprintComponents(id, cfg)
	require.Len(t, components, 5)
	assert.Equal(t, "", components[2], "missing uuid keeps its slot")
	assert.Equal(t, "build-host", components[3])
}

func TestComputeFingerprintAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm HashAlgorithm
		hexLen    int
	}{
		{HashSHA256, 64},
		{HashSHA512, 128},
		{HashBLAKE3, 64},
	}
	seen := map[string]bool{}
	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			cfg := DefaultFingerprintConfig()
			cfg.Algorithm = tt.algorithm
			fp, err := ComputeFingerprint(sampleIdentity(), cfg)
			require.NoError(t, err)
			assert.Len(t, fp, tt.hexLen)
			assert.False(t, seen[fp], "algorithms must not collide")
			seen[fp] = true
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		cfg := DefaultFingerprintConfig()
		cfg.Algorithm = "md5"
		_, err := ComputeFingerprint(sampleIdentity(), cfg)
		assert.Error(t, err)
	})
}

func TestStrengthScore(t *testing.T) {
	tests := []struct {
		name string
		id   Identity
		want int
	}{
		{"empty", Identity{}, 0},
		{"machine id only", Identity{Hardware: HardwareIdentifiers{MachineID: "m"}}, 40},
		{"uuid and machine id", Identity{Hardware: HardwareIdentifiers{MachineID: "m", SystemUUID: "u"}}, 70},
		{"with mac", Identity{
			Hardware: HardwareIdentifiers{MachineID: "m", SystemUUID: "u"},
			Fallback: FallbackIdentifiers{PrimaryMAC: "3c:52:82:11:22:33"},
		}, 80},
		{"everything", sampleIdentity(), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StrengthScore(tt.id))
		})
	}
}
