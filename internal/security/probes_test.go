package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemInfo(t *testing.T) {
	data := "MemTotal:       32658244 kB\nMemFree:         1234567 kB\n"
	got, err := parseMemInfo(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(32658244*1024), got)

	_, err = parseMemInfo("MemFree: 1 kB\n")
	assert.Error(t, err)
}

func TestParseCPUInfo(t *testing.T) {
	data := "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz\n"
	assert.Equal(t, "Intel(R) Xeon(R) CPU E5-2680 v4 @ 2.40GHz", parseCPUInfo(data))
	assert.Equal(t, "", parseCPUInfo("processor : 0\n"))
}

func TestParseIORegValue(t *testing.T) {
	out := `+-o J316sAP  <class IOPlatformExpertDevice, id 0x100000227>
    {
      "IOPlatformSerialNumber" = "C02XYZ123ABC"
      "IOPlatformUUID" = "5A1B2C3D-1111-2222-3333-444455556666"
    }`
	assert.Equal(t, "5A1B2C3D-1111-2222-3333-444455556666", parseIORegValue(out, "IOPlatformUUID"))
	assert.Equal(t, "C02XYZ123ABC", parseIORegValue(out, "IOPlatformSerialNumber"))
	assert.Equal(t, "", parseIORegValue(out, "Missing"))
}

func TestParseLsblkSerial(t *testing.T) {
	out := "        loop\nS4EWNX0R123456 disk\nWD-WX12 disk\n"
	assert.Equal(t, "S4EWNX0R123456", parseLsblkSerial(out))
	assert.Equal(t, "", parseLsblkSerial("  rom\n"))
}

func TestCleanSerial(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  ABC123 ", "ABC123"},
		{"To be filled by O.E.M.", ""},
		{"Default string", ""},
		{"0", ""},
		{"", ""},
		{"System Serial Number", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanSerial(tt.in), "input %q", tt.in)
	}
}
