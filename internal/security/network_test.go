package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterPhysicalInterfaces(t *testing.T) {
	ifaces := []NetworkInterface{
		{Name: "lo", MAC: "00:00:00:00:00:00", Internal: true},
		{Name: "vmnet8", MAC: "00:50:56:C0:00:08"},
		{Name: "docker0", MAC: "02:42:ac:11:00:02"},
		{Name: "wlp2s0", MAC: "3C:52:82:11:22:33"},
	}

	physical := FilterPhysicalInterfaces(ifaces)

	require.Len(t, physical, 1)
	assert.Equal(t, "wlp2s0", physical[0].Name)
	assert.Equal(t, "3c:52:82:11:22:33", physical[0].MAC, "MACs are normalized")
}

func TestFilterPhysicalInterfacesVirtualVendors(t *testing.T) {
	tests := []struct {
		vendor string
		mac    string
	}{
		{"vmware", "00:0c:29:aa:bb:cc"},
		{"vmware esx", "00:05:69:aa:bb:cc"},
		{"virtualbox", "08:00:27:aa:bb:cc"},
		{"qemu/kvm", "52:54:00:aa:bb:cc"},
		{"xen", "00:16:3e:aa:bb:cc"},
		{"hyper-v", "00:15:5d:aa:bb:cc"},
		{"parallels", "00:1c:42:aa:bb:cc"},
	}
	for _, tt := range tests {
		t.Run(tt.vendor, func(t *testing.T) {
			assert.True(t, IsVirtualMAC(tt.mac))
			assert.Empty(t, FilterPhysicalInterfaces([]NetworkInterface{{Name: "eth0", MAC: tt.mac}}))
		})
	}
}

func TestFilterPhysicalInterfacesRejectsMalformed(t *testing.T) {
	ifaces := []NetworkInterface{
		{Name: "tun0", MAC: ""},
		{Name: "weird", MAC: "not-a-mac"},
		{Name: "ib0", MAC: "00:00:00:00:fe:80:00:00:00:00:00:00:00:00:00:00:00:00:00:01"},
		{Name: "zero", MAC: "00-00-00-00-00-00"},
	}
	assert.Empty(t, FilterPhysicalInterfaces(ifaces))
}

func TestLocallyAdministeredBit(t *testing.T) {
	assert.True(t, IsLocallyAdministered("02:00:00:00:00:01"))
	assert.True(t, IsLocallyAdministered("ba:d0:00:00:00:01"))
	assert.False(t, IsLocallyAdministered("3c:52:82:11:22:33"))
}

func TestSelectPrimaryMAC(t *testing.T) {
	t.Run("prefers ethernet names", func(t *testing.T) {
		physical := []NetworkInterface{
			{Name: "wlan0", MAC: "3c:52:82:00:00:01"},
			{Name: "enp3s0", MAC: "3c:52:82:00:00:02"},
		}
		assert.Equal(t, "3c:52:82:00:00:02", selectPrimaryMAC(physical, "linux"))
	})

	t.Run("windows adapter name", func(t *testing.T) {
		physical := []NetworkInterface{
			{Name: "Wi-Fi", MAC: "3c:52:82:00:00:01"},
			{Name: "Ethernet 2", MAC: "3c:52:82:00:00:03"},
		}
		assert.Equal(t, "3c:52:82:00:00:03", selectPrimaryMAC(physical, "windows"))
	})

	t.Run("macos names carry no preference", func(t *testing.T) {
		physical := []NetworkInterface{
			{Name: "en0", MAC: "3c:52:82:00:00:05"},
			{Name: "en1", MAC: "3c:52:82:00:00:06"},
		}
		assert.Equal(t, "3c:52:82:00:00:05", selectPrimaryMAC(physical, "darwin"))
		assert.False(t, isEthernetName("en0", "darwin"))
		assert.True(t, isEthernetName("en0", "linux"))
	})

	t.Run("falls back to first", func(t *testing.T) {
		physical := []NetworkInterface{
			{Name: "wlan0", MAC: "3c:52:82:00:00:01"},
			{Name: "wlan1", MAC: "3c:52:82:00:00:04"},
		}
		assert.Equal(t, "3c:52:82:00:00:01", SelectPrimaryMAC(physical))
	})

	t.Run("none", func(t *testing.T) {
		assert.Equal(t, "", SelectPrimaryMAC(nil))
	})
}
