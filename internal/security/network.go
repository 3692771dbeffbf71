package security

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
)

// NetworkInterface is the subset of interface data the collector needs
type NetworkInterface struct {
	Name     string
	MAC      string
	Internal bool
}

// virtualOUIs are MAC prefixes assigned to hypervisor vendors
var virtualOUIs = map[string]string{
	"00:05:69": "vmware",
	"00:0c:29": "vmware",
	"00:1c:14": "vmware",
	"00:50:56": "vmware",
	"08:00:27": "virtualbox",
	"0a:00:27": "virtualbox",
	"52:54:00": "qemu",
	"00:16:3e": "xen",
	"00:15:5d": "hyper-v",
	"00:1c:42": "parallels",
}

// SystemInterfaces lists the host network interfaces
func SystemInterfaces(_ context.Context) ([]NetworkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	out := make([]NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		out = append(out, NetworkInterface{
			Name:     iface.Name,
			MAC:      iface.HardwareAddr.String(),
			Internal: iface.Flags&net.FlagLoopback != 0,
		})
	}
	return out, nil
}

// NormalizeMAC parses mac and returns it lowercase and colon separated.
// Only 48-bit addresses are accepted.
func NormalizeMAC(mac string) (string, bool) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil || len(hw) != 6 {
		return "", false
	}
	return hw.String(), true
}

// IsVirtualMAC reports whether mac belongs to a hypervisor vendor
func IsVirtualMAC(mac string) bool {
	norm, ok := NormalizeMAC(mac)
	if !ok {
		return false
	}
	_, virtual := virtualOUIs[norm[:8]]
	return virtual
}

// IsLocallyAdministered reports whether the locally-administered bit is set in the first octet
func IsLocallyAdministered(mac string) bool {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil || len(hw) == 0 {
		return false
	}
	return hw[0]&0x02 != 0
}

func isZeroMAC(norm string) bool {
	return strings.Trim(norm, "0:") == ""
}

// FilterPhysicalInterfaces drops internal interfaces, unparsable or all-zero
// MACs, locally administered MACs and known virtualization OUIs. MACs are
// returned normalized; order is preserved.
func FilterPhysicalInterfaces(ifaces []NetworkInterface) []NetworkInterface {
	out := make([]NetworkInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Internal {
			continue
		}
		norm, ok := NormalizeMAC(iface.MAC)
		if !ok || isZeroMAC(norm) {
			continue
		}
		if IsLocallyAdministered(norm) || IsVirtualMAC(norm) {
			continue
		}
		iface.MAC = norm
		out = append(out, iface)
	}
	return out
}

// isEthernetName reports whether name is a wired interface name on goos.
// Linux predictable names (eno, ens, enp, enx) and legacy eth are wired,
// Windows labels its wired adapters "Ethernet". macOS names every adapter
// en<N>, Wi-Fi included, so names carry no preference there.
func isEthernetName(name, goos string) bool {
	lower := strings.ToLower(name)
	switch goos {
	case "darwin":
		return false
	case "windows":
		return strings.HasPrefix(lower, "ethernet")
	default:
		return strings.HasPrefix(lower, "eth") || strings.HasPrefix(lower, "en")
	}
}

// SelectPrimaryMAC prefers Ethernet-named interfaces, else the first physical one.
// Input is expected to be filtered already.
func SelectPrimaryMAC(physical []NetworkInterface) string {
	return selectPrimaryMAC(physical, runtime.GOOS)
}

func selectPrimaryMAC(physical []NetworkInterface, goos string) string {
	for _, iface := range physical {
		if isEthernetName(iface.Name, goos) {
			return iface.MAC
		}
	}
	if len(physical) > 0 {
		return physical[0].MAC
	}
	return ""
}
