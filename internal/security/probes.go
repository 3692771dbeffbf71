package security

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/keygen-sh/machineid"
)

var errUnsupportedPlatform = errors.New("unsupported platform")

// CPUInfo is the result of the CPU probe
type CPUInfo struct {
	Model string
	Cores int
}

// Probes are the OS specific identifier sources. Each one may fail
// independently; a nil probe counts as a failed one.
type Probes struct {
	MachineID         func(ctx context.Context) (string, error)
	SystemUUID        func(ctx context.Context) (string, error)
	Hostname          func(ctx context.Context) (string, error)
	CPU               func(ctx context.Context) (CPUInfo, error)
	Memory            func(ctx context.Context) (uint64, error)
	Interfaces        func(ctx context.Context) ([]NetworkInterface, error)
	DiskSerial        func(ctx context.Context) (string, error)
	BIOSSerial        func(ctx context.Context) (string, error)
	MotherboardSerial func(ctx context.Context) (string, error)
	Platform          func() string
}

// SystemProbes returns the probes for the running OS. appID scopes the machine id
// so it cannot be correlated with other applications on the host.
func SystemProbes(appID string) Probes {
	return Probes{
		MachineID: func(context.Context) (string, error) {
			if appID == "" {
				return machineid.ID()
			}
			return machineid.ProtectedID(appID)
		},
		SystemUUID:        probeSystemUUID,
		Hostname:          probeHostname,
		CPU:               probeCPU,
		Memory:            probeMemory,
		Interfaces:        SystemInterfaces,
		DiskSerial:        probeDiskSerial,
		BIOSSerial:        probeBIOSSerial,
		MotherboardSerial: probeMotherboardSerial,
		Platform:          func() string { return runtime.GOOS },
	}
}

// placeholderSerials are vendor defaults that identify nothing
var placeholderSerials = []string{
	"0",
	"none",
	"n/a",
	"default string",
	"to be filled by o.e.m.",
	"system serial number",
	"not specified",
	"not applicable",
	"chassis serial number",
	"base board serial number",
	"00000000-0000-0000-0000-000000000000",
	"03000200-0400-0500-0006-000700080009",
}

// cleanSerial trims value and maps placeholder values to empty
func cleanSerial(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || slices.Contains(placeholderSerials, strings.ToLower(value)) {
		return ""
	}
	return value
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(out), nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func powershell(ctx context.Context, expr string) (string, error) {
	return runCommand(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", expr)
}

func nonEmpty(value string, source string) (string, error) {
	value = cleanSerial(value)
	if value == "" {
		return "", fmt.Errorf("%s returned no usable value", source)
	}
	return value, nil
}

func probeSystemUUID(ctx context.Context) (string, error) {
	switch runtime.GOOS {
	case "linux":
		v, err := readTrimmed("/sys/class/dmi/id/product_uuid")
		if err != nil {
			return "", err
		}
		return nonEmpty(strings.ToLower(v), "product_uuid")
	case "darwin":
		out, err := runCommand(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return "", err
		}
		return nonEmpty(parseIORegValue(out, "IOPlatformUUID"), "ioreg")
	case "windows":
		out, err := powershell(ctx, "(Get-CimInstance -ClassName Win32_ComputerSystemProduct).UUID")
		if err != nil {
			return "", err
		}
		return nonEmpty(out, "Win32_ComputerSystemProduct")
	}
	return "", errUnsupportedPlatform
}

func probeHostname(context.Context) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return hostname, nil
}

func probeCPU(ctx context.Context) (CPUInfo, error) {
	info := CPUInfo{Cores: runtime.NumCPU()}

	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/cpuinfo")
		if err == nil {
			info.Model = parseCPUInfo(string(data))
		}
	case "darwin":
		out, err := runCommand(ctx, "sysctl", "-n", "machdep.cpu.brand_string")
		if err == nil {
			info.Model = strings.TrimSpace(out)
		}
	case "windows":
		info.Model = strings.TrimSpace(os.Getenv("PROCESSOR_IDENTIFIER"))
	}

	if info.Model == "" {
		info.Model = runtime.GOARCH
	}
	return info, nil
}

func probeMemory(ctx context.Context) (uint64, error) {
	switch runtime.GOOS {
	case "linux":
		data, err := os.ReadFile("/proc/meminfo")
		if err != nil {
			return 0, err
		}
		return parseMemInfo(string(data))
	case "darwin":
		out, err := runCommand(ctx, "sysctl", "-n", "hw.memsize")
		if err != nil {
			return 0, err
		}
		return strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	case "windows":
		out, err := powershell(ctx, "(Get-CimInstance -ClassName Win32_ComputerSystem).TotalPhysicalMemory")
		if err != nil {
			return 0, err
		}
		return strconv.ParseUint(strings.TrimSpace(out), 10, 64)
	}
	return 0, errUnsupportedPlatform
}

func probeDiskSerial(ctx context.Context) (string, error) {
	switch runtime.GOOS {
	case "linux":
		out, err := runCommand(ctx, "lsblk", "-dno", "SERIAL,TYPE")
		if err != nil {
			return "", err
		}
		return nonEmpty(parseLsblkSerial(out), "lsblk")
	case "darwin":
		out, err := runCommand(ctx, "ioreg", "-rd1", "-c", "IOAHCIBlockStorageDevice")
		if err != nil {
			return "", err
		}
		return nonEmpty(parseIORegValue(out, "Serial Number"), "ioreg")
	case "windows":
		out, err := powershell(ctx, "(Get-CimInstance -ClassName Win32_DiskDrive | Select-Object -First 1).SerialNumber")
		if err != nil {
			return "", err
		}
		return nonEmpty(out, "Win32_DiskDrive")
	}
	return "", errUnsupportedPlatform
}

func probeBIOSSerial(ctx context.Context) (string, error) {
	switch runtime.GOOS {
	case "linux":
		v, err := readTrimmed("/sys/class/dmi/id/product_serial")
		if err != nil {
			return "", err
		}
		return nonEmpty(v, "product_serial")
	case "darwin":
		out, err := runCommand(ctx, "ioreg", "-rd1", "-c", "IOPlatformExpertDevice")
		if err != nil {
			return "", err
		}
		return nonEmpty(parseIORegValue(out, "IOPlatformSerialNumber"), "ioreg")
	case "windows":
		out, err := powershell(ctx, "(Get-CimInstance -ClassName Win32_BIOS).SerialNumber")
		if err != nil {
			return "", err
		}
		return nonEmpty(out, "Win32_BIOS")
	}
	return "", errUnsupportedPlatform
}

func probeMotherboardSerial(ctx context.Context) (string, error) {
	switch runtime.GOOS {
	case "linux":
		v, err := readTrimmed("/sys/class/dmi/id/board_serial")
		if err != nil {
			return "", err
		}
		return nonEmpty(v, "board_serial")
	case "windows":
		out, err := powershell(ctx, "(Get-CimInstance -ClassName Win32_BaseBoard).SerialNumber")
		if err != nil {
			return "", err
		}
		return nonEmpty(out, "Win32_BaseBoard")
	}
	return "", errUnsupportedPlatform
}

// parseIORegValue extracts `"key" = "value"` from ioreg output
func parseIORegValue(out, key string) string {
	needle := `"` + key + `"`
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, needle)
		if idx < 0 {
			continue
		}
		rest := line[idx+len(needle):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			continue
		}
		return strings.Trim(strings.TrimSpace(rest[eq+1:]), `"`)
	}
	return ""
}

// parseCPUInfo returns the first "model name" from /proc/cpuinfo
func parseCPUInfo(data string) string {
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseMemInfo returns MemTotal from /proc/meminfo in bytes
func parseMemInfo(data string) (uint64, error) {
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid MemTotal %q: %w", fields[1], err)
		}
		return kb * 1024, nil
	}
	return 0, errors.New("MemTotal not found")
}

// parseLsblkSerial returns the first disk serial from `lsblk -dno SERIAL,TYPE`
func parseLsblkSerial(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "disk" {
			if serial := cleanSerial(fields[0]); serial != "" {
				return serial
			}
		}
	}
	return ""
}
