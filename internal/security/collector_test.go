package security

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func staticProbes() Probes {
	return Probes{
		MachineID:  func(context.Context) (string, error) { return "machine-1", nil },
		SystemUUID: func(context.Context) (string, error) { return "uuid-1", nil },
		Hostname:   func(context.Context) (string, error) { return "host-1", nil },
		CPU:        func(context.Context) (CPUInfo, error) { return CPUInfo{Model: "cpu", Cores: 8}, nil },
		Memory:     func(context.Context) (uint64, error) { return 16 << 30, nil },
		Interfaces: func(context.Context) ([]NetworkInterface, error) {
			return []NetworkInterface{
				{Name: "lo", MAC: "", Internal: true},
				{Name: "eth0", MAC: "3c:52:82:11:22:33"},
				{Name: "virbr0", MAC: "52:54:00:12:34:56"},
			}, nil
		},
		DiskSerial:        func(context.Context) (string, error) { return "disk-1", nil },
		BIOSSerial:        func(context.Context) (string, error) { return "bios-1", nil },
		MotherboardSerial: func(context.Context) (string, error) { return "board-1", nil },
		Platform:          func() string { return "linux" },
	}
}

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(DefaultFingerprintConfig(), WithProbes(staticProbes()))

	id := c.Collect(context.Background())

	assert.Equal(t, "machine-1", id.Hardware.MachineID)
	assert.Equal(t, "uuid-1", id.Hardware.SystemUUID)
	assert.Equal(t, "linux", id.Hardware.Platform)
	assert.Equal(t, 8, id.Hardware.CPUCores)
	assert.Equal(t, "3c:52:82:11:22:33", id.Fallback.PrimaryMAC)
	assert.Equal(t, []string{"3c:52:82:11:22:33"}, id.Fallback.AllMACs)
	assert.Equal(t, 100, StrengthScore(id))
}

func TestCollectorProbeFailuresAreIsolated(t *testing.T) {
	probes := staticProbes()
	probes.SystemUUID = func(context.Context) (string, error) { return "", errors.New("permission denied") }
	probes.DiskSerial = func(context.Context) (string, error) { panic("driver crashed") }
	probes.BIOSSerial = func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	probes.MotherboardSerial = nil

	c := NewCollector(DefaultFingerprintConfig(), WithProbes(probes), WithProbeTimeout(50*time.Millisecond))

	start := time.Now()
	id := c.Collect(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "machine-1", id.Hardware.MachineID)
	assert.Equal(t, "host-1", id.Hardware.Hostname)
	assert.Empty(t, id.Hardware.SystemUUID)
	assert.Empty(t, id.Fallback.DiskSerial)
	assert.Empty(t, id.Fallback.BIOSSerial)
	assert.Empty(t, id.Fallback.MotherboardSerial)
}

func TestCollectorProbeIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	probes := staticProbes()
	probes.Hostname = func(context.Context) (string, error) {
		<-release
		return "late", nil
	}

	c := NewCollector(DefaultFingerprintConfig(), WithProbes(probes), WithProbeTimeout(20*time.Millisecond))
	id := c.Collect(context.Background())

	assert.Empty(t, id.Hardware.Hostname)
	assert.Equal(t, "machine-1", id.Hardware.MachineID)
}

func TestCollectorTotalFailure(t *testing.T) {
	fail := func(context.Context) (string, error) { return "", errors.New("nope") }
	probes := Probes{
		MachineID:         fail,
		SystemUUID:        fail,
		Hostname:          fail,
		DiskSerial:        fail,
		BIOSSerial:        fail,
		MotherboardSerial: fail,
	}
	c := NewCollector(DefaultFingerprintConfig(), WithProbes(probes))

	id := c.Collect(context.Background())
	assert.True(t, id.IsEmpty())
	assert.NotNil(t, id.Fallback.AllMACs, "well-formed empty record")
	assert.Equal(t, 0, StrengthScore(id))

	_, err := c.Fingerprint(context.Background())
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestCollectorCacheTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	var calls atomic.Int32
	probes := staticProbes()
	probes.MachineID = func(context.Context) (string, error) {
		calls.Add(1)
		return "machine-1", nil
	}

	c := NewCollector(DefaultFingerprintConfig(), WithProbes(probes), WithClock(clock.Now), WithCacheTTL(time.Hour))
	ctx := context.Background()

	fp1, err := c.Fingerprint(ctx)
	require.NoError(t, err)
	clock.Advance(59 * time.Minute)
	fp2, err := c.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Equal(t, int32(1), calls.Load(), "served from cache")

	clock.Advance(time.Minute)
	_, err = c.Fingerprint(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "re-collected at expiry")

	c.ClearCache()
	c.Collect(ctx)
	assert.Equal(t, int32(3), calls.Load())

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())
}

func TestCollectorFingerprintMatchesPureFunction(t *testing.T) {
	cfg := DefaultFingerprintConfig()
	c := NewCollector(cfg, WithProbes(staticProbes()))
	ctx := context.Background()

	fp, err := c.Fingerprint(ctx)
	require.NoError(t, err)

	want, err := ComputeFingerprint(c.Collect(ctx), cfg)
	require.NoError(t, err)
	assert.Equal(t, want, fp)
}

func TestCollectorMachineInfo(t *testing.T) {
	c := NewCollector(DefaultFingerprintConfig(), WithProbes(staticProbes()))
	info := c.MachineInfo(context.Background())
	assert.Equal(t, "host-1", info.Hostname)
	assert.Equal(t, "linux", info.Platform)
	assert.Equal(t, "cpu", info.CPUModel)
}
