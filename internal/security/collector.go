package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"licensecore/pkg/contracts/domain"
)

// ErrNoIdentity is returned when no identifying probe produced a value
var ErrNoIdentity = errors.New("no hardware identifiers available")

const (
	defaultProbeTimeout = 5 * time.Second
	defaultCacheTTL     = time.Hour
)

// Collector gathers hardware identifiers and derives the device fingerprint.
// Results are cached and re-collected lazily once the TTL has passed.
type Collector struct {
	probes       Probes
	config       FingerprintConfig
	probeTimeout time.Duration
	cacheTTL     time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu          sync.RWMutex
	identity    *Identity
	fingerprint string
	expiresAt   time.Time

	group singleflight.Group
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithProbes replaces the OS probes
func WithProbes(p Probes) CollectorOption {
	return func(c *Collector) { c.probes = p }
}

// WithProbeTimeout bounds each probe independently
func WithProbeTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// WithCacheTTL sets how long a collection pass stays fresh
func WithCacheTTL(d time.Duration) CollectorOption {
	return func(c *Collector) {
		if d > 0 {
			c.cacheTTL = d
		}
	}
}

// WithClock injects the time source
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = l }
}

// NewCollector creates a collector using the system probes unless overridden
func NewCollector(cfg FingerprintConfig, opts ...CollectorOption) *Collector {
	c := &Collector{
		probes:       SystemProbes(""),
		config:       cfg,
		probeTimeout: defaultProbeTimeout,
		cacheTTL:     defaultCacheTTL,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "hardware_collector")
	return c
}

// Collect returns the cached identity or runs a new collection pass
func (c *Collector) Collect(ctx context.Context) Identity {
	if id, _, ok := c.cached(); ok {
		return id
	}
	id, _, _ := c.refresh(ctx)
	return id
}

// Refresh discards the cache and collects again
func (c *Collector) Refresh(ctx context.Context) (Identity, error) {
	c.ClearCache()
	id, _, err := c.refresh(ctx)
	return id, err
}

// Fingerprint returns the device fingerprint, collecting when the cache is stale
func (c *Collector) Fingerprint(ctx context.Context) (string, error) {
	if _, fp, ok := c.cached(); ok {
		if fp == "" {
			return "", ErrNoIdentity
		}
		return fp, nil
	}
	_, fp, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}
	if fp == "" {
		return "", ErrNoIdentity
	}
	return fp, nil
}

// StrengthScore scores the current identity
func (c *Collector) StrengthScore(ctx context.Context) int {
	return StrengthScore(c.Collect(ctx))
}

// MachineInfo describes the host for activation requests
func (c *Collector) MachineInfo(ctx context.Context) *domain.MachineInfo {
	id := c.Collect(ctx)
	return &domain.MachineInfo{
		Hostname: id.Hardware.Hostname,
		Platform: id.Hardware.Platform,
		CPUModel: id.Hardware.CPUModel,
		CPUCores: id.Hardware.CPUCores,
	}
}

// ClearCache drops the cached identity and fingerprint
func (c *Collector) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = nil
	c.fingerprint = ""
	c.expiresAt = time.Time{}
}

func (c *Collector) cached() (Identity, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.identity == nil || !c.now().Before(c.expiresAt) {
		return Identity{}, "", false
	}
	return c.identity.Clone(), c.fingerprint, true
}

type collection struct {
	identity    Identity
	fingerprint string
}

// refresh collects once for all concurrent callers and stores the result
func (c *Collector) refresh(ctx context.Context) (Identity, string, error) {
	v, err, _ := c.group.Do("collect", func() (any, error) {
		start := c.now()
		id := c.collect(ctx)

		fp := ""
		if !id.IsEmpty() {
			var err error
			fp, err = ComputeFingerprint(id, c.config)
			if err != nil {
				return collection{identity: id}, fmt.Errorf("failed to compute fingerprint: %w", err)
			}
		}

		c.mu.Lock()
		c.identity = &id
		c.fingerprint = fp
		c.expiresAt = c.now().Add(c.cacheTTL)
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "hardware identity collected",
			slog.Int("strength", StrengthScore(id)),
			slog.Int("macs", len(id.Fallback.AllMACs)),
			slog.Duration("duration", c.now().Sub(start)),
		)
		return collection{identity: id, fingerprint: fp}, nil
	})
	res, _ := v.(collection)
	return res.identity.Clone(), res.fingerprint, err
}

// collect runs every probe concurrently. A probe that fails, panics or times
// out leaves its field empty and never affects the others.
func (c *Collector) collect(ctx context.Context) Identity {
	id := Identity{CollectedAt: c.now()}
	if c.probes.Platform != nil {
		id.Hardware.Platform = c.probes.Platform()
	}

	var (
		g      errgroup.Group
		ifaces []NetworkInterface
	)

	g.Go(func() error {
		id.Hardware.MachineID, _ = runProbe(ctx, c, "machine_id", c.probes.MachineID)
		return nil
	})
	g.Go(func() error {
		id.Hardware.SystemUUID, _ = runProbe(ctx, c, "system_uuid", c.probes.SystemUUID)
		return nil
	})
	g.Go(func() error {
		id.Hardware.Hostname, _ = runProbe(ctx, c, "hostname", c.probes.Hostname)
		return nil
	})
	g.Go(func() error {
		if cpu, ok := runProbe(ctx, c, "cpu", c.probes.CPU); ok {
			id.Hardware.CPUModel = cpu.Model
			id.Hardware.CPUCores = cpu.Cores
		}
		return nil
	})
	g.Go(func() error {
		id.Hardware.TotalMemory, _ = runProbe(ctx, c, "memory", c.probes.Memory)
		return nil
	})
	g.Go(func() error {
		ifaces, _ = runProbe(ctx, c, "interfaces", c.probes.Interfaces)
		return nil
	})
	g.Go(func() error {
		id.Fallback.DiskSerial, _ = runProbe(ctx, c, "disk_serial", c.probes.DiskSerial)
		return nil
	})
	g.Go(func() error {
		id.Fallback.BIOSSerial, _ = runProbe(ctx, c, "bios_serial", c.probes.BIOSSerial)
		return nil
	})
	g.Go(func() error {
		id.Fallback.MotherboardSerial, _ = runProbe(ctx, c, "motherboard_serial", c.probes.MotherboardSerial)
		return nil
	})
	_ = g.Wait()

	physical := FilterPhysicalInterfaces(ifaces)
	id.Fallback.PrimaryMAC = SelectPrimaryMAC(physical)
	id.Fallback.AllMACs = make([]string, 0, len(physical))
	for _, iface := range physical {
		if !slices.Contains(id.Fallback.AllMACs, iface.MAC) {
			id.Fallback.AllMACs = append(id.Fallback.AllMACs, iface.MAC)
		}
	}

	return id
}

// runProbe runs probe under its own timeout and converts any failure into ok=false
func runProbe[T any](ctx context.Context, c *Collector, name string, probe func(context.Context) (T, error)) (T, bool) {
	var zero T
	if probe == nil {
		return zero, false
	}

	pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("probe panic: %v", r)}
			}
		}()
		v, err := probe(pctx)
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			c.logger.DebugContext(ctx, "probe failed", slog.String("probe", name), slog.String("error", res.err.Error()))
			return zero, false
		}
		return res.value, true
	case <-pctx.Done():
		c.logger.DebugContext(ctx, "probe timed out", slog.String("probe", name), slog.Duration("timeout", c.probeTimeout))
		return zero, false
	}
}
