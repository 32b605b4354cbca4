// Package health provides host resource checks for long-running operations.
package health

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/veridata/gopromote/internal/config"
)

const bytesPerGB = 1024 * 1024 * 1024

// CheckResult holds the outcome of a single resource check.
type CheckResult struct {
	Check     string
	Healthy   bool
	Observed  float64
	Threshold float64
}

// Error is returned when a resource check fails. Callers must treat it as
// fatal to the current run but safe to retry once resources recover.
type Error struct {
	Check     string
	Observed  float64
	Threshold float64
}

func (e *Error) Error() string {
	return fmt.Sprintf("health check %s failed: observed %.2f, threshold %.2f",
		e.Check, e.Observed, e.Threshold)
}

// Checker evaluates disk and memory headroom against configured thresholds.
type Checker struct {
	cfg  config.HealthConfig
	path string
}

// NewChecker creates a checker. path is the filesystem location whose free
// space matters (where cleaned artifacts are written).
func NewChecker(cfg config.HealthConfig, path string) *Checker {
	if path == "" {
		path = "."
	}
	return &Checker{cfg: cfg, path: path}
}

// Every returns how many rows may be processed between checks. Zero or
// negative means check before every batch.
func (c *Checker) Every() int { return c.cfg.CheckEvery }

// CheckDiskSpace reports whether free disk space at the checker's path is at
// least the configured minimum, in GB.
func (c *Checker) CheckDiskSpace() (CheckResult, error) {
	usage, err := disk.Usage(c.path)
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to stat filesystem at %s: %w", c.path, err)
	}
	freeGB := float64(usage.Free) / bytesPerGB
	return CheckResult{
		Check:     "disk_free_gb",
		Healthy:   freeGB >= c.cfg.MinFreeDiskGB,
		Observed:  freeGB,
		Threshold: c.cfg.MinFreeDiskGB,
	}, nil
}

// CheckMemory reports whether host memory usage is below the configured
// maximum percentage.
func (c *Checker) CheckMemory() (CheckResult, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return CheckResult{}, fmt.Errorf("failed to read memory stats: %w", err)
	}
	return CheckResult{
		Check:     "memory_used_pct",
		Healthy:   vm.UsedPercent <= c.cfg.MaxMemoryPct,
		Observed:  vm.UsedPercent,
		Threshold: c.cfg.MaxMemoryPct,
	}, nil
}

// Check runs all resource checks and returns a *health.Error for the first
// failing one. A probe error (not a threshold violation) is returned as-is.
func (c *Checker) Check() error {
	results := make([]CheckResult, 0, 2)

	d, err := c.CheckDiskSpace()
	if err != nil {
		return err
	}
	results = append(results, d)

	m, err := c.CheckMemory()
	if err != nil {
		return err
	}
	results = append(results, m)

	for _, r := range results {
		if !r.Healthy {
			return &Error{Check: r.Check, Observed: r.Observed, Threshold: r.Threshold}
		}
	}
	return nil
}
