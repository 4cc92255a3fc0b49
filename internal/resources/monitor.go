// Package resources probes memory and disk pressure for the merge stage's
// resource budget.
package resources

import (
	"log/slog"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// Monitor reports resource pressure. Implementations must be cheap enough to
// call on every budget check.
type Monitor interface {
	// MemoryPressure reports whether approximate working-memory usage
	// exceeds the configured budget
	MemoryPressure() bool

	// DiskPressure reports whether available durable storage has fallen
	// below the configured minimum
	DiskPressure() bool
}

// SystemMonitor implements Monitor against the Go runtime and the
// filesystem holding the catalog output.
type SystemMonitor struct {
	memLimitBytes uint64
	minDiskBytes  uint64
	path          string
	log           *slog.Logger
}

// NewSystemMonitor creates a SystemMonitor. A zero limit disables the
// corresponding check. path names a location on the filesystem that will
// hold the catalog output.
func NewSystemMonitor(memLimitBytes, minDiskBytes uint64, path string, log *slog.Logger) *SystemMonitor {
	return &SystemMonitor{
		memLimitBytes: memLimitBytes,
		minDiskBytes:  minDiskBytes,
		path:          path,
		log:           log,
	}
}

// MemoryPressure compares current heap allocation against the budget.
func (m *SystemMonitor) MemoryPressure() bool {
	if m.memLimitBytes == 0 {
		return false
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc >= m.memLimitBytes
}

// DiskPressure compares available bytes on the output filesystem against the
// minimum. The output directory is only created when the catalog is written,
// so a missing path falls back to its nearest existing ancestor; only a
// filesystem that cannot be observed at all is reported as pressure, since
// continuing such a run risks an unwritable catalog.
func (m *SystemMonitor) DiskPressure() bool {
	if m.minDiskBytes == 0 {
		return false
	}

	var stat unix.Statfs_t
	path := m.path
	for {
		err := unix.Statfs(path, &stat)
		if err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			m.log.Warn("Failed to stat output filesystem", "path", m.path, "error", err)
			return true
		}
		path = parent
	}

	available := stat.Bavail * uint64(stat.Bsize) // #nosec G115 -- block size is positive
	return available < m.minDiskBytes
}
