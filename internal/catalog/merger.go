package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firmforge/catalog-sync/internal/resources"
)

// DiskPressureError indicates that available durable storage fell below the
// configured minimum. The run must abort rather than degrade.
type DiskPressureError struct {
	Path string
}

// Error implements the error interface
func (e *DiskPressureError) Error() string {
	return fmt.Sprintf("durable storage critically low near %s", e.Path)
}

// MergerOptions configures the merge stage's resource budget.
type MergerOptions struct {
	// CheckEvery is the record interval between resource checks
	CheckEvery int

	// FlushPause is the pause after a memory-pressure flush
	FlushPause time.Duration
}

// Stats summarizes a merge run.
type Stats struct {
	Committed  int
	Duplicates int
	Flushes    int
}

// Merger commits device records with first-seen-wins semantics under a
// resource budget. The identity-key ledger is write-once per run and is
// never cleared by a flush, so deduplication stays correct across flushes.
//
// The reference pipeline is sequential; the mutex keeps the check-then-commit
// sequence atomic with respect to flushes should a caller ever drive the
// merger from more than one goroutine.
type Merger struct {
	mu      sync.Mutex
	ledger  map[Key]struct{}
	batch   []DeviceRecord
	store   *Store
	monitor resources.Monitor
	opts    MergerOptions
	log     *slog.Logger

	stats Stats
}

// NewMerger creates a Merger flushing into store under monitor's budget.
func NewMerger(store *Store, monitor resources.Monitor, opts MergerOptions, log *slog.Logger) *Merger {
	if opts.CheckEvery < 1 {
		opts.CheckEvery = 1
	}
	return &Merger{
		ledger:  make(map[Key]struct{}),
		store:   store,
		monitor: monitor,
		opts:    opts,
		log:     log,
	}
}

// Add commits rec unless its identity key was already seen this run. Later
// duplicates are dropped silently, not merged field by field. It returns
// false for a dropped duplicate and a DiskPressureError when the run must
// abort.
func (m *Merger) Add(ctx context.Context, rec DeviceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.Key()
	if _, seen := m.ledger[key]; seen {
		m.stats.Duplicates++
		m.log.Debug("Dropping duplicate device record", "name", key.Name, "chip", key.Chip)
		return false, nil
	}

	m.ledger[key] = struct{}{}
	m.batch = append(m.batch, rec)
	m.stats.Committed++

	if m.stats.Committed%m.opts.CheckEvery == 0 {
		if err := m.checkBudget(ctx); err != nil {
			return false, err
		}
	}

	return true, nil
}

// checkBudget enforces the resource budget. Called with the mutex held.
func (m *Merger) checkBudget(ctx context.Context) error {
	if m.monitor.DiskPressure() {
		return &DiskPressureError{Path: m.store.Path()}
	}

	if !m.monitor.MemoryPressure() {
		return nil
	}

	m.log.Warn("Memory budget exceeded, flushing batch to partial catalog",
		"batch", len(m.batch),
		"committed", m.stats.Committed)
	if err := m.flushLocked(); err != nil {
		return err
	}

	// Brief pause lets the runtime return memory before resuming
	select {
	case <-time.After(m.opts.FlushPause):
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// flushLocked merges the in-memory batch into the durable partial catalog
// and clears the batch. The ledger is untouched.
func (m *Merger) flushLocked() error {
	if len(m.batch) == 0 {
		return nil
	}

	devices, err := m.store.Load()
	if err != nil {
		return err
	}
	devices = append(devices, m.batch...)
	if err := m.store.Save(devices); err != nil {
		return err
	}

	m.batch = nil
	m.stats.Flushes++
	return nil
}

// Finalize returns the complete committed device set in first-seen order,
// reloading any flushed partial batches, and removes the partial catalog.
func (m *Merger) Finalize(_ context.Context) ([]DeviceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stats.Flushes == 0 {
		devices := m.batch
		m.batch = nil
		return devices, nil
	}

	devices, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	devices = append(devices, m.batch...)
	m.batch = nil

	if err := m.store.Remove(); err != nil {
		m.log.Warn("Failed to remove partial catalog", "error", err)
	}
	return devices, nil
}

// Stats returns the merge counters.
func (m *Merger) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
