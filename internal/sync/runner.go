package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firmforge/catalog-sync/internal/acquire"
	"github.com/firmforge/catalog-sync/internal/catalog"
	"github.com/firmforge/catalog-sync/internal/config"
	"github.com/firmforge/catalog-sync/internal/extract"
	"github.com/firmforge/catalog-sync/internal/resources"
	"github.com/firmforge/catalog-sync/internal/scan"
)

// SnapshotProvider obtains a source-tree snapshot from the mirror list.
type SnapshotProvider interface {
	Acquire(ctx context.Context, mirrors []acquire.Mirror) (*acquire.Snapshot, error)
}

// Result summarizes a completed synchronization run.
type Result struct {
	// Devices and Chips are the written record counts
	Devices int
	Chips   int

	// SkippedFiles counts candidates rejected by the selector
	SkippedFiles int

	// FailedExtractions counts accepted files that produced no record
	FailedExtractions int

	// Duplicates counts records dropped by first-seen-wins dedup
	Duplicates int

	// Flushes counts memory-pressure flushes to the partial catalog
	Flushes int

	// Placeholders reports whether the placeholder fallback fired
	Placeholders bool

	Duration time.Duration
}

// Runner executes catalog synchronization runs. The catalog is rebuilt from
// scratch on every run; partial artifacts are removed on every exit path.
type Runner struct {
	cfg      *config.Config
	provider SnapshotProvider
	monitor  resources.Monitor
	log      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.Config, provider SnapshotProvider, monitor resources.Monitor, log *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		provider: provider,
		monitor:  monitor,
		log:      log,
	}
}

// Run performs one synchronization run. Per-file failures are logged and
// skipped; only aggregate insufficiency or infrastructure failure is
// returned as an error.
func (r *Runner) Run(ctx context.Context) (retResult *Result, retErr error) {
	start := time.Now()

	snapshot, err := r.provider.Acquire(ctx, r.mirrors())
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := snapshot.Close(); closeErr != nil {
			r.log.Warn("Failed to remove snapshot", "error", closeErr)
		}
	}()

	store := catalog.NewStore(r.cfg.Output + ".partial")
	// Partial artifacts never outlive the run
	defer func() {
		if removeErr := store.Remove(); removeErr != nil {
			r.log.Warn("Failed to remove partial catalog", "error", removeErr)
		}
	}()

	merger := catalog.NewMerger(store, r.monitor, catalog.MergerOptions{
		CheckEvery: r.cfg.Resources.CheckEvery,
		FlushPause: r.cfg.FlushPause(),
	}, r.log)

	selector := scan.NewSelector(snapshot.Root, r.cfg.DefinitionDirs, r.cfg.MaxFileSizeBytes, r.log)
	extractor := extract.New(r.log)

	accepted, failed, err := r.extractAll(ctx, selector, extractor, merger)
	if err != nil {
		return nil, err
	}
	skipped := selector.Skipped()
	if accepted == 0 {
		return nil, &scan.NoCandidatesError{Root: snapshot.Root}
	}

	devices, err := merger.Finalize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize merged devices: %w", err)
	}

	r.enrichDrivers(ctx, selector, extractor, devices)

	chips := catalog.AggregateChips(devices)
	placeholders := len(devices) == 0 || len(chips) == 0

	writer, err := catalog.NewWriter(r.cfg.Output, r.log)
	if err != nil {
		return nil, err
	}
	cat := &catalog.Catalog{Devices: devices, Chips: chips}
	if err := writer.Write(cat); err != nil {
		return nil, err
	}

	stats := merger.Stats()
	result := &Result{
		Devices:           len(cat.Devices),
		Chips:             len(cat.Chips),
		SkippedFiles:      skipped,
		FailedExtractions: failed,
		Duplicates:        stats.Duplicates,
		Flushes:           stats.Flushes,
		Placeholders:      placeholders,
		Duration:          time.Since(start),
	}

	r.log.Info("Synchronization run complete",
		"devices", result.Devices,
		"chips", result.Chips,
		"skipped_files", result.SkippedFiles,
		"failed_extractions", result.FailedExtractions,
		"duplicates", result.Duplicates,
		"flushes", result.Flushes,
		"placeholders", result.Placeholders,
		"duration", result.Duration.String())
	return result, nil
}

// extractAll drives the sequential extract-and-merge loop. It returns the
// number of accepted candidates and the number of failed extractions.
func (r *Runner) extractAll(
	ctx context.Context,
	selector *scan.Selector,
	extractor *extract.Extractor,
	merger *catalog.Merger,
) (int, int, error) {
	accepted := 0
	failed := 0

	for candidate := range selector.Descriptions() {
		if err := ctx.Err(); err != nil {
			return accepted, failed, err
		}
		accepted++

		record, err := extractor.Extract(candidate)
		if err != nil {
			failed++
			r.log.Warn("Skipping file after extraction failure",
				"path", candidate.Path,
				"error", err)
			continue
		}

		if _, err := merger.Add(ctx, record); err != nil {
			return accepted, failed, err
		}
	}

	return accepted, failed, nil
}

// enrichDrivers applies the optional build-manifest enrichment pass.
// Failures here are never fatal; records keep their empty driver sets.
func (r *Runner) enrichDrivers(
	ctx context.Context,
	selector *scan.Selector,
	extractor *extract.Extractor,
	devices []catalog.DeviceRecord,
) {
	byName := make(map[string][]string)
	for candidate := range selector.Manifests() {
		if ctx.Err() != nil {
			return
		}
		drivers, err := extractor.ManifestDrivers(candidate)
		if err != nil {
			r.log.Debug("Skipping build manifest", "path", candidate.Path, "error", err)
			continue
		}
		for name, packages := range drivers {
			byName[name] = append(byName[name], packages...)
		}
	}

	if len(byName) == 0 {
		return
	}
	for i := range devices {
		if packages, ok := byName[devices[i].Name]; ok {
			devices[i].Drivers = dedupe(packages)
		}
	}
}

// mirrors converts the configured mirror list into acquisition requests.
func (r *Runner) mirrors() []acquire.Mirror {
	mirrors := make([]acquire.Mirror, 0, len(r.cfg.Mirrors))
	for _, m := range r.cfg.Mirrors {
		mirrors = append(mirrors, acquire.Mirror{
			URL:    m.URL,
			Branch: m.Branch,
			Tag:    m.Tag,
		})
	}
	return mirrors
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
