// Package extract derives device records from board-description files.
package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/firmforge/catalog-sync/internal/catalog"
	"github.com/firmforge/catalog-sync/internal/scan"
)

// ChipUnknown is used when no chip can be derived for a device.
const ChipUnknown = "unknown"

var (
	// vendorPrefix matches a single leading vendor token. The underscore
	// separator is significant: board files follow the vendor_board
	// convention, while hyphens belong to the board name itself.
	vendorPrefix = regexp.MustCompile(`^[a-z0-9]+_`)

	// versionSuffix matches a trailing revision marker, so hardware
	// revisions of the same board collapse to one identity
	versionSuffix = regexp.MustCompile(`-v[0-9]+$`)

	repeatedSeparators = regexp.MustCompile(`-{2,}`)

	// modelField matches the quoted model property of a board description
	modelField = regexp.MustCompile(`model\s*=\s*"((?:[^"\\]|\\.)*)"`)
)

// structuralSegments are path segments that organize the tree rather than
// naming a chip.
var structuralSegments = map[string]struct{}{
	"target":     {},
	"linux":      {},
	"generic":    {},
	"dts":        {},
	"dtsi":       {},
	"base-files": {},
	"files":      {},
	"image":      {},
	"patches":    {},
}

// Extractor derives at most one DeviceRecord per accepted file.
type Extractor struct {
	log *slog.Logger
}

// New creates an Extractor.
func New(log *slog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract parses one accepted board-description file into a DeviceRecord.
// A per-file failure is reported as an error and is never fatal to the run;
// the caller logs it and skips the file.
func (e *Extractor) Extract(candidate scan.Candidate) (catalog.DeviceRecord, error) {
	data, err := os.ReadFile(candidate.Path)
	if err != nil {
		return catalog.DeviceRecord{}, fmt.Errorf("failed to read board description: %w", err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return catalog.DeviceRecord{}, fmt.Errorf("board description contains binary content")
	}

	name := NormalizeName(fileStem(candidate.Path))
	if name == "" {
		name = "unknown-device-" + filepath.Base(candidate.Path)
		e.log.Debug("Degenerate device name, using fallback", "file", candidate.Path, "name", name)
	}

	kernelTarget := kernelTargetFor(candidate)
	chip := chipFor(kernelTarget)

	model, ok := extractModel(data)
	if !ok {
		model = fmt.Sprintf("Unknown %s (%s)", name, chip)
	}

	return catalog.DeviceRecord{
		Name:         name,
		Chip:         chip,
		KernelTarget: kernelTarget,
		Model:        model,
		Drivers:      []string{},
	}, nil
}

// NormalizeName normalizes a filename stem into a device identifier:
// a single leading vendor token is stripped, underscores collapse to
// hyphens, separators are trimmed and deduplicated, and a trailing
// revision marker is dropped. Returns "" for degenerate input.
func NormalizeName(stem string) string {
	name := vendorPrefix.ReplaceAllString(stem, "")
	name = strings.ReplaceAll(name, "_", "-")
	name = repeatedSeparators.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-")
	name = versionSuffix.ReplaceAllString(name, "")
	name = strings.Trim(name, "-")

	if name == "" || name == "-" {
		return ""
	}
	return strings.ToLower(name)
}

// fileStem returns the filename without its extension.
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// kernelTargetFor derives the platform path of a candidate from its
// directory relative to the definition root.
func kernelTargetFor(candidate scan.Candidate) string {
	rel, err := filepath.Rel(candidate.Root, filepath.Dir(candidate.Path))
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// chipFor derives the chip identifier from a kernel target path. Segments
// are scanned outermost first, skipping structural names; the outermost
// real segment is the chip family the tree is organized by. Falls back to
// the full path when every segment is structural, and to ChipUnknown when
// there is no path at all.
func chipFor(kernelTarget string) string {
	if kernelTarget == "" {
		return ChipUnknown
	}
	for _, segment := range strings.Split(kernelTarget, "/") {
		if _, structural := structuralSegments[segment]; !structural && segment != "" {
			return segment
		}
	}
	return kernelTarget
}

// extractModel pulls the quoted model field out of a board description and
// resolves its escape sequences. The structured-output encoder owns all
// re-escaping on the way out.
func extractModel(data []byte) (string, bool) {
	match := modelField.FindSubmatch(data)
	if match == nil {
		return "", false
	}
	return unescape(string(match[1])), true
}

// unescape resolves \" and \\ sequences inside a quoted field.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
