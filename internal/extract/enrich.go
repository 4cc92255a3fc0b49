package extract

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/firmforge/catalog-sync/internal/scan"
)

// Driver enrichment reads build-manifest files of the form
//
//	define Device/vendor_board
//	  DEVICE_PACKAGES := kmod-usb2 kmod-ath9k
//	endef
//
// and attaches the listed packages to the matching device record. This is
// optional enrichment: a missing or malformed manifest never fails the run.

var (
	deviceBlock    = regexp.MustCompile(`(?m)^define Device/([A-Za-z0-9_.+-]+)\s*$`)
	endefLine      = regexp.MustCompile(`(?m)^endef\s*$`)
	devicePackages = regexp.MustCompile(`(?m)^\s*DEVICE_PACKAGES\s*[:+]?=\s*(.+)$`)
)

// ManifestDrivers parses one build-manifest file and returns driver packages
// keyed by normalized device name.
func (e *Extractor) ManifestDrivers(candidate scan.Candidate) (map[string][]string, error) {
	data, err := os.ReadFile(candidate.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build manifest: %w", err)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("build manifest contains binary content")
	}

	drivers := make(map[string][]string)
	blocks := deviceBlock.FindAllSubmatchIndex(data, -1)
	for i, block := range blocks {
		rawName := string(data[block[2]:block[3]])
		name := NormalizeName(rawName)
		if name == "" {
			continue
		}

		// The block body runs to the next define or end of file,
		// bounded by the first endef within it
		bodyStart := block[1]
		bodyEnd := len(data)
		if i+1 < len(blocks) {
			bodyEnd = blocks[i+1][0]
		}
		body := data[bodyStart:bodyEnd]
		if end := endefLine.FindIndex(body); end != nil {
			body = body[:end[0]]
		}

		for _, match := range devicePackages.FindAllSubmatch(body, -1) {
			packages := strings.Fields(string(match[1]))
			drivers[name] = appendUnique(drivers[name], packages)
		}
	}

	return drivers, nil
}

// appendUnique appends values not already present in list.
func appendUnique(list []string, values []string) []string {
	seen := make(map[string]struct{}, len(list))
	for _, v := range list {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		list = append(list, v)
	}
	return list
}
