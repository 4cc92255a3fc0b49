package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed chip_drivers.yaml
var chipDriversYAML []byte

// defaultDriverTable maps chip identifiers to the driver modules enabled by
// default for that chip. Loaded once from the embedded table.
var defaultDriverTable = mustLoadDriverTable()

func mustLoadDriverTable() map[string][]string {
	table := make(map[string][]string)
	if err := yaml.Unmarshal(chipDriversYAML, &table); err != nil {
		panic(fmt.Sprintf("embedded chip driver table is invalid: %v", err))
	}
	return table
}

// DefaultDrivers returns the static default driver set for a chip, or an
// empty set for unrecognized chips.
func DefaultDrivers(chip string) []string {
	if drivers, ok := defaultDriverTable[chip]; ok {
		out := make([]string, len(drivers))
		copy(out, drivers)
		return out
	}
	return []string{}
}

// AggregateChips derives the distinct chip set from the merged device
// records. Each chip's platform comes from the first device observed with
// that chip; unresolvable platforms fall back to UnknownPlatform. Exactly
// one ChipRecord is produced per distinct chip identifier.
func AggregateChips(devices []DeviceRecord) []ChipRecord {
	seen := make(map[string]struct{}, len(devices))
	chips := make([]ChipRecord, 0, len(devices))

	for _, device := range devices {
		if device.Chip == "" {
			continue
		}
		if _, ok := seen[device.Chip]; ok {
			continue
		}
		seen[device.Chip] = struct{}{}

		platform := device.KernelTarget
		if platform == "" {
			platform = UnknownPlatform
		}

		chips = append(chips, ChipRecord{
			Name:           device.Chip,
			Platform:       platform,
			DefaultDrivers: DefaultDrivers(device.Chip),
		})
	}

	return chips
}
