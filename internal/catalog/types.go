// Package catalog defines the device/chip catalog data model and the
// merge, aggregation, and persistence stages that build it.
package catalog

// Reserved placeholder identifiers inserted when extraction yields an empty
// catalog. The downstream configuration generator recognizes these literals
// and stays runnable.
const (
	// PlaceholderDeviceName is the reserved placeholder device identifier
	PlaceholderDeviceName = "test-device"

	// PlaceholderChipName is the reserved placeholder chip identifier
	PlaceholderChipName = "test-chip"

	// UnknownPlatform is used when no device resolves a chip's platform
	UnknownPlatform = "unknown-platform"
)

// Key is the identity of a device record. At most one DeviceRecord per Key
// exists in a catalog.
type Key struct {
	Name string
	Chip string
}

// DeviceRecord describes one hardware device extracted from a
// board-description file.
type DeviceRecord struct {
	// Name is the normalized device identifier derived from the filename
	Name string `json:"name"`

	// Chip is the chip identifier, possibly "unknown"
	Chip string `json:"chip"`

	// KernelTarget is the platform path relative to the definition root
	KernelTarget string `json:"kernelTarget"`

	// Model is the human-readable model string
	Model string `json:"model"`

	// Drivers are the driver module identifiers, possibly empty
	Drivers []string `json:"drivers"`
}

// Key returns the identity key of the record.
func (d *DeviceRecord) Key() Key {
	return Key{Name: d.Name, Chip: d.Chip}
}

// ChipRecord describes one distinct chip referenced by the device set.
type ChipRecord struct {
	// Name is the chip identifier, unique across the catalog
	Name string `json:"name"`

	// Platform is the kernel target of the first device observed with
	// this chip
	Platform string `json:"platform"`

	// DefaultDrivers are the driver modules enabled by default for the
	// chip, from the static lookup table
	DefaultDrivers []string `json:"defaultDrivers"`
}

// Catalog is the top-level aggregate written to the output file. Its shape
// is the sole contract with the downstream configuration generator.
type Catalog struct {
	Devices []DeviceRecord `json:"devices"`
	Chips   []ChipRecord   `json:"chips"`
}

// PlaceholderDevice returns the reserved fallback device record.
func PlaceholderDevice() DeviceRecord {
	return DeviceRecord{
		Name:         PlaceholderDeviceName,
		Chip:         PlaceholderChipName,
		KernelTarget: UnknownPlatform,
		Model:        "Placeholder device (no boards extracted)",
		Drivers:      []string{},
	}
}

// PlaceholderChip returns the reserved fallback chip record.
func PlaceholderChip() ChipRecord {
	return ChipRecord{
		Name:           PlaceholderChipName,
		Platform:       UnknownPlatform,
		DefaultDrivers: []string{},
	}
}
