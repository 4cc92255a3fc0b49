package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var catalogSchemaJSON []byte

const schemaResource = "catalog-schema.json"

// Writer serializes a catalog to its output file. It owns the file and its
// temporary twin for the duration of a run; readers only ever observe a
// fully written catalog because the final step is a rename.
type Writer struct {
	path   string
	schema *jsonschema.Schema
	log    *slog.Logger
}

// NewWriter creates a Writer for path, compiling the embedded catalog
// schema.
func NewWriter(path string, log *slog.Logger) (*Writer, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(catalogSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded catalog schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, doc); err != nil {
		return nil, fmt.Errorf("failed to register catalog schema: %w", err)
	}
	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}

	return &Writer{path: path, schema: schema, log: log}, nil
}

// Write validates and atomically writes the catalog. If extraction yielded
// an empty device or chip set, reserved placeholder records are inserted
// first so the downstream generator always has something to consume; that
// path is WARN-logged but is not an error.
func (w *Writer) Write(cat *Catalog) error {
	w.normalize(cat)

	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := w.validate(data); err != nil {
		return fmt.Errorf("composed catalog failed schema validation: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Compose into a temporary location, then move into place
	tempPath := w.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary catalog: %w", err)
	}
	if err := os.Rename(tempPath, w.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to move catalog into place: %w", err)
	}

	w.log.Info("Catalog written",
		"path", w.path,
		"devices", len(cat.Devices),
		"chips", len(cat.Chips))
	return nil
}

// normalize prepares the catalog for serialization: collections and driver
// sets are never null, and empty collections receive the reserved
// placeholder records.
func (w *Writer) normalize(cat *Catalog) {
	if cat.Devices == nil {
		cat.Devices = []DeviceRecord{}
	}
	if cat.Chips == nil {
		cat.Chips = []ChipRecord{}
	}

	if len(cat.Devices) == 0 || len(cat.Chips) == 0 {
		w.log.Warn("Extraction yielded an empty catalog, inserting placeholder records",
			"devices", len(cat.Devices),
			"chips", len(cat.Chips))
		if len(cat.Devices) == 0 {
			cat.Devices = append(cat.Devices, PlaceholderDevice())
		}
		if len(cat.Chips) == 0 {
			cat.Chips = append(cat.Chips, PlaceholderChip())
		}
	}

	for i := range cat.Devices {
		if cat.Devices[i].Drivers == nil {
			cat.Devices[i].Drivers = []string{}
		}
	}
	for i := range cat.Chips {
		if cat.Chips[i].DefaultDrivers == nil {
			cat.Chips[i].DefaultDrivers = []string{}
		}
	}
}

// validate checks the serialized catalog against the embedded schema.
func (w *Writer) validate(data []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return w.schema.Validate(instance)
}
