package extract

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firmforge/catalog-sync/internal/scan"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCandidate(t *testing.T, root string, rel string, content string) scan.Candidate {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return scan.Candidate{Path: path, Root: root}
}

// Characterization tests for the normalization rule: a single leading
// vendor token (underscore-separated) is stripped, underscores collapse to
// hyphens, and a trailing revision marker is dropped.
func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stem     string
		expected string
	}{
		{name: "plain name unchanged", stem: "device-x", expected: "device-x"},
		{name: "vendor prefix stripped", stem: "qcom_ipq8064-rt4230w", expected: "ipq8064-rt4230w"},
		{name: "single vendor token only", stem: "tplink_archer-c7_v2", expected: "archer-c7"},
		{name: "underscores collapse to hyphens", stem: "archer_c7", expected: "c7"},
		{name: "revision suffix dropped", stem: "device-x-v2", expected: "device-x"},
		{name: "repeated separators collapse", stem: "board--name", expected: "board-name"},
		{name: "leading and trailing separators trimmed", stem: "-board-", expected: "board"},
		{name: "uppercase folds to lowercase", stem: "Board-X", expected: "board-x"},
		{name: "degenerate all separators", stem: "___", expected: ""},
		{name: "degenerate empty", stem: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, NormalizeName(tt.stem))
		})
	}
}

func TestExtractSampleScenario(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "foo/bar/device-x.dts",
		"/dts-v1/;\n/ {\n\tmodel = \"Example Device X\";\n};\n")

	extractor := New(testLogger())
	record, err := extractor.Extract(candidate)
	require.NoError(t, err)

	assert.Equal(t, "device-x", record.Name)
	assert.Equal(t, "foo", record.Chip)
	assert.Equal(t, "foo/bar", record.KernelTarget)
	assert.Equal(t, "Example Device X", record.Model)
	assert.Empty(t, record.Drivers)
}

func TestExtractRevisionCollapsesToSameIdentity(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	first := writeCandidate(t, defRoot, "foo/bar/device-x.dts", "model = \"First\";")
	second := writeCandidate(t, defRoot, "foo/bar/device-x-v2.dts", "model = \"Second\";")

	extractor := New(testLogger())
	firstRecord, err := extractor.Extract(first)
	require.NoError(t, err)
	secondRecord, err := extractor.Extract(second)
	require.NoError(t, err)

	assert.Equal(t, firstRecord.Key(), secondRecord.Key())
}

func TestExtractModelEscapes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "foo/board.dts",
		`model = "Vendor \"Quoted\" \\ Board";`)

	extractor := New(testLogger())
	record, err := extractor.Extract(candidate)
	require.NoError(t, err)

	assert.Equal(t, `Vendor "Quoted" \ Board`, record.Model)
}

func TestExtractModelFallback(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "foo/bar/acme_widget.dts", "/dts-v1/;\n")

	extractor := New(testLogger())
	record, err := extractor.Extract(candidate)
	require.NoError(t, err)

	assert.Equal(t, "widget", record.Name)
	assert.Equal(t, "Unknown widget (foo)", record.Model)
}

func TestExtractDegenerateNameFallback(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "foo/___.dts", "model = \"Strange\";")

	extractor := New(testLogger())
	record, err := extractor.Extract(candidate)
	require.NoError(t, err)

	// The fallback carries the original filename, extension included
	assert.Equal(t, "unknown-device-___.dts", record.Name)
}

func TestExtractChipSkipsStructuralSegments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		rel          string
		expectedChip string
	}{
		{name: "plain target", rel: "foo/bar/board.dts", expectedChip: "foo"},
		{name: "structural prefix skipped", rel: "linux/ath79/dts/board.dts", expectedChip: "ath79"},
		{name: "generic skipped", rel: "generic/ramips/board.dts", expectedChip: "ramips"},
		{name: "all structural falls back to path", rel: "generic/dts/board.dts", expectedChip: "generic/dts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			defRoot := filepath.Join(root, "target")
			candidate := writeCandidate(t, defRoot, tt.rel, "model = \"Board\";")

			extractor := New(testLogger())
			record, err := extractor.Extract(candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedChip, record.Chip)
		})
	}
}

func TestExtractFileAtDefinitionRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "board.dts", "model = \"Rootless\";")

	extractor := New(testLogger())
	record, err := extractor.Extract(candidate)
	require.NoError(t, err)

	assert.Equal(t, "", record.KernelTarget)
	assert.Equal(t, ChipUnknown, record.Chip)
}

func TestExtractBinaryContent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	defRoot := filepath.Join(root, "target")
	candidate := writeCandidate(t, defRoot, "foo/board.dts", "model = \"x\"\x00junk")

	extractor := New(testLogger())
	_, err := extractor.Extract(candidate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary content")
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	extractor := New(testLogger())
	_, err := extractor.Extract(scan.Candidate{
		Path: filepath.Join(t.TempDir(), "gone.dts"),
		Root: t.TempDir(),
	})
	require.Error(t, err)
}
