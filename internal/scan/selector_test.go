package scan

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, root string, rel string, size int64) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	f, err := os.Create(path)
	require.NoError(t, err)
	if size > 0 {
		require.NoError(t, f.Truncate(size))
	}
	require.NoError(t, f.Close())
}

func collect(seq func(func(Candidate) bool)) []string {
	var names []string
	for c := range seq {
		names = append(names, filepath.Base(c.Path))
	}
	return names
}

func TestDescriptionsWalk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/bar/device-x.dts", 128)
	writeFile(t, root, "target/foo/bar/device-y.dtsi", 128)
	writeFile(t, root, "target/foo/Makefile", 128)
	writeFile(t, root, "target/foo/image.mk", 128)
	writeFile(t, root, "docs/manual.dts", 128) // outside the definition dirs
	writeFile(t, root, "target/.hidden/secret.dts", 128)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())

	names := collect(selector.Descriptions())
	assert.ElementsMatch(t, []string{"device-x.dts", "device-y.dtsi"}, names)
	assert.Zero(t, selector.Skipped())
}

func TestDescriptionsRejectsOversized(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/huge.dts", 6*1024*1024)
	writeFile(t, root, "target/foo/small.dts", 10*1024)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())

	names := collect(selector.Descriptions())
	assert.Equal(t, []string{"small.dts"}, names)
	assert.Equal(t, 1, selector.Skipped())
}

func TestDescriptionsRejectsDisallowedName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/device ok.dts", 128)
	writeFile(t, root, "target/foo/device$bad.dts", 128)
	writeFile(t, root, "target/foo/device-good.dts", 128)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())

	names := collect(selector.Descriptions())
	assert.Equal(t, []string{"device-good.dts"}, names)
	assert.Equal(t, 2, selector.Skipped())
}

func TestDescriptionsRestartable(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/device-x.dts", 128)
	writeFile(t, root, "target/foo/device-y.dts", 128)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())

	first := collect(selector.Descriptions())
	second := collect(selector.Descriptions())
	assert.Equal(t, first, second)
	assert.Len(t, second, 2)
}

func TestDescriptionsEarlyStop(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/device-x.dts", 128)
	writeFile(t, root, "target/foo/device-y.dts", 128)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())

	count := 0
	for range selector.Descriptions() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDescriptionsEarlyStopMultipleDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/device-x.dts", 128)
	writeFile(t, root, "devices/bar/device-y.dts", 128)

	selector := NewSelector(root, []string{"target", "devices"}, 5*1024*1024, testLogger())

	// Stopping inside the first directory must end the whole sequence
	count := 0
	for range selector.Descriptions() {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestDescriptionsMissingDefinitionDir(t *testing.T) {
	t.Parallel()

	selector := NewSelector(t.TempDir(), []string{"target"}, 5*1024*1024, testLogger())
	assert.Empty(t, collect(selector.Descriptions()))
}

func TestManifestsWalk(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/image.mk", 128)
	writeFile(t, root, "target/foo/device-x.dts", 128)

	selector := NewSelector(root, []string{"target"}, 5*1024*1024, testLogger())
	assert.Equal(t, []string{"image.mk"}, collect(selector.Manifests()))
}

func TestMultipleDefinitionDirs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "target/foo/device-x.dts", 128)
	writeFile(t, root, "devices/bar/device-y.dts", 128)

	selector := NewSelector(root, []string{"target", "devices"}, 5*1024*1024, testLogger())
	assert.ElementsMatch(t, []string{"device-x.dts", "device-y.dts"},
		collect(selector.Descriptions()))
}

func TestNoCandidatesError(t *testing.T) {
	t.Parallel()

	err := &NoCandidatesError{Root: "/tmp/snapshot"}
	assert.Contains(t, err.Error(), "/tmp/snapshot")
}
