package git

import (
	"os"
	"path/filepath"
)

// writeTestFile creates a file with parent directories, for tests.
func writeTestFile(dir, name, content string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0600)
}
