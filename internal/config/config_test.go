package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
mirrors:
  - url: https://git.example.org/source.git
    branch: main
  - url: https://mirror.example.net/source.git
output: out/device-drivers.json
definitionDirs: [target, devices]
log:
  level: debug
  file: sync.log
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Len(t, cfg.Mirrors, 2)
	assert.Equal(t, "https://git.example.org/source.git", cfg.Mirrors[0].URL)
	assert.Equal(t, "main", cfg.Mirrors[0].Branch)
	assert.Equal(t, "out/device-drivers.json", cfg.Output)
	assert.Equal(t, []string{"target", "devices"}, cfg.DefinitionDirs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sync.log", cfg.Log.File)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
mirrors:
  - url: https://git.example.org/source.git
`)

	cfg, err := LoadConfig(WithConfigPath(path))
	require.NoError(t, err)

	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, []string{"target"}, cfg.DefinitionDirs)
	assert.Equal(t, int64(DefaultMaxFileSizeBytes), cfg.MaxFileSizeBytes)
	assert.Equal(t, DefaultRetryBudget, cfg.Acquire.RetryBudget)
	assert.Equal(t, 2*time.Second, cfg.RetryBackoff())
	assert.Equal(t, 5*time.Minute, cfg.AttemptTimeout())
	assert.Equal(t, DefaultCheckEvery, cfg.Resources.CheckEvery)
	assert.Equal(t, 500*time.Millisecond, cfg.FlushPause())
	assert.Equal(t, uint64(DefaultMemoryLimitMB), cfg.Resources.MemoryLimitMB)
	assert.Equal(t, uint64(DefaultMinDiskMB), cfg.Resources.MinDiskMB)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no mirrors",
			content: `output: device-drivers.json`,
			wantErr: "at least one mirror",
		},
		{
			name: "mirror without url",
			content: `
mirrors:
  - branch: main
`,
			wantErr: "url is required",
		},
		{
			name: "branch and tag both set",
			content: `
mirrors:
  - url: https://git.example.org/source.git
    branch: main
    tag: v1.0.0
`,
			wantErr: "only one of branch or tag",
		},
		{
			name: "invalid retry backoff",
			content: `
mirrors:
  - url: https://git.example.org/source.git
acquire:
  retryBackoff: soon
`,
			wantErr: "retryBackoff",
		},
		{
			name: "invalid attempt timeout",
			content: `
mirrors:
  - url: https://git.example.org/source.git
acquire:
  attemptTimeout: whenever
`,
			wantErr: "attemptTimeout",
		},
		{
			name: "invalid flush pause",
			content: `
mirrors:
  - url: https://git.example.org/source.git
resources:
  flushPause: briefly
`,
			wantErr: "flushPause",
		},
		{
			name: "negative file size ceiling",
			content: `
mirrors:
  - url: https://git.example.org/source.git
maxFileSizeBytes: -1
`,
			wantErr: "maxFileSizeBytes",
		},
		{
			name:    "not yaml",
			content: `{{{`,
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.content)
			cfg, err := LoadConfig(WithConfigPath(path))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigMissingPath(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestWithConfigPathRejectsEmpty(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(WithConfigPath(""))
	require.Error(t, err)
}

func TestValidateNilConfig(t *testing.T) {
	t.Parallel()

	var cfg *Config
	require.Error(t, cfg.Validate())
}
