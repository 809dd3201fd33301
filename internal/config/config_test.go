package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
cores: 4
quantum: 5
program:
  children: 2
run:
  headless: true
  ticks: 300
`))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Cores)
	assert.Equal(t, 5, cfg.Quantum)
	assert.Equal(t, 2, cfg.Program.Children)
	assert.Equal(t, Default().Program.Lifetime, cfg.Program.Lifetime)
	assert.Equal(t, Default().MaxTasks, cfg.MaxTasks)
	assert.True(t, cfg.Run.Headless)
	assert.Equal(t, 300, cfg.Run.Ticks)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"too many cores":  "cores: 9",
		"slots < cores":   "cores: 4\nmaxTasks: 3",
		"zero quantum":    "quantum: 0",
		"slow timer":      "hz: 10",
		"negative ticks":  "run:\n  ticks: -1",
		"negative sleeps": "program:\n  sleepTicks: -2",
		"bad yaml":        "cores: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
	_, err := Parse([]byte("quantum: 0"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "mpkern.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hz: 250\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Hz)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
