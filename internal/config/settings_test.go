package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("QSYNC_CONFIG", "")

	s, err := LoadSettings(NewViper())
	require.NoError(t, err)
	assert.Equal(t, Settings{LogLevel: "warn"}, s)
}

func TestLoadSettings_Env(t *testing.T) {
	t.Setenv("QSYNC_CONFIG", "")
	t.Setenv("QSYNC_DB", "trace.db")
	t.Setenv("QSYNC_TIMEOUT", "250ms")
	t.Setenv("QSYNC_LOG_LEVEL", "debug")

	s, err := LoadSettings(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "trace.db", s.DB)
	assert.Equal(t, 250*time.Millisecond, s.Timeout)
	assert.Equal(t, "debug", s.LogLevel)
}

func TestLoadSettings_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db: from-file.db\nprofile: device.cue\n"), 0o644))
	t.Setenv("QSYNC_CONFIG", path)
	t.Setenv("QSYNC_PROFILE", "env.cue")

	s, err := LoadSettings(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", s.DB)
	assert.Equal(t, "env.cue", s.Profile, "environment beats the file")
}

func TestLoadSettings_InvalidLogLevel(t *testing.T) {
	t.Setenv("QSYNC_CONFIG", "")
	t.Setenv("QSYNC_LOG_LEVEL", "chatty")

	_, err := LoadSettings(NewViper())
	assert.Error(t, err)
}

func TestSettings_ResolveProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.cue")
	require.NoError(t, os.WriteFile(path, []byte(`waitTimeout: "1s"`), 0o644))

	p, err := Settings{Profile: path}.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, time.Second, p.WaitTimeout)

	p, err = Settings{Profile: path, Timeout: 5 * time.Millisecond}.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, p.WaitTimeout)

	p, err = Settings{}.ResolveProfile()
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
}
