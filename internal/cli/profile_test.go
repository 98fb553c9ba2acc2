package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readGolden(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("../harness/testdata/golden", name+".golden"))
	require.NoError(t, err)
	return string(data)
}

func TestProfileCommand_Default(t *testing.T) {
	out, err := execute(t, "profile")
	require.NoError(t, err)
	assert.Contains(t, out, "name:              default")
	assert.Contains(t, out, "max timeline diff: 2147483647")
	assert.Contains(t, out, "wait timeout:      10s")
	assert.Contains(t, out, "family 0: 1 queue(s) [graphics compute transfer]")
}

func TestProfileCommand_FileAndTimeoutJSON(t *testing.T) {
	out, err := execute(t, "profile",
		"--profile", "../harness/testdata/profiles/two_family.cue",
		"--timeout", "500ms",
		"--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   ProfileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "500ms", resp.Data.WaitTimeout)
	require.Len(t, resp.Data.QueueFamilies, 2)
	assert.Equal(t, uint32(2), resp.Data.QueueFamilies[0].Count)
}

func TestProfileCommand_Missing(t *testing.T) {
	_, err := execute(t, "profile", "--profile", "/nonexistent.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
