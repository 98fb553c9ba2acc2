package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

const failingScenario = `
name: failing
description: "Waits on a semaphore nothing signals"
objects: [{name: S, type: binary_semaphore}]
steps:
  - op: submit
    submits: [{waits: [{semaphore: S}]}]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestRunCommand_NonExistentPath(t *testing.T) {
	_, err := execute(t, "run", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRunCommand_AllPass(t *testing.T) {
	out, err := execute(t, "run", scenariosDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ binary_two_queues")
	assert.Contains(t, out, "✓ fence_lifecycle")
	assert.Contains(t, out, "0 failed")
	assert.NotContains(t, out, "✗")
}

func TestRunCommand_JSON(t *testing.T) {
	out, err := execute(t, "run", scenariosDir, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.Zero(t, resp.Data.Failed)

	for _, sr := range resp.Data.Scenarios {
		if sr.Name == "binary_two_queues" {
			assert.Equal(t, []string{"VUID-vkQueueSubmit-pWaitSemaphores-00068"}, sr.Codes)
			assert.Empty(t, sr.RunID, "no database configured")
		}
	}
}

func TestRunCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "failing.yaml", failingScenario)
	writeFile(t, dir, "broken.yaml", "name: [\n")

	out, err := execute(t, "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 of 2 scenarios failed")

	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "expected accepted, got rejected")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRunCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestRunCommand_BadProfile(t *testing.T) {
	_, err := execute(t, "run", scenariosDir, "--profile", "/nonexistent/profile.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load profile")
}

func TestRunCommand_ProfileAppliesToScenariosWithoutOne(t *testing.T) {
	dir := t.TempDir()
	profile := writeFile(t, dir, "tight.cue", `
name: "tight"
maxTimelineSemaphoreValueDifference: 10
`)
	scenario := writeFile(t, dir, "diff.yaml", `
name: diff
description: "A signal beyond the configured difference limit"
objects: [{name: T, type: timeline_semaphore}]
steps:
  - op: host_signal
    semaphore: T
    value: 50
`)

	_, err := execute(t, "run", scenario)
	require.NoError(t, err, "default profile allows the jump")

	out, err := execute(t, "run", scenario, "--profile", profile)
	require.Error(t, err)
	assert.Contains(t, out, "expected accepted, got rejected")
}

func TestRunCommand_DirectOptions(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{filepath.Join(scenariosDir, "fence_lifecycle.yaml")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ fence_lifecycle")
	assert.Contains(t, buf.String(), "1 passed, 0 failed, 1 total")
}
