package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_Valid(t *testing.T) {
	out, err := execute(t, "validate", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ ../harness/testdata/scenarios/present_acquire.yaml")
	assert.NotContains(t, out, "✗")
}

func TestValidateCommand_Invalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.yaml", failingScenario)
	writeFile(t, dir, "typo.yaml", `
name: typo
description: "Misspelled steps key"
objects: []
stepz: []
`)
	writeFile(t, dir, "missing_profile.yaml", `
name: missing_profile
description: "Names a profile file that does not exist"
profile: nowhere.cue
objects: [{name: S, type: binary_semaphore}]
steps:
  - op: submit
    submits: [{signals: [{semaphore: S}]}]
`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 of 3 scenario files invalid")

	assert.Contains(t, out, "ok.yaml")
	assert.Contains(t, out, "✗ "+dir+"/typo.yaml")
	assert.Contains(t, out, "profile:")
}

func TestValidateCommand_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.yaml", "name: [\n")

	out, err := execute(t, "validate", dir, "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string         `json:"code"`
			Details ValidateResult `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeLoad, resp.Error.Code)
	assert.Contains(t, resp.Error.Details.Invalid, bad)
	assert.Empty(t, resp.Error.Details.Valid)
}

func TestValidateCommand_NonExistentPath(t *testing.T) {
	_, err := execute(t, "validate", "/nonexistent.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
