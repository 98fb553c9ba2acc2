package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to a scenario file in a fresh temp dir.
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
max_timeline_diff: 10
objects:
  - name: S
    type: binary_semaphore
  - name: T
    type: timeline_semaphore
    initial: 3
steps:
  - op: submit
    family: 0
    submits:
      - signals: [{semaphore: S}, {semaphore: T, value: 4}]
  - op: host_wait
    semaphores: [T]
    values: [4]
assertions:
  - type: payload
    object: T
    value: 4
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	require.NotNil(t, scenario.MaxTimelineDiff)
	assert.Equal(t, uint64(10), *scenario.MaxTimelineDiff)
	assert.Len(t, scenario.Objects, 2)
	assert.Equal(t, uint64(3), scenario.Objects[1].Initial)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, OpSubmit, scenario.Steps[0].Op)
	assert.Equal(t, SemaphoreValue{Semaphore: "T", Value: 4}, scenario.Steps[0].Submits[0].Signals[1])
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, filepath.Dir(path), scenario.dir)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	files, err := ExpandScenarios([]string{"testdata/scenarios"})
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		_, err := LoadScenario(f)
		assert.NoError(t, err, f)
	}
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{op: device_wait_idle}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{op: device_wait_idle}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown field",
			yaml:    "name: n\ndescription: d\nstep: []\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "unknown op",
			yaml:    "name: n\ndescription: d\nsteps: [{op: teleport}]\n",
			wantErr: `unknown op "teleport"`,
		},
		{
			name:    "unknown object type",
			yaml:    "name: n\ndescription: d\nobjects: [{name: X, type: event}]\nsteps: [{op: device_wait_idle}]\n",
			wantErr: `unknown type "event"`,
		},
		{
			name:    "duplicate object",
			yaml:    "name: n\ndescription: d\nobjects: [{name: X, type: fence}, {name: X, type: fence}]\nsteps: [{op: device_wait_idle}]\n",
			wantErr: `duplicate name "X"`,
		},
		{
			name:    "undeclared semaphore",
			yaml:    "name: n\ndescription: d\nsteps: [{op: host_signal, semaphore: T, value: 1}]\n",
			wantErr: `undeclared object "T"`,
		},
		{
			name:    "wrong object type",
			yaml:    "name: n\ndescription: d\nobjects: [{name: F, type: fence}]\nsteps: [{op: host_signal, semaphore: F, value: 1}]\n",
			wantErr: `"F" is a fence`,
		},
		{
			name:    "host wait length mismatch",
			yaml:    "name: n\ndescription: d\nobjects: [{name: T, type: timeline_semaphore}]\nsteps: [{op: host_wait, semaphores: [T], values: [1, 2]}]\n",
			wantErr: "matching semaphores and values",
		},
		{
			name:    "unknown handle type",
			yaml:    "name: n\ndescription: d\nobjects: [{name: F, type: fence}]\nsteps: [{op: import, object: F, handle_type: carrier-pigeon}]\n",
			wantErr: "unknown handle type",
		},
		{
			name:    "barrier without body",
			yaml:    "name: n\ndescription: d\nobjects: [{name: C, type: command_buffer}]\nsteps: [{op: barrier, command_buffer: C}]\n",
			wantErr: "barrier is required",
		},
		{
			name:    "codes on accepted",
			yaml:    "name: n\ndescription: d\nsteps: [{op: device_wait_idle, expect: {case: accepted, codes: [X]}}]\n",
			wantErr: "codes only apply",
		},
		{
			name:    "unknown case",
			yaml:    "name: n\ndescription: d\nsteps: [{op: device_wait_idle, expect: {case: maybe}}]\n",
			wantErr: `unknown case "maybe"`,
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{op: device_wait_idle}]\nassertions: [{type: vibes}]\n",
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name:    "payload without value",
			yaml:    "name: n\ndescription: d\nobjects: [{name: T, type: timeline_semaphore}]\nsteps: [{op: device_wait_idle}]\nassertions: [{type: payload, object: T}]\n",
			wantErr: "value is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_WaitAllDefault(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: n
description: d
objects: [{name: F, type: fence, signaled: true}]
steps:
  - op: fence_wait
    fences: [F]
  - op: fence_wait
    fences: [F]
    wait_all: false
`))
	require.NoError(t, err)
	assert.Nil(t, s.Steps[0].WaitAll)
	require.NotNil(t, s.Steps[1].WaitAll)
	assert.False(t, *s.Steps[1].WaitAll)
	assert.True(t, s.Objects[0].Signaled)
}
