// Package harness runs scripted conformance scenarios against a simulated
// device.
//
// A scenario declares semaphores, fences and command buffers, drives them
// through a sequence of device calls, and checks each call's outcome along
// with the final device state and trace.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	profile: ../profiles/two_family.cue   # optional, relative to this file
//	max_timeline_diff: 100                # optional override
//	objects:
//	  - name: S
//	    type: binary_semaphore
//	  - name: T
//	    type: timeline_semaphore
//	    initial: 0
//	steps:
//	  - op: submit
//	    family: 0
//	    index: 0
//	    submits:
//	      - waits: [{semaphore: T, value: 1}]
//	        signals: [{semaphore: S}]
//	  - op: submit
//	    submits:
//	      - waits: [{semaphore: S}]
//	    expect:
//	      case: rejected
//	      codes: ["VUID-vkQueueSubmit-pWaitSemaphores-00068"]
//	assertions:
//	  - type: violations
//	    codes: ["VUID-vkQueueSubmit-pWaitSemaphores-00068"]
//
// A step without an expect clause must be accepted; host_wait and
// fence_wait steps must be satisfied.
//
// # Assertion Types
//
//   - violations: the exact list of reported codes
//   - payload: a timeline semaphore's current value
//   - fence_state: unsignaled, inflight or retired
//   - scope: internal, external-temporary or external-permanent
//   - in_use: whether pending work references a primitive
//   - outstanding_releases: ownership releases not yet acquired
//   - trace_contains, trace_order, trace_count: trace checks by event kind
//
// # Deterministic Testing
//
// Every run gets a fresh device with:
//   - counting batch ids (batch-1, batch-2, ...)
//   - a deterministic logical clock (testutil.DeterministicClock)
//   - queue retirement only on host request, with queues drained in handle
//     order by device_wait_idle
//
// The same scenario therefore always produces the same trace, which
// RunWithGolden compares against testdata/golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/binary_two_queues.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
