// Package trace records what the device did: accepted submissions, their
// retirement, rejections, and host-side operations.
//
// Events are stamped with a logical sequence number from a Clock, never wall
// time, so that two runs of the same scenario produce byte-identical traces.
// Event.Canonical renders an event as canonical JSON (sorted keys, NFC
// strings, no HTML escaping) for golden files and durable storage.
package trace
