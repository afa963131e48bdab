// Package source provides the engine's input adapters. Each implements
// engine.Input: Read blocks until a sample is ready and returns io.EOF once
// the source is exhausted.
//
//   - Channel: samples pushed programmatically (used by HTTP ingest)
//   - Prometheus: polls a /metrics endpoint and encodes one metric family
//   - HTTP: POST /api/v1/samples, validated against a JSON schema
//
// Scalar readings become phases through a named Encoder (identity,
// unit_angle, audio, pressure, spike, vibration). Encoders are pure so a
// replayed reading always yields the same phase.
package source
