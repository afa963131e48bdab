// Package config loads and watches the node configuration file (node.yaml).
//
// Top-level types:
//   - Config{Node}: full config tree parsed from YAML
//   - EngineConfig: every engine tunable (pathway windows, thresholds,
//     witness beta, memory half-life / max age, sync interval, desync and
//     queue bounds); Validate reports *types.ConfigError
//   - InputConfig: prometheus or http input adapters with a phase encoder
//   - OutputsConfig, StorageConfig, MeshConfig: output adapters, SQLite
//     persistence and snapshot shipping to meshd
//
// Load(path) reads the YAML file, applies defaults, then the named engine
// preset (assistant | robot | vehicle | science), then the explicit values,
// and validates the result.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. Only the log level is applied live;
// engine parameters take effect on restart.
package config
