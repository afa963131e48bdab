// Package config loads the meshd configuration from the `mesh:` section of a
// YAML file and watches it for hot-reloadable changes.
package config
