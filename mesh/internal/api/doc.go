// Package api serves the mesh aggregator's read-only JSON API under /api/v1.
package api
