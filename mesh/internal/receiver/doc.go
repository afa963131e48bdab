// Package receiver implements the gRPC MeshService. Each pushed node
// snapshot is stored, checked against the alert rules, and answered with
// the merged mesh state.
package receiver
