// Package alerts evaluates threshold rules against node snapshots and the
// merged mesh state, and delivers fire/resolve notifications to Slack, Teams
// or generic HTTP webhooks.
//
// Rules on mesh_* fields are evaluated against the merged state under the
// source id "mesh"; all other rules run per node.
package alerts
