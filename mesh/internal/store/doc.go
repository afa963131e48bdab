// Package store is meshd's node registry: the newest snapshot per node,
// expired after a TTL without updates, and the coherence-weighted merge of
// the live set.
package store
