// Package leaderservice is the client-facing TCP front door a leader
// node serves on port 56553: it decodes the Command envelope a CLI
// session sends, drives pkg/coordinator and pkg/dispatch, and replies
// over the same connection. pkg/storagenode's port 56552 is the
// separate node-to-node/worker protocol this package never handles
// directly; it reaches storage nodes only through the injected
// pkg/client-shaped callbacks coordinator.Put/Get/Del already expect.
package leaderservice
