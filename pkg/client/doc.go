// Package client is the storage-node TCP transport: it dials
// pkg/storagenode.ServicePort, encodes pkg/wire Command records, and
// adapts the round trip to the small interfaces pkg/coordinator,
// pkg/dispatch and pkg/storagenode inject (Replicator, WorkerClient,
// Pusher, Fetcher) so none of those packages import net directly.
package client
