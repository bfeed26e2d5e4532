/*
Package storagenode implements the storage-node half of the collaborator
contract every member of the cluster serves on the fixed TCP port: local
file persistence (atomic write-then-rename), and the MAP/REDUCE worker
runners that shell out to the job's executable.

The per-connection TCP handler lives in service.go: one goroutine per
accepted connection, which runs MAP/REDUCE requests through the runners
in maprunner.go and reducerunner.go and waits for them to finish before
replying. Each runner's semaphore caps how many subprocesses run at once
on the node.
*/
package storagenode
