package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/sdfs/pkg/coordinator"
	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/membership"
	"github.com/cuemby/sdfs/pkg/metrics"
	"github.com/cuemby/sdfs/pkg/types"
)

// reduceExtraCopies is the number of nodes, beyond the target worker
// itself, that REDUCE's output file is replicated to.
const reduceExtraCopies = 3

// ReduceResult is what a completed REDUCE job reports back to the client.
type ReduceResult struct {
	OutputFile string
	KeysFolded int
}

// ReduceDispatcher drives one leader's REDUCE job submissions.
type ReduceDispatcher struct {
	view      *membership.View
	replicas  *coordinator.ReplicaTable
	keyIndex  *KeyIndex
	client    WorkerClient
	logger    zerolog.Logger
}

// NewReduceDispatcher creates a ReduceDispatcher.
func NewReduceDispatcher(view *membership.View, replicas *coordinator.ReplicaTable, keyIndex *KeyIndex, client WorkerClient) *ReduceDispatcher {
	return &ReduceDispatcher{
		view:     view,
		replicas: replicas,
		keyIndex: keyIndex,
		client:   client,
		logger:   log.WithComponent("dispatch.reduce"),
	}
}

// Dispatch runs job through the same
// dispatching -> collecting -> (dispatching | done | failed) state
// machine as MAP, but partitioned over intermediate keys rather than
// line ranges: it discovers every key the index recorded under
// InputPrefix, partitions them evenly across staged workers, retries
// failed chunks against survivors, and finally replicates the output
// file up to the steady-state factor before returning.
func (d *ReduceDispatcher) Dispatch(ctx context.Context, job types.JobDescriptor) (ReduceResult, error) {
	timer := metrics.NewTimer()
	result, err := d.dispatch(ctx, job)
	timer.ObserveDuration(metrics.ReduceDuration)
	if err != nil {
		metrics.JobsFailedTotal.WithLabelValues("reduce").Inc()
	}
	return result, err
}

func (d *ReduceDispatcher) dispatch(ctx context.Context, job types.JobDescriptor) (ReduceResult, error) {
	keyFiles := d.keyIndex.KeysWithFilePrefix(job.InputPrefixForReduce)
	if len(keyFiles) == 0 {
		return ReduceResult{}, ErrNoInput
	}

	keys := make([]string, 0, len(keyFiles))
	for k := range keyFiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	targetCandidates := nodeIDs(d.view.RandomLive(1, nil))
	if len(targetCandidates) == 0 {
		return ReduceResult{}, coordinator.ErrInsufficientCapacity
	}
	target := targetCandidates[0]

	workers := d.stageWorkers(ctx, job.NumWorkers, job.SubmitterAddr, job.Executable)
	if len(workers) == 0 {
		return ReduceResult{}, ErrNoWorkers
	}

	numChunks := len(workers)
	if len(keys) < numChunks {
		numChunks = len(keys)
	}
	pending := partitionKeys(keys, numChunks)

	for len(pending) > 0 && len(workers) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(len(workers)))

		var mu sync.Mutex
		var failed [][]string
		var lostWorkers []types.NodeID

		for i, chunk := range pending {
			worker := workers[i%len(workers)]
			chunk := chunk
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)

				keyServerMap := make(map[string][]types.NodeID, len(chunk))
				for _, k := range chunk {
					if replicas, ok := d.replicas.Get(keyFiles[k]); ok {
						keyServerMap[k] = replicas
					}
				}

				err := d.client.DispatchReduce(gctx, worker, ReduceWorkItem{
					Executable:   job.Executable,
					InputPrefix:  job.InputPrefixForReduce,
					KeyServerMap: keyServerMap,
					TargetServer: target,
					OutputFile:   job.OutputFile,
				})
				if err != nil {
					mu.Lock()
					failed = append(failed, chunk)
					lostWorkers = append(lostWorkers, worker)
					mu.Unlock()
					d.logger.Warn().Err(err).Str("worker", string(worker)).Msg("reduce chunk failed")
				}
				return nil
			})
		}
		_ = g.Wait()

		workers = removeWorkers(workers, lostWorkers)
		pending = failed
		if len(pending) > 0 {
			metrics.BlocksRetriedTotal.Add(float64(len(pending)))
		}
	}

	if len(pending) > 0 {
		return ReduceResult{}, fmt.Errorf("dispatch: %d key chunks could not complete: %w", len(pending), ErrNoWorkers)
	}

	receivers := nodeIDs(d.view.RandomLive(reduceExtraCopies, map[types.NodeID]bool{target: true}))
	installed := append([]types.NodeID{target}, receivers...)
	for _, r := range receivers {
		if err := d.client.ReplicateFile(ctx, target, r, job.OutputFile); err != nil {
			d.logger.Warn().Err(err).Str("receiver", string(r)).Msg("output replication failed")
		}
	}
	d.replicas.Set(job.OutputFile, installed)

	if job.DeleteAfter {
		d.deleteIntermediates(ctx, keyFiles)
	}

	return ReduceResult{OutputFile: job.OutputFile, KeysFolded: len(keys)}, nil
}

func (d *ReduceDispatcher) deleteIntermediates(ctx context.Context, keyFiles map[string]string) {
	seen := make(map[string]bool)
	for _, file := range keyFiles {
		if seen[file] {
			continue
		}
		seen[file] = true
		holders, ok := d.replicas.Get(file)
		if !ok {
			continue
		}
		if err := d.client.DeleteFile(ctx, holders, file); err != nil {
			d.logger.Warn().Err(err).Str("file", file).Msg("intermediate cleanup failed")
			continue
		}
		d.replicas.Delete(file)
	}
}

func (d *ReduceDispatcher) stageWorkers(ctx context.Context, n int, submitterAddr, executable string) []types.NodeID {
	candidates := nodeIDs(d.view.RandomLive(n, nil))
	staged := make([]types.NodeID, 0, len(candidates))
	for _, w := range candidates {
		if err := d.client.UploadExecutable(ctx, w, submitterAddr, executable); err != nil {
			d.logger.Warn().Err(err).Str("worker", string(w)).Msg("executable upload failed")
			continue
		}
		staged = append(staged, w)
	}
	return staged
}

// partitionKeys splits keys into n roughly equal contiguous chunks.
func partitionKeys(keys []string, n int) [][]string {
	if n <= 0 || len(keys) == 0 {
		return nil
	}
	chunks := make([][]string, 0, n)
	base := len(keys) / n
	rem := len(keys) % n
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		if size == 0 {
			continue
		}
		chunks = append(chunks, keys[idx:idx+size])
		idx += size
	}
	return chunks
}
