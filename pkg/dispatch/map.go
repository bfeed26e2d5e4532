package dispatch

import (
	"context"
	"errors"
	"fmt"
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

// outputTargets is the fixed replica count MAP installs for every
// intermediate key file it produces, matching PUT's steady-state factor.
const outputTargets = 4

// ErrNoInput is returned when no file in the ReplicaTable matches the
// job's input prefix.
var ErrNoInput = errors.New("dispatch: no input file matches prefix")

// ErrNoWorkers is returned when no live node accepted the job executable.
var ErrNoWorkers = errors.New("dispatch: no worker accepted the executable")

// MapResult is what a completed MAP job reports back to the client.
type MapResult struct {
	InputFile string
	Keys      []string
}

// MapDispatcher drives one leader's MAP job submissions.
type MapDispatcher struct {
	view      *membership.View
	replicas  *coordinator.ReplicaTable
	keyIndex  *KeyIndex
	client    WorkerClient
	logger    zerolog.Logger
}

// NewMapDispatcher creates a MapDispatcher.
func NewMapDispatcher(view *membership.View, replicas *coordinator.ReplicaTable, keyIndex *KeyIndex, client WorkerClient) *MapDispatcher {
	return &MapDispatcher{
		view:     view,
		replicas: replicas,
		keyIndex: keyIndex,
		client:   client,
		logger:   log.WithComponent("dispatch.map"),
	}
}

type blockRange struct {
	start, end uint32
}

// Dispatch runs job to completion, following the
// dispatching -> collecting -> (dispatching | done | failed) state
// machine: it selects the job's single input file (the first
// ReplicaTable entry matching InputPrefix — an intentional take(1), see
// the design notes' open question on ambiguous multi-file MAP inputs),
// stages the executable and output targets, partitions the input by
// line range, and retries failed partitions against surviving workers
// until the job is fully collected or no workers remain.
func (d *MapDispatcher) Dispatch(ctx context.Context, job types.JobDescriptor) (MapResult, error) {
	timer := metrics.NewTimer()
	result, err := d.dispatch(ctx, job)
	timer.ObserveDuration(metrics.MapDuration)
	if err != nil {
		metrics.JobsFailedTotal.WithLabelValues("map").Inc()
	}
	return result, err
}

func (d *MapDispatcher) dispatch(ctx context.Context, job types.JobDescriptor) (MapResult, error) {
	candidates := d.replicas.PrefixFiles(job.InputPrefix)
	if len(candidates) == 0 {
		return MapResult{}, ErrNoInput
	}
	input := candidates[0]

	holders, ok := d.replicas.Get(input)
	if !ok || len(holders) == 0 {
		return MapResult{}, ErrNoInput
	}

	targets := nodeIDs(d.view.RandomLive(outputTargets, nil))
	if len(targets) < outputTargets {
		return MapResult{}, coordinator.ErrInsufficientCapacity
	}

	workers := d.stageWorkers(ctx, job.NumWorkers, job.SubmitterAddr, job.Executable)
	if len(workers) == 0 {
		return MapResult{}, ErrNoWorkers
	}

	lineCount, err := d.client.FileSize(ctx, holders, input)
	if err != nil {
		return MapResult{}, fmt.Errorf("dispatch: querying input size: %w", err)
	}
	if lineCount == 0 {
		return MapResult{}, fmt.Errorf("dispatch: input file %q is empty", input)
	}

	numBlocks := len(workers)
	if int(lineCount) < numBlocks {
		numBlocks = int(lineCount)
	}
	pending := partitionLines(lineCount, numBlocks)

	keys := make(map[string]bool)
	var keysMu sync.Mutex

	for len(pending) > 0 && len(workers) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		sem := semaphore.NewWeighted(int64(len(workers)))

		var mu sync.Mutex
		var failed []blockRange
		var lostWorkers []types.NodeID

		for i, blk := range pending {
			worker := workers[i%len(workers)]
			blk := blk
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)

				res, err := d.client.DispatchMap(gctx, worker, MapWorkItem{
					Executable:    job.Executable,
					OutputPrefix:  job.OutputPrefix,
					File:          input,
					ReplicaSet:    holders,
					TargetServers: targets,
					StartLine:     blk.start,
					EndLine:       blk.end,
					Args:          job.Args,
				})
				if err != nil {
					mu.Lock()
					failed = append(failed, blk)
					lostWorkers = append(lostWorkers, worker)
					mu.Unlock()
					d.logger.Warn().Err(err).Str("worker", string(worker)).Msg("map partition failed")
					return nil
				}

				keysMu.Lock()
				for _, k := range res.Keys {
					keys[k] = true
				}
				keysMu.Unlock()
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
		return MapResult{}, fmt.Errorf("dispatch: %d partitions could not complete: %w", len(pending), ErrNoWorkers)
	}

	sortedKeys := make([]string, 0, len(keys))
	for k := range keys {
		sortedKeys = append(sortedKeys, k)
	}
	for _, k := range sortedKeys {
		fileName := types.FileKey{Prefix: job.OutputPrefix, Key: k}.String()
		d.replicas.Set(fileName, targets)
		d.keyIndex.Add(k, fileName)
	}

	return MapResult{InputFile: input, Keys: sortedKeys}, nil
}

// stageWorkers picks up to n random live nodes and pushes the job
// executable to each, dropping any that fail to accept it.
func (d *MapDispatcher) stageWorkers(ctx context.Context, n int, submitterAddr, executable string) []types.NodeID {
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

// partitionLines splits [0, total) into n contiguous, roughly equal
// line ranges.
func partitionLines(total uint32, n int) []blockRange {
	if n <= 0 {
		return nil
	}
	blocks := make([]blockRange, 0, n)
	base := total / uint32(n)
	rem := total % uint32(n)
	var start uint32
	for i := 0; i < n; i++ {
		size := base
		if uint32(i) < rem {
			size++
		}
		if size == 0 {
			continue
		}
		blocks = append(blocks, blockRange{start: start, end: start + size})
		start += size
	}
	return blocks
}

func removeWorkers(workers, lost []types.NodeID) []types.NodeID {
	if len(lost) == 0 {
		return workers
	}
	dead := make(map[types.NodeID]bool, len(lost))
	for _, w := range lost {
		dead[w] = true
	}
	out := workers[:0:0]
	for _, w := range workers {
		if !dead[w] {
			out = append(out, w)
		}
	}
	return out
}

func nodeIDs(nodes []types.Node) []types.NodeID {
	out := make([]types.NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
