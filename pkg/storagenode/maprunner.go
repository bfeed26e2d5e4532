package storagenode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
)

// Pusher is the seam MapRunner and ReduceRunner use to move produced
// bytes to other nodes, implemented by pkg/client over the wire protocol.
type Pusher interface {
	PushFile(ctx context.Context, receiver types.NodeID, name string, data []byte) error
}

// MapRunner executes MAP partitions against the node's local CPU budget,
// bounded by a semaphore that caps concurrent subprocesses; Run blocks its
// caller until the subprocess has finished and its output is pushed.
type MapRunner struct {
	store  *FileStore
	pusher Pusher
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewMapRunner creates a MapRunner allowing maxConcurrency subprocesses
// at once.
func NewMapRunner(store *FileStore, pusher Pusher, maxConcurrency int) *MapRunner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &MapRunner{
		store:  store,
		pusher: pusher,
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
		logger: log.WithComponent("storagenode.maprunner"),
	}
}

// Run executes executable over file's [start, end) line range, piping
// those lines on stdin and expecting "key\tvalue" lines on stdout. Each
// key's accumulated output is staged locally under outputPrefix_key and
// pushed to every target, returning the set of keys emitted.
func (r *MapRunner) Run(ctx context.Context, executable, file string, start, end uint32, args []string, outputPrefix string, targets []types.NodeID) ([]string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	lines, err := r.store.ReadLineRange(r.store.Path(file), start, end)
	if err != nil {
		return nil, fmt.Errorf("storagenode: reading %s[%d:%d]: %w", file, start, end, err)
	}

	cmd := exec.CommandContext(ctx, executable, append([]string{file, outputPrefix}, args...)...)
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n") + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("storagenode: map executable failed: %w (stderr: %s)", err, stderr.String())
	}

	perKey := make(map[string][]byte)
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			continue
		}
		perKey[key] = append(perKey[key], []byte(value+"\n")...)
	}

	keys := make([]string, 0, len(perKey))
	var wg sync.WaitGroup
	for key, data := range perKey {
		keys = append(keys, key)
		outputName := types.FileKey{Prefix: outputPrefix, Key: key}.String()
		outputPath := r.store.MapOutputPath(outputName)
		if err := r.store.AppendLocked(outputPath, data); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("staging map output failed")
			continue
		}

		wg.Add(1)
		go func(outputName string, data []byte) {
			defer wg.Done()
			for _, t := range targets {
				if err := r.pusher.PushFile(ctx, t, outputName, data); err != nil {
					r.logger.Warn().Err(err).Str("target", string(t)).Str("file", outputName).Msg("pushing map output failed")
				}
			}
		}(outputName, data)
	}
	wg.Wait()

	return keys, nil
}
