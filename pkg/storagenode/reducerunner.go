package storagenode

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/types"
)

// Fetcher is the seam ReduceRunner uses to pull a key's staged MAP
// output from whichever server holds it, implemented by pkg/client.
type Fetcher interface {
	FetchFile(ctx context.Context, holder types.NodeID, name string) ([]byte, error)
}

// ReduceRunner executes REDUCE chunks against the node's local CPU
// budget, mirroring MapRunner's concurrency bound.
type ReduceRunner struct {
	store  *FileStore
	fetch  Fetcher
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewReduceRunner creates a ReduceRunner allowing maxConcurrency
// subprocesses at once.
func NewReduceRunner(store *FileStore, fetch Fetcher, maxConcurrency int) *ReduceRunner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ReduceRunner{
		store:  store,
		fetch:  fetch,
		sem:    semaphore.NewWeighted(int64(maxConcurrency)),
		logger: log.WithComponent("storagenode.reducerunner"),
	}
}

// Run folds every key in keyServerMap through executable and appends the
// result to outputFile under an exclusive lock, since multiple REDUCE
// workers across the cluster append to the same shared output file.
// inputPrefix reconstructs each key's staged MAP output file name
// (`<inputPrefix>_<key>`, the same convention MapRunner writes under).
func (r *ReduceRunner) Run(ctx context.Context, executable, inputPrefix string, keyServerMap map[string][]types.NodeID, outputFile string) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	var input bytes.Buffer
	for key, holders := range keyServerMap {
		fileName := types.FileKey{Prefix: inputPrefix, Key: key}.String()
		data, err := r.fetchFromAny(ctx, fileName, holders)
		if err != nil {
			return fmt.Errorf("storagenode: fetching key %q: %w", key, err)
		}
		input.WriteString(key)
		input.WriteByte('\t')
		input.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			input.WriteByte('\n')
		}
	}

	cmd := exec.CommandContext(ctx, executable, inputPrefix, outputFile)
	cmd.Stdin = &input
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("storagenode: reduce executable failed: %w (stderr: %s)", err, stderr.String())
	}

	return r.store.AppendLocked(r.store.Path(outputFile), stdout.Bytes())
}

func (r *ReduceRunner) fetchFromAny(ctx context.Context, fileName string, holders []types.NodeID) ([]byte, error) {
	var lastErr error
	for _, h := range holders {
		data, err := r.fetch.FetchFile(ctx, h, fileName)
		if err == nil {
			return data, nil
		}
		lastErr = err
		r.logger.Warn().Err(err).Str("holder", string(h)).Str("file", fileName).Msg("fetch attempt failed, trying next holder")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("storagenode: no holders for file %q", fileName)
	}
	return nil, lastErr
}
