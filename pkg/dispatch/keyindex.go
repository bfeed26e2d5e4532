package dispatch

import (
	"strings"
	"sync"

	"github.com/cuemby/sdfs/pkg/log"
	"github.com/cuemby/sdfs/pkg/storage"
	"github.com/rs/zerolog"
)

// KeyIndex maps an intermediate map-key string to the set of logical
// files holding its partitioned output (`<jobPrefix>_<key>`), letting
// REDUCE locate MAP's outputs by key rather than by file name.
type KeyIndex struct {
	mu    sync.RWMutex
	files map[string][]string

	snapshot *storage.SnapshotStore
	logger   zerolog.Logger
}

// NewKeyIndex creates an empty index. snapshot may be nil.
func NewKeyIndex(snapshot *storage.SnapshotStore) *KeyIndex {
	return &KeyIndex{
		files:    make(map[string][]string),
		snapshot: snapshot,
		logger:   log.WithComponent("keyindex"),
	}
}

// LoadSnapshot seeds the index from the durable snapshot, if any.
func (k *KeyIndex) LoadSnapshot() error {
	if k.snapshot == nil {
		return nil
	}
	persisted, err := k.snapshot.LoadKeyIndex()
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, files := range persisted {
		k.files[key] = files
	}
	return nil
}

// Add records that key's partitioned output lives in file, appending if
// the key is already known.
func (k *KeyIndex) Add(key, file string) {
	k.mu.Lock()
	existing := k.files[key]
	for _, f := range existing {
		if f == file {
			k.mu.Unlock()
			return
		}
	}
	updated := append(append([]string(nil), existing...), file)
	k.files[key] = updated
	k.mu.Unlock()

	if k.snapshot != nil {
		if err := k.snapshot.PutKeyFiles(key, updated); err != nil {
			k.logger.Warn().Err(err).Str("key", key).Msg("failed to persist key index entry")
		}
	}
}

// Files returns the logical files recorded for key.
func (k *KeyIndex) Files(key string) []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.files[key]))
	copy(out, k.files[key])
	return out
}

// KeysWithFilePrefix returns every key with at least one recorded file
// beginning with prefix, along with one representative file per key (the
// first matching one), for REDUCE input discovery.
func (k *KeyIndex) KeysWithFilePrefix(prefix string) map[string]string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make(map[string]string)
	for key, files := range k.files {
		for _, f := range files {
			if strings.HasPrefix(f, prefix) {
				out[key] = f
				break
			}
		}
	}
	return out
}
