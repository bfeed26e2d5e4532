package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketReplicas = []byte("replicas")
	bucketKeyIndex = []byte("keyindex")
)

// SnapshotStore persists the leader's ReplicaTable and KeyIndex to a
// local BoltDB file so the next elected leader can warm-start instead of
// rebuilding state purely from re-replication.
type SnapshotStore struct {
	db *bolt.DB
}

// Open creates or opens the snapshot database under dataDir.
func Open(dataDir string) (*SnapshotStore, error) {
	dbPath := filepath.Join(dataDir, "leaderstate.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leader state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketReplicas, bucketKeyIndex} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db}, nil
}

// Close closes the database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// PutReplicaSet persists the replica set for file, overwriting any prior
// value.
func (s *SnapshotStore) PutReplicaSet(file string, replicas []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplicas)
		data, err := json.Marshal(replicas)
		if err != nil {
			return err
		}
		return b.Put([]byte(file), data)
	})
}

// DeleteReplicaSet removes the persisted entry for file.
func (s *SnapshotStore) DeleteReplicaSet(file string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReplicas).Delete([]byte(file))
	})
}

// LoadReplicaTable returns every persisted file -> replica set mapping.
func (s *SnapshotStore) LoadReplicaTable() (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReplicas)
		return b.ForEach(func(k, v []byte) error {
			var replicas []string
			if err := json.Unmarshal(v, &replicas); err != nil {
				return err
			}
			out[string(k)] = replicas
			return nil
		})
	})
	return out, err
}

// PutKeyFiles persists the set of logical files holding a key's
// partitioned output.
func (s *SnapshotStore) PutKeyFiles(key string, files []string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeyIndex)
		data, err := json.Marshal(files)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// LoadKeyIndex returns every persisted key -> logical-files mapping.
func (s *SnapshotStore) LoadKeyIndex() (map[string][]string, error) {
	out := make(map[string][]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeyIndex)
		return b.ForEach(func(k, v []byte) error {
			var files []string
			if err := json.Unmarshal(v, &files); err != nil {
				return err
			}
			out[string(k)] = files
			return nil
		})
	})
	return out, err
}
