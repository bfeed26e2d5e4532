package storagenode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/cuemby/sdfs/pkg/log"
)

// DefaultBaseDir is the well-known local storage root every node purges
// on graceful shutdown.
const DefaultBaseDir = "/home/sdfs"

const (
	mapInSubdir  = "mrin"
	mapOutSubdir = "mrout"
)

// FileStore is a node's local, atomically-written file area: plain SDFS
// replicas directly under baseDir, and staged MAP/REDUCE input/output
// under mrin/ and mrout/.
type FileStore struct {
	baseDir string
	logger  zerolog.Logger
}

// NewFileStore creates the base directory tree if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	for _, dir := range []string{baseDir, filepath.Join(baseDir, mapInSubdir), filepath.Join(baseDir, mapOutSubdir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storagenode: creating %s: %w", dir, err)
		}
	}
	return &FileStore{baseDir: baseDir, logger: log.WithComponent("storagenode.files")}, nil
}

// Path returns the absolute on-disk path for a logical SDFS file name.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// MapInputPath and MapOutputPath namespace the staged MAP/REDUCE areas.
func (s *FileStore) MapInputPath(name string) string {
	return filepath.Join(s.baseDir, mapInSubdir, name)
}

func (s *FileStore) MapOutputPath(name string) string {
	return filepath.Join(s.baseDir, mapOutSubdir, name)
}

// WriteAtomic writes r's contents to name by first writing a temp file in
// the same directory, then renaming it into place — so a reader never
// observes a partial write.
func (s *FileStore) WriteAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Read opens path for reading.
func (s *FileStore) Read(path string) (*os.File, error) {
	return os.Open(path)
}

// Size reports path's length in bytes.
func (s *FileStore) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// LineCount counts newline-terminated lines, the unit MAP partitions by.
func (s *FileStore) LineCount(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var count uint32
	buf := make([]byte, 64*1024)
	for {
		n, err := f.Read(buf)
		count += uint32(bytes.Count(buf[:n], []byte{'\n'}))
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return count, nil
}

// ReadLineRange returns the lines in [start, end) of path.
func (s *FileStore) ReadLineRange(path string, start, end uint32) ([]string, error) {
	f, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	var idx uint32
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if idx >= start && idx < end {
			lines = append(lines, scanner.Text())
		}
		idx++
		if idx >= end {
			break
		}
	}
	return lines, scanner.Err()
}

// AppendLocked appends data to path under an advisory exclusive flock, so
// concurrent REDUCE workers writing to the same output file never
// interleave partial lines.
func (s *FileStore) AppendLocked(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("storagenode: flock %s: %w", path, err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	_, err = f.Write(data)
	return err
}

// ListFiles returns the logical names of every SDFS file held locally,
// excluding the staged mrin/mrout work areas, for the CLI `store` command.
func (s *FileStore) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Delete removes path. A missing file is not an error.
func (s *FileStore) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Purge wipes the entire storage root and recreates the directory
// skeleton, run once on graceful shutdown per the spec's cleanup rule.
func (s *FileStore) Purge() error {
	if err := os.RemoveAll(s.baseDir); err != nil {
		return err
	}
	_, err := NewFileStore(s.baseDir)
	return err
}
