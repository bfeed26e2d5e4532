package storagenode

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cuemby/sdfs/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePusher records pushed files instead of dialing the network.
type fakePusher struct {
	mu     sync.Mutex
	pushed map[string][]byte
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushed: make(map[string][]byte)}
}

func (p *fakePusher) PushFile(_ context.Context, _ types.NodeID, name string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed[name] = append(append([]byte(nil), p.pushed[name]...), data...)
	return nil
}

// writeMapperScript writes a trivial emit-each-line-as-its-own-key mapper.
func writeMapperScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "mapper.sh")
	script := "#!/bin/sh\nwhile IFS= read -r line; do printf '%s\\t1\\n' \"$line\"; done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// writeArgvCapturingMapperScript writes a mapper that dumps its argv to
// argvFile instead of processing stdin, to verify Run's invocation shape.
func writeArgvCapturingMapperScript(t *testing.T, dir, argvFile string) string {
	t.Helper()
	path := filepath.Join(dir, "argv_mapper.sh")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argvFile + "\ncat >/dev/null\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestMapRunnerInvokesExecutableWithInputAndOutputPrefix(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(store.Path("input.txt"), strings.NewReader("a\n")))

	dir := t.TempDir()
	argvFile := filepath.Join(dir, "argv.txt")
	mapper := writeArgvCapturingMapperScript(t, dir, argvFile)

	runner := NewMapRunner(store, newFakePusher(), 1)
	_, err = runner.Run(context.Background(), mapper, "input.txt", 0, 1, []string{"extra"}, "wc", nil)
	require.NoError(t, err)

	got, err := os.ReadFile(argvFile)
	require.NoError(t, err)
	assert.Equal(t, "input.txt\nwc\nextra\n", string(got))
}

func TestMapRunnerEmitsOneFilePerKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(store.Path("input.txt"), strings.NewReader("alice\nbob\nalice\n")))

	pusher := newFakePusher()
	runner := NewMapRunner(store, pusher, 2)

	mapper := writeMapperScript(t, t.TempDir())
	targets := []types.NodeID{"10.0.0.2_56552_2"}

	keys, err := runner.Run(context.Background(), mapper, "input.txt", 0, 3, nil, "wc", targets)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, keys)

	assert.Contains(t, string(pusher.pushed["wc_alice"]), "1\n1\n")
	assert.Contains(t, string(pusher.pushed["wc_bob"]), "1\n")
}

func TestMapRunnerRespectsLineRange(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(store.Path("input.txt"), strings.NewReader("a\nb\nc\nd\n")))

	runner := NewMapRunner(store, newFakePusher(), 1)
	mapper := writeMapperScript(t, t.TempDir())

	keys, err := runner.Run(context.Background(), mapper, "input.txt", 1, 3, nil, "wc", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, keys)
}
