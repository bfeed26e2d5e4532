package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIndexAddAndFiles(t *testing.T) {
	idx := NewKeyIndex(nil)
	idx.Add("hello", "wc_hello")
	idx.Add("hello", "wc_hello") // duplicate is a no-op
	idx.Add("hello", "wc_hello_2")

	assert.ElementsMatch(t, []string{"wc_hello", "wc_hello_2"}, idx.Files("hello"))
}

func TestKeyIndexKeysWithFilePrefix(t *testing.T) {
	idx := NewKeyIndex(nil)
	idx.Add("hello", "wc_hello")
	idx.Add("world", "wc_world")
	idx.Add("other", "xx_other")

	got := idx.KeysWithFilePrefix("wc_")
	require.Len(t, got, 2)
	assert.Equal(t, "wc_hello", got["hello"])
	assert.Equal(t, "wc_world", got["world"])
	_, ok := got["other"]
	assert.False(t, ok)
}
