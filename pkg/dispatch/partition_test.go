package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionLinesCoversWholeRangeContiguously(t *testing.T) {
	blocks := partitionLines(10, 3)
	var total uint32
	var prevEnd uint32
	for _, b := range blocks {
		assert.Equal(t, prevEnd, b.start)
		assert.Greater(t, b.end, b.start)
		total += b.end - b.start
		prevEnd = b.end
	}
	assert.Equal(t, uint32(10), total)
}

func TestPartitionLinesNeverExceedsBlockCount(t *testing.T) {
	blocks := partitionLines(2, 5)
	assert.LessOrEqual(t, len(blocks), 5)
	var total uint32
	for _, b := range blocks {
		total += b.end - b.start
	}
	assert.Equal(t, uint32(2), total)
}

func TestPartitionKeysCoversAllKeys(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e"}
	chunks := partitionKeys(keys, 2)

	var flat []string
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, keys, flat)
}
