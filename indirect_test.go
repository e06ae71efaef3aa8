package carver

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildIndirectBlock(entries []uint32, blocksize int) []byte {
	block := make([]byte, blocksize)

	for i, v := range entries {
		binary.LittleEndian.PutUint32(block[i*4:], v)
	}

	return block
}

func TestIsIndirectBlock_detectsAscendingPointers(t *testing.T) {
	entries := make([]uint32, 16)
	for i := range entries {
		entries[i] = uint32(1000 + i)
	}

	block := buildIndirectBlock(entries, 1024)

	assert.True(t, isIndirectBlock(block))
}

func TestIsIndirectBlock_rejectsAllZero(t *testing.T) {
	block := make([]byte, 1024)

	assert.False(t, isIndirectBlock(block))
}

func TestIsIndirectBlock_rejectsRandomData(t *testing.T) {
	entries := []uint32{500, 2, 999, 1, 777, 3, 111, 222, 1, 2, 3, 4, 9, 8, 7, 6}
	block := buildIndirectBlock(entries, 1024)

	assert.False(t, isIndirectBlock(block))
}

func TestIsIndirectBlock_rejectsZeroLeadingPointer(t *testing.T) {
	entries := make([]uint32, 16)
	for i := 1; i < len(entries); i++ {
		entries[i] = uint32(1000 + i)
	}

	block := buildIndirectBlock(entries, 1024)

	assert.False(t, isIndirectBlock(block))
}
