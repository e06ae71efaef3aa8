package carver

import (
	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// indirectBlockSampleCount is how many leading pointers we inspect. A full
// ext2/ext3 indirect block holds blocksize/4 entries; checking all of them
// is unnecessary since the heuristic only needs enough signal to decide
// ascending-and-clustered (§4.H).
const indirectBlockSampleCount = 16

// isIndirectBlock implements the second-extended-family indirect-block
// heuristic (§4.H): an indirect block is mostly a list of ascending,
// little-endian uint32 block numbers. False positives just cost a lost
// block in the carved file; false negatives pollute it with filesystem
// metadata, so the test is deliberately permissive.
func isIndirectBlock(block []byte) bool {
	n := indirectBlockSampleCount
	if avail := len(block) / 4; avail < n {
		n = avail
	}

	if n < 4 {
		return false
	}

	raw := make([]uint32, n)

	err := restruct.Unpack(block[:n*4], restruct.LittleEndian, &raw)
	if err != nil {
		log.Wrap(err)
		return false
	}

	if raw[0] == 0 {
		return false
	}

	ascending := 0
	nonZero := 0

	for i := 1; i < n; i++ {
		if raw[i] == 0 {
			continue
		}

		nonZero++

		if raw[i] > raw[i-1] {
			ascending++
		}
	}

	if nonZero == 0 {
		return false
	}

	// "Mostly contiguous": at least three quarters of the non-zero,
	// non-leading entries continue the ascending run.
	return ascending*4 >= nonZero*3
}
