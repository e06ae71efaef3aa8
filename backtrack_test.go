package carver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBacktrackState_onForwardProgress_resetsCounter(t *testing.T) {
	bs := backtrackState{offsetBeforeBack: 1024, back: 3}

	bs.onForwardProgress(512)
	assert.Equal(t, 3, bs.back, "no progress past offsetBeforeBack should not reset")

	bs.onForwardProgress(2048)
	assert.Equal(t, 0, bs.back)
}

func TestEngine_decideBacktrack_rewindsToPriorHeader(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{{Start: 0, End: 4095}})

	e := &Engine{searchSpace: ss}

	var bs backtrackState

	isTrigger := func(offset uint64) bool { return offset == 1536 }

	next := e.decideBacktrack(&bs, Cursor{IntervalIndex: 0, Offset: 2048}, 0, isTrigger)

	assert.Equal(t, uint64(1536), next.Offset)
	assert.Equal(t, 1, bs.back)
}

func TestEngine_decideBacktrack_fallsBackToSmartSkipAfterLimit(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{{Start: 0, End: 4095}})

	e := &Engine{searchSpace: ss}

	bs := backtrackState{back: maxBacktracks}

	next := e.decideBacktrack(&bs, Cursor{IntervalIndex: 0, Offset: 2048}, 1024, func(uint64) bool { return true })

	assert.Equal(t, uint64(1025), next.Offset)
	assert.Equal(t, 0, bs.back)
}
