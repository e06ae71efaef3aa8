package carver

// maxBacktracks bounds how many consecutive header-rewinds the engine will
// attempt for a single truncation/finalization cluster before falling back
// to the smart-skip policy, per §4.F / P4.
const maxBacktracks = 5

// backtrackState tracks the rolling counters the carving loop needs to
// implement §4.D-E step 6's backtracking decision.
type backtrackState struct {
	offsetBeforeBack uint64
	back             int
}

// onForwardProgress resets the backtrack counter once the cursor has moved
// past the last point a backtrack was attempted from.
func (bs *backtrackState) onForwardProgress(offset uint64) {
	if offset > bs.offsetBeforeBack {
		bs.back = 0
	}
}

// decideBacktrack implements the two backtracking variants of §4.F: header-rewind
// (bounded by maxBacktracks) and, once exhausted, smart-skip back to just
// past the finalized file's start. isTrigger lets the search space's
// PrevHeaderOffset avoid rewinding into offsets that can't possibly be a
// header (a cheap first-byte pre-filter against the registry).
func (e *Engine) decideBacktrack(bs *backtrackState, cursor Cursor, finalizedStart uint64, isTrigger func(uint64) bool) Cursor {
	bs.offsetBeforeBack = cursor.Offset

	if bs.back < maxBacktracks {
		if offset, found := e.searchSpace.PrevHeaderOffset(cursor, isTrigger); found {
			bs.back++
			return e.searchSpace.CursorAt(offset)
		}
	}

	bs.back = 0
	return e.searchSpace.FirstAfter(finalizedStart)
}
