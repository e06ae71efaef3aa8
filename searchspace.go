package carver

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/dsoprea/go-logging"
)

// Interval is an inclusive, sector-aligned byte range that has not yet been
// scanned or claimed by a recovered file.
type Interval struct {
	Start uint64
	End   uint64
}

// Len returns the number of bytes the interval spans.
func (iv Interval) Len() uint64 {
	return iv.End - iv.Start + 1
}

// Contains indicates whether offset falls within the interval.
func (iv Interval) Contains(offset uint64) bool {
	return offset >= iv.Start && offset <= iv.End
}

// Cursor identifies a position within the search space as an interval index
// plus a byte offset inside it. It replaces the source's pointer-to-pointer
// "current_search_space" idiom with an explicit, copyable value.
type Cursor struct {
	IntervalIndex int
	Offset        uint64
}

// AtSentinel indicates the cursor has walked off the end of the search
// space; all regions have been exhausted.
func (c Cursor) AtSentinel() bool {
	return c.IntervalIndex < 0
}

// SearchSpace is the ordered, disjoint set of unsearched byte intervals on
// the disk. It is mutated only by the carving loop, via ConsumeBlock,
// InsertReturned (blocks given back by truncation or abort) and Forget.
type SearchSpace struct {
	intervals []Interval
	// forgotten counts intervals dropped by Forget, purely for logging/
	// diagnostics; they are never revisited.
	forgotten int
}

// NewSearchSpace constructs a search space spanning a single interval
// covering the full partition.
func NewSearchSpace(start, end uint64) *SearchSpace {
	return &SearchSpace{
		intervals: []Interval{{Start: start, End: end}},
	}
}

// NewSearchSpaceFromIntervals constructs a search space from an
// already-sorted, disjoint interval list, typically loaded from a session
// checkpoint.
func NewSearchSpaceFromIntervals(intervals []Interval) *SearchSpace {
	cp := make([]Interval, len(intervals))
	copy(cp, intervals)

	return &SearchSpace{intervals: cp}
}

// Intervals returns the current interval list. The caller must not mutate
// it; it is returned for checkpointing only.
func (ss *SearchSpace) Intervals() []Interval {
	return ss.intervals
}

// IsEmpty indicates no unsearched bytes remain.
func (ss *SearchSpace) IsEmpty() bool {
	return len(ss.intervals) == 0
}

// StartCursor returns a cursor at the start of the first interval. It
// returns ErrEmptySearchSpace if nothing remains.
func (ss *SearchSpace) StartCursor() (c Cursor, err error) {
	if len(ss.intervals) == 0 {
		return Cursor{IntervalIndex: -1}, log.Wrap(ErrEmptySearchSpace)
	}

	return Cursor{IntervalIndex: 0, Offset: ss.intervals[0].Start}, nil
}

// sentinel is the cursor value returned once iteration is exhausted.
func (ss *SearchSpace) sentinel() Cursor {
	return Cursor{IntervalIndex: -1}
}

// CursorAt returns a cursor positioned at offset if offset falls within some
// interval, advancing to the next interval's start if it falls in a gap
// between two intervals (the carving loop uses this to step from the end of
// one interval to the start of the next).
func (ss *SearchSpace) CursorAt(offset uint64) Cursor {
	for i, iv := range ss.intervals {
		if offset <= iv.End {
			if offset < iv.Start {
				return Cursor{IntervalIndex: i, Offset: iv.Start}
			}

			return Cursor{IntervalIndex: i, Offset: offset}
		}
	}

	return ss.sentinel()
}

// IndexAt returns the index of the interval currently containing offset, or
// -1 if none does. Callers that hold an interval index computed before some
// other mutation (a finalize's returned blocks, in particular) must refresh
// it with IndexAt rather than reuse the stale value, since insertion can
// shift every later index.
func (ss *SearchSpace) IndexAt(offset uint64) int {
	for i, iv := range ss.intervals {
		if iv.Contains(offset) {
			return i
		}
	}

	return -1
}

// Advance moves the cursor forward by n bytes within its current interval.
// If that exhausts the interval, it jumps to the next interval's start. It
// returns the sentinel cursor once no intervals remain after the current
// one.
func (ss *SearchSpace) Advance(c Cursor, n uint64) (next Cursor, iv Interval, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if c.AtSentinel() {
		return ss.sentinel(), Interval{}, nil
	}

	if c.IntervalIndex >= len(ss.intervals) {
		panic(fmt.Errorf("cursor interval index out of range: (%d) >= (%d): %w", c.IntervalIndex, len(ss.intervals), ErrBugAssertion))
	}

	cur := ss.intervals[c.IntervalIndex]
	candidate := c.Offset + n

	if candidate <= cur.End {
		return Cursor{IntervalIndex: c.IntervalIndex, Offset: candidate}, cur, nil
	}

	nextIndex := c.IntervalIndex + 1
	if nextIndex >= len(ss.intervals) {
		return ss.sentinel(), Interval{}, nil
	}

	nextInterval := ss.intervals[nextIndex]
	return Cursor{IntervalIndex: nextIndex, Offset: nextInterval.Start}, nextInterval, nil
}

// ConsumeBlock marks [offset, offset+n) as searched, shrinking or removing
// the interval at intervalIndex. The core only ever consumes from an
// interval's leading edge (offset must equal the interval's current Start).
func (ss *SearchSpace) ConsumeBlock(intervalIndex int, offset uint64, n uint64) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("not an error: [%s] [%v]", reflect.TypeOf(errRaw).Name(), errRaw)
			}
		}
	}()

	if intervalIndex < 0 || intervalIndex >= len(ss.intervals) {
		panic(fmt.Errorf("consume: interval index out of range: (%d): %w", intervalIndex, ErrBugAssertion))
	}

	iv := ss.intervals[intervalIndex]
	if offset != iv.Start {
		panic(fmt.Errorf("consume: offset (%d) is not the leading edge of interval [%d-%d]: %w", offset, iv.Start, iv.End, ErrBugAssertion))
	}

	newStart := offset + n
	if newStart > iv.End+1 {
		panic(fmt.Errorf("consume: block extends past interval end: newStart=(%d) end=(%d): %w", newStart, iv.End, ErrBugAssertion))
	}

	if newStart == iv.End+1 {
		// The block fully covers the interval; remove it.
		ss.intervals = append(ss.intervals[:intervalIndex], ss.intervals[intervalIndex+1:]...)
		return nil
	}

	ss.intervals[intervalIndex].Start = newStart
	return nil
}

// InsertReturned reinserts a byte range that was previously consumed but is
// now known to be unsearched again (truncation, abort). It restores sort
// order but does not attempt to merge with touching neighbors; the core
// treats touching intervals as distinct (§3).
func (ss *SearchSpace) InsertReturned(iv Interval) {
	i := sort.Search(len(ss.intervals), func(i int) bool {
		return ss.intervals[i].Start >= iv.Start
	})

	ss.intervals = append(ss.intervals, Interval{})
	copy(ss.intervals[i+1:], ss.intervals[i:])
	ss.intervals[i] = iv
}

// PrevHeaderOffset returns the offset of the most recent candidate header
// location strictly before cursor, scanning backward through prior
// intervals. isTrigger reports whether the byte at a candidate offset could
// begin a recognized format, letting the backtracking policy (§4.F) avoid
// rewinding into regions with no plausible header.
func (ss *SearchSpace) PrevHeaderOffset(c Cursor, isTrigger func(offset uint64) bool) (offset uint64, found bool) {
	if c.AtSentinel() || len(ss.intervals) == 0 {
		return 0, false
	}

	startIdx := c.IntervalIndex
	if startIdx >= len(ss.intervals) {
		startIdx = len(ss.intervals) - 1
	}

	// Search within the current interval, strictly before c.Offset.
	iv := ss.intervals[startIdx]
	blocksize := uint64(1)
	if isTrigger == nil {
		isTrigger = func(uint64) bool { return true }
	}

	for off := c.Offset; off > iv.Start; off -= blocksize {
		candidate := off - blocksize
		if candidate < iv.Start {
			break
		}

		if isTrigger(candidate) {
			return candidate, true
		}
	}

	for i := startIdx - 1; i >= 0; i-- {
		prev := ss.intervals[i]
		for off := prev.End + 1; off > prev.Start; off -= blocksize {
			candidate := off - blocksize
			if isTrigger(candidate) {
				return candidate, true
			}
		}
	}

	return 0, false
}

// FirstAfter returns the first byte still in the search space that is
// strictly after offset, or the sentinel cursor if none remains: offset+1
// when an interval holds both offset and offset+1, otherwise the start of
// the next interval. The result is not rounded up to a sector boundary.
// This backs the "smart previous location" backtracking variant (§4.F).
func (ss *SearchSpace) FirstAfter(offset uint64) Cursor {
	for i, iv := range ss.intervals {
		if iv.End <= offset {
			continue
		}

		if iv.Start > offset {
			return Cursor{IntervalIndex: i, Offset: iv.Start}
		}

		return Cursor{IntervalIndex: i, Offset: offset + 1}
	}

	return ss.sentinel()
}

// Forget discards interval metadata strictly before upToIndex. It is the
// engine's only memory-reclamation hook in low-memory mode; forgotten
// intervals will never be revisited, which is safe because the carving loop
// only ever moves forward except for the bounded backtracking in §4.F.
func (ss *SearchSpace) Forget(upToIndex int) {
	if upToIndex <= 0 || upToIndex > len(ss.intervals) {
		return
	}

	ss.forgotten += upToIndex
	ss.intervals = ss.intervals[upToIndex:]
}

// TotalRemaining returns the sum of all interval lengths, used to verify P2
// (monotonically non-increasing search space).
func (ss *SearchSpace) TotalRemaining() uint64 {
	var total uint64
	for _, iv := range ss.intervals {
		total += iv.Len()
	}

	return total
}

// LogSummary prints the interval count and total remaining bytes, mirroring
// the source's info_list_search_space verbose dump.
func (ss *SearchSpace) LogSummary(verbose int) {
	if verbose <= 0 {
		return
	}

	fmt.Printf("search space: %d interval(s), %d byte(s) remaining (%d forgotten)\n", len(ss.intervals), ss.TotalRemaining(), ss.forgotten)
}
