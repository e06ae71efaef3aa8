package carver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchSpace_ConsumeBlock_removesExhaustedInterval(t *testing.T) {
	ss := NewSearchSpace(0, 511)

	err := ss.ConsumeBlock(0, 0, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.True(t, ss.IsEmpty())
}

func TestSearchSpace_ConsumeBlock_shrinksInterval(t *testing.T) {
	ss := NewSearchSpace(0, 1023)

	err := ss.ConsumeBlock(0, 0, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, []Interval{{Start: 512, End: 1023}}, ss.Intervals())
}

func TestSearchSpace_ConsumeBlock_rejectsNonLeadingOffset(t *testing.T) {
	ss := NewSearchSpace(0, 1023)

	err := ss.ConsumeBlock(0, 512, 512)
	if err == nil {
		t.Fatalf("expected error from non-leading-edge consume")
	}
}

func TestSearchSpace_Advance_crossesIntervalBoundary(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 511},
		{Start: 2048, End: 4095},
	})

	next, iv, err := ss.Advance(Cursor{IntervalIndex: 0, Offset: 0}, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, Cursor{IntervalIndex: 1, Offset: 2048}, next)
	assert.Equal(t, Interval{Start: 2048, End: 4095}, iv)
}

func TestSearchSpace_Advance_sentinelAtEnd(t *testing.T) {
	ss := NewSearchSpace(0, 511)

	next, _, err := ss.Advance(Cursor{IntervalIndex: 0, Offset: 0}, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.True(t, next.AtSentinel())
}

func TestSearchSpace_InsertReturned_preservesOrder(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 511},
		{Start: 4096, End: 4607},
	})

	ss.InsertReturned(Interval{Start: 1024, End: 1535})

	assert.Equal(t, []Interval{
		{Start: 0, End: 511},
		{Start: 1024, End: 1535},
		{Start: 4096, End: 4607},
	}, ss.Intervals())
}

func TestSearchSpace_CursorAt_snapsForwardIntoGap(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 1024, End: 2047},
	})

	c := ss.CursorAt(0)

	assert.Equal(t, Cursor{IntervalIndex: 0, Offset: 1024}, c)
}

func TestSearchSpace_CursorAt_sentinelPastEverything(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 511},
	})

	c := ss.CursorAt(1024)

	assert.True(t, c.AtSentinel())
}

func TestSearchSpace_FirstAfter_skipsConsumedRegion(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 1023},
		{Start: 4096, End: 8191},
	})

	c := ss.FirstAfter(512)

	assert.Equal(t, Cursor{IntervalIndex: 0, Offset: 513}, c)

	c = ss.FirstAfter(2048)

	assert.Equal(t, Cursor{IntervalIndex: 1, Offset: 4096}, c)
}

func TestSearchSpace_Forget_dropsPriorIntervals(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 511},
		{Start: 512, End: 1023},
		{Start: 1024, End: 1535},
	})

	ss.Forget(2)

	assert.Equal(t, []Interval{{Start: 1024, End: 1535}}, ss.Intervals())
}

func TestSearchSpace_TotalRemaining(t *testing.T) {
	ss := NewSearchSpaceFromIntervals([]Interval{
		{Start: 0, End: 511},
		{Start: 1024, End: 1535},
	})

	assert.Equal(t, uint64(1024), ss.TotalRemaining())
}

func TestSearchSpace_StartCursor_errorsWhenEmpty(t *testing.T) {
	ss := NewSearchSpaceFromIntervals(nil)

	_, err := ss.StartCursor()
	if err == nil {
		t.Fatalf("expected error on empty search space")
	}
}
