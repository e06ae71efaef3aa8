package carver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSaveLoadSession_roundTrips(t *testing.T) {
	state := SessionState{
		Phase:  PhaseExt2On,
		Cursor: 0x10000,
		Intervals: []Interval{
			{Start: 0, End: 511},
			{Start: 4096, End: 8191},
		},
		EnabledFormats: []string{"jpg", "syn1"},
		Stats:          map[string]uint64{"jpg": 3, "syn1": 1},
	}

	var buf bytes.Buffer

	err := SaveSession(&buf, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadSession(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, state.Phase, loaded.Phase)
	assert.Equal(t, state.Cursor, loaded.Cursor)
	assert.Equal(t, state.Intervals, loaded.Intervals)
	assert.Equal(t, state.EnabledFormats, loaded.EnabledFormats)
	assert.Equal(t, state.Stats, loaded.Stats)
}

func TestLoadSession_rejectsBadMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, 32))

	_, err := LoadSession(buf)
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestCheckpointScheduler_growsIntervalOnSlowSave(t *testing.T) {
	now := time.Unix(0, 0)

	cs := NewCheckpointScheduler(now)

	assert.False(t, cs.Due(now.Add(1*time.Minute)))
	assert.True(t, cs.Due(now.Add(checkpointShortInterval)))

	cs.RecordSave(now.Add(checkpointShortInterval), checkpointSlowThreshold+time.Second)

	assert.Equal(t, checkpointLongInterval, cs.interval)
}

func TestCheckpointScheduler_resetsToShortIntervalOnFastSave(t *testing.T) {
	now := time.Unix(0, 0)

	cs := NewCheckpointScheduler(now)
	cs.interval = checkpointLongInterval

	cs.RecordSave(now, 1*time.Second)

	assert.Equal(t, checkpointShortInterval, cs.interval)
}
