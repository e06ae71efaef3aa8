package carver

import (
	"encoding/binary"
	"io"
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// checkpointShortInterval and checkpointLongInterval are the two steady-
// state cadences the scheduler alternates between, per §4.G.
const (
	checkpointShortInterval = 5 * time.Minute
	checkpointLongInterval  = 15 * time.Minute
	checkpointSlowThreshold = 30 * time.Second
)

// CheckpointScheduler decides when the engine should persist a session
// checkpoint. It never has more than one save in flight, which the
// single-threaded carving loop (§5) guarantees trivially; the scheduler's
// only job is to grow the interval when saves run slow.
type CheckpointScheduler struct {
	interval time.Duration
	next     time.Time
}

// NewCheckpointScheduler starts the scheduler at the short interval,
// anchored to now.
func NewCheckpointScheduler(now time.Time) *CheckpointScheduler {
	cs := &CheckpointScheduler{interval: checkpointShortInterval}
	cs.next = now.Add(cs.interval)
	return cs
}

// Due reports whether a checkpoint should run now.
func (cs *CheckpointScheduler) Due(now time.Time) bool {
	return !now.Before(cs.next)
}

// RecordSave adjusts the interval based on how long the just-completed save
// took and schedules the next one from now.
func (cs *CheckpointScheduler) RecordSave(now time.Time, saveDuration time.Duration) {
	if saveDuration > checkpointSlowThreshold {
		cs.interval = checkpointLongInterval
	} else {
		cs.interval = checkpointShortInterval
	}

	cs.next = now.Add(cs.interval)
}

// SessionState is everything the checkpoint needs to resume a scan,
// independent of how it is encoded on disk (§6: the core exposes only
// opaque save/load hooks; encoding is implementation-defined).
type SessionState struct {
	Phase          Phase
	Cursor         uint64
	Intervals      []Interval
	EnabledFormats []string
	Stats          map[string]uint64
}

// sessionHeader is the fixed-size binary-encoded prelude restruct packs for
// us, mirroring the teacher's use of restruct for every on-disk structure
// (structures.go's BootSectorHeader, navigator_entry_types.go's directory
// entries). Variable-length sections (intervals, format names, stats)
// follow as length-prefixed records, each restruct-packed individually.
type sessionHeader struct {
	Magic         [4]byte
	Version       uint32
	Phase         uint32
	Cursor        uint64
	IntervalCount uint32
	FormatCount   uint32
	StatCount     uint32
}

var sessionMagic = [4]byte{'G', 'C', 'S', '1'}

type sessionInterval struct {
	Start uint64
	End   uint64
}

// SaveSession writes state to w in restruct-encoded binary form. The
// embedder is responsible for the write-then-rename atomicity described in
// §5; this function only serializes.
func SaveSession(w io.Writer, state SessionState) (err error) {
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

	hdr := sessionHeader{
		Magic:         sessionMagic,
		Version:       1,
		Phase:         uint32(state.Phase),
		Cursor:        state.Cursor,
		IntervalCount: uint32(len(state.Intervals)),
		FormatCount:   uint32(len(state.EnabledFormats)),
		StatCount:     uint32(len(state.Stats)),
	}

	raw, err := restruct.Pack(restruct.LittleEndian, &hdr)
	log.PanicIf(err)

	_, err = w.Write(raw)
	log.PanicIf(err)

	for _, iv := range state.Intervals {
		si := sessionInterval{Start: iv.Start, End: iv.End}

		raw, err := restruct.Pack(restruct.LittleEndian, &si)
		log.PanicIf(err)

		_, err = w.Write(raw)
		log.PanicIf(err)
	}

	for _, name := range state.EnabledFormats {
		err := writeLengthPrefixedString(w, name)
		log.PanicIf(err)
	}

	for name, count := range state.Stats {
		err := writeLengthPrefixedString(w, name)
		log.PanicIf(err)

		raw, err := restruct.Pack(restruct.LittleEndian, &count)
		log.PanicIf(err)

		_, err = w.Write(raw)
		log.PanicIf(err)
	}

	return nil
}

// LoadSession reads a session previously written by SaveSession.
func LoadSession(r io.Reader) (state SessionState, err error) {
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

	hdrRaw := make([]byte, 4+4+4+8+4+4+4)

	_, err = io.ReadFull(r, hdrRaw)
	log.PanicIf(err)

	var hdr sessionHeader

	err = restruct.Unpack(hdrRaw, restruct.LittleEndian, &hdr)
	log.PanicIf(err)

	if hdr.Magic != sessionMagic {
		log.Panicf("not a carver session file: bad magic %v", hdr.Magic)
	}

	state.Phase = Phase(hdr.Phase)
	state.Cursor = hdr.Cursor
	state.Intervals = make([]Interval, hdr.IntervalCount)

	ivRaw := make([]byte, 16)
	for i := uint32(0); i < hdr.IntervalCount; i++ {
		_, err = io.ReadFull(r, ivRaw)
		log.PanicIf(err)

		var si sessionInterval

		err = restruct.Unpack(ivRaw, restruct.LittleEndian, &si)
		log.PanicIf(err)

		state.Intervals[i] = Interval{Start: si.Start, End: si.End}
	}

	state.EnabledFormats = make([]string, hdr.FormatCount)
	for i := uint32(0); i < hdr.FormatCount; i++ {
		name, err := readLengthPrefixedString(r)
		log.PanicIf(err)

		state.EnabledFormats[i] = name
	}

	state.Stats = make(map[string]uint64, hdr.StatCount)
	for i := uint32(0); i < hdr.StatCount; i++ {
		name, err := readLengthPrefixedString(r)
		log.PanicIf(err)

		countRaw := make([]byte, 8)

		_, err = io.ReadFull(r, countRaw)
		log.PanicIf(err)

		state.Stats[name] = binary.LittleEndian.Uint64(countRaw)
	}

	return state, nil
}

func writeLengthPrefixedString(w io.Writer, s string) error {
	lenRaw := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenRaw, uint32(len(s)))

	if _, err := w.Write(lenRaw); err != nil {
		return err
	}

	_, err := io.WriteString(w, s)
	return err
}

func readLengthPrefixedString(r io.Reader) (string, error) {
	lenRaw := make([]byte, 4)
	if _, err := io.ReadFull(r, lenRaw); err != nil {
		return "", err
	}

	n := binary.LittleEndian.Uint32(lenRaw)
	buf := make([]byte, n)

	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}
