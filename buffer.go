package carver

import (
	"reflect"

	"github.com/dsoprea/go-logging"
)

// ReadSize is the amount of fresh data pulled from disk on each refill.
// Chosen to amortize positioned-read overhead while keeping peak memory
// bounded; not required to be a multiple of any blocksize (B1).
const ReadSize = 512 * 1024

// SlidingBuffer holds one blocksize of "old data" immediately preceding the
// scan cursor plus a ReadSize look-ahead window, so format matchers that need
// lookbehind (TAR continuation blocks, in particular) can see across the
// block boundary without a second read.
type SlidingBuffer struct {
	disk      DiskReader
	blocksize uint32

	buf    []byte
	window int // byte offset of the window start within buf; blocksize after Reset, moved on by Advance.

	// consumed counts the bytes advanced since the last Reset. The refill
	// decision in Advance is made from window, not from this counter.
	consumed int

	lastReadErr error
}

// NewSlidingBuffer allocates a buffer sized blocksize+ReadSize.
func NewSlidingBuffer(disk DiskReader, blocksize uint32) *SlidingBuffer {
	sb := &SlidingBuffer{
		disk:      disk,
		blocksize: blocksize,
		buf:       make([]byte, uint64(blocksize)+ReadSize),
		window:    int(blocksize),
	}

	return sb
}

// Window returns the current ReadSize-capacity window starting at the scan
// cursor. Bytes at Window()[-n:0] for n <= blocksize are the "old data"
// lookbehind.
func (sb *SlidingBuffer) Window() []byte {
	return sb.buf[sb.window:]
}

// Lookbehind returns the n bytes immediately preceding the window, for
// n <= blocksize.
func (sb *SlidingBuffer) Lookbehind(n uint32) []byte {
	if n > sb.blocksize {
		log.Panicf("lookbehind of (%d) exceeds blocksize (%d)", n, sb.blocksize)
	}

	start := sb.window - int(n)
	return sb.buf[start:sb.window]
}

// Reset discards the buffer contents and issues a fresh read at offset. It
// is invoked on any discontinuity: a header adopted or finalized, or a
// cursor jump via backtracking. continuous indicates whether the new offset
// immediately follows the previously consumed block, in which case the
// trailing blocksize of already-read data is preserved as lookbehind instead
// of zeroed (B1's "no byte duplicated or skipped" requirement).
func (sb *SlidingBuffer) Reset(offset uint64, continuous bool) (err error) {
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

	if continuous {
		// Preserve the last blocksize of previously-consumed data as the new
		// lookbehind.
		copy(sb.buf[:sb.blocksize], sb.buf[sb.window-int(sb.blocksize):sb.window])
	} else {
		for i := range sb.buf[:sb.blocksize] {
			sb.buf[i] = 0
		}
	}

	sb.window = int(sb.blocksize)
	sb.consumed = 0

	n, err := sb.disk.Pread(sb.buf[sb.window:], offset)
	log.PanicIf(err)

	if n < ReadSize {
		sb.lastReadErr = log.Wrap(ErrReadShort)

		for i := sb.window + n; i < len(sb.buf); i++ {
			sb.buf[i] = 0
		}
	} else {
		sb.lastReadErr = nil
	}

	return nil
}

// LastReadErr returns the short-read diagnostic recorded by the most recent
// Reset, or nil.
func (sb *SlidingBuffer) LastReadErr() error {
	return sb.lastReadErr
}

// Advance slides the window forward by blocksize bytes, reporting whether
// the buffer must be refilled before the next window access (the next block
// would extend past the end of the buffer). Bytes past a short read are not
// re-read; they stay zero until the next Reset.
func (sb *SlidingBuffer) Advance() (needsRefill bool) {
	sb.window += int(sb.blocksize)
	sb.consumed += int(sb.blocksize)

	return sb.window+int(sb.blocksize) > len(sb.buf)
}

// MaskCurrentBlock overwrites the block at the front of the current window
// with the lookbehind block, used by the indirect-block heuristic (§4.H):
// since the skipped block never becomes part of the carved file, it must
// also never become the "old data" lookbehind for the block that follows it.
// Must be called before Advance.
func (sb *SlidingBuffer) MaskCurrentBlock() {
	copy(sb.buf[sb.window:sb.window+int(sb.blocksize)], sb.buf[sb.window-int(sb.blocksize):sb.window])
}

// ErrReadShort is recorded (not returned) when a disk read came back with
// fewer than ReadSize bytes; the engine prints it once per such read when
// Options.Verbose > 0 and continues with the missing tail treated as zero,
// per §7's ReadError policy.
var ErrReadShort = log.Errorf("short read from disk")
