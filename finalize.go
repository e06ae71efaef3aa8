package carver

import (
	"os"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// finishFile implements file_finish (§4.I): it closes out the active
// recovery, runs the paranoid file_check hook, truncates on disk if the
// hook shrank the file, and returns any blocks no longer part of the file to
// the search space so the backtracking policy (§4.F) can reconsider them.
func (e *Engine) finishFile(fr *FileRecovery) (status PFStatus, err error) {
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

	if !fr.IsActive() {
		return PFStatusBad, nil
	}

	wroteNothing := fr.FileSize == 0 || (!fr.Stat.Recover && len(fr.blockOffsets) == 0)
	if wroteNothing {
		e.discardHandle(fr)
		fr.reset()
		return PFStatusBad, nil
	}

	status = PFStatusOK
	if fr.FileCheck != nil && e.Options.Paranoid {
		status = fr.FileCheck(fr)
	}

	committedBlocks := len(fr.blockOffsets)
	finalBlocks := int(fr.FileSize / uint64(fr.Blocksize))

	if fr.handle != nil {
		closeErr := fr.handle.Close()
		log.PanicIf(closeErr)
		fr.handle = nil
	}

	switch status {
	case PFStatusBad:
		// file_check rejected the content outright: return every committed
		// block to the search space and discard the output.
		e.returnBlocks(fr, 0)
		e.unlink(fr)

	case PFStatusOKTruncated:
		if finalBlocks < committedBlocks {
			if fr.handle == nil && fr.Stat.Recover {
				truncErr := os.Truncate(fr.Filename, int64(fr.FileSize))
				log.PanicIf(truncErr)
			}

			e.returnBlocks(fr, finalBlocks)
		}

	case PFStatusOK:
		// Nothing to return; the file consumed exactly what it wrote.

	default:
		log.Panicf("unrecognized file-check status: (%d)", status)
	}

	if e.onFileFinish != nil {
		e.onFileFinish(fr, status)
	}

	fr.reset()
	return status, nil
}

// returnBlocks reinserts the committed blocks at index >= from back into the
// search space as reclaimed intervals, coalescing contiguous runs so we
// don't flood the interval list with one-block entries.
func (e *Engine) returnBlocks(fr *FileRecovery, from int) {
	offsets := fr.blockOffsets[from:]
	if len(offsets) == 0 {
		return
	}

	runStart := offsets[0]
	runEnd := offsets[0] + uint64(fr.Blocksize) - 1

	flush := func() {
		e.searchSpace.InsertReturned(Interval{Start: runStart, End: runEnd})
	}

	for _, off := range offsets[1:] {
		if off == runEnd+1 {
			runEnd = off + uint64(fr.Blocksize) - 1
			continue
		}

		flush()
		runStart = off
		runEnd = off + uint64(fr.Blocksize) - 1
	}

	flush()
}

// discardHandle closes and unlinks the active file's handle without
// returning blocks, used when nothing of value was ever written.
func (e *Engine) discardHandle(fr *FileRecovery) {
	if fr.handle != nil {
		fr.handle.Close()
		fr.handle = nil
	}

	e.unlink(fr)
}

// unlink removes the on-disk artifact for fr, if one was created.
func (e *Engine) unlink(fr *FileRecovery) {
	if fr.Stat != nil && fr.Stat.Recover && fr.Filename != "" {
		os.Remove(fr.Filename)
	}
}

// abortActiveFile implements file_recovery_aborted (§5 cancellation path):
// every block of the active file is returned to the search space and the
// output is discarded, regardless of how much was validated.
func (e *Engine) abortActiveFile(fr *FileRecovery) {
	if !fr.IsActive() {
		return
	}

	if fr.handle != nil {
		fr.handle.Close()
		fr.handle = nil
	}

	e.returnBlocks(fr, 0)
	e.unlink(fr)
	fr.reset()
}
