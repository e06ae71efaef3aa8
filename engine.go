package carver

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/dsoprea/go-logging"
)

// isFileTooBig reports whether werr is the output filesystem refusing a
// write because the file hit a size ceiling (FAT32's 4GiB limit, most
// commonly), as opposed to a harder failure like ENOSPC.
func isFileTooBig(werr error) bool {
	return errors.Is(werr, syscall.EFBIG)
}

// FilesystemKind selects filesystem-specific size-cap behavior (§4.D-E step
// 4's FAT 32-bit ceiling).
type FilesystemKind int

const (
	// FilesystemGeneric applies no filesystem-specific size cap.
	FilesystemGeneric FilesystemKind = iota
	// FilesystemFAT caps files at just under 2^32-1 bytes, the largest file
	// a FAT32 volume can host.
	FilesystemFAT
)

// fat32MaxSize is PHOTOREC_MAX_SIZE_32 from the source: the largest file a
// FAT32 volume can address.
const fat32MaxSize = 1<<32 - 1

// SetFilenameFunc assigns the output path for a newly adopted recovery. The
// engine treats the result opaquely (§6).
type SetFilenameFunc func(fr *FileRecovery) string

// OnFileFinishFunc is notified whenever a file finishes, successfully or
// not, so the embedder can update its own bookkeeping (subdirectory
// rotation, progress counts) without the core knowing about either.
type OnFileFinishFunc func(fr *FileRecovery, status PFStatus)

// EngineOptions configures a carving session.
type EngineOptions struct {
	// Blocksize is the carving quantum, typically the filesystem's former
	// cluster size or the disk sector size.
	Blocksize uint32

	// Phase selects which heuristics are active (§3's PhaseStatus).
	Phase Phase

	// Filesystem selects the size-cap special case (§4.D-E step 4).
	Filesystem FilesystemKind

	// Paranoid enables file_check hooks at finalization (§4.I step 2).
	Paranoid bool

	// LowMemory enables Forget() calls on the search space after each
	// finalized file (§4.D-E step 5).
	LowMemory bool

	// Verbose gates the three logging tiers carried over from the original
	// driver (§12): 0 silent, 1 info, 2 trace.
	Verbose int
}

// Engine is the carving loop and all the state it closes over. It is not
// safe for concurrent use; the carving model is strictly single-threaded
// (§5).
type Engine struct {
	Options EngineOptions

	disk        DiskReader
	registry    *FormatRegistry
	searchSpace *SearchSpace
	buffer      *SlidingBuffer

	setFilename  SetFilenameFunc
	onFileFinish OnFileFinishFunc

	// createFile opens the output sink for a newly adopted recovery.
	// Defaulted to createWithRetry; tests substitute it to exercise write
	// failures without needing a real full filesystem.
	createFile func(filename string) (*os.File, error)

	stopRequested bool

	// Stats counts recovered files per format name, for checkpointing and
	// final reporting.
	Stats map[string]uint64
}

// NewEngine constructs a carving engine over the given disk and search
// space, with the given format registry and output-naming hook.
func NewEngine(disk DiskReader, registry *FormatRegistry, searchSpace *SearchSpace, opts EngineOptions, setFilename SetFilenameFunc) *Engine {
	if opts.Blocksize == 0 {
		opts.Blocksize = disk.SectorSize()
	}

	return &Engine{
		Options:     opts,
		disk:        disk,
		registry:    registry,
		searchSpace: searchSpace,
		buffer:      NewSlidingBuffer(disk, opts.Blocksize),
		setFilename: setFilename,
		createFile:  createWithRetry,
		Stats:       make(map[string]uint64),
	}
}

// OnFileFinish registers a callback invoked whenever a file is finalized.
func (e *Engine) OnFileFinish(cb OnFileFinishFunc) {
	e.onFileFinish = cb
}

// RequestStop asks the loop to stop after the current block, mirroring the
// source's signal-handler-sets-a-flag design (§5). Safe to call from the
// progress tick only in this single-threaded model; a concurrent port would
// need an atomic here (§9's open question).
func (e *Engine) RequestStop() {
	e.stopRequested = true
}

// resolveStartCursor implements set_search_start (§12): resume at the
// checkpointed offset if it still falls within the search space, otherwise
// start from the first remaining interval.
func (e *Engine) resolveStartCursor(resumeOffset uint64, hasResume bool) (Cursor, error) {
	if hasResume {
		if c := e.searchSpace.CursorAt(resumeOffset); !c.AtSentinel() && c.Offset == resumeOffset {
			return c, nil
		}
	}

	return e.searchSpace.StartCursor()
}

// isPossibleTrigger reports whether byte b at the front of the window could
// possibly begin some registered format, used to make header-rewind
// backtracking (§4.F) cheaper than testing every candidate offset in full.
func (e *Engine) isPossibleTrigger(offset uint64) bool {
	var b [1]byte

	n, err := e.disk.Pread(b[:], offset)
	if err != nil || n == 0 {
		return false
	}

	buckets, found := e.registry.byTrigger[0]
	if !found {
		return true
	}

	return len(buckets[b[0]]) > 0
}

// Run drives the carving loop to completion (photorec_aux, §4.D-E). It
// returns the terminal PStatus and any fatal error. resumeOffset/hasResume
// seed the start cursor from a checkpoint (§12's set_search_start).
func (e *Engine) Run(resumeOffset uint64, hasResume bool, checkpoint func(SessionState) error) (status PStatus, err error) {
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

	cursor, cerr := e.resolveStartCursor(resumeOffset, hasResume)
	if cerr != nil {
		// Nothing to scan.
		return PStatusOK, nil
	}

	e.searchSpace.LogSummary(e.Options.Verbose)

	if rerr := e.buffer.Reset(cursor.Offset, false); rerr != nil {
		log.PanicIf(rerr)
	}

	if e.buffer.LastReadErr() != nil && e.Options.Verbose > 0 {
		fmt.Printf("read error at offset %d: %v\n", cursor.Offset, e.buffer.LastReadErr())
	}

	fr := &FileRecovery{Blocksize: e.Options.Blocksize}

	var bs backtrackState

	scheduler := NewCheckpointScheduler(time.Now())
	lastTick := time.Now()

	for !cursor.AtSentinel() {
		oldOffset := cursor.Offset
		intervalIndex := cursor.IntervalIndex

		res := DataCheckScan
		var fileRecovered PFStatus = PFStatusBad
		var hadFinalize bool

		// finishFile resets fr, so the name and start of the file this
		// iteration finalizes are kept for the stats and the smart-skip.
		var finalizedName string
		var finalizedStart uint64
		if fr.IsActive() {
			finalizedName, finalizedStart = fr.Stat.Name, fr.LocationStart
		}

		window := e.buffer.Window()
		lookbehind := e.buffer.Lookbehind(e.Options.Blocksize)

		var tarLookbehind []byte
		if fr.IsActive() && fr.Stat.IsTar {
			tarLookbehind = e.buffer.Lookbehind(0x200)
		}

		readSize := len(window)
		if readSize > ReadSize {
			readSize = ReadSize
		}

		out, hstatus, herr := e.checkHeader(fr, window, readSize, pick(tarLookbehind, lookbehind), cursor.Offset)
		log.PanicIf(herr)

		if hstatus == PStatusEACCES {
			e.abortActiveFile(fr)
			return PStatusEACCES, ErrOutputDenied
		}

		if out.matched && out.hadActive {
			hadFinalize = true
			fileRecovered = out.finalized

			if out.finalized != PFStatusBad {
				e.Stats[finalizedName]++
			}
		}

		var fatalENOSPC bool

		if fr.IsActive() && !out.deferred {
			// checkHeader may have finalized the previous file above,
			// whose returned blocks can shift every interval index at or
			// after intervalIndex; refresh it before trusting it again.
			intervalIndex = e.searchSpace.IndexAt(cursor.Offset)
			if intervalIndex < 0 {
				log.Panicf("cursor offset (%d) is no longer part of the search space", cursor.Offset)
			}

			skip := e.shouldSkipIndirectBlock(fr, window)

			if skip {
				e.buffer.MaskCurrentBlock()

				cerr := e.searchSpace.ConsumeBlock(intervalIndex, cursor.Offset, uint64(e.Options.Blocksize))
				log.PanicIf(cerr)

				fr.appendBlock(cursor.Offset, false)
				res = DataCheckContinue

				if e.Options.Verbose > 1 {
					fmt.Printf("skipping indirect block at offset %d\n", cursor.Offset)
				}
			} else {
				dcWindow := make([]byte, 0, 2*e.Options.Blocksize)
				dcWindow = append(dcWindow, lookbehind...)
				dcWindow = append(dcWindow, window[:e.Options.Blocksize]...)

				if fr.DataCheck != nil {
					res = fr.DataCheck(dcWindow, fr)
				} else {
					res = DataCheckContinue
				}

				if res == DataCheckContinue {
					if fr.handle != nil {
						_, werr := fr.handle.Write(window[:e.Options.Blocksize])
						if werr != nil {
							if isFileTooBig(werr) {
								res = DataCheckStop
							} else {
								fmt.Printf("cannot write to file %s: %v\n", fr.Filename, werr)
								fatalENOSPC = true
							}
						}
					}
				}

				if fatalENOSPC {
					e.abortActiveFile(fr)
					return PStatusENOSPC, ErrOutputFull
				}

				if res == DataCheckContinue {
					cerr := e.searchSpace.ConsumeBlock(intervalIndex, cursor.Offset, uint64(e.Options.Blocksize))
					log.PanicIf(cerr)

					fr.appendBlock(cursor.Offset, true)
				}
			}

			if res != DataCheckStop && res != DataCheckError && fr.Stat.MaxFileSize > 0 && fr.FileSize >= fr.Stat.MaxFileSize {
				res = DataCheckStop
			}

			if res != DataCheckStop && res != DataCheckError && e.Options.Filesystem == FilesystemFAT && fr.FileSize+uint64(e.Options.Blocksize) >= fat32MaxSize {
				res = DataCheckStop
			}

			if res == DataCheckStop || res == DataCheckError {
				if res == DataCheckError {
					fr.FileSize = 0
				}

				finalizedName, finalizedStart = fr.Stat.Name, fr.LocationStart

				fstatus, ferr := e.finishFile(fr)
				log.PanicIf(ferr)

				fileRecovered = fstatus
				hadFinalize = true

				if fstatus != PFStatusBad {
					e.Stats[finalizedName]++
				}

				if e.Options.LowMemory {
					e.searchSpace.Forget(intervalIndex)
				}
			}
		}

		var nextCursor Cursor

		if !hadFinalize && res == DataCheckScan {
			// No header was recognized here and no file is active: this
			// block is scanned-but-unclaimed. It still leaves the search
			// space, exactly like a claimed block would; only an explicit
			// return (truncation, abort) ever makes it available again.
			cerr := e.searchSpace.ConsumeBlock(intervalIndex, cursor.Offset, uint64(e.Options.Blocksize))
			log.PanicIf(cerr)

			nextCursor = e.searchSpace.CursorAt(cursor.Offset + uint64(e.Options.Blocksize))
			bs.onForwardProgress(nextCursor.Offset)
		} else if fileRecovered == PFStatusOKTruncated || (fileRecovered == PFStatusOK && !fr.IsActive()) {
			nextCursor = e.decideBacktrack(&bs, cursor, finalizedStart, e.isPossibleTrigger)
		} else {
			// A header was adopted this iteration (or we're still carving
			// uninterrupted and already consumed this block above); keep
			// scanning forward one block.
			nextCursor = e.searchSpace.CursorAt(cursor.Offset + uint64(e.Options.Blocksize))
			bs.onForwardProgress(nextCursor.Offset)
		}

		if nextCursor.AtSentinel() {
			if fr.IsActive() {
				finalizedName, finalizedStart = fr.Stat.Name, fr.LocationStart
			}

			fstatus, ferr := e.finishFile(fr)
			log.PanicIf(ferr)

			if fstatus != PFStatusBad {
				e.Stats[finalizedName]++
				nextCursor = e.searchSpace.FirstAfter(finalizedStart)
			}

			if e.Options.LowMemory {
				e.searchSpace.Forget(intervalIndex)
			}
		}

		discontinuous := hadFinalize || oldOffset+uint64(e.Options.Blocksize) != nextCursor.Offset
		needsRefill := false

		if !discontinuous {
			needsRefill = e.buffer.Advance()
		}

		if discontinuous || needsRefill {
			if rerr := e.buffer.Reset(nextCursor.Offset, !discontinuous); rerr != nil {
				log.PanicIf(rerr)
			}

			if e.buffer.LastReadErr() != nil && e.Options.Verbose > 0 {
				fmt.Printf("read error at offset %d: %v\n", nextCursor.Offset, e.buffer.LastReadErr())
			}
		}

		now := time.Now()
		if now.After(lastTick) {
			lastTick = now

			if e.stopRequested {
				e.abortActiveFile(fr)
				return PStatusStopped, ErrCancelled
			}

			if checkpoint != nil && scheduler.Due(now) {
				saveStart := time.Now()

				cerr := checkpoint(SessionState{
					Phase:     e.Options.Phase,
					Cursor:    nextCursor.Offset,
					Intervals: e.searchSpace.Intervals(),
					Stats:     e.Stats,
				})
				log.PanicIf(cerr)

				scheduler.RecordSave(time.Now(), time.Since(saveStart))
			}
		}

		cursor = nextCursor
	}

	return PStatusOK, nil
}

// shouldSkipIndirectBlock gates the §4.H heuristic on the active phase and
// minimum file size, as specified in §4.D-E step 3.
func (e *Engine) shouldSkipIndirectBlock(fr *FileRecovery, window []byte) bool {
	if e.Options.Phase != PhaseExt2On && e.Options.Phase != PhaseExt2OnSaveEverything {
		return false
	}

	if fr.FileSize < 12*uint64(fr.Blocksize) {
		return false
	}

	return isIndirectBlock(window[:e.Options.Blocksize])
}

func pick(preferred, fallback []byte) []byte {
	if preferred != nil {
		return preferred
	}

	return fallback
}
