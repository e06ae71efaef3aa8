package carver

import "os"

// FileRecovery tracks the file currently being carved. Exactly one exists
// per engine; Stat == nil means idle (§3).
type FileRecovery struct {
	Stat *FileStat

	// LocationStart is the byte offset where the header was found.
	LocationStart uint64

	// FileSize is bytes committed so far; always a multiple of Blocksize.
	FileSize uint64

	Blocksize uint32

	// Filename is the output path assigned at creation; opaque to the
	// engine beyond existing as a handle for logging and cleanup.
	Filename string

	handle *os.File

	DataCheck DataCheckFunc
	FileCheck FileCheckFunc

	Extension string

	// blockOffsets records the disk offset of every block appended, in
	// order, so truncation (§4.I) can return the right tail to the search
	// space without recomputing it from FileSize alone (blocks may have been
	// skipped by the indirect-block heuristic without affecting FileSize).
	blockOffsets []uint64
}

// IsActive reports whether a file is currently being carved.
func (fr *FileRecovery) IsActive() bool {
	return fr.Stat != nil
}

// reset returns the recovery to the idle state.
func (fr *FileRecovery) reset() {
	*fr = FileRecovery{Blocksize: fr.Blocksize}
}

// appendBlock records that a block at offset was committed to the active
// file (written and consumed from the search space). written indicates
// whether it was actually written to the handle; when it is false (the
// indirect-block heuristic's skip-but-consume case) nothing is recorded: the
// block is neither counted in FileSize nor listed in blockOffsets.
func (fr *FileRecovery) appendBlock(offset uint64, written bool) {
	if written {
		fr.blockOffsets = append(fr.blockOffsets, offset)
		fr.FileSize += uint64(fr.Blocksize)
	}
}
