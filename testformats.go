package carver

// This file defines a handful of synthetic formats exercised by the
// package's own tests (engine_test.go) plus a minimal JPEG-shaped format;
// together they double as the runnable default registry for cmd/gocarve. It is not a
// _test.go file because cmd/gocarve imports it directly to seed a default
// registry, and because multiple _test.go files share it.

// syn1MaxBlocks and syn2MinBlocks are the thresholds the two synthetic
// formats' data_check/file_check hooks key off of.
const (
	syn1MaxBlocks = 10
	syn2MinBlocks = 2
	syn2MaxBlocks = 4
)

// NewSyntheticRegistry builds a registry of two toy formats, SYN1 and SYN2,
// used to exercise the header/data/file-check state machine without
// depending on any real file format's byte layout, plus a minimal JPEG
// recognizer for the truncation/embedded-header scenario.
//
// SYN1 headers are the four literal bytes "SYN1"; their data_check continues
// for syn1MaxBlocks blocks and then stops, with no file_check. SYN2 headers
// are "SYN2"; they cap at syn2MaxBlocks blocks and their file_check rejects
// (PFStatusBad) anything shorter than syn2MinBlocks blocks.
func NewSyntheticRegistry() *FormatRegistry {
	reg := NewFormatRegistry()

	syn1 := &FileStat{Name: "syn1", Extension: "syn1", Description: "synthetic format 1", Recover: true}
	syn2 := &FileStat{Name: "syn2", Extension: "syn2", Description: "synthetic format 2", Recover: true}
	jpeg := &FileStat{Name: "jpg", Extension: "jpg", Description: "JPEG image", Recover: true, MaxFileSize: 64 * 1024}

	reg.Register(&FormatRecognizer{
		TriggerOffset: 0,
		TriggerByte:   'S',
		LiteralOffset: 0,
		LiteralBytes:  []byte("SYN1"),
		Stat:          syn1,
		HeaderCheck: func(window []byte, readSize int, lookbehind []byte) (RecoveryTemplate, bool) {
			return RecoveryTemplate{Stat: syn1, Extension: syn1.Extension, DataCheck: syn1DataCheck}, true
		},
	})

	reg.Register(&FormatRecognizer{
		TriggerOffset: 0,
		TriggerByte:   'S',
		LiteralOffset: 0,
		LiteralBytes:  []byte("SYN2"),
		Stat:          syn2,
		HeaderCheck: func(window []byte, readSize int, lookbehind []byte) (RecoveryTemplate, bool) {
			return RecoveryTemplate{Stat: syn2, Extension: syn2.Extension, DataCheck: syn2DataCheck, FileCheck: syn2FileCheck}, true
		},
	})

	reg.Register(&FormatRecognizer{
		TriggerOffset: 0,
		TriggerByte:   0xFF,
		LiteralOffset: 0,
		LiteralBytes:  []byte{0xFF, 0xD8, 0xFF},
		Stat:          jpeg,
		HeaderCheck: func(window []byte, readSize int, lookbehind []byte) (RecoveryTemplate, bool) {
			return RecoveryTemplate{Stat: jpeg, Extension: jpeg.Extension, DataCheck: jpegDataCheck, FileCheck: jpegFileCheck}, true
		},
	})

	return reg
}

func syn1DataCheck(window []byte, fr *FileRecovery) DataCheckResult {
	if fr.FileSize >= syn1MaxBlocks*uint64(fr.Blocksize) {
		return DataCheckStop
	}

	return DataCheckContinue
}

func syn2DataCheck(window []byte, fr *FileRecovery) DataCheckResult {
	if fr.FileSize >= syn2MaxBlocks*uint64(fr.Blocksize) {
		return DataCheckStop
	}

	return DataCheckContinue
}

func syn2FileCheck(fr *FileRecovery) PFStatus {
	if fr.FileSize < syn2MinBlocks*uint64(fr.Blocksize) {
		return PFStatusBad
	}

	return PFStatusOK
}

// jpegEOI is the JPEG end-of-image marker; a real decoder would also track
// segment lengths, but for the truncation scenario this package exercises,
// recognizing the EOI marker within the new block is enough.
var jpegEOI = []byte{0xFF, 0xD9}

func jpegDataCheck(window []byte, fr *FileRecovery) DataCheckResult {
	newBlock := window[len(window)-int(fr.Blocksize):]

	for i := 0; i+1 < len(newBlock); i++ {
		if newBlock[i] == jpegEOI[0] && newBlock[i+1] == jpegEOI[1] {
			return DataCheckStop
		}
	}

	return DataCheckContinue
}

// jpegFileCheck truncates any recovery larger than 32 KiB to exactly 32 KiB,
// modeling a file_check hook
// that found a more trustworthy end-of-image marker earlier in the stream
// than the streaming data_check did.
func jpegFileCheck(fr *FileRecovery) PFStatus {
	const truncateAbove = 32 * 1024

	if fr.FileSize > truncateAbove {
		fr.FileSize = truncateAbove
		return PFStatusOKTruncated
	}

	return PFStatusOK
}
