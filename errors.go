// This package implements a file-carving engine: it scans a disk image for
// recognizable file headers and reconstructs files from the bytes that
// follow, without relying on filesystem metadata.
package carver

import (
	"github.com/dsoprea/go-logging"
)

// Sentinel errors the engine distinguishes. Callers should compare against
// these with errors.Is rather than matching on message text.
var (
	// ErrCancelled indicates the scan was stopped by an external cancellation
	// request.
	ErrCancelled = log.Errorf("carving cancelled")

	// ErrOutputFull indicates a block write failed because the output
	// filesystem ran out of space.
	ErrOutputFull = log.Errorf("output filesystem full")

	// ErrOutputDenied indicates a new recovered-file could not be created.
	ErrOutputDenied = log.Errorf("output file could not be created")

	// ErrEmptySearchSpace indicates the search space has no remaining
	// intervals to scan.
	ErrEmptySearchSpace = log.Errorf("search space is empty")

	// ErrBugAssertion indicates an internal invariant was violated.
	ErrBugAssertion = log.Errorf("carver: internal invariant violated")
)

// PStatus is the per-iteration control status the carving loop returns.
type PStatus int

const (
	// PStatusOK indicates the loop may continue.
	PStatusOK PStatus = iota
	// PStatusStopped indicates cancellation was requested.
	PStatusStopped
	// PStatusEACCES indicates a recovered file could not be opened.
	PStatusEACCES
	// PStatusENOSPC indicates a write to the output filesystem failed.
	PStatusENOSPC
)

// String returns a human-readable label for the status.
func (s PStatus) String() string {
	switch s {
	case PStatusOK:
		return "OK"
	case PStatusStopped:
		return "STOPPED"
	case PStatusEACCES:
		return "EACCES"
	case PStatusENOSPC:
		return "ENOSPC"
	default:
		return "UNKNOWN"
	}
}

// PFStatus is the per-file finalization result.
type PFStatus int

const (
	// PFStatusBad indicates the file was discarded; nothing durable remains.
	PFStatusBad PFStatus = iota
	// PFStatusOK indicates the file was finalized at its full recovered size.
	PFStatusOK
	// PFStatusOKTruncated indicates the file was finalized but shrunk by a
	// file_check hook; the freed blocks were returned to the search space.
	PFStatusOKTruncated
)

// String returns a human-readable label for the finalization result.
func (s PFStatus) String() string {
	switch s {
	case PFStatusBad:
		return "BAD"
	case PFStatusOK:
		return "OK"
	case PFStatusOKTruncated:
		return "OK_TRUNCATED"
	default:
		return "UNKNOWN"
	}
}

// DataCheckResult is the per-block verdict a format's data_check hook
// returns.
type DataCheckResult int

const (
	// DataCheckContinue indicates the block was valid; keep appending.
	DataCheckContinue DataCheckResult = iota
	// DataCheckStop indicates normal end-of-file; finalize with what we have.
	DataCheckStop
	// DataCheckError indicates the content is corrupt; discard the file.
	DataCheckError
	// DataCheckScan indicates no valid content was ever found; abandon
	// without having committed a file at all.
	DataCheckScan
)

// String returns a human-readable label for the data-check verdict.
func (r DataCheckResult) String() string {
	switch r {
	case DataCheckContinue:
		return "CONTINUE"
	case DataCheckStop:
		return "STOP"
	case DataCheckError:
		return "ERROR"
	case DataCheckScan:
		return "SCAN"
	default:
		return "UNKNOWN"
	}
}

// Phase describes the current scanning pass. Some heuristics (notably the
// ext2/ext3 indirect-block skip) are only active during specific phases.
type Phase int

const (
	// PhaseScan is the default, filesystem-agnostic carving pass.
	PhaseScan Phase = iota
	// PhaseExt2On enables the second-extended-family indirect-block
	// heuristic.
	PhaseExt2On
	// PhaseExt2OnSaveEverything enables the same indirect-block heuristic as
	// PhaseExt2On. The engine handles it exactly like PhaseExt2On: formats
	// whose Recover flag is false are still counted only, not written.
	PhaseExt2OnSaveEverything
)
