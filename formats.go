package carver


// FileStat describes a recoverable format.
type FileStat struct {
	// Name is a short identifier, used in logging and as the map key for
	// per-format statistics.
	Name string

	// Extension is the filename extension assigned to recovered files
	// (without a leading dot), e.g. "jpg".
	Extension string

	// Description is a human-readable label for progress/summary output.
	Description string

	// MaxFileSize caps how large a single recovered file may grow, in
	// bytes. Zero means unbounded.
	MaxFileSize uint64

	// Recover indicates whether matches of this format should be
	// materialized to disk. When false, matches are counted but no bytes
	// are written (a "count only" format).
	Recover bool

	// IsDirectoryPseudoFormat marks the FAT-directory special case (§4.D-E
	// step 2): on match, and only when Options.Verbose > 0, the engine logs
	// the directory entries found in the sector via the registry's
	// DirectoryEntryLogger; either way it then proceeds as an ordinary carve.
	IsDirectoryPseudoFormat bool

	// IsTar marks the format used for the TAR streaming bypass (§4.C).
	IsTar bool
}

// HeaderCheckFunc validates a candidate header found at the front of window
// and, on success, fills in the recovery template (extension, data check,
// file check). window has blocksize bytes of lookbehind available before
// index 0, accessible via the dispatcher's Lookbehind parameter.
//
// readSize is the length of window as the engine passes it: the rest of the
// sliding buffer from the cursor, at most ReadSize. It does not track how
// many bytes the last disk read returned; after a short read or near
// end-of-media, the bytes past what was read are zero and still counted.
type HeaderCheckFunc func(window []byte, readSize int, lookbehind []byte) (tmpl RecoveryTemplate, ok bool)

// DataCheckFunc validates each block before it is appended. window holds the
// buffer's lookbehind block (the "old" one) then the new block, matching the
// source's `data_check(buffer_olddata, 2*blocksize, ...)` call; fr.FileSize
// does not yet include the new block.
type DataCheckFunc func(window []byte, fr *FileRecovery) DataCheckResult

// FileCheckFunc is invoked at finalization time (when paranoid checking is
// enabled). It may shrink fr.FileSize (truncation) or zero it (rejection);
// the return value communicates which.
type FileCheckFunc func(fr *FileRecovery) PFStatus

// RecoveryTemplate is what a successful HeaderCheckFunc produces; the
// dispatcher copies it into a fresh FileRecovery on adoption.
type RecoveryTemplate struct {
	Stat      *FileStat
	Extension string
	DataCheck DataCheckFunc
	FileCheck FileCheckFunc
}

// FormatRecognizer is a single registered format: a cheap trigger-byte
// pre-filter plus the authoritative header_check.
type FormatRecognizer struct {
	// TriggerOffset is the byte position within the window this recognizer
	// is indexed on.
	TriggerOffset int

	// TriggerByte is the value window[TriggerOffset] must have for this
	// recognizer to be a candidate.
	TriggerByte byte

	// LiteralOffset/LiteralBytes are matched verbatim against the window
	// before HeaderCheck runs, allowing header_check itself to skip a memcmp
	// it would otherwise repeat.
	LiteralOffset int
	LiteralBytes  []byte

	HeaderCheck HeaderCheckFunc

	Stat *FileStat
}

// literalMatches reports whether the literal prefix (if any) is satisfied.
func (fr *FormatRecognizer) literalMatches(window []byte) bool {
	if len(fr.LiteralBytes) == 0 {
		return true
	}

	end := fr.LiteralOffset + len(fr.LiteralBytes)
	if end > len(window) {
		return false
	}

	for i, b := range fr.LiteralBytes {
		if window[fr.LiteralOffset+i] != b {
			return false
		}
	}

	return true
}

// FormatRegistry is the pluggable library of recognizers the engine
// dispatches against. It is immutable once built and shared across a
// carving session.
type FormatRegistry struct {
	// byTrigger indexes recognizers by (TriggerOffset, TriggerByte) for O(1)
	// pre-filtering, mirroring the source's per-offset 256-bucket tables.
	byTrigger map[int][256][]*FormatRecognizer
	triggers  []int

	// tarRecognizer, if non-nil, backs the TAR streaming bypass (§4.C).
	tarRecognizer *FormatRecognizer

	// DirectoryEntryLogger is invoked when an IsDirectoryPseudoFormat match
	// occurs, with the raw sector bytes (§4.D-E step 2, supplemented from
	// original_source/psearchn.c's photorec_dir_fat).
	DirectoryEntryLogger func(sector []byte)
}

// NewFormatRegistry constructs an empty registry.
func NewFormatRegistry() *FormatRegistry {
	return &FormatRegistry{
		byTrigger: make(map[int][256][]*FormatRecognizer),
	}
}

// Register adds a recognizer to the registry, indexing it by trigger byte.
func (reg *FormatRegistry) Register(rec *FormatRecognizer) {
	buckets, found := reg.byTrigger[rec.TriggerOffset]
	if !found {
		reg.triggers = append(reg.triggers, rec.TriggerOffset)
	}

	buckets[rec.TriggerByte] = append(buckets[rec.TriggerByte], rec)
	reg.byTrigger[rec.TriggerOffset] = buckets

	if rec.Stat != nil && rec.Stat.IsTar {
		reg.tarRecognizer = rec
	}
}

// Dispatch walks the trigger tables in registration order and returns the
// first recognizer whose literal prefix and HeaderCheck both succeed.
func (reg *FormatRegistry) Dispatch(window []byte, readSize int, lookbehind []byte) (tmpl RecoveryTemplate, ok bool) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			// A malformed recognizer (index panic on a too-short window) is
			// treated as "no match", not a fatal error: end-of-media windows
			// are legitimately short.
			_ = errRaw
			ok = false
		}
	}()

	for _, triggerOffset := range reg.triggers {
		if triggerOffset >= len(window) {
			continue
		}

		buckets := reg.byTrigger[triggerOffset]
		candidates := buckets[window[triggerOffset]]

		for _, rec := range candidates {
			if !rec.literalMatches(window) {
				continue
			}

			t, matched := rec.HeaderCheck(window, readSize, lookbehind)
			if matched {
				if t.Stat == nil {
					t.Stat = rec.Stat
				}

				return t, true
			}
		}
	}

	return RecoveryTemplate{}, false
}

// TarContinuation reports whether the block at lookbehind[-0x200:] (the
// block the tar-active file most recently appended) still validates as a
// continuation of the active TAR stream, implementing the streaming bypass
// in §4.C. It returns false if no TAR recognizer was registered.
func (reg *FormatRegistry) TarContinuation(fr *FileRecovery, tarLookbehind []byte) bool {
	if reg.tarRecognizer == nil || fr.Stat == nil || !fr.Stat.IsTar {
		return false
	}

	_, ok := reg.tarRecognizer.HeaderCheck(tarLookbehind, len(tarLookbehind), nil)
	return ok
}

// LogDirectoryEntries invokes the registry's directory-entry logger, if any.
func (reg *FormatRegistry) LogDirectoryEntries(sector []byte) {
	if reg.DirectoryEntryLogger != nil {
		reg.DirectoryEntryLogger(sector)
	}
}
