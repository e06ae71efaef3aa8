package carver

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/dsoprea/go-logging"
)

// headerOutcome is the result of probing for a header at the current
// cursor, threading through photorec_check_header/photorec_header_found's
// responsibilities (§4.C, §4.D-E step 2).
type headerOutcome struct {
	// matched indicates a new format was recognized at this offset.
	matched bool

	// tmpl is the recovery template to adopt, if matched and adoption was
	// not deferred.
	tmpl RecoveryTemplate

	// deferred indicates a header matched but adoption was deferred because
	// finalizing the previous file truncated it (§4.D-E step 2); the loop
	// must backtrack instead of adopting on this iteration.
	deferred bool

	// finalized carries the finalization result of the previously-active
	// file, if one was active.
	finalized PFStatus
	hadActive bool
}

// checkHeader implements photorec_check_header + photorec_header_found: it
// probes the registry, honors the TAR streaming bypass, and — on a match —
// finalizes any currently-active file before deciding whether the new header
// can be adopted this iteration.
func (e *Engine) checkHeader(fr *FileRecovery, window []byte, readSize int, lookbehind []byte, offset uint64) (out headerOutcome, status PStatus, err error) {
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

	if fr.IsActive() && fr.Stat.IsTar {
		tarWindow := lookbehind
		if e.registry.TarContinuation(fr, tarWindow) {
			if e.Options.Verbose > 1 {
				fmt.Printf("currently saving a tar file, offset %d\n", offset)
			}

			return headerOutcome{}, PStatusOK, nil
		}
	}

	tmpl, matched := e.registry.Dispatch(window, readSize, lookbehind)
	if !matched {
		return headerOutcome{}, PStatusOK, nil
	}

	out.matched = true
	out.tmpl = tmpl

	if fr.IsActive() {
		if e.Options.Verbose > 1 {
			fmt.Println("a known header has been found, recovery of the previous file is finished")
		}

		finalStatus, ferr := e.finishFile(fr)
		log.PanicIf(ferr)

		out.hadActive = true
		out.finalized = finalStatus

		if finalStatus == PFStatusOKTruncated {
			out.deferred = true
			return out, PStatusOK, nil
		}
	}

	status, err = e.adoptHeader(fr, tmpl, window, offset)
	log.PanicIf(err)

	return out, status, nil
}

// adoptHeader copies the template into fr, assigns a filename, opens the
// write sink if the format wants one, and — for the FAT-directory pseudo-
// format, when Options.Verbose > 0 — logs the directory entries found in this
// sector before returning (§4.D-E step 2).
func (e *Engine) adoptHeader(fr *FileRecovery, tmpl RecoveryTemplate, window []byte, offset uint64) (status PStatus, err error) {
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

	fr.reset()
	fr.Stat = tmpl.Stat
	fr.LocationStart = offset
	fr.Extension = tmpl.Extension
	fr.DataCheck = tmpl.DataCheck
	fr.FileCheck = tmpl.FileCheck

	if e.Options.Verbose > 1 {
		ext := fr.Extension
		if ext == "" {
			ext = fr.Stat.Description
		}

		fmt.Printf("%s header found at offset %d\n", ext, offset)
	}

	if fr.Stat.IsDirectoryPseudoFormat && e.Options.Verbose > 0 {
		e.registry.LogDirectoryEntries(window)
	}

	fr.Filename = e.setFilename(fr)

	if !fr.Stat.Recover {
		return PStatusOK, nil
	}

	opener := e.createFile
	if opener == nil {
		opener = createWithRetry
	}

	handle, openErr := opener(fr.Filename)
	if openErr != nil {
		log.Errorf("cannot create file %s: %v", fr.Filename, openErr)
		return PStatusEACCES, nil
	}

	fr.handle = handle
	return PStatusOK, nil
}

// createWithRetry opens filename for writing, retrying twice with 1s/2s
// backoff. This mirrors the source's fopen_with_retry Windows-antivirus
// workaround, applied unconditionally since the retry is harmless elsewhere
// (§7, §12).
func createWithRetry(filename string) (*os.File, error) {
	f, err := os.Create(filename)
	if err == nil {
		return f, nil
	}

	for _, backoff := range []time.Duration{1 * time.Second, 2 * time.Second} {
		time.Sleep(backoff)

		f, err = os.Create(filename)
		if err == nil {
			return f, nil
		}
	}

	return nil, err
}
