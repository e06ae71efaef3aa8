package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/dsoprea/go-logging"

	"github.com/grenier-labs/go-carver"
)

type rootParameters struct {
	ImageFilepath  string `short:"i" long:"image-filepath" description:"File-path of the disk image to scan" required:"true"`
	OutputDir      string `short:"o" long:"output-dir" description:"Directory recovered files are written to" required:"true"`
	SessionFile    string `short:"s" long:"session-filepath" description:"Checkpoint file-path (resumes if it exists)"`
	SectorSize     uint32 `long:"sector-size" description:"Disk sector size in bytes" default:"512"`
	Blocksize      uint32 `long:"blocksize" description:"Carving block size in bytes (defaults to sector size)"`
	Paranoid       bool   `long:"paranoid" description:"Run file_check validation at finalization"`
	LowMemory      bool   `long:"low-memory" description:"Discard interval history eagerly to bound memory use"`
	Ext2Indirect   bool   `long:"ext2-indirect" description:"Enable the ext2/ext3 indirect-block skip heuristic"`
	FilesystemFAT  bool   `long:"fat" description:"Apply the FAT32 4GiB file-size ceiling"`
	Verbose        []bool `short:"v" long:"verbose" description:"Increase logging verbosity (repeatable)"`
}

var rootArguments = new(rootParameters)

func main() {
	defer func() {
		if state := recover(); state != nil {
			err := log.Wrap(state.(error))
			log.PrintError(err)
			os.Exit(-1)
		}
	}()

	p := flags.NewParser(rootArguments, flags.Default)

	_, err := p.Parse()
	if err != nil {
		os.Exit(1)
	}

	err = os.MkdirAll(rootArguments.OutputDir, 0755)
	log.PanicIf(err)

	disk, err := carver.NewImageDiskReader(rootArguments.ImageFilepath, rootArguments.SectorSize)
	log.PanicIf(err)

	defer disk.Close()

	blocksize := rootArguments.Blocksize
	if blocksize == 0 {
		blocksize = rootArguments.SectorSize
	}

	phase := carver.PhaseScan
	if rootArguments.Ext2Indirect {
		phase = carver.PhaseExt2On
	}

	fsKind := carver.FilesystemGeneric
	if rootArguments.FilesystemFAT {
		fsKind = carver.FilesystemFAT
	}

	opts := carver.EngineOptions{
		Blocksize:  blocksize,
		Phase:      phase,
		Filesystem: fsKind,
		Paranoid:   rootArguments.Paranoid,
		LowMemory:  rootArguments.LowMemory,
		Verbose:    len(rootArguments.Verbose),
	}

	var searchSpace *carver.SearchSpace
	var resumeOffset uint64
	var hasResume bool

	if rootArguments.SessionFile != "" {
		if f, openErr := os.Open(rootArguments.SessionFile); openErr == nil {
			state, loadErr := carver.LoadSession(f)
			f.Close()
			log.PanicIf(loadErr)

			searchSpace = carver.NewSearchSpaceFromIntervals(state.Intervals)
			resumeOffset = state.Cursor
			hasResume = true

			fmt.Printf("resumed session at offset %s\n", humanize.Bytes(resumeOffset))
		}
	}

	if searchSpace == nil {
		searchSpace = carver.NewSearchSpace(0, disk.Size()-1)
	}

	registry := carver.NewSyntheticRegistry()

	seq := 0

	setFilename := func(fr *carver.FileRecovery) string {
		seq++

		ext := fr.Extension
		if ext == "" {
			ext = "bin"
		}

		name := fmt.Sprintf("f%07d.%s", seq, ext)
		return filepath.Join(rootArguments.OutputDir, name)
	}

	engine := carver.NewEngine(disk, registry, searchSpace, opts, setFilename)

	engine.OnFileFinish(func(fr *carver.FileRecovery, status carver.PFStatus) {
		if len(rootArguments.Verbose) > 0 {
			fmt.Printf("recovered %s: %s (%s)\n", fr.Filename, humanize.Bytes(fr.FileSize), status)
		}
	})

	var checkpointFn func(carver.SessionState) error
	if rootArguments.SessionFile != "" {
		checkpointFn = func(state carver.SessionState) error {
			tmp := rootArguments.SessionFile + ".tmp"

			f, err := os.Create(tmp)
			if err != nil {
				return err
			}

			if err := carver.SaveSession(f, state); err != nil {
				f.Close()
				return err
			}

			if err := f.Close(); err != nil {
				return err
			}

			return os.Rename(tmp, rootArguments.SessionFile)
		}
	}

	start := time.Now()

	status, err := engine.Run(resumeOffset, hasResume, checkpointFn)
	if err != nil &&
		!errors.Is(err, carver.ErrCancelled) &&
		!errors.Is(err, carver.ErrOutputDenied) &&
		!errors.Is(err, carver.ErrOutputFull) {
		log.PanicIf(err)
	}

	elapsed := time.Since(start)

	fmt.Printf("scan finished: %s (%s elapsed)\n", status, elapsed)

	var total uint64
	for name, count := range engine.Stats {
		fmt.Printf("  %s: %d\n", name, count)
		total += count
	}

	fmt.Printf("total files recovered: %s\n", strconv.FormatUint(total, 10))
}
