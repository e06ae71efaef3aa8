package carver

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestEngine(t *testing.T) (*Engine, string) {
	dir, err := ioutil.TempDir("", "carver-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Cleanup(func() { os.RemoveAll(dir) })

	ss := NewSearchSpaceFromIntervals([]Interval{{Start: 0, End: 1 << 20}})

	e := &Engine{
		Options:     EngineOptions{Blocksize: 512},
		searchSpace: ss,
		Stats:       make(map[string]uint64),
	}

	return e, dir
}

func TestEngine_finishFile_discardsEmptyRecovery(t *testing.T) {
	e, _ := newTestEngine(t)

	fr := &FileRecovery{Blocksize: 512, Stat: &FileStat{Name: "syn1", Recover: true}}

	status, err := e.finishFile(fr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, PFStatusBad, status)
	assert.False(t, fr.IsActive())
}

func TestEngine_finishFile_truncatesAndReturnsBlocks(t *testing.T) {
	e, dir := newTestEngine(t)

	path := filepath.Join(dir, "out.syn2")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = f.Write(make([]byte, 4*512))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fr := &FileRecovery{
		Blocksize:    512,
		Stat:         &FileStat{Name: "syn2", Recover: true},
		Filename:     path,
		handle:       f,
		FileSize:     2 * 512,
		blockOffsets: []uint64{0, 512, 1024, 1536},
		FileCheck:    func(*FileRecovery) PFStatus { return PFStatusOKTruncated },
	}

	e.Options.Paranoid = true

	before := e.searchSpace.TotalRemaining()

	status, err := e.finishFile(fr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, PFStatusOKTruncated, status)
	assert.Equal(t, before+1024, e.searchSpace.TotalRemaining())

	fi, statErr := os.Stat(path)
	if statErr != nil {
		t.Fatalf("unexpected error: %v", statErr)
	}

	assert.Equal(t, int64(1024), fi.Size())
}

func TestEngine_abortActiveFile_returnsAllBlocksAndUnlinks(t *testing.T) {
	e, dir := newTestEngine(t)

	path := filepath.Join(dir, "out.syn1")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fr := &FileRecovery{
		Blocksize:    512,
		Stat:         &FileStat{Name: "syn1", Recover: true},
		Filename:     path,
		handle:       f,
		FileSize:     1024,
		blockOffsets: []uint64{0, 512},
	}

	before := e.searchSpace.TotalRemaining()

	e.abortActiveFile(fr)

	assert.False(t, fr.IsActive())
	assert.Equal(t, before+1024, e.searchSpace.TotalRemaining())

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
