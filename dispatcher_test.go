package carver

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine_checkHeader_adoptsNewFormat(t *testing.T) {
	e, dir := newTestEngine(t)
	e.registry = NewSyntheticRegistry()

	seq := 0
	e.setFilename = func(fr *FileRecovery) string {
		seq++
		return dir + "/out.syn1"
	}

	fr := &FileRecovery{Blocksize: 512}

	window := make([]byte, 1024)
	copy(window, []byte("SYN1"))

	out, status, err := e.checkHeader(fr, window, len(window), make([]byte, 512), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, PStatusOK, status)
	assert.True(t, out.matched)
	assert.True(t, fr.IsActive())
	assert.Equal(t, "syn1", fr.Stat.Name)

	if fr.handle != nil {
		fr.handle.Close()
	}
}

func TestEngine_checkHeader_noMatchLeavesStateUnchanged(t *testing.T) {
	e, _ := newTestEngine(t)
	e.registry = NewSyntheticRegistry()

	fr := &FileRecovery{Blocksize: 512}

	window := make([]byte, 1024)

	out, status, err := e.checkHeader(fr, window, len(window), make([]byte, 512), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, PStatusOK, status)
	assert.False(t, out.matched)
	assert.False(t, fr.IsActive())
}

func TestEngine_adoptHeader_reportsEACCESOnCreateFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	e.registry = NewSyntheticRegistry()

	e.setFilename = func(fr *FileRecovery) string {
		return "/nonexistent-dir-xyz/out.syn1"
	}

	fr := &FileRecovery{Blocksize: 512}

	tmpl := RecoveryTemplate{Stat: &FileStat{Name: "syn1", Recover: true}}

	status, err := e.adoptHeader(fr, tmpl, make([]byte, 512), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, PStatusEACCES, status)
}

func TestCreateWithRetry_succeedsImmediatelyWhenWritable(t *testing.T) {
	dir, err := ioutil.TempDir("", "carver-createretry")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer os.RemoveAll(dir)

	f, err := createWithRetry(dir + "/out.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Close()
}
