package carver

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewImageDiskReader_rejectsNonPowerOfTwoSectorSize(t *testing.T) {
	f, err := ioutil.TempFile("", "carver-disk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer os.Remove(f.Name())
	f.Close()

	_, err = NewImageDiskReader(f.Name(), 500)
	assert.Error(t, err)
}

func TestImageDiskReader_PreadReturnsShortReadAtEOFWithoutError(t *testing.T) {
	f, err := ioutil.TempFile("", "carver-disk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer os.Remove(f.Name())

	content := []byte("abcdef")
	if _, err := f.Write(content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Close()

	idr, err := NewImageDiskReader(f.Name(), 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer idr.Close()

	assert.Equal(t, uint64(len(content)), idr.Size())
	assert.Equal(t, uint32(512), idr.SectorSize())
	assert.Equal(t, f.Name(), idr.Description())

	buf := make([]byte, 16)
	n, err := idr.Pread(buf, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("cdef"), buf[:n])
}
