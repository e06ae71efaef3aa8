package carver

import (
	"io"
	"os"
	"reflect"

	"github.com/dsoprea/go-logging"
)

// DiskReader is the positioned-read capability the engine consumes. Disk
// geometry probing, partition discovery, and the choice of backend (raw
// device, image file, expert-witness format) are the embedder's concern; the
// engine reads the media only through Pread.
type DiskReader interface {
	// Pread reads up to len(buf) bytes starting at offset. Short reads are
	// permitted; the returned count may be less than len(buf), including on
	// EOF, and is not itself an error.
	Pread(buf []byte, offset uint64) (n int, err error)

	// SectorSize returns the underlying media's sector size, a power of two.
	SectorSize() uint32

	// Size returns the total addressable byte length.
	Size() uint64

	// Description returns a short human-readable label for logging.
	Description() string
}

// ImageDiskReader is a DiskReader backed by a local file (a raw disk image
// or a dd-style capture).
type ImageDiskReader struct {
	f          *os.File
	sectorSize uint32
	size       uint64
	path       string
}

// NewImageDiskReader opens path and returns a DiskReader over it. sectorSize
// must be a power of two.
func NewImageDiskReader(path string, sectorSize uint32) (idr *ImageDiskReader, err error) {
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

	if sectorSize == 0 || sectorSize&(sectorSize-1) != 0 {
		log.Panicf("sector-size must be a non-zero power of two: (%d)", sectorSize)
	}

	f, err := os.Open(path)
	log.PanicIf(err)

	fi, err := f.Stat()
	log.PanicIf(err)

	idr = &ImageDiskReader{
		f:          f,
		sectorSize: sectorSize,
		size:       uint64(fi.Size()),
		path:       path,
	}

	return idr, nil
}

// Close releases the underlying file handle.
func (idr *ImageDiskReader) Close() error {
	return idr.f.Close()
}

// Pread implements DiskReader.
func (idr *ImageDiskReader) Pread(buf []byte, offset uint64) (n int, err error) {
	n, err = idr.f.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return n, log.Wrap(err)
	}

	return n, nil
}

// SectorSize implements DiskReader.
func (idr *ImageDiskReader) SectorSize() uint32 {
	return idr.sectorSize
}

// Size implements DiskReader.
func (idr *ImageDiskReader) Size() uint64 {
	return idr.size
}

// Description implements DiskReader.
func (idr *ImageDiskReader) Description() string {
	return idr.path
}
