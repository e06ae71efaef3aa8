package carver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRegistry_Dispatch_matchesRegisteredLiteral(t *testing.T) {
	reg := NewSyntheticRegistry()

	window := make([]byte, 512)
	copy(window, []byte("SYN1"))

	tmpl, ok := reg.Dispatch(window, len(window), nil)

	assert.True(t, ok)
	assert.Equal(t, "syn1", tmpl.Stat.Name)
}

func TestFormatRegistry_Dispatch_noMatchOnUnknownBytes(t *testing.T) {
	reg := NewSyntheticRegistry()

	window := make([]byte, 512)

	_, ok := reg.Dispatch(window, len(window), nil)

	assert.False(t, ok)
}

func TestFormatRegistry_Dispatch_survivesShortWindow(t *testing.T) {
	reg := NewSyntheticRegistry()

	window := []byte{'S'}

	_, ok := reg.Dispatch(window, len(window), nil)

	assert.False(t, ok)
}

func TestFormatRecognizer_literalMatches(t *testing.T) {
	rec := &FormatRecognizer{LiteralOffset: 0, LiteralBytes: []byte("SYN2")}

	assert.True(t, rec.literalMatches([]byte("SYN2rest")))
	assert.False(t, rec.literalMatches([]byte("SYN1rest")))
	assert.False(t, rec.literalMatches([]byte("SY")))
}

func TestFormatRegistry_LogDirectoryEntries_invokesCallback(t *testing.T) {
	reg := NewFormatRegistry()

	var seen []byte

	reg.DirectoryEntryLogger = func(sector []byte) {
		seen = sector
	}

	sector := []byte{1, 2, 3}
	reg.LogDirectoryEntries(sector)

	assert.Equal(t, sector, seen)
}
