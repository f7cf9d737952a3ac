package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devgraph/devgraph-go/internal/errs"
)

func TestDecodeUTF8(t *testing.T) {
	s, err := Decode([]byte("héllo wörld"))
	require.NoError(t, err)
	assert.Equal(t, "héllo wörld", s)
}

func TestDecodeStripsBOM(t *testing.T) {
	s, err := Decode(append([]byte{0xEF, 0xBB, 0xBF}, []byte("abc")...))
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
}

func TestDecodeLatin1Fallback(t *testing.T) {
	// 0xE9 is é in Latin-1 and invalid standalone UTF-8.
	s, err := Decode([]byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "café", s)
}

func TestDecodeWindows1252Fallback(t *testing.T) {
	// 0x93/0x94 are curly quotes in Windows-1252 but C1 controls in
	// Latin-1, so the second fallback handles them.
	s, err := Decode([]byte{0x93, 'h', 'i', 0x94})
	require.NoError(t, err)
	assert.Equal(t, "“hi”", s)
}

func TestDecodeBinaryFails(t *testing.T) {
	_, err := Decode([]byte{'a', 0x00, 'b'})
	require.Error(t, err)
	assert.Equal(t, errs.KindDecoding, errs.KindOf(err))
}

func TestDecodeUndefinedWindows1252Byte(t *testing.T) {
	// 0x81 is undefined in Windows-1252 and a C1 control in Latin-1.
	_, err := Decode([]byte{'x', 0x81})
	require.Error(t, err)
	assert.Equal(t, errs.KindDecoding, errs.KindOf(err))
}
