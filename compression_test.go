package ewf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	src := []byte(strings.Repeat("forensic image chunk data ", 200))
	compressed, n, err := compress(src, CompressionBest)
	require.NoError(t, err)
	require.Less(t, n, len(src), "repetitive input should compress smaller")

	dst := make([]byte, len(src))
	written, err := decompress(compressed[:n], dst)
	require.NoError(t, err)
	require.Equal(t, len(src), written)
	require.Equal(t, src, dst[:written])
}

func TestDecompressBufferTooSmall(t *testing.T) {
	src := []byte(strings.Repeat("x", 4096))
	compressed, n, err := compress(src, CompressionBest)
	require.NoError(t, err)

	dst := make([]byte, 16)
	_, err = decompress(compressed[:n], dst)
	require.True(t, isKind(err, KindDecompressionBufferTooSmall))
}

func TestDecompressDataError(t *testing.T) {
	garbage := []byte{0x00, 0x01, 0x02, 0x03}
	dst := make([]byte, 16)
	_, err := decompress(garbage, dst)
	require.True(t, isKind(err, KindDecompressionDataError))
}

func TestZlibLevelMapping(t *testing.T) {
	require.Equal(t, 0, CompressionNone.zlibLevel())
	require.NotEqual(t, CompressionFast.zlibLevel(), CompressionBest.zlibLevel())
}
