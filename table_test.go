package ewf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableEntryCompressedFlag(t *testing.T) {
	e := tableEntry{raw: 1024}
	require.False(t, e.compressed())
	require.Equal(t, int64(1024), e.relativeOffset())

	c := tableEntry{raw: 2048 | tableEntryCompressedFlag}
	require.True(t, c.compressed())
	require.Equal(t, int64(2048), c.relativeOffset())
}

func TestDecodeTablePayloadRoundTrip(t *testing.T) {
	header := make([]byte, 24)
	putUint32(header[0:4], 2)
	putUint32(header[20:24], 1000)
	header = appendAdler32(header, header)

	entries := make([]byte, 8)
	putUint32(entries[0:4], 0)
	putUint32(entries[4:8], 512|tableEntryCompressedFlag)

	payload := appendAdler32(append(header, entries...), entries)

	count, base, decoded, trailerPresent, err := decodeTablePayload(payload)
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)
	require.Equal(t, int64(1000), base)
	require.True(t, trailerPresent)
	require.Len(t, decoded, 2)
	require.False(t, decoded[0].compressed())
	require.True(t, decoded[1].compressed())
	require.Equal(t, int64(512), decoded[1].relativeOffset())
}

func TestDecodeTablePayloadTooShort(t *testing.T) {
	_, _, _, _, err := decodeTablePayload(make([]byte, 10))
	require.True(t, isKind(err, KindMissingSection))
}

func TestCompareTablesToleranceGating(t *testing.T) {
	a := []tableEntry{{raw: 1}, {raw: 2}}
	b := []tableEntry{{raw: 1}, {raw: 3}}

	err := compareTables(a, b, ToleranceNone, noopWarn)
	require.Error(t, err)

	err = compareTables(a, b, ToleranceDataOnly, noopWarn)
	require.NoError(t, err)
}
