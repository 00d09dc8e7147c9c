package ewf

import (
	"bytes"
	"crypto/md5"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTripSingleChunk(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "image")

	vol := VolumeParams{SectorsPerChunk: 1, BytesPerSector: 512, SectorCount: 1}
	w, err := Create(base, vol, WithCompressionLevel(CompressionNone))
	require.NoError(t, err)

	data := make([]byte, 512)
	_, err = w.WriteFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	h, err := Open([]string{base}, ModeRead)
	require.NoError(t, err)
	defer h.Close()

	require.Equal(t, uint64(512), h.MediaSize())

	buf := make([]byte, 512)
	n, err := h.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 512, n)
	require.True(t, bytes.Equal(buf, data))

	want := md5.Sum(data)
	stored, _, ok := h.StoredDigest()
	require.True(t, ok)
	require.Equal(t, want, stored)

	computed, finalized := h.ComputedMD5()
	require.True(t, finalized)
	require.Equal(t, want, computed)
}

func TestWriteReadRoundTripMultiChunkCompressed(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "multi")

	vol := VolumeParams{SectorsPerChunk: 4, BytesPerSector: 512, SectorCount: 40}
	w, err := Create(base, vol, WithCompressionLevel(CompressionBest))
	require.NoError(t, err)

	data := make([]byte, 40*512)
	for i := range data {
		data[i] = byte(i % 256)
	}
	_, err = w.WriteFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	h, err := Open([]string{base}, ModeRead)
	require.NoError(t, err)
	defer h.Close()

	got := make([]byte, len(data))
	n, err := h.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.True(t, bytes.Equal(got, data))
}

func TestWriteReadTwoSegmentSplit(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "split")

	vol := VolumeParams{SectorsPerChunk: 1, BytesPerSector: 512, SectorCount: 10}
	w, err := Create(base, vol,
		WithCompressionLevel(CompressionNone),
		WithTargetSegmentSize(4096),
	)
	require.NoError(t, err)

	data := make([]byte, 10*512)
	for i := 0; i < 10; i++ {
		for j := 0; j < 512; j++ {
			data[i*512+j] = byte(i % 256)
		}
	}
	_, err = w.WriteFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	h, err := Open([]string{base}, ModeRead)
	require.NoError(t, err)
	defer h.Close()

	require.GreaterOrEqual(t, len(h.segments), 2, "expected the image to split across at least two segments")

	window := make([]byte, 1024)
	n, err := h.ReadAt(window, 3*512)
	require.NoError(t, err)
	require.Equal(t, 1024, n)
	require.True(t, bytes.Equal(window, data[3*512:3*512+1024]))
}

func TestAddReadErrorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "err2")

	vol := VolumeParams{SectorsPerChunk: 1, BytesPerSector: 512, SectorCount: 1}
	w, err := Create(base, vol, WithFormat(FormatEncase5), WithCompressionLevel(CompressionNone))
	require.NoError(t, err)
	w.AddReadError(100, 8)
	w.AddReadError(4096, 1)

	data := make([]byte, 512)
	_, err = w.WriteFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, w.Finalize())

	h, err := Open([]string{base}, ModeRead)
	require.NoError(t, err)
	defer h.Close()

	got := h.ReadErrors()
	require.Equal(t, []ReadErrorRange{{FirstSector: 100, SectorCount: 8}, {FirstSector: 4096, SectorCount: 1}}, got)
}
