package ewf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func noopWarn(string, ...interface{}) {}

func TestEncodeDecodeE01VolumeRoundTrip(t *testing.T) {
	v := newVolumeDescriptor()
	v.MediaType = MediaTypeFixed
	v.MediaFlags = MediaFlagImage | MediaFlagPhysical
	v.ChunkCount = 10
	v.SectorCount = 640
	v.CompressionLevel = CompressionBest
	v.ErrorGranularity = 64

	payload := v.encodeE01Volume([5]byte{})
	require.Len(t, payload, volumeE01Length)

	decoded, err := decodeVolume(payload, noopWarn)
	require.NoError(t, err)
	require.Equal(t, v.MediaType, decoded.MediaType)
	require.Equal(t, v.MediaFlags, decoded.MediaFlags)
	require.Equal(t, v.ChunkCount, decoded.ChunkCount)
	require.Equal(t, v.SectorCount, decoded.SectorCount)
	require.Equal(t, v.CompressionLevel, decoded.CompressionLevel)
	require.Equal(t, v.GUID, decoded.GUID)
}

func TestDecodeS01VolumeRoundTrip(t *testing.T) {
	v := newVolumeDescriptor()
	v.SectorCount = 128
	payload := v.encodeS01Volume()
	require.Len(t, payload, volumeS01Length)

	decoded, err := decodeVolume(payload, noopWarn)
	require.NoError(t, err)
	require.Equal(t, v.SectorsPerChunk, decoded.SectorsPerChunk)
	require.Equal(t, v.BytesPerSector, decoded.BytesPerSector)
	require.Equal(t, v.SectorCount, decoded.SectorCount)
}

func TestNormalizeVolumeZeroChunkCount(t *testing.T) {
	v := &VolumeDescriptor{}
	normalizeVolume(v, noopWarn)
	require.Equal(t, uint32(1), v.ChunkCount)
	require.Equal(t, uint32(defaultBytesPerSector), v.BytesPerSector)
	require.Equal(t, uint32(defaultSectorsPerChunk), v.SectorsPerChunk)
}

func TestChunkSize(t *testing.T) {
	v := &VolumeDescriptor{SectorsPerChunk: 64, BytesPerSector: 512}
	require.Equal(t, uint32(64*512), v.ChunkSize())
}
