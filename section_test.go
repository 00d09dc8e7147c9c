package ewf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSectionDescriptorRoundTrip(t *testing.T) {
	buf := encodeSectionDescriptor(SectionVolume, 13+76+1052, 76+1052)
	desc, computed, ok := decodeSectionDescriptor(buf)
	require.True(t, ok, "freshly encoded descriptor must verify")
	require.Equal(t, SectionVolume, desc.Type())
	require.Equal(t, uint64(13+76+1052), desc.Next)
	require.Equal(t, adler32Of(buf[0:72]), computed)
}

func TestSectionDescriptorCorruption(t *testing.T) {
	buf := encodeSectionDescriptor(SectionTable, 200, 200)
	buf[5] ^= 0xff
	_, _, ok := decodeSectionDescriptor(buf)
	require.False(t, ok, "corrupted descriptor must fail checksum verification")
}

func TestSectionIsTerminal(t *testing.T) {
	doneOffset := uint64(5000)
	buf := encodeSectionDescriptor(SectionDone, doneOffset, sectionDescriptorLength)
	desc, _, ok := decodeSectionDescriptor(buf)
	require.True(t, ok)
	require.True(t, desc.isTerminal(doneOffset))

	volBuf := encodeSectionDescriptor(SectionVolume, 13+1128, 1128)
	volDesc, _, ok := decodeSectionDescriptor(volBuf)
	require.True(t, ok)
	require.False(t, volDesc.isTerminal(13))
}

func TestSectionTypeUnknownPreservesRawTag(t *testing.T) {
	var raw [16]byte
	copy(raw[:], "mystery")
	require.Equal(t, SectionUnknown, sectionTypeOf(raw))
}
