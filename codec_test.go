package ewf

import "testing"

func TestAdler32RoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	withTrailer := appendAdler32(append([]byte(nil), data...), data)
	computed, ok := verifyAdler32(withTrailer)
	if !ok {
		t.Fatalf("expected adler32 to verify")
	}
	if computed != adler32Of(data) {
		t.Fatalf("computed %d != adler32Of %d", computed, adler32Of(data))
	}
}

func TestVerifyAdler32Mismatch(t *testing.T) {
	data := []byte("hello world")
	withTrailer := appendAdler32(append([]byte(nil), data...), data)
	withTrailer[0] ^= 0xff
	if _, ok := verifyAdler32(withTrailer); ok {
		t.Fatalf("expected mismatch after corrupting body")
	}
}

func TestIsEmptyBlock(t *testing.T) {
	if !isEmptyBlock(nil) {
		t.Fatalf("nil block should count as empty")
	}
	if !isEmptyBlock(make([]byte, 512)) {
		t.Fatalf("all-zero block should be empty")
	}
	mixed := make([]byte, 512)
	mixed[10] = 1
	if isEmptyBlock(mixed) {
		t.Fatalf("mixed block should not be empty")
	}
}

func TestSwapBytePairsRoundTrip(t *testing.T) {
	original := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	swapped := append([]byte(nil), original...)
	swapBytePairs(swapped)
	swapBytePairs(swapped)
	if string(swapped) != string(original) {
		t.Fatalf("double swap should be identity, got %x want %x", swapped, original)
	}
	once := append([]byte(nil), original...)
	swapBytePairs(once)
	want := []byte{0x02, 0x01, 0x04, 0x03, 0x05}
	if string(once) != string(want) {
		t.Fatalf("single swap = %x, want %x", once, want)
	}
}

func TestLittleEndianHelpers(t *testing.T) {
	buf := make([]byte, 8)
	putUint16(buf[0:2], 0xABCD)
	if getUint16(buf[0:2]) != 0xABCD {
		t.Fatalf("uint16 round trip failed")
	}
	putUint32(buf[0:4], 0xDEADBEEF)
	if getUint32(buf[0:4]) != 0xDEADBEEF {
		t.Fatalf("uint32 round trip failed")
	}
	putUint64(buf, 0x0102030405060708)
	if getUint64(buf) != 0x0102030405060708 {
		t.Fatalf("uint64 round trip failed")
	}
}
