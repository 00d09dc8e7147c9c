package ewf

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// 媒体类型（规范4.5节、原始实现 ewf_volume.h）。
const (
	MediaTypeRemovable = 0x00
	MediaTypeFixed     = 0x01
	MediaTypeOptical   = 0x03
	MediaTypeLogical   = 0x0e
	MediaTypeRAM       = 0x10
)

// 媒体标志位。
const (
	MediaFlagImage    = 0x01
	MediaFlagPhysical = 0x02
	MediaFlagFastbloc = 0x04
	MediaFlagTableau  = 0x08
)

const (
	defaultSectorsPerChunk = 64
	defaultBytesPerSector  = 512
	volumeE01Length        = 1052
	volumeS01Length        = 94
	maxChunkSize           = 1<<31 - 1
)

// VolumeDescriptor 是 volume/data 部分承载的媒体几何信息（规范3节
// "Volume descriptor"、4.5节）。E01 用1052字节的完整形式，S01 用
// 94字节的精简形式，两者语义同构，通过部分大小区分。
type VolumeDescriptor struct {
	MediaType              uint8
	MediaFlags             uint8
	ChunkCount             uint32
	SectorsPerChunk        uint32
	BytesPerSector         uint32
	SectorCount            uint64
	CompressionLevel       CompressionLevel
	ErrorGranularity       uint32
	GUID                   [16]byte
	Signature              [5]byte // 仅 E01；S01 没有这个字段
}

// ChunkSize 返回 SectorsPerChunk*BytesPerSector，按规范4.5节必须
// 能用31位有符号数表示。
func (v *VolumeDescriptor) ChunkSize() uint32 {
	return v.SectorsPerChunk * v.BytesPerSector
}

func newVolumeDescriptor() *VolumeDescriptor {
	id, _ := uuid.NewRandom()
	var guid [16]byte
	copy(guid[:], id[:])
	return &VolumeDescriptor{
		SectorsPerChunk: defaultSectorsPerChunk,
		BytesPerSector:  defaultBytesPerSector,
		GUID:            guid,
	}
}

// encodeE01Volume 按规范4.5节的1052字节布局序列化卷描述符，末尾
// 附加对前面字节计算的 Adler-32。
func (v *VolumeDescriptor) encodeE01Volume(signature [5]byte) []byte {
	buf := make([]byte, volumeE01Length-4)
	buf[0] = v.MediaType
	// bytes 1..4 unknown/reserved 保持零
	putUint32(buf[4:8], v.ChunkCount)
	putUint32(buf[8:12], v.SectorsPerChunk)
	putUint32(buf[12:16], v.BytesPerSector)
	putUint32(buf[16:20], uint32(v.SectorCount))
	// bytes 20..36 保留
	buf[36] = v.MediaFlags
	// bytes 37..40 填充
	// bytes 40..52 unknown
	buf[52] = uint8(v.CompressionLevel)
	// bytes 53..56 填充
	putUint32(buf[56:60], v.ErrorGranularity)
	// bytes 60..64 填充
	copy(buf[64:80], v.GUID[:])
	// bytes 80..1043 保留
	copy(buf[1043:1048], signature[:])
	return appendAdler32(buf, buf)
}

// encodeS01Volume 按规范4.5节的94字节精简布局序列化卷描述符，
// 字段偏移与 decodeS01Volume 对称，末尾附加 Adler-32。
func (v *VolumeDescriptor) encodeS01Volume() []byte {
	buf := make([]byte, volumeS01Length-4)
	putUint32(buf[4:8], v.SectorsPerChunk)
	putUint32(buf[8:12], v.BytesPerSector)
	putUint32(buf[12:16], uint32(v.SectorCount))
	return appendAdler32(buf, buf)
}

// decodeVolume 解析一个 volume/data 部分的载荷，根据部分大小自动
// 识别 E01（1052字节）还是 S01（94字节）形式；零块数按规范修正为1。
func decodeVolume(payload []byte, warn func(string, ...interface{})) (*VolumeDescriptor, error) {
	switch len(payload) {
	case volumeE01Length:
		return decodeE01Volume(payload, warn)
	case volumeS01Length:
		return decodeS01Volume(payload, warn)
	default:
		return nil, newErr("decodeVolume", KindMissingSection, fmt.Errorf("unexpected volume payload size %d", len(payload)))
	}
}

func decodeE01Volume(payload []byte, warn func(string, ...interface{})) (*VolumeDescriptor, error) {
	if _, ok := verifyAdler32(payload); !ok {
		warn("volume section checksum mismatch")
	}
	v := &VolumeDescriptor{
		MediaType:        payload[0],
		ChunkCount:       getUint32(payload[4:8]),
		SectorsPerChunk:  getUint32(payload[8:12]),
		BytesPerSector:   getUint32(payload[12:16]),
		SectorCount:      uint64(getUint32(payload[16:20])),
		MediaFlags:       payload[36],
		CompressionLevel: CompressionLevel(payload[52]),
		ErrorGranularity: getUint32(payload[56:60]),
	}
	copy(v.GUID[:], payload[64:80])
	copy(v.Signature[:], payload[1043:1048])
	if isAllZero(v.Signature[:]) {
		warn("volume: signature field is all-zero, segment was written by a writer that never set it")
	}
	normalizeVolume(v, warn)
	return v, nil
}

func decodeS01Volume(payload []byte, warn func(string, ...interface{})) (*VolumeDescriptor, error) {
	v := &VolumeDescriptor{
		SectorsPerChunk: getUint32(payload[4:8]),
		BytesPerSector:  getUint32(payload[8:12]),
		SectorCount:     uint64(getUint32(payload[12:16])),
	}
	normalizeVolume(v, warn)
	return v, nil
}

func normalizeVolume(v *VolumeDescriptor, warn func(string, ...interface{})) {
	if v.BytesPerSector == 0 {
		warn("volume: bytes-per-sector is zero, defaulting to %d", defaultBytesPerSector)
		v.BytesPerSector = defaultBytesPerSector
	}
	if v.SectorsPerChunk == 0 {
		warn("volume: sectors-per-chunk is zero, defaulting to %d", defaultSectorsPerChunk)
		v.SectorsPerChunk = defaultSectorsPerChunk
	}
	if v.ChunkCount == 0 {
		warn("volume: chunk count is zero, normalising to 1")
		v.ChunkCount = 1
	}
	if uint64(v.ChunkSize()) > maxChunkSize {
		warn("volume: chunk size %d exceeds 31-bit bound", v.ChunkSize())
	}
}

// isAllZero 是个小工具，用来判断 E01 卷描述符的签名字段是否干脆没写。
func isAllZero(b []byte) bool { return bytes.Count(b, []byte{0}) == len(b) }
