package ewf

import "bytes"

// sectionDescriptorLength 是每个部分固定的76字节描述符大小（规范4.4节）。
const sectionDescriptorLength = 76

// SectionType 是部分类型的封闭枚举，未知类型携带原始16字节标签以便
// 取证场景下原样转储（规范设计笔记："深层的部分类型字符串switch"
// 替换为带原始标签的带标签枚举）。
type SectionType int

const (
	SectionUnknown SectionType = iota
	SectionHeader
	SectionHeader2
	SectionXHeader
	SectionVolume
	SectionDisk
	SectionData
	SectionSectors
	SectionTable
	SectionTable2
	SectionLtree
	SectionSession
	SectionError2
	SectionDigest
	SectionHash
	SectionNext
	SectionDone
)

var sectionTypeNames = map[SectionType]string{
	SectionHeader:  "header",
	SectionHeader2: "header2",
	SectionXHeader: "xheader",
	SectionVolume:  "volume",
	SectionDisk:    "disk",
	SectionData:    "data",
	SectionSectors: "sectors",
	SectionTable:   "table",
	SectionTable2:  "table2",
	SectionLtree:   "ltree",
	SectionSession: "session",
	SectionError2:  "error2",
	SectionDigest:  "digest",
	SectionHash:    "hash",
	SectionNext:    "next",
	SectionDone:    "done",
}

var sectionNameTypes = func() map[string]SectionType {
	m := make(map[string]SectionType, len(sectionTypeNames))
	for t, n := range sectionTypeNames {
		m[n] = t
	}
	return m
}()

func (t SectionType) String() string {
	if n, ok := sectionTypeNames[t]; ok {
		return n
	}
	return "unknown"
}

// sectionTypeOf 将原始16字节、零填充的类型字段映射到 SectionType，
// 未知标签返回 SectionUnknown 并保留原始字节供调用方转储。
func sectionTypeOf(raw [16]byte) SectionType {
	name := string(bytes.TrimRight(raw[:], "\x00"))
	if t, ok := sectionNameTypes[name]; ok {
		return t
	}
	return SectionUnknown
}

func sectionTypeTag(t SectionType) [16]byte {
	var raw [16]byte
	copy(raw[:], sectionTypeNames[t])
	return raw
}

// sectionDescriptor 是规范4.4节定义的76字节部分描述符：16字节类型、
// 8字节下一部分偏移、8字节本部分大小、40字节填充、4字节Adler-32。
type sectionDescriptor struct {
	RawType   [16]byte
	Next      uint64
	Size      uint64
	_         [40]byte
	Checksum  uint32
}

func (d *sectionDescriptor) Type() SectionType { return sectionTypeOf(d.RawType) }

// isTerminal 报告本部分是否是链上的终止部分（next/done），其 Next
// 字段按规范等于自身偏移量。
func (d *sectionDescriptor) isTerminal(ownOffset uint64) bool {
	t := d.Type()
	return (t == SectionNext || t == SectionDone) && d.Next == ownOffset
}

// decodeSectionDescriptor 从一个恰好76字节的缓冲区解析描述符，并按
// 规范校验描述符自身的 Adler-32（覆盖前72字节，初始累加器为1）。
func decodeSectionDescriptor(buf []byte) (*sectionDescriptor, uint32, bool) {
	d := &sectionDescriptor{}
	copy(d.RawType[:], buf[0:16])
	d.Next = getUint64(buf[16:24])
	d.Size = getUint64(buf[24:32])
	d.Checksum = getUint32(buf[72:76])
	computed := adler32Of(buf[0:72])
	return d, computed, computed == d.Checksum
}

// encodeSectionDescriptor 序列化一个描述符为76字节，末尾4字节是对
// 前72字节计算的 Adler-32。描述符本身不记录自己的绝对偏移——那是
// 调用方通过写入位置隐式知道的，所以这里不需要一个 ownOffset 参数。
func encodeSectionDescriptor(t SectionType, next, size uint64) []byte {
	buf := make([]byte, sectionDescriptorLength)
	tag := sectionTypeTag(t)
	copy(buf[0:16], tag[:])
	putUint64(buf[16:24], next)
	putUint64(buf[24:32], size)
	// bytes 32..72 保持零填充
	checksum := adler32Of(buf[0:72])
	putUint32(buf[72:76], checksum)
	return buf
}

// section 是解析后保留在段文件段列表中的记录：类型、本段内的起止
// 绝对偏移，供表重放与边界推导使用（规范3节"Section"实体）。
type section struct {
	Type        SectionType
	RawType     [16]byte
	StartOffset uint64
	EndOffset   uint64
	Next        uint64
}
