package ewf

import (
	"fmt"
	"io"
	"os"
)

// fileHeaderLength 是13字节的段文件头：8字节签名 + 1字节字段起始标记
// + 2字节段号 + 2字节字段结束标记（规范4.3节）。
const fileHeaderLength = 13

// FileType 区分物理取证文件与逻辑取证文件，取自文件签名的首字节。
type FileType int

const (
	FileTypeEvidence FileType = iota // E: E01/Ex01
	FileTypeLogical                  // L: L01
	FileTypeSMART                    // s: S01（小写）
)

var (
	evidenceSignature = [8]byte{'E', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}
	logicalSignature  = [8]byte{'L', 'V', 'F', 0x09, 0x0d, 0x0a, 0xff, 0x00}
)

func signatureFor(t FileType) [8]byte {
	switch t {
	case FileTypeLogical:
		return logicalSignature
	default:
		return evidenceSignature
	}
}

func fileTypeOf(sig [8]byte) (FileType, bool) {
	switch sig {
	case evidenceSignature:
		return FileTypeEvidence, true
	case logicalSignature:
		return FileTypeLogical, true
	default:
		return 0, false
	}
}

// segmentFile 是段链中的一个物理文件（规范3节"Segment file"实体）。
// 一次只持有一个打开的 *os.File；描述符被关闭后，reopen 重新打开文件
// 并用记住的偏移量重新定位。Handle 打开时为每个段各保持一个打开的
// 描述符，包内没有按需关闭描述符的逻辑。
type segmentFile struct {
	name    string
	number  uint16
	fType   FileType
	flags   int // os.O_RDONLY / os.O_RDWR 等，reopen 时复用
	file    *os.File
	offset  int64
	sections []section
}

func openSegmentFile(name string, number uint16, flags int) (*segmentFile, error) {
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return nil, newErr("openSegmentFile", KindIO, err)
	}
	return &segmentFile{name: name, number: number, flags: flags, file: f}, nil
}

// reopen 关闭（如果仍打开）并重新获取文件描述符，随后定位回 sf.offset。
// 对应原始实现中的 libewf_segment_file_handle_reopen。
func (sf *segmentFile) reopen() error {
	if sf.file != nil {
		sf.file.Close()
		sf.file = nil
	}
	f, err := os.OpenFile(sf.name, sf.flags, 0o644)
	if err != nil {
		return newErr("reopen", KindIO, err)
	}
	if _, err := f.Seek(sf.offset, io.SeekStart); err != nil {
		f.Close()
		return newErr("reopen", KindIO, err)
	}
	sf.file = f
	return nil
}

func (sf *segmentFile) ensureOpen() error {
	if sf.file == nil {
		return sf.reopen()
	}
	return nil
}

func (sf *segmentFile) seek(offset int64) error {
	if err := sf.ensureOpen(); err != nil {
		return err
	}
	n, err := sf.file.Seek(offset, io.SeekStart)
	if err != nil {
		return newErr("seek", KindIO, err)
	}
	sf.offset = n
	return nil
}

func (sf *segmentFile) readAt(offset int64, buf []byte) error {
	if err := sf.seek(offset); err != nil {
		return err
	}
	if _, err := io.ReadFull(sf.file, buf); err != nil {
		return newErr("readAt", KindIO, err)
	}
	sf.offset += int64(len(buf))
	return nil
}

func (sf *segmentFile) writeAt(offset int64, buf []byte) error {
	if err := sf.seek(offset); err != nil {
		return err
	}
	n, err := sf.file.Write(buf)
	if err != nil {
		return newErr("writeAt", KindIO, err)
	}
	sf.offset += int64(n)
	return nil
}

func (sf *segmentFile) append(buf []byte) error {
	return sf.writeAt(sf.offset, buf)
}

func (sf *segmentFile) close() error {
	if sf.file == nil {
		return nil
	}
	err := sf.file.Close()
	sf.file = nil
	if err != nil {
		return newErr("close", KindIO, err)
	}
	return nil
}

// writeFileHeader 写出13字节段文件头：签名 + 0x01 起始标记 + 段号
// （小端） + 0x0000 结束标记，随后第一个部分从偏移13开始。
func (sf *segmentFile) writeFileHeader(t FileType) error {
	buf := make([]byte, fileHeaderLength)
	sig := signatureFor(t)
	copy(buf[0:8], sig[:])
	buf[8] = 0x01
	putUint16(buf[9:11], sf.number)
	putUint16(buf[11:13], 0)
	if err := sf.writeAt(0, buf); err != nil {
		return err
	}
	sf.fType = t
	return nil
}

// readFileHeader 读取并校验13字节段文件头，返回文件类型。
func (sf *segmentFile) readFileHeader() (FileType, error) {
	buf := make([]byte, fileHeaderLength)
	if err := sf.readAt(0, buf); err != nil {
		return 0, err
	}
	var sig [8]byte
	copy(sig[:], buf[0:8])
	t, ok := fileTypeOf(sig)
	if !ok {
		return 0, newErr("readFileHeader", KindFormatSignature, fmt.Errorf("unrecognised signature %x", sig))
	}
	sf.number = getUint16(buf[9:11])
	sf.fType = t
	return t, nil
}

// segmentExtension 按规范6节的方案为 base 序号生成段文件扩展名：
// 第一字母 'E'/'L'（evidence/logical）大写，'s'（SMART）小写；
// 前99个段用十进制 01..99，之后两个尾随字母按base-26从 AA 开始进位，
// 'A' 代表 0。
func segmentExtension(t FileType, index uint16) (string, error) {
	if index == 0 {
		return "", newErr("segmentExtension", KindOutOfRange, fmt.Errorf("segment index must be >= 1"))
	}
	var letter byte
	switch t {
	case FileTypeLogical:
		letter = 'L'
	case FileTypeSMART:
		return fmt.Sprintf("s%02d", index), nil // S01 族只用小写 s + 十进制序号（至少两位），无字母进位方案
	default:
		letter = 'E'
	}
	if index <= 99 {
		return fmt.Sprintf("%c%02d", letter, index), nil
	}
	// 100 以后进入两位字母区间：EAA, EAB, ..., EAZ, EBA, ...
	n := int(index) - 100
	if n >= 26*26 {
		return "", newErr("segmentExtension", KindOutOfRange, fmt.Errorf("segment index %d exceeds extension space", index))
	}
	first := byte('A' + n/26)
	second := byte('A' + n%26)
	return fmt.Sprintf("%c%c%c", letter, first, second), nil
}
