package ewf

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// MD5Context 是规范6节"Hash callbacks"的摘要回调契约：写入器只按
// init/update/finalize驱动它，调用方可以换成硬件加速或其它实现，
// 而不用改动写入规划器本身。
type MD5Context interface {
	Init()
	Update(p []byte)
	Finalize() [16]byte
}

// SHA1Context 是 MD5Context 的20字节对应物，可选。
type SHA1Context interface {
	Init()
	Update(p []byte)
	Finalize() [20]byte
}

// stdMD5Context/stdSHA1Context 是默认回调实现，包装标准库的摘要
// 算法本身——MD5/SHA-1算法在这批例子仓库里从没有被第三方库替换过，
// 只有围绕它的框架会变，所以这里保留 crypto/md5、crypto/sha1 作为
// 具体默认实现。
type stdMD5Context struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func (c *stdMD5Context) Init()           { c.h = md5.New() }
func (c *stdMD5Context) Update(p []byte) { c.h.Write(p) }
func (c *stdMD5Context) Finalize() [16]byte {
	var out [16]byte
	copy(out[:], c.h.Sum(nil))
	return out
}

type stdSHA1Context struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func (c *stdSHA1Context) Init()           { c.h = sha1.New() }
func (c *stdSHA1Context) Update(p []byte) { c.h.Write(p) }
func (c *stdSHA1Context) Finalize() [20]byte {
	var out [20]byte
	copy(out[:], c.h.Sum(nil))
	return out
}

const (
	defaultTargetSegmentSize = 1024 * 1024 * 1024 // 1 GiB，libewf 的常见默认值
	minReservedTail          = sectionDescriptorLength*3 + 64
)

// readErrorRange 是一条由 AddReadError 记录的扇区区间，最终编码进
// error2 部分（规范4.9节、S6场景的补充特性）。
type readErrorRange struct {
	firstSector uint32
	sectorCount uint32
}

// VolumeParams 是创建写入器时调用方提供的媒体几何（规范4.9节 Inputs）。
type VolumeParams struct {
	MediaType       uint8
	MediaFlags      uint8
	SectorsPerChunk uint32
	BytesPerSector  uint32
	SectorCount     uint64
}

// WriteOption 配置写入器的目标格式方言、压缩策略与容错（规范6节
// "Compression policy"/"Format selector"）。
type WriteOption func(*Writer)

func WithFormat(f FormatVariant) WriteOption { return func(w *Writer) { w.format = f } }
func WithDateOrder(o DateOrder) WriteOption  { return func(w *Writer) { w.dateOrder = o } }
func WithTargetSegmentSize(n int64) WriteOption {
	return func(w *Writer) { w.targetSegmentSize = n }
}
func WithCompressionLevel(l CompressionLevel) WriteOption {
	return func(w *Writer) { w.level = l }
}
func WithCompressEmptyBlock(v bool) WriteOption {
	return func(w *Writer) { w.compressEmptyBlock = v }
}
func WithWriteErrorTolerance(t ErrorTolerance) WriteOption {
	return func(w *Writer) { w.tolerance = t }
}
func WithWriteSwapBytePairs(v bool) WriteOption {
	return func(w *Writer) { w.swapBytePairs = v }
}
func WithHeaderValues(h *HeaderValues) WriteOption { return func(w *Writer) { w.headers = h } }
func WithWriteLogger(l *logrus.Logger) WriteOption { return func(w *Writer) { w.log = l } }
func WithMD5Context(c MD5Context) WriteOption      { return func(w *Writer) { w.md5 = c } }
func WithSHA1Context(c SHA1Context) WriteOption    { return func(w *Writer) { w.sha1 = c } }

// pendingEntry 是当前段里累积的一条 table 条目，编码时会转换成相对
// base offset 的 tableEntry。
type pendingEntry struct {
	absOffset  int64
	compressed bool
}

// Writer 实现规范4.9节"写入规划器"：按块填充、按需压缩、按目标段
// 大小分段、收尾时写出 table/table2/error2/hash/digest/done。
type Writer struct {
	baseName string

	format    FormatVariant
	dateOrder DateOrder

	targetSegmentSize  int64
	level              CompressionLevel
	compressEmptyBlock bool
	tolerance          ErrorTolerance
	swapBytePairs      bool

	headers *HeaderValues
	md5     MD5Context
	sha1    SHA1Context

	log *logrus.Logger

	vol      VolumeParams
	fileType FileType
	isE01    bool
	variant  headerVariant

	seg              *segmentFile
	segIndex         uint16
	sectorsDescStart int64 // 当前段 sectors 部分76字节描述符的起始绝对偏移
	dataStart        int64 // 当前段内 sectors 部分载荷的起始绝对偏移——table base
	sectorsLen       int64 // 已写入当前段 sectors 部分的字节数
	pending     []pendingEntry
	globalIdx   uint64
	chunkSize   int
	totalChunks uint64

	errorRanges []readErrorRange

	closed bool
}

// Create 打开（或创建）base name 对应的第一个段文件，按 vol 初始化
// 媒体几何，写出文件头与 header 部分，为第一个 sectors 段做准备。
func Create(baseName string, vol VolumeParams, opts ...WriteOption) (*Writer, error) {
	if baseName == "" {
		return nil, newErr("Create", KindInvalidArgument, fmt.Errorf("base name is empty"))
	}
	if vol.BytesPerSector == 0 || vol.SectorsPerChunk == 0 {
		return nil, newErr("Create", KindInvalidArgument, fmt.Errorf("bytes-per-sector and sectors-per-chunk must be non-zero"))
	}

	w := &Writer{
		baseName:          baseName,
		format:            FormatEwf,
		targetSegmentSize: defaultTargetSegmentSize,
		level:             CompressionDefault,
		tolerance:         ToleranceCompensate,
		headers:           &HeaderValues{},
		md5:               &stdMD5Context{},
		sha1:              &stdSHA1Context{},
		log:               newDefaultLogger(),
		vol:               vol,
		fileType:          FileTypeEvidence,
	}
	for _, o := range opts {
		o(w)
	}
	w.variant = headerVariantTable[w.format]
	w.isE01 = w.format != FormatSmart
	if w.format == FormatSmart {
		w.fileType = FileTypeSMART
	}
	w.chunkSize = int(vol.SectorsPerChunk * vol.BytesPerSector)
	if w.chunkSize <= 0 {
		return nil, newErr("Create", KindInvalidArgument, fmt.Errorf("derived chunk size is non-positive"))
	}
	if vol.SectorCount > 0 {
		w.totalChunks = (vol.SectorCount + uint64(vol.SectorsPerChunk) - 1) / uint64(vol.SectorsPerChunk)
	}
	w.md5.Init()
	if w.sha1 != nil {
		w.sha1.Init()
	}

	if err := w.openSegment(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) extension(index uint16) (string, error) {
	return segmentExtension(w.fileType, index)
}

// openSegment 打开下一个段文件（写入13字节文件头），随后写出
// header（必要时 header2；不写 xheader，headerVariant.xheader 不被使用），
// 随第一个段写 volume，随后续段写 data；两种情况后面都紧跟一个新开始的
// sectors 段的占位。
func (w *Writer) openSegment() error {
	w.segIndex++
	ext, err := w.extension(w.segIndex)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%s", w.baseName, ext)
	sf, err := openSegmentFile(name, w.segIndex, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if err := sf.writeFileHeader(w.fileType); err != nil {
		sf.close()
		return err
	}
	w.seg = sf
	offset := int64(fileHeaderLength)

	if err := w.writeHeaderSections(&offset); err != nil {
		return err
	}
	if err := w.writeGeometrySection(&offset, w.segIndex == 1); err != nil {
		return err
	}

	w.sectorsDescStart = offset
	w.dataStart = offset + sectionDescriptorLength
	w.pending = nil
	w.sectorsLen = 0
	return nil
}

// writeSectorsDescriptor 回填本段 sectors 部分的76字节描述符——大小
// 在块循环结束前是未知的，所以先保留位置，块全部写完后再用实际
// 长度回写（规范5节"写路径内仅 sectors/table 的长度字段被重写一次"）。
func (w *Writer) writeSectorsDescriptor(next uint64) error {
	if len(w.pending) == 0 {
		return nil
	}
	start := uint64(w.sectorsDescStart)
	size := uint64(sectionDescriptorLength) + uint64(w.sectorsLen)
	desc := encodeSectionDescriptor(SectionSectors, next, size)
	if err := w.seg.writeAt(w.sectorsDescStart, desc); err != nil {
		return err
	}
	w.seg.sections = append(w.seg.sections, section{Type: SectionSectors, StartOffset: start, EndOffset: next, Next: next})
	return nil
}

func (w *Writer) appendSection(offset *int64, t SectionType, payload []byte) error {
	start := uint64(*offset)
	size := uint64(sectionDescriptorLength + len(payload))
	next := start + size
	desc := encodeSectionDescriptor(t, next, size)
	buf := append(desc, payload...)
	if err := w.seg.writeAt(*offset, buf); err != nil {
		return err
	}
	w.seg.sections = append(w.seg.sections, section{Type: t, StartOffset: start, EndOffset: next, Next: next})
	*offset = int64(next)
	return nil
}

func (w *Writer) writeHeaderSections(offset *int64) error {
	payload, err := encodeHeaderSection(w.headers, w.dateOrder, w.variant, false, w.level)
	if err != nil {
		return err
	}
	if err := w.appendSection(offset, SectionHeader, payload); err != nil {
		return err
	}
	if w.variant.header2Version > 0 {
		payload2, err := encodeHeaderSection(w.headers, w.dateOrder, w.variant, true, w.level)
		if err != nil {
			return err
		}
		if err := w.appendSection(offset, SectionHeader2, payload2); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeGeometrySection(offset *int64, first bool) error {
	vol := &VolumeDescriptor{
		MediaType:        w.vol.MediaType,
		MediaFlags:       w.vol.MediaFlags,
		ChunkCount:       uint32(w.totalChunks),
		SectorsPerChunk:  w.vol.SectorsPerChunk,
		BytesPerSector:   w.vol.BytesPerSector,
		SectorCount:      w.vol.SectorCount,
		CompressionLevel: w.level,
	}
	if first && vol.ChunkCount == 0 {
		vol.ChunkCount = 1
	}

	var payload []byte
	if w.format == FormatSmart {
		payload = vol.encodeS01Volume()
	} else {
		payload = vol.encodeE01Volume([5]byte{})
	}
	t := SectionVolume
	if !first {
		t = SectionData
	}
	return w.appendSection(offset, t, payload)
}

// reservedTail 估计收尾当前段所需的尾部字节数：table + (E01下的
// table2) + next/done 描述符，外加固定的安全余量，供分段判断使用。
func (w *Writer) reservedTail(entryCountAfterNext int) int64 {
	tableLen := int64(sectionDescriptorLength + 28 + entryCountAfterNext*4 + 4)
	total := tableLen
	if w.isE01 {
		total += tableLen
	}
	total += sectionDescriptorLength // next/done
	total += minReservedTail
	return total
}

// WriteFrom 从 r 里按 chunk size 逐块读取字节，直到 EOF 为止，驱动
// 规范4.9节"每块循环"与分段逻辑。
func (w *Writer) WriteFrom(r io.Reader) (int64, error) {
	if w.closed {
		return 0, newErr("WriteFrom", KindInvalidArgument, fmt.Errorf("writer already finalized"))
	}
	buf := make([]byte, w.chunkSize)
	var total int64
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if err := w.writeChunk(buf[:n]); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			return total, newErr("WriteFrom", KindIO, rerr)
		}
	}
	return total, nil
}

// writeChunk 实现单块的填充/压缩/分段判断/登记，对应规范4.9节逐块循环。
func (w *Writer) writeChunk(raw []byte) error {
	crc := adler32Of(raw)

	var emit []byte
	compressed := false

	emitCompressed := w.format == FormatSmart
	var compBuf []byte
	var compLen int
	if !emitCompressed && w.level != CompressionNone {
		cb, cl, err := compress(raw, w.level)
		if err != nil {
			return err
		}
		compBuf, compLen = cb, cl
		if compLen < len(raw) {
			emitCompressed = true
		}
	}
	if !emitCompressed && w.compressEmptyBlock && isEmptyBlock(raw) {
		if compBuf == nil {
			cb, cl, err := compress(raw, CompressionBest)
			if err != nil {
				return err
			}
			compBuf, compLen = cb, cl
		}
		emitCompressed = true
	}

	if emitCompressed {
		if compBuf == nil {
			cb, cl, err := compress(raw, w.level)
			if err != nil {
				return err
			}
			compBuf, compLen = cb, cl
		}
		emit = compBuf[:compLen]
		compressed = true
	} else {
		emit = appendAdler32(append([]byte(nil), raw...), raw)
	}

	needed := int64(len(emit))
	if w.dataStart+w.sectorsLen+needed+w.reservedTail(len(w.pending)+1) > w.targetSegmentSize && len(w.pending) > 0 {
		if err := w.closeSegmentWithNext(); err != nil {
			return err
		}
		if err := w.openSegment(); err != nil {
			return err
		}
	}

	absOffset := w.dataStart + w.sectorsLen
	if err := w.seg.writeAt(absOffset, emit); err != nil {
		return err
	}
	w.pending = append(w.pending, pendingEntry{absOffset: absOffset, compressed: compressed})
	w.sectorsLen += needed

	w.md5.Update(raw)
	if w.sha1 != nil {
		w.sha1.Update(raw)
	}
	w.globalIdx++
	_ = crc
	return nil
}

// encodeTable 把 pending 条目编码为一份 table/table2 载荷：4字节条目
// 数、16字节填充、4字节 base offset、4字节覆盖前24字节的表头
// Adler-32（共28字节头部），随后每条目4字节，末尾再追加一份覆盖
// 条目数组本身的 Adler-32——与 decodeTablePayload 的解码布局对称
// （规范4.6节、original_source 的 EWF_TABLE.crc）。
func (w *Writer) encodeTable() []byte {
	header := make([]byte, 24)
	putUint32(header[0:4], uint32(len(w.pending)))
	putUint32(header[20:24], uint32(w.dataStart))
	header = appendAdler32(header, header)

	entries := make([]byte, len(w.pending)*4)
	for i, e := range w.pending {
		rel := uint32(e.absOffset - w.dataStart)
		if e.compressed {
			rel |= tableEntryCompressedFlag
		}
		putUint32(entries[i*4:i*4+4], rel)
	}
	body := append(header, entries...)
	return appendAdler32(body, entries)
}

func (w *Writer) writeTableSections(offset *int64) error {
	payload := w.encodeTable()
	if err := w.appendSection(offset, SectionTable, payload); err != nil {
		return err
	}
	if w.isE01 {
		if err := w.appendSection(offset, SectionTable2, payload); err != nil {
			return err
		}
	}
	return nil
}

// closeSegmentWithNext 收尾一个非最终段：写出 sectors 段长度已确定的
// table/table2，随后写 next（next 字段指向自身偏移）。
func (w *Writer) closeSegmentWithNext() error {
	offset := w.dataStart + w.sectorsLen
	if err := w.writeSectorsDescriptor(uint64(offset)); err != nil {
		return err
	}
	if len(w.pending) > 0 {
		if err := w.writeTableSections(&offset); err != nil {
			return err
		}
	}
	nextStart := uint64(offset)
	desc := encodeSectionDescriptor(SectionNext, nextStart, sectionDescriptorLength)
	if err := w.seg.writeAt(offset, desc); err != nil {
		return err
	}
	w.seg.sections = append(w.seg.sections, section{Type: SectionNext, StartOffset: nextStart, EndOffset: nextStart, Next: nextStart})
	return w.seg.close()
}

// supportsError2 报告当前目标格式变体是否会在收尾时写出 error2 部分
// （规范4.9节："Encase3 onward"）。
func (w *Writer) supportsError2() bool {
	switch w.format {
	case FormatEncase3, FormatEncase4, FormatEncase5, FormatEncase6, FormatLinen5, FormatLinen6, FormatEwfx:
		return true
	default:
		return false
	}
}

// AddReadError 记录一段采集时发生读错误的扇区区间（规范4.9节补充
// 特性：error2 部分），在 Finalize 时编码进 error2。
func (w *Writer) AddReadError(firstSector, sectorCount uint32) {
	w.errorRanges = append(w.errorRanges, readErrorRange{firstSector: firstSector, sectorCount: sectorCount})
}

// encodeError2 按 S6 场景编码 error2 部分载荷：4字节记录数 + 其
// Adler-32（8字节头部），随后每条记录 (first_sector, sector_count)
// 各4字节，末尾是覆盖记录数组的 Adler-32。
func encodeError2(ranges []readErrorRange) []byte {
	header := make([]byte, 4)
	putUint32(header, uint32(len(ranges)))
	header = appendAdler32(header, header)

	body := make([]byte, len(ranges)*8)
	for i, r := range ranges {
		putUint32(body[i*8:i*8+4], r.firstSector)
		putUint32(body[i*8+4:i*8+8], r.sectorCount)
	}
	return appendAdler32(append(header, body...), body)
}

// decodeError2 是 encodeError2 的逆运算，供读取路径与测试复用。
func decodeError2(payload []byte) ([]readErrorRange, error) {
	if len(payload) < 8 {
		return nil, newErr("decodeError2", KindMissingSection, fmt.Errorf("error2 payload too short: %d", len(payload)))
	}
	count := getUint32(payload[0:4])
	body := payload[8:]
	want := int(count) * 8
	if len(body) < want {
		return nil, newErr("decodeError2", KindMissingSection, fmt.Errorf("error2 declares %d records but only has %d bytes", count, len(body)))
	}
	ranges := make([]readErrorRange, count)
	for i := range ranges {
		ranges[i] = readErrorRange{
			firstSector: getUint32(body[i*8 : i*8+4]),
			sectorCount: getUint32(body[i*8+4 : i*8+8]),
		}
	}
	return ranges, nil
}

func encodeHash(md5sum [16]byte, sha1sum [20]byte) []byte {
	body := make([]byte, 36)
	copy(body[0:16], md5sum[:])
	copy(body[16:36], sha1sum[:])
	return body
}

// Finalize 收尾最后一个段：table/table2，(Encase3+) error2，
// hash/digest，最后 done。之后写入器不可再用。
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}
	offset := w.dataStart + w.sectorsLen
	if err := w.writeSectorsDescriptor(uint64(offset)); err != nil {
		return err
	}
	if len(w.pending) > 0 {
		if err := w.writeTableSections(&offset); err != nil {
			return err
		}
	}

	if w.supportsError2() && len(w.errorRanges) > 0 {
		payload := encodeError2(w.errorRanges)
		if err := w.appendSection(&offset, SectionError2, payload); err != nil {
			return err
		}
	}

	md5sum := w.md5.Finalize()
	var sha1sum [20]byte
	if w.sha1 != nil {
		sha1sum = w.sha1.Finalize()
	}
	hashPayload := encodeHash(md5sum, sha1sum)
	hashType := SectionHash
	if w.format == FormatEwfx {
		hashType = SectionDigest
	}
	if err := w.appendSection(&offset, hashType, hashPayload); err != nil {
		return err
	}

	doneStart := uint64(offset)
	desc := encodeSectionDescriptor(SectionDone, doneStart, sectionDescriptorLength)
	if err := w.seg.writeAt(offset, desc); err != nil {
		return err
	}
	w.seg.sections = append(w.seg.sections, section{Type: SectionDone, StartOffset: doneStart, EndOffset: doneStart, Next: doneStart})

	w.closed = true
	return w.seg.close()
}

// Close 是 Finalize 的同义词，满足常见的 io.Closer 期望；写入器尚未
// 收尾时调用会先跑完收尾流程再关闭底层文件。
func (w *Writer) Close() error { return w.Finalize() }
