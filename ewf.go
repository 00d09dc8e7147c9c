// Package ewf 读写 Expert Witness Compression Format（EWF / E01 / S01 /
// Ex01）：一种分段、分块、带校验和的取证磁盘镜像容器，随镜像一起
// 保存案例元数据、扇区错误表与 MD5/SHA-1 摘要。
//
// Handle 把物理上分布在多个段文件里的字节，作为一个逻辑扁平设备
// 暴露给调用方做任意偏移的随机读取。
package ewf

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// OpenMode 对应规范6节的打开标志枚举。
type OpenMode int

const (
	ModeRead OpenMode = iota
	ModeWrite
	ModeReadWrite
	ModeResume
)

// Handle 是规范3节"容器句柄"实体：根所有者，持有媒体几何、段文件
// 集合、偏移表、块缓存与已解析的头部信息。按规范5节，句柄不是
// goroutine安全的，调用方需要自行同步。
type Handle struct {
	mode OpenMode

	segments []*segmentFile
	fileType FileType
	isE01    bool

	volume    *VolumeDescriptor
	headers   *HeaderValues
	locations []chunkLocation
	readErrors []readErrorRange

	tolerance             ErrorTolerance
	wipeOnReadError        bool
	swapBytePairs          bool

	cache    chunkCache
	crcErrors map[uint64]struct{}

	digest digestState

	offset int64 // 逻辑文件偏移，Seek/Read 维护

	log *logrus.Logger
}

// OpenOption 配置 Open 的行为（规范6节"Compression policy"/容错级别等）。
type OpenOption func(*Handle)

func WithLogger(l *logrus.Logger) OpenOption {
	return func(h *Handle) { h.log = l }
}

func WithErrorTolerance(t ErrorTolerance) OpenOption {
	return func(h *Handle) { h.tolerance = t }
}

func WithWipeBlockOnReadError(wipe bool) OpenOption {
	return func(h *Handle) { h.wipeOnReadError = wipe }
}

func WithByteSwap(swap bool) OpenOption {
	return func(h *Handle) { h.swapBytePairs = swap }
}

// Open 打开一组段文件（显式列出的文件名，或单个基名——后者会展开成
// 整个段文件集，规范4.10/6节）。
func Open(filenames []string, mode OpenMode, opts ...OpenOption) (*Handle, error) {
	if len(filenames) == 0 {
		return nil, newErr("Open", KindInvalidArgument, fmt.Errorf("no filenames given"))
	}
	resolved, err := resolveSegmentFilenames(filenames)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		mode:      mode,
		tolerance: ToleranceCompensate,
		log:       newDefaultLogger(),
		crcErrors: make(map[uint64]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.cache.reset()

	flags := os.O_RDONLY
	if mode == ModeWrite || mode == ModeReadWrite {
		flags = os.O_RDWR
	}

	for i, name := range resolved {
		sf, err := openSegmentFile(name, uint16(i+1), flags)
		if err != nil {
			h.closeOpened()
			return nil, err
		}
		h.segments = append(h.segments, sf)
	}

	if mode == ModeRead || mode == ModeReadWrite || mode == ModeResume {
		if err := h.parse(); err != nil {
			h.closeOpened()
			return nil, err
		}
	}
	return h, nil
}

func (h *Handle) closeOpened() {
	for _, sf := range h.segments {
		sf.close()
	}
}

// resolveSegmentFilenames 接受要么是显式的段文件名列表，要么是单个
// 基名（此时按规范6节的扩展名方案把磁盘上已存在的段文件展开成序列）。
func resolveSegmentFilenames(filenames []string) ([]string, error) {
	if len(filenames) > 1 {
		sorted := append([]string(nil), filenames...)
		sort.Strings(sorted)
		return sorted, nil
	}

	base := filenames[0]
	if _, err := os.Stat(base); err == nil {
		return []string{base}, nil
	}

	dir := filepath.Dir(base)
	stem := strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newErr("resolveSegmentFilenames", KindIO, err)
	}
	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(stem) + `\.[EeLl][0-9A-Za-z]{2}$|^` + regexp.QuoteMeta(stem) + `\.s[0-9]{2}$`)
	var found []string
	for _, e := range entries {
		if pattern.MatchString(e.Name()) {
			found = append(found, filepath.Join(dir, e.Name()))
		}
	}
	if len(found) == 0 {
		return nil, newErr("resolveSegmentFilenames", KindIO, fmt.Errorf("no segment files found for base %q", base))
	}
	sort.Strings(found)
	return found, nil
}

// parse 是规范2节"打开时的控制流"：打开段1，读取固定文件头，随后
// 沿部分链循环，按类型分发，遇到 next 前进到下一段文件，遇到 done
// 结束。
func (h *Handle) parse() error {
	var foundVolume, foundDone bool

	for si, seg := range h.segments {
		ft, err := seg.readFileHeader()
		if err != nil {
			return err
		}
		if si == 0 {
			h.fileType = ft
			h.isE01 = ft == FileTypeEvidence
		}

		offset := uint64(fileHeaderLength)
		visited := map[uint64]bool{}
		for {
			if visited[offset] {
				break
			}
			visited[offset] = true

			desc, sec, err := h.readSectionAt(seg, offset)
			if err != nil {
				return err
			}
			seg.sections = append(seg.sections, sec)

			switch sec.Type {
			case SectionVolume, SectionDisk, SectionData:
				// 只有第一次出现的几何描述符生效：continuation 段里
				// 的 "data" 部分是对同一几何信息的重复，而不是更新。
				if !foundVolume {
					payload, err := readSectionPayload(seg, sec)
					if err != nil {
						return err
					}
					vol, err := decodeVolume(payload, h.log.Warnf)
					if err != nil {
						return err
					}
					h.volume = vol
					foundVolume = true
				}
			case SectionHeader, SectionHeader2:
				payload, err := readSectionPayload(seg, sec)
				if err != nil {
					return err
				}
				hv, err := decodeHeaderSection(payload, sec.Type == SectionHeader2)
				if err == nil && h.headers == nil {
					h.headers = hv
				}
			case SectionHash:
				payload, err := readSectionPayload(seg, sec)
				if err == nil {
					h.digest.storedMD5, h.digest.storedSHA1, h.digest.hasStored = decodeHashPayload(payload)
				}
			case SectionDigest:
				payload, err := readSectionPayload(seg, sec)
				if err == nil {
					h.digest.storedMD5, h.digest.storedSHA1, h.digest.hasStored = decodeHashPayload(payload)
				}
			case SectionError2:
				payload, err := readSectionPayload(seg, sec)
				if err == nil {
					if ranges, derr := decodeError2(payload); derr == nil {
						h.readErrors = ranges
					}
				}
			}

			if sec.Type == SectionDone {
				foundDone = true
				break
			}
			if desc.isTerminal(offset) {
				break
			}
			if sec.Next <= offset {
				break
			}
			offset = sec.Next
		}
		if foundDone {
			break
		}
	}

	if !foundVolume {
		return newErr("parse", KindMissingSection, fmt.Errorf("no volume/disk section found"))
	}
	if !foundDone {
		return newErr("parse", KindMissingSection, fmt.Errorf("segment chain ended without a done section"))
	}

	locations, err := buildOffsetTable(h.segments, h.isE01, h.tolerance, h.log.Warnf)
	if err != nil {
		return err
	}
	h.locations = locations
	h.digest.reset()
	return nil
}

// readSectionAt 读取并校验位于 offset 的76字节描述符，返回解析后的
// descriptor 以及追加到段的 section 记录。
func (h *Handle) readSectionAt(seg *segmentFile, offset uint64) (*sectionDescriptor, section, error) {
	buf := make([]byte, sectionDescriptorLength)
	if err := seg.readAt(int64(offset), buf); err != nil {
		return nil, section{}, err
	}
	desc, _, ok := decodeSectionDescriptor(buf)
	if !ok {
		msg := fmt.Errorf("section descriptor checksum mismatch at offset %d in segment %d", offset, seg.number)
		if !h.tolerance.atLeast(ToleranceDataOnly) {
			return nil, section{}, newErr("readSectionAt", KindSectionCRC, msg)
		}
		h.log.Warnf("%v", msg)
	}
	sec := section{
		Type:        desc.Type(),
		RawType:     desc.RawType,
		StartOffset: offset,
		EndOffset:   offset + desc.Size,
		Next:        desc.Next,
	}
	return desc, sec, nil
}

// Close 关闭句柄拥有的全部段文件并释放缓存缓冲区。
func (h *Handle) Close() error {
	var firstErr error
	for _, sf := range h.segments {
		if err := sf.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	h.cache.reset()
	h.cache.payload = nil
	h.cache.scratch = nil
	return firstErr
}

// Seek 设置逻辑文件偏移，返回新偏移量（规范4.10节）。
func (h *Handle) Seek(offset int64) (int64, error) {
	if offset < 0 {
		return h.offset, newErr("Seek", KindOutOfRange, fmt.Errorf("negative offset %d", offset))
	}
	h.offset = offset
	return h.offset, nil
}

// MediaSize 返回逻辑镜像的总字节数。
func (h *Handle) MediaSize() uint64 {
	if h.volume == nil {
		return 0
	}
	return h.volume.SectorCount * uint64(h.volume.BytesPerSector)
}

// Volume 返回已解析的媒体几何信息，未解析时为 nil。
func (h *Handle) Volume() *VolumeDescriptor { return h.volume }

// Headers 返回已解析的案例元数据，未解析时为 nil。
func (h *Handle) Headers() *HeaderValues { return h.headers }

// ReadErrorRange 是 error2 部分里一条采集期扇区错误记录。
type ReadErrorRange struct {
	FirstSector uint32
	SectorCount uint32
}

// ReadErrors 返回 error2 部分记录的采集期扇区错误区间（若存在）。
func (h *Handle) ReadErrors() []ReadErrorRange {
	out := make([]ReadErrorRange, len(h.readErrors))
	for i, r := range h.readErrors {
		out[i] = ReadErrorRange{FirstSector: r.firstSector, SectorCount: r.sectorCount}
	}
	return out
}

// CRCErrorChunks 返回读取过程中发现CRC或解压错误的全局块号集合。
func (h *Handle) CRCErrorChunks() []uint64 {
	out := make([]uint64, 0, len(h.crcErrors))
	for c := range h.crcErrors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
