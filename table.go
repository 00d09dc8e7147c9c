package ewf

import "fmt"

// ErrorTolerance 是规范4.6节的4级容错格 None < DataOnly < Compensate < NonFatal。
type ErrorTolerance int

const (
	ToleranceNone ErrorTolerance = iota
	ToleranceDataOnly
	ToleranceCompensate
	ToleranceNonFatal
)

func (t ErrorTolerance) atLeast(min ErrorTolerance) bool { return t >= min }

const tableEntryCompressedFlag = 0x80000000

// tableEntry 是 table/table2 部分里的一条原始记录：最高位标记压缩，
// 低31位是相对 base offset 的字节偏移（规范4.6节）。
type tableEntry struct {
	raw uint32
}

func (e tableEntry) compressed() bool      { return e.raw&tableEntryCompressedFlag != 0 }
func (e tableEntry) relativeOffset() int64 { return int64(e.raw &^ tableEntryCompressedFlag) }

// chunkLocation 是偏移表里每个全局块号对应的已解析位置：所在段、
// 段内绝对字节偏移、压缩标志、大小（规范3节"Offset table"实体）。
type chunkLocation struct {
	segmentIndex int // h.segments 中的下标
	offset       int64
	compressed   bool
	size         int64
}

// decodeTablePayload 解析一个 table/table2 部分的原始载荷：4字节
// 条目数、16字节填充、4字节 base offset、4字节表头本身的 Adler-32
// （覆盖前24字节），随后 entryCount 个4字节条目，E01 格式末尾再跟
// 4字节覆盖条目数组的 Adler-32（规范4.6节、original_source 的
// EWF_TABLE.crc）。
func decodeTablePayload(payload []byte) (entryCount uint32, base int64, entries []tableEntry, trailerPresent bool, err error) {
	const headerLen = 28
	if len(payload) < headerLen {
		return 0, 0, nil, false, newErr("decodeTablePayload", KindMissingSection, fmt.Errorf("table payload too short: %d", len(payload)))
	}
	entryCount = getUint32(payload[0:4])
	base = int64(getUint32(payload[20:24]))
	if adler32Of(payload[0:24]) != getUint32(payload[24:28]) {
		return 0, 0, nil, false, newErr("decodeTablePayload", KindPayloadCRC, fmt.Errorf("table header checksum mismatch"))
	}

	body := payload[headerLen:]
	want := int(entryCount) * 4
	trailerPresent = len(body) >= want+4
	if len(body) < want {
		return 0, 0, nil, false, newErr("decodeTablePayload", KindMissingSection, fmt.Errorf("table has %d entries but only %d bytes of entry data", entryCount, len(body)))
	}
	entries = make([]tableEntry, entryCount)
	for i := 0; i < int(entryCount); i++ {
		entries[i] = tableEntry{raw: getUint32(body[i*4 : i*4+4])}
	}
	return entryCount, base, entries, trailerPresent, nil
}

// buildOffsetTable 按规范4.6节，依次重放每个段的 table/table2 部分，
// 构建按全局块号索引的位置表。除最后一个块外，size[i] =
// offset[i+1]-offset[i]；最后一个块的大小由 table 部分自身的起始偏移
// 推导（块数据之后紧接着的就是 table）。table2 在 E01 中必须与 table 逐条一致，分歧
// 按 tolerance 决定警告还是失败；在 S01 中 table2 是 table 的延续
// 而非复制。
func buildOffsetTable(segs []*segmentFile, isE01 bool, tolerance ErrorTolerance, warn func(string, ...interface{})) ([]chunkLocation, error) {
	var locations []chunkLocation

	for si, seg := range segs {
		for _, sec := range seg.sections {
			if sec.Type != SectionTable {
				continue
			}
			table, err := readTableSection(seg, sec)
			if err != nil {
				return nil, err
			}
			table2, hasTable2, err := findMatchingTable2(seg, sec)
			if err != nil {
				return nil, err
			}
			if hasTable2 {
				if isE01 {
					if err := compareTables(table.entries, table2.entries, tolerance, warn); err != nil {
						return nil, err
					}
				} else {
					// S01: table2 延续 table，而非复制；简单拼接。
					table.entries = append(table.entries, table2.entries...)
				}
			}

			// sectors 载荷紧邻在 table 之前结束，table 自身的起始偏移
			// 就是最后一个块大小的上界。
			nextSectionStart := sec.StartOffset

			for i, e := range table.entries {
				loc := chunkLocation{
					segmentIndex: si,
					offset:       table.base + e.relativeOffset(),
					compressed:   e.compressed(),
				}
				if i+1 < len(table.entries) {
					next := table.base + table.entries[i+1].relativeOffset()
					loc.size = next - loc.offset
				} else {
					loc.size = int64(nextSectionStart) - loc.offset
				}
				if loc.size <= 0 {
					msg := fmt.Sprintf("chunk %d in segment %d has non-positive size %d", len(locations), seg.number, loc.size)
					if !tolerance.atLeast(ToleranceNonFatal) {
						return nil, newErr("buildOffsetTable", KindOutOfRange, fmt.Errorf("%s", msg))
					}
					warn(msg)
				}
				locations = append(locations, loc)
			}
		}
	}
	return locations, nil
}

type decodedTable struct {
	base    int64
	entries []tableEntry
}

func readTableSection(seg *segmentFile, sec section) (*decodedTable, error) {
	payload, err := readSectionPayload(seg, sec)
	if err != nil {
		return nil, err
	}
	_, base, entries, _, err := decodeTablePayload(payload)
	if err != nil {
		return nil, err
	}
	return &decodedTable{base: base, entries: entries}, nil
}

func findMatchingTable2(seg *segmentFile, table section) (*decodedTable, bool, error) {
	// table2 紧随其对应的 table 出现在同一段的部分列表中。
	for i, s := range seg.sections {
		if s.StartOffset != table.StartOffset {
			continue
		}
		if i+1 < len(seg.sections) && seg.sections[i+1].Type == SectionTable2 {
			t2, err := readTableSection(seg, seg.sections[i+1])
			if err != nil {
				return nil, false, err
			}
			return t2, true, nil
		}
		break
	}
	return nil, false, nil
}

func compareTables(a, b []tableEntry, tolerance ErrorTolerance, warn func(string, ...interface{})) error {
	mismatch := len(a) != len(b)
	if !mismatch {
		for i := range a {
			if a[i].raw != b[i].raw {
				mismatch = true
				break
			}
		}
	}
	if !mismatch {
		return nil
	}
	if !tolerance.atLeast(ToleranceDataOnly) {
		return newErr("compareTables", KindPayloadCRC, fmt.Errorf("table2 disagrees with table"))
	}
	warn("table2 disagrees with table, continuing per error tolerance")
	return nil
}

// readSectionPayload 读出某部分除76字节描述符外的全部载荷字节。
func readSectionPayload(seg *segmentFile, sec section) ([]byte, error) {
	n := sec.EndOffset - sec.StartOffset - sectionDescriptorLength
	buf := make([]byte, n)
	if err := seg.readAt(int64(sec.StartOffset)+sectionDescriptorLength, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
