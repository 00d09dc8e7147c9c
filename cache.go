package ewf

import (
	"crypto/md5"
	"crypto/sha1"
	"fmt"
	"hash"
)

// chunkCache 是规范3节"块缓存"实体：每个句柄恰好缓存一个已解压块。
// 载荷缓冲区只增不缩，原始（可能压缩）缓冲区同样只增不缩；任何一次
// 重新分配都必须让 index 失效（规范4.8/9节的"只增不缩、重分配后
// 失效缓存标识"不变量）。
type chunkCache struct {
	index   uint64
	valid   bool
	payload []byte
	length  int
	scratch []byte
}

func (c *chunkCache) reset() {
	c.valid = false
	c.index = 0
	c.length = 0
}

func (c *chunkCache) ensurePayload(n int) {
	if cap(c.payload) < n {
		c.payload = make([]byte, n)
		c.valid = false // 重分配后缓存标识失效
	} else {
		c.payload = c.payload[:n]
	}
}

func (c *chunkCache) ensureScratch(n int) {
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
		c.valid = false // 重分配后缓存标识失效
	} else {
		c.scratch = c.scratch[:n]
	}
}

// digestState 跟踪逻辑镜像的滚动 MD5/SHA-1，每个块只在第一次被读取
// 时纳入摘要，读完最后一块后定型（规范4.8节第5步）。
type digestState struct {
	md5         hash.Hash
	sha1        hash.Hash
	hashedUpTo  uint64 // 已经按顺序纳入摘要的块数（要求按块号顺序读取才能精确滚动）
	finalized   bool
	computedMD5  [16]byte
	computedSHA1 [20]byte
	storedMD5    [16]byte
	storedSHA1   [20]byte
	hasStored    bool
}

func (d *digestState) reset() {
	d.md5 = md5.New()
	d.sha1 = sha1.New()
	d.hashedUpTo = 0
	d.finalized = false
}

// observe 把顺序读取的块计入摘要；镜像并非总是顺序读取，因此只有
// chunkIndex == hashedUpTo 时才纳入，跳读的镜像不会得到可靠的端到
// 端摘要校验（这与原始实现里"只在顺序采集时计算摘要"的做法一致）。
func (d *digestState) observe(chunkIndex uint64, payload []byte, totalChunks uint64) {
	if d.finalized || chunkIndex != d.hashedUpTo {
		return
	}
	d.md5.Write(payload)
	d.sha1.Write(payload)
	d.hashedUpTo++
	if d.hashedUpTo == totalChunks {
		copy(d.computedMD5[:], d.md5.Sum(nil))
		copy(d.computedSHA1[:], d.sha1.Sum(nil))
		d.finalized = true
	}
}

func decodeHashPayload(payload []byte) (md5sum [16]byte, sha1sum [20]byte, ok bool) {
	if len(payload) < 36 {
		return md5sum, sha1sum, false
	}
	copy(md5sum[:], payload[0:16])
	copy(sha1sum[:], payload[16:36])
	return md5sum, sha1sum, true
}

// Read 从逻辑偏移 h.offset 读取最多 len(dst) 字节，按规范4.8节的
// 算法逐块解析；返回实际读取的字节数，媒体末尾返回短计数。
func (h *Handle) Read(dst []byte) (int, error) {
	n, err := h.ReadAt(dst, h.offset)
	h.offset += int64(n)
	return n, err
}

// ReadAt 是 §4.8 描述的字节粒度随机读：逐块解析，必要时跨越多个块
// 拼出调用方要求的窗口。
func (h *Handle) ReadAt(dst []byte, offset int64) (int, error) {
	if h.volume == nil {
		return 0, newErr("ReadAt", KindInvalidArgument, fmt.Errorf("handle has no parsed volume"))
	}
	chunkSize := int(h.volume.ChunkSize())
	if chunkSize == 0 {
		return 0, newErr("ReadAt", KindInvalidArgument, fmt.Errorf("chunk size is zero"))
	}
	mediaSize := int64(h.MediaSize())
	if offset >= mediaSize {
		return 0, nil
	}
	remaining := dst
	total := 0
	cur := offset

	for len(remaining) > 0 && cur < mediaSize {
		chunkIndex := uint64(cur) / uint64(chunkSize)
		inChunkOffset := int(uint64(cur) % uint64(chunkSize))

		payload, err := h.loadChunk(chunkIndex)
		if err != nil {
			return total, err
		}
		if inChunkOffset >= len(payload) {
			break
		}
		n := copy(remaining, payload[inChunkOffset:])
		remaining = remaining[n:]
		total += n
		cur += int64(n)
	}
	return total, nil
}

// loadChunk 解析第 chunkIndex 个全局块，命中缓存直接返回；否则咨询
// 偏移表、按需扩容原始/载荷缓冲区、解压或校验未压缩载荷、必要时
// 按容错策略处理CRC/解压错误，并把该块计入滚动摘要。
func (h *Handle) loadChunk(chunkIndex uint64) ([]byte, error) {
	if h.cache.valid && h.cache.index == chunkIndex {
		return h.cache.payload[:h.cache.length], nil
	}
	if int(chunkIndex) >= len(h.locations) {
		return nil, newErr("loadChunk", KindOutOfRange, fmt.Errorf("chunk %d out of range (%d known)", chunkIndex, len(h.locations)))
	}
	loc := h.locations[chunkIndex]
	if loc.segmentIndex >= len(h.segments) {
		return nil, newErr("loadChunk", KindOutOfRange, fmt.Errorf("chunk %d references unknown segment", chunkIndex))
	}
	seg := h.segments[loc.segmentIndex]

	chunkSize := int(h.volume.ChunkSize())
	expected := h.expectedChunkPayloadLength(chunkIndex, chunkSize)

	h.cache.ensureScratch(int(loc.size))
	if err := seg.readAt(loc.offset, h.cache.scratch[:loc.size]); err != nil {
		return nil, err
	}

	var payload []byte
	var crcFailed bool

	if loc.compressed {
		h.cache.ensurePayload(chunkSize + 4)
		n, err := decompress(h.cache.scratch[:loc.size], h.cache.payload)
		for isKind(err, KindDecompressionBufferTooSmall) {
			h.cache.ensurePayload(cap(h.cache.payload) * 2)
			n, err = decompress(h.cache.scratch[:loc.size], h.cache.payload)
		}
		if err != nil {
			crcFailed = true
			h.log.Warnf("chunk %d failed to decompress: %v", chunkIndex, err)
			h.cache.ensurePayload(expected)
			n = expected
			for i := range h.cache.payload[:n] {
				h.cache.payload[i] = 0
			}
		}
		payload = h.cache.payload[:n]
	} else {
		raw := h.cache.scratch[:loc.size]
		if len(raw) < expected+4 {
			crcFailed = true
			h.log.Warnf("chunk %d uncompressed payload shorter than expected", chunkIndex)
		} else {
			body := raw[:expected]
			trailer := raw[expected : expected+4]
			if adler32Of(body) != getUint32(trailer) {
				crcFailed = true
				h.log.Warnf("chunk %d checksum mismatch", chunkIndex)
			}
		}
		h.cache.ensurePayload(expected)
		if crcFailed {
			for i := range h.cache.payload {
				h.cache.payload[i] = 0
			}
		} else {
			copy(h.cache.payload, raw[:expected])
		}
		payload = h.cache.payload[:expected]
	}

	if crcFailed {
		h.crcErrors[chunkIndex] = struct{}{}
		if !h.tolerance.atLeast(ToleranceCompensate) {
			return nil, newErr("loadChunk", KindPayloadCRC, fmt.Errorf("chunk %d failed crc verification", chunkIndex))
		}
		if !h.wipeOnReadError {
			return nil, newErr("loadChunk", KindPayloadCRC, fmt.Errorf("chunk %d failed crc verification", chunkIndex))
		}
		// 容忍：payload 已经在上面清零，继续往下走当作读到了全零块。
	}

	totalChunks := uint64(len(h.locations))
	h.digest.observe(chunkIndex, payload, totalChunks)

	if h.swapBytePairs {
		swapBytePairs(payload)
	}

	h.cache.index = chunkIndex
	h.cache.length = len(payload)
	h.cache.valid = true
	return payload, nil
}

// expectedChunkPayloadLength 返回第 chunkIndex 块解压/校验后应有的
// 字节数：除最后一块外等于 chunkSize，最后一块可能因为扇区总数不是
// 整块倍数而更短。
func (h *Handle) expectedChunkPayloadLength(chunkIndex uint64, chunkSize int) int {
	total := int64(h.MediaSize())
	start := int64(chunkIndex) * int64(chunkSize)
	remain := total - start
	if remain <= 0 || remain > int64(chunkSize) {
		return chunkSize
	}
	return int(remain)
}

// ComputedMD5 返回按块号顺序读完全部块后算出的逻辑镜像MD5；在读完
// 最后一块之前返回零值，第二个返回值为 false。
func (h *Handle) ComputedMD5() ([16]byte, bool)  { return h.digest.computedMD5, h.digest.finalized }
func (h *Handle) ComputedSHA1() ([20]byte, bool) { return h.digest.computedSHA1, h.digest.finalized }

// StoredDigest 返回写入端存放在 hash/digest 部分里的摘要（若存在）。
func (h *Handle) StoredDigest() (md5sum [16]byte, sha1sum [20]byte, ok bool) {
	return h.digest.storedMD5, h.digest.storedSHA1, h.digest.hasStored
}
