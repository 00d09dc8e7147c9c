package ewf

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// CompressionLevel 对应规范4.2节的压缩级别枚举。
type CompressionLevel int

const (
	CompressionNone CompressionLevel = iota
	CompressionFast
	CompressionBest
	CompressionDefault
)

// zlibLevel 把格式层面的枚举映射到 zlib 级别常量，按规范4.2节的表
// {none, fast, best, default} -> {0, 1, 9, 1}。
func (l CompressionLevel) zlibLevel() int {
	switch l {
	case CompressionNone:
		return zlib.NoCompression
	case CompressionFast:
		return zlib.BestSpeed
	case CompressionBest:
		return zlib.BestCompression
	case CompressionDefault:
		return zlib.BestSpeed
	default:
		return zlib.BestSpeed
	}
}

// compress 对 src 执行 deflate 压缩，返回压缩后的字节与实际大小。
// 使用 klauspost/compress 的 zlib 实现而非标准库：与 distr1/distri、
// KarpelesLab/squashfs、rclone/rclone 等分段式存储格式库一致，
// 该实现在大块数据上显著更快，且对外接口与标准库 compress/zlib 同构，
// 可以直接替换。
func compress(src []byte, level CompressionLevel) ([]byte, int, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level.zlibLevel())
	if err != nil {
		return nil, 0, newErr("compress", KindCompressionFailed, err)
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, 0, newErr("compress", KindCompressionFailed, err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, newErr("compress", KindCompressionFailed, err)
	}
	return buf.Bytes(), buf.Len(), nil
}

// decompress 将 src 解压进 dst，返回实际写入的字节数。三种结果通过
// 错误种类区分：成功（nil）、数据损坏（KindDecompressionDataError，
// 调用方应将该块清零并计入CRC错误集合）、目标缓冲区不足
// （KindDecompressionBufferTooSmall，调用方应扩大缓冲区重试）。
func decompress(src []byte, dst []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, newErr("decompress", KindDecompressionDataError, err)
	}
	defer r.Close()

	n := 0
	for {
		if n == len(dst) {
			// 目标已满，探测是否还有剩余数据未写出。
			var probe [1]byte
			if _, perr := io.ReadFull(r, probe[:]); perr == nil {
				return n, newErr("decompress", KindDecompressionBufferTooSmall, nil)
			}
			break
		}
		m, rerr := r.Read(dst[n:])
		n += m
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return n, newErr("decompress", KindDecompressionDataError, rerr)
		}
	}
	return n, nil
}

// deflateBound 返回 srcLen 字节经过 deflate 压缩后，目标缓冲区在
// 最坏情况下需要预留的上界，供"缓冲区不足"重试时扩容使用。
func deflateBound(srcLen int) int {
	return srcLen + srcLen/1000 + 128
}
