package ewf

import (
	"encoding/binary"
	"hash/adler32"
)

// 2.1.1/4.1 字节编解码：小端定长整数读写。本包内部统一走这些小函数，
// 而不是到处裸写 binary.LittleEndian，便于在一个地方固定字节序。

func getUint16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func getUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func getUint64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

func putUint16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func putUint32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// adler32Of 计算 data 的 Adler-32，初始累加器为1（标准 Adler-32 起始值，
// 也是格式里俗称"CRC"的那个校验和）。
func adler32Of(data []byte) uint32 {
	return adler32.Checksum(data)
}

// verifyAdler32 校验 data 末尾4字节小端 Adler-32 是否与前面的数据匹配，
// 返回计算值与是否匹配。
func verifyAdler32(data []byte) (computed uint32, ok bool) {
	if len(data) < 4 {
		return 0, false
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	computed = adler32Of(body)
	return computed, computed == getUint32(trailer)
}

// appendAdler32 向 dst 追加 data 的 Adler-32 小端尾部，返回新的切片。
func appendAdler32(dst, data []byte) []byte {
	var trailer [4]byte
	putUint32(trailer[:], adler32Of(data))
	return append(dst, trailer[:]...)
}

// isEmptyBlock 判断 data 是否为单一重复字节（写入端用它决定是否值得
// 对一个块尝试压缩——全零或全某字节的块总能被压缩得更小）。
func isEmptyBlock(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	first := data[0]
	for _, b := range data[1:] {
		if b != first {
			return false
		}
	}
	return true
}

// swapBytePairs 原地交换 data 中每一对相邻字节（奇数长度时最后一字节不动），
// 用于处理 Mac 采集的大端介质镜像。
func swapBytePairs(data []byte) {
	n := len(data) - (len(data) % 2)
	for i := 0; i < n; i += 2 {
		data[i], data[i+1] = data[i+1], data[i]
	}
}
