package ewf

import (
	"errors"
	"fmt"
)

// Kind 对应规范第7节定义的错误分类。
type Kind int

const (
	// KindInvalidArgument 调用方传入了空值或非法参数。
	KindInvalidArgument Kind = iota + 1
	// KindIO 底层文件I/O失败。
	KindIO
	// KindFormatSignature 文件头签名不匹配。
	KindFormatSignature
	// KindSectionCRC 76字节部分描述符的Adler-32校验失败。
	KindSectionCRC
	// KindPayloadCRC 载荷（volume/table/chunk/error2/hash）的Adler-32校验失败。
	KindPayloadCRC
	// KindCompressionFailed deflate库报告了内存或未定义错误，致命。
	KindCompressionFailed
	// KindDecompressionDataError inflate报告了数据损坏，可归入CRC错误集合恢复。
	KindDecompressionDataError
	// KindDecompressionBufferTooSmall 目标缓冲区不足，调用方应扩容重试。
	KindDecompressionBufferTooSmall
	// KindOutOfRange 块号、偏移量或大小超出边界。
	KindOutOfRange
	// KindMissingSection 缺少必需的部分（volume/table/done）。
	KindMissingSection
	// KindUnsupportedFormat 已知部分类型，但当前构建拒绝处理。
	KindUnsupportedFormat
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindIO:
		return "io error"
	case KindFormatSignature:
		return "format signature mismatch"
	case KindSectionCRC:
		return "section crc mismatch"
	case KindPayloadCRC:
		return "payload crc mismatch"
	case KindCompressionFailed:
		return "compression failed"
	case KindDecompressionDataError:
		return "decompression data error"
	case KindDecompressionBufferTooSmall:
		return "decompression buffer too small"
	case KindOutOfRange:
		return "out of range"
	case KindMissingSection:
		return "missing section"
	case KindUnsupportedFormat:
		return "unsupported format"
	default:
		return "unknown"
	}
}

// Error 是本包返回的带分类错误，支持 errors.Is/errors.As 按 Kind 匹配。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ewf: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("ewf: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 使 errors.Is(err, ewf.ErrSectionCRC) 之类的哨兵比较按 Kind 生效。
func (e *Error) Is(target error) bool {
	var sentinel *sentinelError
	if errors.As(target, &sentinel) {
		return e.Kind == sentinel.kind
	}
	return false
}

func newErr(op string, kind Kind, cause error) error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

type sentinelError struct{ kind Kind }

func (s *sentinelError) Error() string { return s.kind.String() }

// 哨兵错误，供调用方用 errors.Is 判定分类，而不关心具体 Op/Err。
var (
	ErrInvalidArgument             = &sentinelError{KindInvalidArgument}
	ErrIO                          = &sentinelError{KindIO}
	ErrFormatSignature             = &sentinelError{KindFormatSignature}
	ErrSectionCRC                  = &sentinelError{KindSectionCRC}
	ErrPayloadCRC                  = &sentinelError{KindPayloadCRC}
	ErrCompressionFailed           = &sentinelError{KindCompressionFailed}
	ErrDecompressionDataError      = &sentinelError{KindDecompressionDataError}
	ErrDecompressionBufferTooSmall = &sentinelError{KindDecompressionBufferTooSmall}
	ErrOutOfRange                  = &sentinelError{KindOutOfRange}
	ErrMissingSection              = &sentinelError{KindMissingSection}
	ErrUnsupportedFormat           = &sentinelError{KindUnsupportedFormat}
)
