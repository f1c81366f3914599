// Package codecx implements an optional transparent decompression
// hook for RESP bulk-string replies: Options.ValueCodec lets a caller
// opt into decoding values a producer compressed before SET, the same
// concern the teacher's RDB string decoder
// (internal/replica/rdb_string.go) handles for compressed RDB
// payloads, now generalized to three pluggable codecs instead of one
// format hard-coded into a parser.
package codecx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	lzf "github.com/zhuyie/golzf"
)

// ValueCodec decodes a compressed bulk-string payload back to its
// original bytes. Nil means "no codec" — bulk strings pass through
// unmodified, the core's default.
type ValueCodec interface {
	Decode(compressed []byte) ([]byte, error)
}

// ByName resolves one of the three built-in codecs by the name
// config.Options.ValueCodec carries ("zstd", "lz4", "lzf"), or returns
// nil, false for "" / an unrecognised name.
func ByName(name string) (ValueCodec, bool) {
	switch name {
	case "zstd":
		return ZstdCodec{}, true
	case "lz4":
		return LZ4Codec{}, true
	case "lzf":
		return LZFCodec{}, true
	default:
		return nil, false
	}
}

// ZstdCodec decodes zstd-compressed values, wired to
// github.com/klauspost/compress/zstd (a teacher go.mod dependency).
type ZstdCodec struct{}

func (ZstdCodec) Decode(compressed []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codecx: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("codecx: zstd decode: %w", err)
	}
	return out, nil
}

// LZ4Codec decodes LZ4-framed values, wired to
// github.com/pierrec/lz4/v4 (a teacher go.mod dependency).
type LZ4Codec struct{}

func (LZ4Codec) Decode(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codecx: lz4 decode: %w", err)
	}
	return out, nil
}

// LZFCodec decodes LZF-compressed values, wired to
// github.com/zhuyie/golzf — the same library and decode shape the
// teacher's RDB string decoder uses, adapted from a fixed dstLen
// (known from the RDB header) to a grow-and-retry loop since a RESP
// bulk string carries no separate uncompressed-length field.
type LZFCodec struct{}

func (LZFCodec) Decode(compressed []byte) ([]byte, error) {
	dstLen := len(compressed) * 4
	if dstLen < 64 {
		dstLen = 64
	}
	for attempt := 0; attempt < 8; attempt++ {
		dst := make([]byte, dstLen)
		n, err := lzf.Decompress(compressed, dst)
		if err == nil {
			return dst[:n], nil
		}
		dstLen *= 2
	}
	return nil, fmt.Errorf("codecx: lzf decode: output did not fit after growing buffer")
}
