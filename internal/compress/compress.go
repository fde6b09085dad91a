// Package compress frames and compresses segment payloads.
//
// A frame is [UncompressedSize uint32][CompressedSize uint32][Data...]. A
// CompressedSize of 0 means the data is stored raw, which happens when
// compression does not pay off.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores payloads uncompressed.
	None Type = 0
	// LZ4 is fast block compression, good for hot data.
	LZ4 Type = 1
	// ZSTD has a better ratio, good for cold data.
	ZSTD Type = 2
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress(%d)", uint8(t))
	}
}

// ParseType parses a configuration name. The empty string is None.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// ErrCorrupt is returned by Decode for malformed frames.
var ErrCorrupt = errors.New("compress: corrupt frame")

const headerSize = 8

// MaxFrameSize bounds the uncompressed size accepted by Decode.
const MaxFrameSize = 1 << 30

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames data, compressing it with t when that saves at least 10%.
func Encode(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0: incompressible
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression %d", t)
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[headerSize:], data)
		return out, nil
	}

	out := make([]byte, headerSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decode reverses Encode. t must be the type the frame was written with.
func Decode(frame []byte, t Type) ([]byte, error) {
	if len(frame) < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	rawSize := binary.LittleEndian.Uint32(frame[0:])
	compSize := binary.LittleEndian.Uint32(frame[4:])
	if rawSize > MaxFrameSize {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrCorrupt, rawSize)
	}
	body := frame[headerSize:]

	if compSize == 0 {
		if uint64(len(body)) != uint64(rawSize) {
			return nil, fmt.Errorf("%w: raw size mismatch", ErrCorrupt)
		}
		return body, nil
	}
	if uint64(len(body)) != uint64(compSize) {
		return nil, fmt.Errorf("%w: compressed size mismatch", ErrCorrupt)
	}

	out := make([]byte, rawSize)
	switch t {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: compressed frame for type %s", ErrCorrupt, t)
	}
}
