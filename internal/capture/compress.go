package capture

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how a stored body is compressed. Tags are
// written as the first byte of every blob file.
type CompressionTag uint8

const (
	// CompressionNone stores the body as-is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level.
	CompressionZstd CompressionTag = 2
)

// String returns the configuration name of a tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// Compression policy names accepted by Open. Auto tries zstd and lz4 and
// keeps whichever of zstd, lz4 or none is smallest.
const (
	PolicyAuto = "auto"
)

var errIncompressible = errors.New("data is incompressible")

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("capture: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("capture: zstd decoder initialization failed: " + err.Error())
	}
}

// compress applies policy to data and returns the tag actually used.
// Bodies that do not shrink are stored uncompressed.
func compress(data []byte, policy string) (CompressionTag, []byte, error) {
	switch policy {
	case "none":
		return CompressionNone, data, nil
	case "lz4":
		return orNone(CompressionLZ4, data, compressLZ4)
	case "zstd":
		return orNone(CompressionZstd, data, compressZstd)
	case "", PolicyAuto:
		tag, out, err := orNone(CompressionZstd, data, compressZstd)
		if err != nil {
			return 0, nil, err
		}
		lz4Tag, lz4Out, err := orNone(CompressionLZ4, data, compressLZ4)
		if err != nil {
			return 0, nil, err
		}
		if len(lz4Out) < len(out) {
			return lz4Tag, lz4Out, nil
		}
		return tag, out, nil
	default:
		return 0, nil, fmt.Errorf("unknown compression %q", policy)
	}
}

func orNone(tag CompressionTag, data []byte, fn func([]byte) ([]byte, error)) (CompressionTag, []byte, error) {
	out, err := fn(data)
	if errors.Is(err, errIncompressible) {
		return CompressionNone, data, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return tag, out, nil
}

func decompress(tag CompressionTag, data []byte, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(data) != size {
			return nil, fmt.Errorf("stored body is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	out := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, out, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(data) {
		return nil, errIncompressible
	}
	return out[:n], nil
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}
