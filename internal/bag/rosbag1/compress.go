package rosbag1

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// Chunk compression identifiers as stored in chunk records.
const (
	CompressionNone = "none"
	CompressionBZ2  = "bz2"
	CompressionLZ4  = "lz4"
)

// newChunkReader returns a streaming decompressor for a chunk payload.
func newChunkReader(compression string, r io.Reader) (io.Reader, error) {
	switch compression {
	case CompressionNone:
		return r, nil
	case CompressionBZ2:
		return bzip2.NewReader(r), nil
	case CompressionLZ4:
		return lz4.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unsupported chunk compression %q", compression)
	}
}

// compressChunk compresses a finished chunk for writing. bz2 is read-only.
func compressChunk(compression string, data []byte) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		var out bytes.Buffer

		zw := lz4.NewWriter(&out)
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress chunk: %w", err)
		}

		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress chunk: %w", err)
		}

		return out.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported chunk compression %q", compression)
	}
}

// writableCompression normalizes a requested compression for the writer.
func writableCompression(c string) (string, bool) {
	switch c {
	case "", CompressionNone:
		return CompressionNone, true
	case CompressionLZ4:
		return CompressionLZ4, true
	default:
		return "", false
	}
}
