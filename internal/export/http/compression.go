package http

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compression type constants.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// contentEncodings maps an algorithm to its Content-Encoding value.
var contentEncodings = map[string]string{
	CompressionGzip:   "gzip",
	CompressionZstd:   "zstd",
	CompressionZlib:   "deflate",
	CompressionSnappy: "snappy",
}

// Compressor compresses request bodies. Payloads shorter than the
// minimum size are sent as-is.
type Compressor struct {
	algorithm string
	minSize   int

	zstd    *zstd.Encoder
	writers sync.Pool
}

// NewCompressor creates a Compressor for algorithm. Payloads below
// minSize bytes are left uncompressed.
func NewCompressor(algorithm string, minSize int) (*Compressor, error) {
	c := &Compressor{algorithm: algorithm, minSize: minSize}

	switch algorithm {
	case CompressionNone, "", CompressionSnappy:
	case CompressionZstd:
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.zstd = encoder
	case CompressionGzip:
		c.writers.New = func() any { return gzip.NewWriter(io.Discard) }
	case CompressionZlib:
		c.writers.New = func() any { return zlib.NewWriter(io.Discard) }
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	return c, nil
}

// Compress returns the body to send and its Content-Encoding, which is
// empty when data was left as-is.
func (c *Compressor) Compress(data []byte) ([]byte, string, error) {
	if len(data) < c.minSize {
		return data, "", nil
	}

	switch c.algorithm {
	case CompressionGzip, CompressionZlib:
		out, err := c.compressStream(data)
		if err != nil {
			return nil, "", err
		}

		return out, contentEncodings[c.algorithm], nil
	case CompressionZstd:
		return c.zstd.EncodeAll(data, make([]byte, 0, len(data)/2)), contentEncodings[CompressionZstd], nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), contentEncodings[CompressionSnappy], nil
	default:
		return data, "", nil
	}
}

// streamWriter is satisfied by both gzip and zlib writers.
type streamWriter interface {
	io.WriteCloser
	Reset(w io.Writer)
}

func (c *Compressor) compressStream(data []byte) ([]byte, error) {
	w, _ := c.writers.Get().(streamWriter)
	defer c.writers.Put(w)

	var buf bytes.Buffer

	buf.Grow(len(data) / 2)
	w.Reset(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("%s write: %w", c.algorithm, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s close: %w", c.algorithm, err)
	}

	return buf.Bytes(), nil
}

// Close releases the zstd encoder.
func (c *Compressor) Close() error {
	if c.zstd != nil {
		return c.zstd.Close()
	}

	return nil
}

// Decompress reverses Compress for the given Content-Encoding. An empty
// encoding returns data unchanged. Collectors under test use it to read
// request bodies.
func Decompress(encoding string, data []byte) ([]byte, error) {
	switch encoding {
	case "":
		return data, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()

		return io.ReadAll(r)
	case "deflate":
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()

		return io.ReadAll(r)
	case "zstd":
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()

		return d.DecodeAll(data, nil)
	case "snappy":
		return snappy.Decode(nil, data)
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}
