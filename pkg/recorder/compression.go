package recorder

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// CompressionType defines the compression applied to a snapshot file.
type CompressionType int

const (
	// NoCompression writes plain JSON.
	NoCompression CompressionType = iota
	// ZstdCompression writes Zstandard-compressed JSON.
	ZstdCompression
)

// ZstdExtension marks snapshot files written with ZstdCompression.
const ZstdExtension = ".zst"

func (c CompressionType) String() string {
	switch c {
	case NoCompression:
		return "none"
	case ZstdCompression:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompression parses "none" or "zstd". "auto" and "" select by the path suffix.
func ParseCompression(name, path string) (CompressionType, error) {
	switch strings.ToLower(name) {
	case "", "auto":
		return CompressionForPath(path), nil
	case "none":
		return NoCompression, nil
	case "zstd":
		return ZstdCompression, nil
	default:
		return NoCompression, errors.Errorf("unknown compression %q", name)
	}
}

// CompressionForPath returns ZstdCompression for paths ending in ZstdExtension.
func CompressionForPath(path string) CompressionType {
	if strings.HasSuffix(path, ZstdExtension) {
		return ZstdCompression
	}
	return NoCompression
}

// zstdMagic starts every Zstandard frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// DetectCompression peeks at the start of r and reports ZstdCompression when it holds a
// Zstandard frame. Nothing is consumed from r.
func DetectCompression(r *bufio.Reader) CompressionType {
	header, err := r.Peek(len(zstdMagic))
	if err != nil || !bytes.Equal(header, zstdMagic) {
		return NoCompression
	}
	return ZstdCompression
}

// nopWriteCloser lets uncompressed output share the close path of compressed output.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// newCompressedWriter returns a writer compressing into w. Closing it flushes the compressor
// but does not close w.
func newCompressedWriter(w io.Writer, compressionType CompressionType) (io.WriteCloser, error) {
	if compressionType == NoCompression {
		return nopWriteCloser{Writer: w}, nil
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return encoder, nil
}

// newCompressedReader returns a reader decompressing r.
func newCompressedReader(r io.Reader, compressionType CompressionType) (io.ReadCloser, error) {
	if compressionType == NoCompression {
		return io.NopCloser(r), nil
	}

	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return decoder.IOReadCloser(), nil
}
