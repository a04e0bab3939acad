// Package compress provides the content codecs used for policy-compressed
// blobs.
//
// Deflate is the default. The physical payload stored remotely is the
// codec's output; the logical (uncompressed) length and timestamp travel
// as blob metadata so readers never need to decompress to answer stat
// queries.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses whole blob payloads.
//
// Compress is a single full pass: the upload transport needs a body of
// known length, so streaming output is collected by the caller before
// upload. NewReader wraps the stored payload for decompression.
type Codec interface {
	// Name identifies the codec in logs.
	Name() string

	// Compress writes the compressed form of src to dst.
	Compress(dst io.Writer, src io.Reader) error

	// NewReader returns a reader yielding the decompressed content of r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Deflate is the default codec, backed by klauspost/compress at best
// compression.
type Deflate struct{}

func (Deflate) Name() string { return "deflate" }

func (Deflate) Compress(dst io.Writer, src io.Reader) error {
	fw, err := flate.NewWriter(dst, flate.BestCompression)
	if err != nil {
		return fmt.Errorf("compress: deflate writer: %w", err)
	}
	if _, err := io.Copy(fw, src); err != nil {
		return fmt.Errorf("compress: deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("compress: deflate close: %w", err)
	}
	return nil
}

func (Deflate) NewReader(r io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

// LZ4 trades ratio for speed. Selectable via the directory's WithCodec
// option; both sides of a deployment must agree on the codec.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(dst io.Writer, src io.Reader) error {
	lw := lz4.NewWriter(dst)
	if _, err := io.Copy(lw, src); err != nil {
		return fmt.Errorf("compress: lz4: %w", err)
	}
	if err := lw.Close(); err != nil {
		return fmt.Errorf("compress: lz4 close: %w", err)
	}
	return nil
}

func (LZ4) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}
