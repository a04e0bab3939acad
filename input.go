package blobdir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/blobdir/cache"
)

// decompressChunkSize is the fixed read size used when inflating a fetched
// payload into the cache file.
const decompressChunkSize = 65535

// freshnessTolerance absorbs timestamp-encoding granularity differences
// between the local and remote stores. Any larger delta forces re-fetch.
const freshnessTolerance = time.Second

// Input is the read stream returned by Directory.OpenInput. After open,
// every operation is served from the local cache file; there is no further
// remote interaction.
type Input interface {
	io.Reader
	io.ByteReader
	io.Seeker
	io.Closer

	// Length returns the logical (uncompressed) file length.
	Length() int64

	// Position returns the current read position.
	Position() int64

	// Clone returns an independent cursor over the same cache file,
	// positioned where this input currently is. A clone that cannot be
	// fully constructed fails explicitly.
	Clone() (Input, error)
}

type input struct {
	dir    *Directory
	name   string
	file   cache.File
	length int64
	pos    int64
	closed bool
}

// openInput ensures a fresh cache entry for name, then opens a local read
// handle over it. Population for a given key is serialized by the per-key
// mutex; unrelated keys proceed in parallel.
func (d *Directory) openInput(ctx context.Context, name string) (*input, error) {
	mu := d.keys.get(name)
	mu.Lock()
	defer mu.Unlock()

	props, err := d.client.GetProperties(ctx, d.container, d.blobKey(name))
	if err != nil {
		return nil, &FileNotFoundError{Name: name, cause: err}
	}

	rawLen := props.RawLength()
	rawMod := props.RawModified()

	if !d.cacheFresh(name, rawLen, rawMod) {
		if err := d.populate(ctx, name, rawMod); err != nil {
			return nil, fmt.Errorf("open input %s: %w", name, err)
		}
	}

	f, err := d.cache.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", name, err)
	}
	length, err := d.cache.Length(name)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open input %s: %w", name, err)
	}

	return &input{
		dir:    d,
		name:   name,
		file:   f,
		length: length,
	}, nil
}

// cacheFresh reports whether the local cache entry matches the remote
// object's logical length and timestamp within tolerance.
func (d *Directory) cacheFresh(name string, rawLen int64, rawMod time.Time) bool {
	length, err := d.cache.Length(name)
	if err != nil {
		return false
	}
	mod, err := d.cache.ModTime(name)
	if err != nil {
		return false
	}
	return fresh(length, mod, rawLen, rawMod)
}

// fresh is the freshness predicate: equal lengths and a timestamp delta of
// at most one second.
func fresh(length int64, mod time.Time, rawLen int64, rawMod time.Time) bool {
	if length != rawLen {
		return false
	}
	delta := mod.Sub(rawMod)
	if delta < 0 {
		delta = -delta
	}
	return delta <= freshnessTolerance
}

// populate downloads the remote content into the cache file, decompressing
// policy-compressed keys, and stamps the file with the logical timestamp so
// the freshness check holds on the next open. Caller holds the key mutex.
func (d *Directory) populate(ctx context.Context, name string, rawMod time.Time) error {
	body, _, err := d.client.GetBlob(ctx, d.container, d.blobKey(name))
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := d.cache.Create(name)
	if err != nil {
		return err
	}

	if d.ShouldCompressFile(name) {
		err = d.inflateTo(f, body)
	} else {
		_, err = io.Copy(f, body)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("populate cache: %w", err)
	}

	if err := d.cache.Touch(name, rawMod); err != nil {
		return fmt.Errorf("populate cache: %w", err)
	}

	d.logger.Debug("cache populated", "key", name)
	return nil
}

// inflateTo buffers the full compressed payload, then decompresses it in
// fixed-size chunks until a short read signals end-of-stream.
func (d *Directory) inflateTo(dst io.Writer, body io.Reader) error {
	payload, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	zr, err := d.codec.NewReader(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer zr.Close()

	buf := make([]byte, decompressChunkSize)
	for {
		n, err := io.ReadFull(zr, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (in *input) Read(p []byte) (int, error) {
	n, err := in.file.Read(p)
	in.pos += int64(n)
	return n, err
}

func (in *input) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(in.file, b[:]); err != nil {
		return 0, err
	}
	in.pos++
	return b[0], nil
}

func (in *input) Seek(offset int64, whence int) (int64, error) {
	pos, err := in.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	in.pos = pos
	return pos, nil
}

func (in *input) Length() int64 {
	return in.length
}

func (in *input) Position() int64 {
	return in.pos
}

// Clone opens a new independent handle over the same cache file and seeks
// it to this input's position. No cursor state is shared.
func (in *input) Clone() (Input, error) {
	mu := in.dir.keys.get(in.name)
	mu.Lock()
	defer mu.Unlock()

	f, err := in.dir.cache.Open(in.name)
	if err != nil {
		return nil, &CloneError{Name: in.name, cause: err}
	}
	if _, err := f.Seek(in.pos, io.SeekStart); err != nil {
		f.Close()
		return nil, &CloneError{Name: in.name, cause: err}
	}

	return &input{
		dir:    in.dir,
		name:   in.name,
		file:   f,
		length: in.length,
		pos:    in.pos,
	}, nil
}

// Close releases the local handle. Idempotent.
func (in *input) Close() error {
	if in.closed {
		return nil
	}
	in.closed = true
	return in.file.Close()
}
