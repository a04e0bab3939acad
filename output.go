package blobdir

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/hupe1980/blobdir/cache"
	"github.com/hupe1980/blobdir/remote"
)

// Output is the write stream returned by Directory.CreateOutput. Writes
// are buffered in a local cache file; Close publishes the content plus its
// logical metadata to the remote store.
type Output interface {
	io.Writer
	io.ByteWriter
	io.Seeker
	io.Closer

	// Flush forces buffered content to the local cache file.
	Flush() error

	// Length returns the current logical length of the written content.
	Length() (int64, error)

	// Position returns the current write position.
	Position() int64
}

type output struct {
	dir    *Directory
	ctx    context.Context
	name   string
	file   cache.File
	pos    int64
	closed bool
}

// createOutput opens a fresh local cache file for the key. The publish to
// the remote store happens on Close, using the context captured here.
func (d *Directory) createOutput(ctx context.Context, name string) (*output, error) {
	mu := d.keys.get(name)
	mu.Lock()
	defer mu.Unlock()

	f, err := d.cache.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create output %s: %w", name, err)
	}

	return &output{
		dir:  d,
		ctx:  ctx,
		name: name,
		file: f,
	}, nil
}

func (o *output) Write(p []byte) (int, error) {
	n, err := o.file.Write(p)
	o.pos += int64(n)
	return n, err
}

func (o *output) WriteByte(b byte) error {
	_, err := o.Write([]byte{b})
	return err
}

func (o *output) Seek(offset int64, whence int) (int64, error) {
	pos, err := o.file.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	o.pos = pos
	return pos, nil
}

func (o *output) Flush() error {
	return o.file.Sync()
}

func (o *output) Length() (int64, error) {
	return o.dir.cache.Length(o.name)
}

func (o *output) Position() int64 {
	return o.pos
}

// Close publishes the written content. The sequence is the delicate part:
// flush and close the local file, capture its logical length and
// modification time, upload the (optionally compressed) body, then set the
// logical metadata in a second PUT. Either PUT failing fails the close;
// the local cache file stays intact, but the remote object may then hold
// fresh content with stale or absent metadata.
func (o *output) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	mu := o.dir.keys.get(o.name)
	mu.Lock()
	defer mu.Unlock()

	if err := o.file.Sync(); err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}
	if err := o.file.Close(); err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}

	rawLen, err := o.dir.cache.Length(o.name)
	if err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}
	rawMod, err := o.dir.cache.ModTime(o.name)
	if err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}

	body, err := o.buildBody()
	if err != nil {
		return fmt.Errorf("close output %s: %w", o.name, err)
	}

	key := o.dir.blobKey(o.name)
	if err := o.dir.client.PutBlob(o.ctx, o.dir.container, key, body); err != nil {
		return &PublishError{Name: o.name, Stage: "upload", cause: err}
	}

	meta := map[string]string{
		remote.MetaRawLength:   strconv.FormatInt(rawLen, 10),
		remote.MetaRawModified: strconv.FormatInt(rawMod.UnixMilli(), 10),
	}
	if err := o.dir.client.SetMetadata(o.ctx, o.dir.container, key, meta); err != nil {
		return &PublishError{Name: o.name, Stage: "metadata", cause: err}
	}

	o.dir.logger.Debug("published",
		"key", o.name,
		"raw_length", rawLen,
		"physical_length", len(body),
		"compressed", o.dir.ShouldCompressFile(o.name),
	)
	return nil
}

// buildBody reads the finished cache file back and returns the upload
// payload. Policy-compressed keys are compressed in one pass into memory:
// the upload transport needs a body of known length, so a streaming
// compressor cannot feed it directly.
func (o *output) buildBody() ([]byte, error) {
	f, err := o.dir.cache.Open(o.name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if o.dir.ShouldCompressFile(o.name) {
		var buf bytes.Buffer
		if err := o.dir.codec.Compress(&buf, f); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return io.ReadAll(f)
}
