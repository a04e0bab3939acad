package blobdir

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/blobdir/cache"
	"github.com/hupe1980/blobdir/compress"
	"github.com/hupe1980/blobdir/remote"
	"golang.org/x/sync/errgroup"
)

// compressibleExts is the allow-list of index-artifact extensions eligible
// for compression. Keys with any other extension are stored uncompressed
// regardless of the directory-level flag.
var compressibleExts = map[string]bool{
	".cfs": true,
	".fdt": true,
	".fdx": true,
	".fnm": true,
	".frq": true,
	".nrm": true,
	".prx": true,
	".tii": true,
	".tis": true,
	".tvd": true,
	".tvf": true,
	".tvx": true,
}

// Directory presents a remote blob container as a hierarchical file store
// with a transparent local cache, optional compression of stored content,
// and lease-based distributed locks.
//
// It is the only component the surrounding application talks to. All
// methods are safe for concurrent use; access to a given storage key's
// cache-population/publish sequence is serialized per key, unrelated keys
// proceed fully in parallel.
type Directory struct {
	client    *remote.Client
	container string
	prefix    string
	cache     cache.Store
	codec     compress.Codec
	compress  bool
	logger    *Logger
	keys      *keyLocks

	locksMu sync.Mutex
	locks   map[string]*Lock
}

// Open constructs a Directory for the given account and ensures the
// container exists (idempotent create-if-absent).
//
// key is the base64-encoded shared account key, or remote.EmulatorKey for
// a local emulator (which also requires WithEndpoint).
func Open(ctx context.Context, account, key string, opts ...Option) (*Directory, error) {
	o := defaultOptions(account)
	for _, opt := range opts {
		opt(&o)
	}

	client, err := remote.NewClient(remote.Config{
		Account:    account,
		Key:        key,
		Endpoint:   o.endpoint,
		HTTPClient: o.httpClient,
		Logger:     o.logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	store := o.cache
	if store == nil {
		store, err = cache.NewFS(o.cacheDir)
		if err != nil {
			return nil, err
		}
	}

	d := &Directory{
		client:    client,
		container: o.container,
		prefix:    o.prefix,
		cache:     store,
		codec:     o.codec,
		compress:  o.compress,
		logger:    o.logger.WithContainer(o.container),
		keys:      newKeyLocks(),
		locks:     make(map[string]*Lock),
	}

	if err := client.CreateContainer(ctx, d.container); err != nil {
		return nil, fmt.Errorf("ensure container %s: %w", d.container, err)
	}
	return d, nil
}

// blobKey maps a file name to its storage key under the root prefix.
func (d *Directory) blobKey(name string) string {
	if d.prefix == "" {
		return name
	}
	return path.Join(d.prefix, name)
}

// stripPrefix maps a storage key back to a file name.
func (d *Directory) stripPrefix(key string) string {
	if d.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, d.prefix), "/")
}

// ListAll enumerates the container and returns all file names. An
// unparsable or missing listing yields an empty list, never an error.
func (d *Directory) ListAll(ctx context.Context) []string {
	keys, err := d.client.ListBlobs(ctx, d.container)
	if err != nil {
		d.logger.Warn("list container failed", "error", err)
		return []string{}
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if d.prefix != "" && !strings.HasPrefix(k, d.prefix+"/") {
			continue
		}
		names = append(names, d.stripPrefix(k))
	}
	return names
}

// FileExists reports whether the named file exists in the remote store.
func (d *Directory) FileExists(ctx context.Context, name string) (bool, error) {
	_, err := d.client.GetProperties(ctx, d.container, d.blobKey(name))
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FileLength returns the logical (uncompressed) length of the named file,
// falling back to the stored content length if metadata is absent.
func (d *Directory) FileLength(ctx context.Context, name string) (int64, error) {
	props, err := d.client.GetProperties(ctx, d.container, d.blobKey(name))
	if err != nil {
		return 0, err
	}
	return props.RawLength(), nil
}

// FileModified returns the logical modification time of the named file,
// falling back to the store's own timestamp if metadata is absent.
func (d *Directory) FileModified(ctx context.Context, name string) (time.Time, error) {
	props, err := d.client.GetProperties(ctx, d.container, d.blobKey(name))
	if err != nil {
		return time.Time{}, err
	}
	return props.RawModified(), nil
}

// TouchFile refreshes the logical modification time of the named file,
// both remotely and, best effort, on the local cache entry.
func (d *Directory) TouchFile(ctx context.Context, name string) error {
	key := d.blobKey(name)
	props, err := d.client.GetProperties(ctx, d.container, key)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	meta := props.Metadata
	if meta == nil {
		meta = make(map[string]string)
	}
	meta[remote.MetaRawModified] = fmt.Sprintf("%d", now.UnixMilli())
	if err := d.client.SetMetadata(ctx, d.container, key, meta); err != nil {
		return err
	}

	if err := d.cache.Touch(name, now); err != nil {
		d.logger.Debug("cache touch failed", "key", name, "error", err)
	}
	return nil
}

// DeleteFile removes the named file from the remote store and, best
// effort, from the local cache. A remote failure is fatal; a failed local
// cleanup is ignored.
func (d *Directory) DeleteFile(ctx context.Context, name string) error {
	if err := d.client.DeleteBlob(ctx, d.container, d.blobKey(name)); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if err := d.cache.Delete(name); err != nil {
		d.logger.Debug("cache delete failed", "key", name, "error", err)
	}
	return nil
}

// CreateOutput returns a new write stream for the named file.
func (d *Directory) CreateOutput(ctx context.Context, name string) (Output, error) {
	return d.createOutput(ctx, name)
}

// OpenInput returns a new read stream for the named file, populating the
// local cache first if it is stale or absent. A name that cannot be
// resolved is reported as a *FileNotFoundError wrapping the cause.
func (d *Directory) OpenInput(ctx context.Context, name string) (Input, error) {
	return d.openInput(ctx, name)
}

// MakeLock returns the distributed lock for name, creating it on first
// use. Repeated calls with the same name return the same instance.
func (d *Directory) MakeLock(name string) *Lock {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	l, ok := d.locks[name]
	if !ok {
		l = newLock(d.client, d.container, d.blobKey(name), d.logger)
		d.locks[name] = l
	}
	return l
}

// ClearLock force-breaks any held lease for name, whether or not this
// process is the holder.
func (d *Directory) ClearLock(ctx context.Context, name string) error {
	return d.MakeLock(name).Break(ctx)
}

// ShouldCompressFile reports whether content for name is stored
// compressed: the directory-level flag must be set and the extension must
// be on the index-artifact allow-list.
func (d *Directory) ShouldCompressFile(name string) bool {
	if !d.compress {
		return false
	}
	return compressibleExts[strings.ToLower(path.Ext(name))]
}

// ClearCache deletes every local cache file without touching the remote
// store.
func (d *Directory) ClearCache(ctx context.Context) error {
	names, err := d.cache.List()
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, name := range names {
		name := name
		g.Go(func() error {
			return d.cache.Delete(name)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
