package blobdir

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/blobdir/cache"
	"github.com/hupe1980/blobdir/compress"
)

// DefaultContainer is the container used when none is configured.
// Container names are case-normalized to lower case.
const DefaultContainer = "index"

type options struct {
	endpoint   string
	container  string
	prefix     string
	compress   bool
	codec      compress.Codec
	cache      cache.Store
	cacheDir   string
	httpClient *http.Client
	logger     *Logger
}

// Option configures Directory construction.
type Option func(*options)

// WithEndpoint overrides the account-derived remote base URL. Required when
// targeting a local emulator.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
	}
}

// WithContainer sets the remote container name. The name is lower-cased.
func WithContainer(container string) Option {
	return func(o *options) {
		o.container = strings.ToLower(container)
	}
}

// WithPrefix sets a root folder prefix prepended to every storage key.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = strings.Trim(prefix, "/")
	}
}

// WithCompression enables compression of stored content for keys matching
// the index-artifact extension allow-list. Everything else is stored
// uncompressed regardless of this flag.
func WithCompression(enabled bool) Option {
	return func(o *options) {
		o.compress = enabled
	}
}

// WithCodec selects the content codec used when compression applies.
//
// If nil is passed, compress.Deflate is used. Both readers and writers of
// a container must agree on the codec.
func WithCodec(c compress.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = compress.Deflate{}
		}
		o.codec = c
	}
}

// WithCache supplies an externally provided local cache implementation.
// It takes precedence over WithCacheDir.
func WithCache(s cache.Store) Option {
	return func(o *options) {
		o.cache = s
	}
}

// WithCacheDir sets the directory for the default filesystem cache.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithHTTPClient sets the transport used for all remote requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithLogger sets the logger. Defaults to a silent logger.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

func defaultOptions(account string) options {
	return options{
		container: DefaultContainer,
		codec:     compress.Deflate{},
		cacheDir:  filepath.Join(os.TempDir(), "blobdir", account),
		logger:    NoopLogger(),
	}
}
