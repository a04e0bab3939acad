package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// apiVersion is the protocol version stamped on every request before signing.
const apiVersion = "2009-09-19"

// metaPrefix is the header prefix carrying user metadata on blobs.
const metaPrefix = "x-ms-meta-"

// Metadata field names for the logical (uncompressed) blob attributes.
// They survive compression of the stored payload: readers prefer these
// over the raw Content-Length / Last-Modified headers.
const (
	MetaRawLength   = "rawlength"
	MetaRawModified = "rawlastmodified"
)

// Config holds the settings needed to talk to a remote blob account.
type Config struct {
	// Account is the storage account name.
	Account string

	// Key is the base64-encoded shared account key, or EmulatorKey to
	// target an unauthenticated local emulator.
	Key string

	// Endpoint overrides the account-derived base URL. Required for the
	// emulator, optional otherwise.
	Endpoint string

	// HTTPClient is the transport used for all requests.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives request-level debug output. Defaults to silent.
	Logger *slog.Logger
}

// Client executes signed REST requests against a remote blob store.
// All operations are blocking round-trips; the client never retries.
type Client struct {
	account  string
	key      []byte
	skipAuth bool
	base     *url.URL
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for the given account.
// A Config.Key equal to EmulatorKey disables request signing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Account == "" {
		return nil, fmt.Errorf("remote: account name required")
	}

	c := &Client{
		account: cfg.Account,
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.Key == EmulatorKey {
		c.skipAuth = true
	} else {
		key, err := base64.StdEncoding.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("remote: malformed account key: %w", err)
		}
		c.key = key
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("remote: invalid endpoint %q: %w", endpoint, err)
	}
	c.base = base

	return c, nil
}

// Properties describes a remote blob without its content.
type Properties struct {
	// ContentLength is the physical stored size in bytes.
	ContentLength int64

	// LastModified is the store's own modification timestamp.
	LastModified time.Time

	// Metadata holds the user metadata fields, keys lower-cased with the
	// wire prefix stripped.
	Metadata map[string]string
}

// RawLength returns the logical (uncompressed) length, falling back to the
// physical content length if the metadata field is absent.
func (p Properties) RawLength() int64 {
	if v, ok := p.Metadata[MetaRawLength]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return p.ContentLength
}

// RawModified returns the logical modification time, falling back to the
// store's Last-Modified if the metadata field is absent.
func (p Properties) RawModified() time.Time {
	if v, ok := p.Metadata[MetaRawModified]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	}
	return p.LastModified
}

// GetBlob fetches the full blob content. The returned reader must be closed
// by the caller. Properties are parsed from the response headers.
func (c *Client) GetBlob(ctx context.Context, container, key string) (io.ReadCloser, Properties, error) {
	resp, err := c.do(ctx, http.MethodGet, c.blobPath(container, key), nil, nil, nil)
	if err != nil {
		return nil, Properties{}, err
	}
	return resp.Body, parseProperties(resp.Header), nil
}

// GetProperties issues a HEAD request for the blob.
func (c *Client) GetProperties(ctx context.Context, container, key string) (Properties, error) {
	resp, err := c.do(ctx, http.MethodHead, c.blobPath(container, key), nil, nil, nil)
	if err != nil {
		return Properties{}, err
	}
	defer resp.Body.Close()
	return parseProperties(resp.Header), nil
}

// PutBlob uploads body as a block blob, replacing any existing content
// and metadata.
func (c *Client) PutBlob(ctx context.Context, container, key string, body []byte) error {
	headers := map[string]string{"x-ms-blob-type": "BlockBlob"}
	resp, err := c.do(ctx, http.MethodPut, c.blobPath(container, key), nil, headers, body)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// SetMetadata replaces the blob's user metadata.
func (c *Client) SetMetadata(ctx context.Context, container, key string, meta map[string]string) error {
	query := url.Values{"comp": {"metadata"}}
	headers := make(map[string]string, len(meta))
	for k, v := range meta {
		headers[metaPrefix+strings.ToLower(k)] = v
	}
	resp, err := c.do(ctx, http.MethodPut, c.blobPath(container, key), query, headers, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DeleteBlob removes the blob.
func (c *Client) DeleteBlob(ctx context.Context, container, key string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.blobPath(container, key), nil, nil, nil)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// CreateContainer creates the container if it does not already exist.
// An existing container is not an error.
func (c *Client) CreateContainer(ctx context.Context, container string) error {
	query := url.Values{"restype": {"container"}}
	resp, err := c.do(ctx, http.MethodPut, c.containerPath(container), query, nil, nil)
	if err != nil {
		if IsConflict(err) {
			return nil
		}
		return err
	}
	return resp.Body.Close()
}

func (c *Client) containerPath(container string) string {
	return strings.TrimSuffix(c.base.Path, "/") + "/" + container
}

func (c *Client) blobPath(container, key string) string {
	return c.containerPath(container) + "/" + key
}

// do executes one signed request. Any non-2xx status is returned as a
// *StatusError with the response body drained and closed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, body []byte) (*http.Response, error) {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("x-ms-version", apiVersion)

	if !c.skipAuth {
		sign(req, c.account, c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{
			Method:     method,
			Resource:   path,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	c.logger.Debug("remote request", "method", method, "path", path, "status", resp.StatusCode)
	return resp, nil
}

func parseProperties(h http.Header) Properties {
	p := Properties{Metadata: make(map[string]string)}

	if v := h.Get("Content-Length"); v != "" {
		p.ContentLength, _ = strconv.ParseInt(v, 10, 64)
	}
	if v := h.Get("Last-Modified"); v != "" {
		if t, err := time.Parse(http.TimeFormat, v); err == nil {
			p.LastModified = t
		}
	}
	for k, vals := range h {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, metaPrefix) && len(vals) > 0 {
			p.Metadata[strings.TrimPrefix(lk, metaPrefix)] = vals[0]
		}
	}
	return p
}
