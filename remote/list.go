package remote

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
)

// blobListing mirrors the container listing XML document.
type blobListing struct {
	XMLName xml.Name `xml:"EnumerationResults"`
	Blobs   []struct {
		Name string `xml:"Name"`
	} `xml:"Blobs>Blob"`
}

// ListBlobs enumerates all blob keys in the container, sorted ascending.
func (c *Client) ListBlobs(ctx context.Context, container string) ([]string, error) {
	query := url.Values{
		"restype": {"container"},
		"comp":    {"list"},
	}
	resp, err := c.do(ctx, http.MethodGet, c.containerPath(container), query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read listing: %w", err)
	}

	var listing blobListing
	if err := xml.Unmarshal(doc, &listing); err != nil {
		return nil, fmt.Errorf("remote: parse listing: %w", err)
	}

	keys := make([]string, 0, len(listing.Blobs))
	for _, b := range listing.Blobs {
		keys = append(keys, b.Name)
	}
	sort.Strings(keys)
	return keys, nil
}
