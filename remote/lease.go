package remote

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// LeaseAction selects a lease sub-operation.
type LeaseAction string

const (
	LeaseAcquire LeaseAction = "acquire"
	LeaseRenew   LeaseAction = "renew"
	LeaseRelease LeaseAction = "release"
	LeaseBreak   LeaseAction = "break"
)

// LeaseDuration is the fixed lifetime of an acquired lease. A holder must
// renew before it elapses or the lease becomes reclaimable.
const LeaseDuration = 60 * time.Second

// LeaseRequest describes one lease operation on a blob.
type LeaseRequest struct {
	Action LeaseAction

	// LeaseID is the held lease, required for renew and release.
	LeaseID string

	// ProposedID is the caller-chosen id for acquire. Optional; the store
	// generates one if empty.
	ProposedID string
}

// Lease performs a lease sub-operation on the blob and returns the lease id
// reported by the store (the acquired id for acquire, the held id echoed
// back otherwise).
func (c *Client) Lease(ctx context.Context, container, key string, lr LeaseRequest) (string, error) {
	query := url.Values{"comp": {"lease"}}
	headers := map[string]string{
		"x-ms-lease-action": string(lr.Action),
	}
	if lr.Action == LeaseAcquire {
		headers["x-ms-lease-duration"] = strconv.Itoa(int(LeaseDuration / time.Second))
		if lr.ProposedID != "" {
			headers["x-ms-proposed-lease-id"] = lr.ProposedID
		}
	}
	if lr.LeaseID != "" {
		headers["x-ms-lease-id"] = lr.LeaseID
	}

	resp, err := c.do(ctx, http.MethodPut, c.blobPath(container, key), query, headers, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if id := resp.Header.Get("x-ms-lease-id"); id != "" {
		return id, nil
	}
	return lr.LeaseID, nil
}
