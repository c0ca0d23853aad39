package walrus

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	tidalhttp "github.com/Staking-Facilities-GmbH/tidal/internal/client/http"
)

// DefaultEpochs is how many storage epochs a blob is paid for at upload.
const DefaultEpochs = 1

// Store statuses reported by the publisher.
const (
	StatusNewlyCreated     = "newlyCreated"
	StatusAlreadyCertified = "alreadyCertified"
)

// StoreResult describes a stored blob.
type StoreResult struct {
	BlobID   string
	Status   string
	Ref      string // object id or certifying event digest
	EndEpoch int64
}

// Client talks to a Walrus-style blob store: PUT through a publisher,
// GET through an aggregator. Blobs are immutable and content-addressed;
// reads are safe to retry, writes are retried only by letting the caller
// pick a different publisher endpoint.
type Client struct {
	publisher  *tidalhttp.HTTPClient
	aggregator *tidalhttp.HTTPClient
	aggURL     string
	epochs     int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEpochs overrides the storage duration for uploads.
func WithEpochs(n int) ClientOption {
	return func(c *Client) { c.epochs = n }
}

// NewClient creates a blob store client for the given publisher and
// aggregator base URLs.
func NewClient(publisherURL, aggregatorURL string, opts ...ClientOption) *Client {
	c := &Client{
		publisher: tidalhttp.NewHTTPClient(
			tidalhttp.WithBaseURL(publisherURL),
			tidalhttp.WithTimeout(2*time.Minute),
			tidalhttp.WithDefaultHeader("Content-Type", "application/octet-stream"),
		),
		aggregator: tidalhttp.NewHTTPClient(
			tidalhttp.WithBaseURL(aggregatorURL),
			tidalhttp.WithTimeout(2*time.Minute),
			tidalhttp.WithRetryConfig(tidalhttp.DefaultRetryConfig()),
		),
		aggURL: strings.TrimSuffix(aggregatorURL, "/"),
		epochs: DefaultEpochs,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type storeResponse struct {
	NewlyCreated *struct {
		BlobObject struct {
			ID      string `json:"id"`
			BlobID  string `json:"blobId"`
			Storage struct {
				EndEpoch int64 `json:"endEpoch"`
			} `json:"storage"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
	AlreadyCertified *struct {
		BlobID   string `json:"blobId"`
		EndEpoch int64  `json:"endEpoch"`
		Event    struct {
			TxDigest string `json:"txDigest"`
		} `json:"event"`
	} `json:"alreadyCertified"`
}

// Put stores a blob and returns its content id. The publisher either
// creates a new blob object or reports the content as already certified.
func (c *Client) Put(ctx context.Context, data []byte) (*StoreResult, error) {
	resp, err := c.publisher.Put(ctx, "/v1/blobs",
		data,
		tidalhttp.WithQueryParam("epochs", strconv.Itoa(c.epochs)),
	)
	if err != nil {
		return nil, fmt.Errorf("storing blob: %w", err)
	}

	var body storeResponse
	if err := c.publisher.ProcessJSONResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("storing blob: decoding response: %w", err)
	}

	switch {
	case body.NewlyCreated != nil:
		return &StoreResult{
			BlobID:   body.NewlyCreated.BlobObject.BlobID,
			Status:   StatusNewlyCreated,
			Ref:      body.NewlyCreated.BlobObject.ID,
			EndEpoch: body.NewlyCreated.BlobObject.Storage.EndEpoch,
		}, nil
	case body.AlreadyCertified != nil:
		return &StoreResult{
			BlobID:   body.AlreadyCertified.BlobID,
			Status:   StatusAlreadyCertified,
			Ref:      body.AlreadyCertified.Event.TxDigest,
			EndEpoch: body.AlreadyCertified.EndEpoch,
		}, nil
	default:
		return nil, fmt.Errorf("storing blob: unrecognized publisher response")
	}
}

// Get retrieves a blob by content id. Transient aggregator failures are
// retried; blobs are immutable so the read is idempotent.
func (c *Client) Get(ctx context.Context, blobID string) ([]byte, error) {
	resp, err := c.aggregator.Get(ctx, "/v1/blobs/"+blobID)
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s: %w", blobID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s: reading body: %w", blobID, err)
	}
	return data, nil
}

// BlobURL returns the public aggregator URL for a blob, used as the catalog
// record's content locator.
func (c *Client) BlobURL(blobID string) string {
	return c.aggURL + "/v1/blobs/" + blobID
}
