package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tidalhttp "github.com/Staking-Facilities-GmbH/tidal/internal/client/http"
)

// Client defines the ledger operations the flows depend on. The gateway
// implementation below talks to a ledger RPC gateway; tests substitute
// in-memory implementations.
type Client interface {
	// ExecuteTransaction submits a signed transaction and returns its
	// structured result. It never retries: blind resubmission of a payment
	// or admission risks a double spend.
	ExecuteTransaction(ctx context.Context, tx *Transaction) (*ExecutionResult, error)

	// GetObject reads a single object. A just-committed object may not be
	// visible yet; callers that need read-back of fresh state go through
	// Reader instead.
	GetObject(ctx context.Context, id ObjectID, opts GetObjectOptions) (*Object, error)
}

// GatewayClient is the HTTP implementation of Client.
type GatewayClient struct {
	http *tidalhttp.HTTPClient
}

// NewGatewayClient creates a ledger client for the given gateway base URL.
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		http: tidalhttp.NewHTTPClient(
			tidalhttp.WithBaseURL(baseURL),
			tidalhttp.WithTimeout(30*time.Second),
		),
	}
}

var _ Client = (*GatewayClient)(nil)

type executeResponse struct {
	Result *ExecutionResult `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// ExecuteTransaction submits the transaction to the gateway.
func (c *GatewayClient) ExecuteTransaction(ctx context.Context, tx *Transaction) (*ExecutionResult, error) {
	resp, err := c.http.Post(ctx, "/v1/transactions", tx)
	if err != nil {
		return nil, fmt.Errorf("ledger execute: %w", err)
	}

	var body executeResponse
	if err := c.http.ProcessJSONResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("ledger execute: decoding response: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("ledger execute: %s", body.Error)
	}
	if body.Result == nil {
		return nil, fmt.Errorf("ledger execute: gateway returned no result")
	}
	return body.Result, nil
}

type objectResponse struct {
	Object *Object `json:"object"`
	Error  string  `json:"error,omitempty"`
}

// GetObject reads an object by id.
func (c *GatewayClient) GetObject(ctx context.Context, id ObjectID, opts GetObjectOptions) (*Object, error) {
	resp, err := c.http.Get(ctx, "/v1/objects/"+id.Hex(),
		tidalhttp.WithQueryParam("show_type", strconv.FormatBool(opts.ShowType)),
		tidalhttp.WithQueryParam("show_content", strconv.FormatBool(opts.ShowContent)),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger get object %s: %w", id.Hex(), err)
	}

	var body objectResponse
	if err := c.http.ProcessJSONResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("ledger get object %s: decoding response: %w", id.Hex(), err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("ledger get object %s: %s", id.Hex(), body.Error)
	}
	if body.Object == nil {
		return nil, fmt.Errorf("ledger get object %s: not found", id.Hex())
	}
	return body.Object, nil
}
