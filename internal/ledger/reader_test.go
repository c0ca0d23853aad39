package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
)

// flakyClient fails GetObject a configured number of times before
// succeeding, counting every call.
type flakyClient struct {
	failuresLeft int
	calls        int
}

func (c *flakyClient) ExecuteTransaction(context.Context, *ledger.Transaction) (*ledger.ExecutionResult, error) {
	return nil, errors.New("not implemented")
}

func (c *flakyClient) GetObject(_ context.Context, id ledger.ObjectID, _ ledger.GetObjectOptions) (*ledger.Object, error) {
	c.calls++
	if c.failuresLeft > 0 {
		c.failuresLeft--
		return nil, errors.New("object not found")
	}
	return &ledger.Object{ID: id, Version: 1, Type: "0xabc::tidal::Allowlist"}, nil
}

func TestResolveObjects(t *testing.T) {
	id := ledger.ObjectID{0x11}

	tests := []struct {
		name          string
		failures      int
		maxAttempts   int
		wantErr       bool
		expectedCalls int
	}{
		{
			name:          "immediate success makes one call",
			failures:      0,
			maxAttempts:   5,
			expectedCalls: 1,
		},
		{
			name:          "succeeds after transient failures",
			failures:      3,
			maxAttempts:   5,
			expectedCalls: 4,
		},
		{
			name:          "gives up after max attempts",
			failures:      100,
			maxAttempts:   5,
			wantErr:       true,
			expectedCalls: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &flakyClient{failuresLeft: tt.failures}
			reader := ledger.NewReader(client, zap.NewNop(),
				ledger.WithMaxAttempts(tt.maxAttempts),
				ledger.WithInterval(time.Millisecond))

			objects, err := reader.ResolveObjects(context.Background(), []ledger.ObjectID{id}, ledger.GetObjectOptions{ShowType: true})
			if tt.wantErr {
				require.Error(t, err)
				var exhausted *ledger.LookupExhaustedError
				require.ErrorAs(t, err, &exhausted)
				assert.Equal(t, tt.maxAttempts, exhausted.Attempts)
			} else {
				require.NoError(t, err)
				require.Len(t, objects, 1)
				assert.Equal(t, id, objects[0].ID)
			}
			assert.Equal(t, tt.expectedCalls, client.calls)
		})
	}
}

func TestResolveObjectsContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &flakyClient{failuresLeft: 100}
	reader := ledger.NewReader(client, zap.NewNop(),
		ledger.WithMaxAttempts(5),
		ledger.WithInterval(50*time.Millisecond))

	id := ledger.ObjectID{1}
	_, err := reader.ResolveObjects(ctx, []ledger.ObjectID{id}, ledger.GetObjectOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
