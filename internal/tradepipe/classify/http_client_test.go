package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalefollow/tradepipe/pkg/retry"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(Config{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		RatePerSec: 1000,
		Burst:      10,
	})
	require.NoError(t, err)
	return c
}

func TestDecodeMapsResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evm/eth/tx/0xabc", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("apiKey"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"usdValue": 2500.0,
			"classificationData": map[string]any{
				"type":        "swap",
				"description": "Swapped 1 ETH for 2500 USDC",
				"protocol":    map[string]any{"name": "Uniswap"},
				"sent": []map[string]any{
					{"token": map[string]any{"symbol": "ETH"}, "amount": "1"},
				},
				"received": []map[string]any{
					{"token": map[string]any{"symbol": "USDC", "address": "0xusdc"}, "amount": "2500"},
				},
			},
			"rawTransactionData": map[string]any{
				"fromAddress": "0xsender",
				"blockNumber": 123,
				"gasUsed":     "85000",
				"transactionFee": map[string]any{
					"amount": "0.002",
					"token":  map[string]any{"symbol": "ETH"},
				},
			},
		})
	})

	got, err := c.Decode(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "swap", got.Type)
	assert.Equal(t, "0xsender", got.Sender)
	assert.Equal(t, 2500.0, got.USDValue)
	assert.Equal(t, "Uniswap", got.Protocol)
	require.Len(t, got.Sent, 1)
	assert.Equal(t, "ETH", got.Sent[0].Symbol)
	require.Len(t, got.Received, 1)
	assert.Equal(t, "0xusdc", got.Received[0].Address)
	assert.Equal(t, int64(123), got.BlockNumber)
	assert.Equal(t, "0.002", got.FeeAmount)
	assert.Equal(t, "ETH", got.FeeSymbol)
}

func TestDecodeNotFoundIsNilNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	got, err := c.Decode(context.Background(), "0xmissing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeServerErrorIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Decode(context.Background(), "0xabc")
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err), "server errors stay retryable")
}

func TestDecodeClientErrorIsPermanent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Decode(context.Background(), "0xabc")
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err), "bad credentials must not be retried")
}

func TestDecodeRateLimitedIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Decode(context.Background(), "0xabc")
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestNewHTTPClientValidation(t *testing.T) {
	_, err := NewHTTPClient(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewHTTPClient(Config{BaseURL: "http://x"})
	assert.Error(t, err)
}
