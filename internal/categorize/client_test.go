package categorize

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_RequiresEndpoint(t *testing.T) {
	_, err := NewHTTPClient("", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrMissingConfig))
}

func TestHTTPClient_Categorize(t *testing.T) {
	var received wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"mode":"gemini","categories":[{"id":"t1","category":"Dining","confidence":0.92,"source":"gemini"}]}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, time.Second, 0)
	require.NoError(t, err)

	resp, err := client.Categorize(context.Background(), []Request{{
		ID:          "t1",
		Merchant:    "Sushi Place",
		AmountCents: 4250,
		Date:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "gemini", resp.Mode)
	require.Len(t, resp.Categories, 1)
	assert.Equal(t, "Dining", resp.Categories[0].Category)

	require.Len(t, received.Transactions, 1)
	assert.Equal(t, "Sushi Place", received.Transactions[0].MerchantName)
	assert.InDelta(t, 42.50, received.Transactions[0].Amount, 1e-9)
	assert.Equal(t, "2024-03-01", received.Transactions[0].Date)
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server error", status: http.StatusBadGateway, body: "down", wantErr: common.ErrCategorizerUnavailable},
		{name: "rejected", status: http.StatusBadRequest, body: "bad", wantErr: common.ErrCategorizerRejected},
		{name: "not ok", status: http.StatusOK, body: `{"ok":false,"error":"quota"}`, wantErr: common.ErrCategorizerRejected},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: common.ErrRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewHTTPClient(server.URL, time.Second, 0)
			require.NoError(t, err)

			_, err = client.Categorize(context.Background(), []Request{{ID: "t1"}})
			require.Error(t, err)
			assert.True(t, IsUnavailable(err))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"mode":"gemini","categories":[]}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, time.Second, 2)
	require.NoError(t, err)
	client.retry.InitialDelay = time.Millisecond

	_, err = client.Categorize(context.Background(), []Request{{ID: "t1"}})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	client, err := NewHTTPClient(server.URL, 20*time.Millisecond, 0)
	require.NoError(t, err)

	_, err = client.Categorize(context.Background(), []Request{{ID: "t1"}})

	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrCategorizerUnavailable))
}
