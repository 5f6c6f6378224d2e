package categorize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Veraticus/the-points-must-flow/internal/common"
)

// DefaultTimeout bounds a single external categorization call.
const DefaultTimeout = 15 * time.Second

// Client is an external categorizer.
type Client interface {
	Categorize(ctx context.Context, items []Request) (Response, error)
}

// Response is the external categorizer reply.
type Response struct {
	Mode       string         `json:"mode"`
	Error      string         `json:"error,omitempty"`
	Categories []RemoteResult `json:"categories"`
	OK         bool           `json:"ok"`
}

// RemoteResult is one categorized item returned by the external service.
type RemoteResult struct {
	ID         string  `json:"id"`
	Category   string  `json:"category"`
	Source     string  `json:"source"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence"`
}

type wireTransaction struct {
	ID           string  `json:"id"`
	MerchantName string  `json:"merchant_name"`
	Date         string  `json:"date"`
	Description  string  `json:"description,omitempty"`
	Amount       float64 `json:"amount"`
}

type wireRequest struct {
	Transactions []wireTransaction `json:"transactions"`
}

// HTTPClient posts batches to a JSON categorization endpoint.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	retry      common.RetryOptions
}

// NewHTTPClient creates a client for endpoint. A zero timeout uses DefaultTimeout.
func NewHTTPClient(endpoint string, timeout time.Duration, maxRetries int) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("%w: categorizer endpoint", common.ErrMissingConfig)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &HTTPClient{
		endpoint: endpoint,
		retry: common.RetryOptions{
			MaxAttempts:  maxRetries + 1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Categorize sends one batch to the external service.
func (c *HTTPClient) Categorize(ctx context.Context, items []Request) (Response, error) {
	body := wireRequest{Transactions: make([]wireTransaction, 0, len(items))}
	for _, item := range items {
		body.Transactions = append(body.Transactions, wireTransaction{
			ID:           item.ID,
			MerchantName: item.Merchant,
			Amount:       float64(item.AmountCents) / 100,
			Date:         item.Date.Format("2006-01-02"),
			Description:  item.Description,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp Response
	err = common.WithRetry(ctx, func() error {
		var callErr error
		resp, callErr = c.post(ctx, payload)
		return callErr
	}, c.retry)
	if err != nil {
		return Response{}, &common.ExternalServiceError{Service: "categorizer", Err: err}
	}
	return resp, nil
}

func (c *HTTPClient) post(ctx context.Context, payload []byte) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, &common.RetryableError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", common.ErrCategorizerUnavailable, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return Response{}, common.ErrRateLimit
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return Response{}, fmt.Errorf("%w: status %d: %s", common.ErrCategorizerUnavailable, httpResp.StatusCode, string(data))
	case httpResp.StatusCode != http.StatusOK:
		return Response{}, &common.RetryableError{
			Err: fmt.Errorf("%w: status %d: %s", common.ErrCategorizerRejected, httpResp.StatusCode, string(data)),
		}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, &common.RetryableError{Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if !resp.OK {
		msg := resp.Error
		if msg == "" {
			msg = "service reported failure"
		}
		return Response{}, &common.RetryableError{Err: fmt.Errorf("%w: %s", common.ErrCategorizerRejected, msg)}
	}
	return resp, nil
}

// IsUnavailable reports whether err came from an unreachable categorizer.
func IsUnavailable(err error) bool {
	var ext *common.ExternalServiceError
	return errors.As(err, &ext)
}
