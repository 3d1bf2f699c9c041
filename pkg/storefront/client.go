// Package storefront implements the client for the e-commerce platform's
// GraphQL Admin API. All downstream calls go through Client.execute, which
// owns pacing, retry with backoff, and error classification; no other
// component talks to the storefront directly.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/internal/metrics"
	"github.com/commercebridge/retail-middleware/pkg/config"
)

const defaultRetryAfter = 2 * time.Second

// Client is a rate-limited, retrying client for the storefront GraphQL API
type Client struct {
	config     *config.StorefrontConfig
	httpClient *http.Client
	pacer      *Pacer
	logger     *zap.Logger

	// sleep is swapped out in tests to avoid real backoff waits
	sleep func(context.Context, time.Duration) error
}

// NewClient creates a new storefront client
func NewClient(cfg *config.StorefrontConfig, logger *zap.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		pacer:  NewPacer(cfg.MinCallInterval),
		logger: logger,
		sleep:  sleepCtx,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// execute issues one GraphQL operation with pacing, retry and error
// classification:
//
//   - throttled responses sleep the server-provided retry-after hint
//     (defaultRetryAfter when absent) and retry,
//   - network-level failures back off exponentially (capped at 10s) and
//     retry up to the configured budget,
//   - business-rule rejections are raised immediately without retry,
//   - an exhausted budget yields an *APIError with Retryable=true.
func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	maxRetries := c.config.MaxRetries
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.pacer.Acquire(ctx); err != nil {
			return err
		}

		err := c.post(ctx, operation, query, variables, out)
		if err == nil {
			metrics.APICalls.WithLabelValues(operation, "ok").Inc()
			return nil
		}

		var rl *rateLimitError
		if errors.As(err, &rl) {
			metrics.APIRetries.WithLabelValues("throttled").Inc()
			c.logger.Warn("Storefront throttled, backing off",
				zap.String("operation", operation),
				zap.Duration("retry_after", rl.retryAfter))
			if serr := c.sleep(ctx, rl.retryAfter); serr != nil {
				return serr
			}
			lastErr = err
			continue
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable {
			metrics.APICalls.WithLabelValues(operation, "rejected").Inc()
			return err
		}

		// Transport-level failure: exponential backoff capped at 10s.
		lastErr = err
		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			metrics.APIRetries.WithLabelValues("network").Inc()
			c.logger.Warn("Storefront call failed, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			if serr := c.sleep(ctx, backoff); serr != nil {
				return serr
			}
		}
	}

	metrics.APICalls.WithLabelValues(operation, "failed").Inc()
	return &APIError{
		Operation: operation,
		Retryable: true,
		Err:       fmt.Errorf("retries exhausted: %w", lastErr),
	}
}

// post performs a single HTTP round trip and classifies the response.
func (c *Client) post(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Access-Token", c.config.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &rateLimitError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx other than 429: the request itself is malformed or
		// unauthorized. Retrying will not help.
		return &APIError{
			Operation: operation,
			Retryable: false,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var gqlResp graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		for _, e := range gqlResp.Errors {
			if e.Extensions.Code == "THROTTLED" {
				return &rateLimitError{retryAfter: defaultRetryAfter}
			}
		}
		messages := make([]string, 0, len(gqlResp.Errors))
		for _, e := range gqlResp.Errors {
			messages = append(messages, e.Message)
		}
		return &APIError{Operation: operation, Retryable: false, Messages: messages}
	}

	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(secs * float64(time.Second))
}
