// Package feeds holds the HTTP clients for the upstream data the batch
// analysis consumes: news headlines and daily price bars.
package feeds

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// restClient is the shared request path of the feed clients: a resty client,
// a rate limiter and an optional bounded retry.
type restClient struct {
	client     *resty.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	maxRetries int
}

func newRestClient(baseURL string, timeout time.Duration, limit float64, burst, maxRetries int, logger *zap.Logger) *restClient {
	client := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	// rate.Limit is requests per second.
	lim := rate.Inf
	if limit > 0 {
		lim = rate.Limit(limit)
	}
	if burst <= 0 {
		burst = 1
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &restClient{
		client:     client,
		logger:     logger,
		limiter:    rate.NewLimiter(lim, burst),
		maxRetries: maxRetries,
	}
}

// doRequest executes the request with rate limiting. With maxRetries > 1,
// throttling, server errors and transport errors are retried with
// exponential backoff; the default of 1 attempt means no retry.
func (c *restClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	req.SetContext(ctx)
	for i := 0; i < c.maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry || i == c.maxRetries-1 {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
		} else { // Network or other client-side errors
			shouldRetry = true
			if i == c.maxRetries-1 {
				break
			}
		}

		// Exponential backoff: 1s, 2s, 4s
		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxRetries, err)
}
