package feeds

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"market-stress-go/internal/config"
)

// HeadlineSource searches news headlines by free-text query.
type HeadlineSource interface {
	Headlines(ctx context.Context, query string) ([]string, error)
}

// NewsClient queries a NewsAPI compatible /v2/everything endpoint.
type NewsClient struct {
	rest     *restClient
	apiKey   string
	language string
	sortBy   string
}

// ensure NewsClient implements the interface
var _ HeadlineSource = (*NewsClient)(nil)

// NewNewsClient creates a news client from configuration.
func NewNewsClient(cfg *config.News, logger *zap.Logger) *NewsClient {
	if cfg.ApiKey == "" {
		logger.Warn("News API key is empty, headline requests will be rejected")
	}
	return &NewsClient{
		rest:     newRestClient(cfg.BaseURL, cfg.Timeout, cfg.RateLimit, cfg.RateLimitBurst, cfg.MaxRetries, logger.Named("news")),
		apiKey:   cfg.ApiKey,
		language: cfg.Language,
		sortBy:   cfg.SortBy,
	}
}

// Article is the subset of a news article the pipeline reads.
type Article struct {
	Title       string `json:"title"`
	PublishedAt string `json:"publishedAt"`
}

type articlesResponse struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Headlines returns the non-empty titles of the first page of articles
// matching query. Pagination is not followed.
func (c *NewsClient) Headlines(ctx context.Context, query string) ([]string, error) {
	req := c.rest.client.R().
		SetQueryParams(map[string]string{
			"q":        query,
			"language": c.language,
			"sortBy":   c.sortBy,
			"apiKey":   c.apiKey,
		}).
		SetResult(&articlesResponse{})

	resp, err := c.rest.doRequest(ctx, "GET", "/v2/everything", req)
	if err != nil {
		c.rest.logger.Error("Failed to fetch headlines", zap.String("query", query), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch headlines: %w", err)
	}

	result := resp.Result().(*articlesResponse)
	if result.Status == "error" {
		return nil, fmt.Errorf("news api error %s: %s", result.Code, result.Message)
	}

	headlines := make([]string, 0, len(result.Articles))
	for _, a := range result.Articles {
		if title := strings.TrimSpace(a.Title); title != "" {
			headlines = append(headlines, title)
		}
	}
	c.rest.logger.Info("Fetched headlines",
		zap.String("query", query),
		zap.Int("articles", len(result.Articles)),
		zap.Int("headlines", len(headlines)),
	)
	return headlines, nil
}
