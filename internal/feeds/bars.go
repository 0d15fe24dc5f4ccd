package feeds

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"market-stress-go/internal/config"
)

// Bar is one daily OHLCV bar.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    uint64    `json:"v"`
}

// BarSource fetches daily bars for one symbol over [start, end].
type BarSource interface {
	DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// BarsClient reads daily bars from an Alpaca compatible market data API.
type BarsClient struct {
	rest      *restClient
	keyID     string
	secretKey string
	feed      string
}

var _ BarSource = (*BarsClient)(nil)

// NewBarsClient creates a market data client from configuration.
func NewBarsClient(cfg *config.MarketData, logger *zap.Logger) *BarsClient {
	return &BarsClient{
		rest:      newRestClient(cfg.BaseURL, cfg.Timeout, cfg.RateLimit, cfg.RateLimitBurst, cfg.MaxRetries, logger.Named("bars")),
		keyID:     cfg.KeyID,
		secretKey: cfg.SecretKey,
		feed:      cfg.Feed,
	}
}

type barsResponse struct {
	Bars          []Bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}

// DailyBars returns the bars of a single response page in chronological
// order. A next page token is logged and ignored.
func (c *BarsClient) DailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end %s is not after start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	params := map[string]string{
		"timeframe":  "1Day",
		"adjustment": "raw",
		"start":      start.Format(time.RFC3339),
		"end":        end.Format(time.RFC3339),
		"limit":      "10000",
	}
	if c.feed != "" {
		params["feed"] = c.feed
	}

	req := c.rest.client.R().
		SetHeader("APCA-API-KEY-ID", c.keyID).
		SetHeader("APCA-API-SECRET-KEY", c.secretKey).
		SetQueryParams(params).
		SetResult(&barsResponse{})

	resp, err := c.rest.doRequest(ctx, "GET", "/v2/stocks/"+symbol+"/bars", req)
	if err != nil {
		c.rest.logger.Error("Failed to fetch bars", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch bars for %s: %w", symbol, err)
	}

	result := resp.Result().(*barsResponse)
	if result.NextPageToken != nil {
		c.rest.logger.Warn("Bar response is paginated, only the first page is used", zap.String("symbol", symbol))
	}
	c.rest.logger.Info("Fetched bars", zap.String("symbol", symbol), zap.Int("count", len(result.Bars)))
	return result.Bars, nil
}
