package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultDataAPIURL = "https://data-api.polymarket.com"

type FetcherConfig struct {
	BaseURL string
	// Limit is the number of activity entries requested per trader.
	Limit             int
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Fetcher reads trade activity from the Polymarket data API, rate limited across callers.
type Fetcher struct {
	baseURL string
	limit   int
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultDataAPIURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1000
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limit:   cfg.Limit,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  cfg.Logger.With("component", "portfolio"),
	}
}

// Activity returns the trader's most recent trades, newest first.
func (f *Fetcher) Activity(ctx context.Context, trader string) ([]Trade, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("user", trader)
	q.Set("limit", strconv.Itoa(f.limit))
	q.Set("sortDirection", "DESC")
	q.Set("type", "TRADE")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/activity?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch activity: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var trades []Trade
	if err := json.NewDecoder(resp.Body).Decode(&trades); err != nil {
		return nil, fmt.Errorf("decode activity: %w", err)
	}
	return trades, nil
}

// Analyze fetches and summarizes the trader's activity.
func (f *Fetcher) Analyze(ctx context.Context, trader string) (Summary, error) {
	start := time.Now()
	trades, err := f.Activity(ctx, trader)
	if err != nil {
		return Summary{}, err
	}
	s := Summarize(trader, trades)
	f.logger.Debug("portfolio analyzed", "trader", trader, "trades", s.TradeCount, "categories", s.CategoriesTraded, "elapsed", time.Since(start))
	return s, nil
}
