package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trader = "0xabc0000000000000000000000000000000000001"

func TestCategorize(t *testing.T) {
	cases := []struct {
		trade Trade
		want  Category
	}{
		{Trade{Title: "Will Bitcoin hit 100k?", Slug: "bitcoin-100k"}, Crypto},
		{Trade{Title: "Presidential Election 2028"}, Politics},
		{Trade{Title: "Super Bowl LIX", Slug: "super-bowl-lix"}, Sports},
		{Trade{Title: "Best Picture", EventSlug: "oscars-2026"}, Entertainment},
		{Trade{Title: "Zzz"}, Other},
		// politics outranks crypto when both match
		{Trade{Title: "Trump bitcoin reserve"}, Politics},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.trade), tc.trade.Title)
	}
}

func TestSummarize(t *testing.T) {
	activity := []Trade{
		{Type: "TRADE", Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 600},
		{Type: "TRADE", Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 200},
		{Type: "TRADE", Title: "Presidential Election 2028", MarketID: "m2", MarketTitle: "Who wins 2028?", USDCSize: 200},
		{Type: "REDEEM", Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 1000},
	}

	s := Summarize(trader, activity)
	assert.Equal(t, trader, s.TraderAddress)
	assert.Equal(t, 3, s.TradeCount)
	assert.InDelta(t, 1000, s.TotalVolume, 1e-9)
	assert.Equal(t, 2, s.CategoriesTraded)
	assert.InDelta(t, 80, s.CategoryPercentages[Crypto], 1e-9)
	assert.InDelta(t, 20, s.CategoryPercentages[Politics], 1e-9)

	require.Len(t, s.TopMarkets, 2)
	assert.Equal(t, MarketSummary{Question: "Will Bitcoin hit 100k?", Slug: "m1", Volume: 800, TradeCount: 2}, s.TopMarkets[0])
	assert.Equal(t, "Who wins 2028?", s.TopMarkets[1].Question)

	cat, pct, ok := s.Dominant()
	require.True(t, ok)
	assert.Equal(t, Crypto, cat)
	assert.InDelta(t, 80, pct, 1e-9)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(trader, nil)
	assert.Zero(t, s.TradeCount)
	assert.Zero(t, s.TotalVolume)
	assert.Empty(t, s.CategoryPercentages)
	assert.Empty(t, s.TopMarkets)
	_, _, ok := s.Dominant()
	assert.False(t, ok)
}

func TestSummarizeTopMarketsCapped(t *testing.T) {
	var activity []Trade
	for i := 1; i <= 12; i++ {
		activity = append(activity, Trade{Type: "TRADE", Title: "Zzz", MarketID: fmt.Sprintf("m%02d", i), USDCSize: float64(i)})
	}
	s := Summarize(trader, activity)
	require.Len(t, s.TopMarkets, topMarketLimit)
	assert.Equal(t, "m12", s.TopMarkets[0].Slug)
	assert.Equal(t, "m03", s.TopMarkets[9].Slug)
}

func TestSummarizeOnlyCountsTrades(t *testing.T) {
	activity := []Trade{
		{Type: "TRADE", Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 100},
		{Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 900},
		{Type: "TRADE", Title: "NBA Finals", MarketID: "m2", USDCSize: 0},
	}

	s := Summarize(trader, activity)
	assert.Equal(t, 2, s.TradeCount)
	assert.InDelta(t, 100, s.TotalVolume, 1e-9)
	require.Len(t, s.TopMarkets, 1, "zero volume markets are dropped")
	assert.Equal(t, MarketSummary{Question: "Will Bitcoin hit 100k?", Slug: "m1", Volume: 100, TradeCount: 1}, s.TopMarkets[0])
}

func TestFetcherActivity(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/activity", r.URL.Path)
		q := r.URL.Query()
		gotQuery = map[string]string{"user": q.Get("user"), "limit": q.Get("limit"), "sortDirection": q.Get("sortDirection"), "type": q.Get("type")}
		_ = json.NewEncoder(w).Encode([]Trade{{Type: "TRADE", Title: "Will Bitcoin hit 100k?", MarketID: "m1", USDCSize: 50}})
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{BaseURL: srv.URL + "/", Limit: 250, RequestsPerSecond: 100})
	s, err := f.Analyze(context.Background(), trader)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"user": trader, "limit": "250", "sortDirection": "DESC", "type": "TRADE"}, gotQuery)
	assert.Equal(t, 1, s.TradeCount)
	assert.InDelta(t, 100, s.CategoryPercentages[Crypto], 1e-9)
}

func TestFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFetcher(FetcherConfig{BaseURL: srv.URL}).Activity(context.Background(), trader)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestFetcherRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherConfig{BaseURL: srv.URL, RequestsPerSecond: 0.01, Burst: 1})
	_, err := f.Activity(context.Background(), trader)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Activity(ctx, trader)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
