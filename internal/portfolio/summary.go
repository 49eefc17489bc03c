package portfolio

import (
	"sort"
	"strings"
)

type Category string

const (
	Politics      Category = "politics"
	Crypto        Category = "crypto"
	Sports        Category = "sports"
	Entertainment Category = "entertainment"
	Technology    Category = "technology"
	Economics     Category = "economics"
	Other         Category = "other"
)

// Categories lists categories in matching priority order.
var Categories = []Category{Politics, Crypto, Sports, Entertainment, Technology, Economics, Other}

const topMarketLimit = 10

// keywords are matched as substrings of the lowercased title, slug and event slug.
var keywords = map[Category][]string{
	Politics: {
		"election", "president", "presidential", "vote", "campaign", "senate",
		"congress", "democrat", "republican", "biden", "trump", "harris",
		"political", "governor", "mayor", "legislation", "impeach", "war", "israel",
		"gaza",
	},
	Crypto: {
		"bitcoin", "ethereum", "crypto", "defi", "nft", "btc", "eth",
		"blockchain", "dogecoin", "solana", "polygon", "ada", "xrp",
		"coinbase", "binance", "price", "market-cap", "airdrop",
	},
	Sports: {
		"nfl", "nba", "wnba", "mlb", "nhl", "soccer", "football", "basketball",
		"baseball", "hockey", "olympics", "super-bowl", "world-cup",
		"championship", "playoffs", "wins", "mvp", "team", "us-open",
	},
	Entertainment: {
		"movie", "tv", "television", "celebrity", "music", "awards", "oscar",
		"netflix", "disney", "streaming", "box-office", "album", "concert",
		"grammy", "emmy", "actor", "actress", "artist", "artists", "rotten-tomatoes",
	},
	Technology: {
		"ai", "artificial-intelligence", "tech", "software", "hardware",
		"innovation", "chatgpt", "openai", "robot", "automation",
		"iphone", "android", "app", "platform", "stock", "ipo", "merger", "earnings", "company", "ceo", "revenue",
		"apple", "google", "microsoft", "tesla", "amazon", "meta",
		"quarterly", "billion", "market-value",
	},
	Economics: {
		"inflation", "gdp", "recession", "interest", "fed", "federal-reserve",
		"rate", "economy", "unemployment", "jobs", "housing", "market",
		"dow", "s&p", "nasdaq",
	},
}

// Trade is one entry of the data API activity feed.
type Trade struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Slug        string  `json:"slug"`
	EventSlug   string  `json:"eventSlug"`
	MarketID    string  `json:"marketId"`
	MarketTitle string  `json:"marketTitle"`
	MarketSlug  string  `json:"marketSlug"`
	ConditionID string  `json:"conditionId"`
	USDCSize    float64 `json:"usdcSize"`
	Timestamp   int64   `json:"timestamp"`
	Side        string  `json:"side"`
	Outcome     string  `json:"outcome"`
}

type MarketSummary struct {
	Question   string  `json:"question"`
	Slug       string  `json:"slug"`
	Volume     float64 `json:"volume"`
	TradeCount int     `json:"trade_count"`
}

type Summary struct {
	TraderAddress       string               `json:"trader_address"`
	TotalVolume         float64              `json:"total_volume"`
	CategoryVolumes     map[Category]float64 `json:"category_volumes"`
	CategoryPercentages map[Category]float64 `json:"category_percentages"`
	TradeCount          int                  `json:"trade_count"`
	CategoriesTraded    int                  `json:"categories_traded"`
	TopMarkets          []MarketSummary      `json:"top_markets"`
}

// Dominant returns the category with the largest share. ok is false for an empty summary.
func (s Summary) Dominant() (cat Category, pct float64, ok bool) {
	for _, c := range Categories {
		p, found := s.CategoryPercentages[c]
		if found && (!ok || p > pct) {
			cat, pct, ok = c, p, true
		}
	}
	return cat, pct, ok
}

// Categorize picks the first category, in priority order, with a keyword in the trade's text.
func Categorize(t Trade) Category {
	text := strings.ToLower(t.Title + " " + t.Slug + " " + t.EventSlug)
	for _, c := range Categories {
		for _, kw := range keywords[c] {
			if strings.Contains(text, kw) {
				return c
			}
		}
	}
	return Other
}

// Summarize aggregates TRADE entries; other activity types are ignored.
func Summarize(trader string, activity []Trade) Summary {
	s := Summary{
		TraderAddress:       trader,
		CategoryVolumes:     map[Category]float64{},
		CategoryPercentages: map[Category]float64{},
		TopMarkets:          []MarketSummary{},
	}

	type market struct {
		question string
		volume   float64
		trades   int
	}
	markets := map[string]*market{}

	for _, t := range activity {
		if t.Type != "TRADE" {
			continue
		}
		s.TradeCount++
		s.TotalVolume += t.USDCSize
		s.CategoryVolumes[Categorize(t)] += t.USDCSize

		id := firstNonEmpty(t.MarketID, t.ConditionID, t.Slug)
		m, ok := markets[id]
		if !ok {
			m = &market{}
			markets[id] = m
		}
		m.question = firstNonEmpty(t.MarketTitle, t.MarketSlug, t.Title, "Unknown Market")
		m.volume += t.USDCSize
		m.trades++
	}

	if s.TotalVolume > 0 {
		for c, v := range s.CategoryVolumes {
			s.CategoryPercentages[c] = v / s.TotalVolume * 100
		}
	}
	s.CategoriesTraded = len(s.CategoryVolumes)

	ids := make([]string, 0, len(markets))
	for id := range markets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := markets[ids[i]], markets[ids[j]]
		if a.volume != b.volume {
			return a.volume > b.volume
		}
		return ids[i] < ids[j]
	})
	if len(ids) > topMarketLimit {
		ids = ids[:topMarketLimit]
	}
	for _, id := range ids {
		m := markets[id]
		if m.volume <= 0 {
			continue
		}
		s.TopMarkets = append(s.TopMarkets, MarketSummary{Question: m.question, Slug: id, Volume: m.volume, TradeCount: m.trades})
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
