package metadata

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/50zero/pm-trader-art/internal/portfolio"
)

const (
	collectionName = "Portfolio Mandala"
	// DefaultRoyaltyBPS is 2.5%.
	DefaultRoyaltyBPS = 250
	zeroAddress       = "0x0000000000000000000000000000000000000000"
)

type Config struct {
	// BaseURI is where token metadata is served; the collection image lives under it.
	BaseURI         string
	ImageBaseURI    string
	ExternalURLBase string
	RoyaltyBPS      int
	FeeRecipient    string
}

type Attribute struct {
	TraitType   string      `json:"trait_type"`
	Value       interface{} `json:"value"`
	DisplayType string      `json:"display_type,omitempty"`
}

type Collection struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Image        string `json:"image"`
	ExternalLink string `json:"external_link"`
}

type Creator struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// TokenMetadata is an OpenSea-compatible token metadata document.
type TokenMetadata struct {
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Image           string      `json:"image"`
	ExternalURL     string      `json:"external_url"`
	AnimationURL    string      `json:"animation_url"`
	Attributes      []Attribute `json:"attributes"`
	Collection      Collection  `json:"collection"`
	Creator         Creator     `json:"creator"`
	BackgroundColor string      `json:"background_color"`
	CreatedDate     string      `json:"created_date"`
	TokenID         *big.Int    `json:"token_id"`
	TraderAddress   string      `json:"trader_address"`
}

type ContractMetadata struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Image                string `json:"image"`
	ExternalLink         string `json:"external_link"`
	SellerFeeBasisPoints int    `json:"seller_fee_basis_points"`
	FeeRecipient         string `json:"fee_recipient"`
}

type Generator struct {
	cfg Config
	now func() time.Time
}

func NewGenerator(cfg Config) *Generator {
	if cfg.RoyaltyBPS <= 0 {
		cfg.RoyaltyBPS = DefaultRoyaltyBPS
	}
	if cfg.FeeRecipient == "" {
		cfg.FeeRecipient = zeroAddress
	}
	return &Generator{cfg: cfg, now: time.Now}
}

func (g *Generator) Token(tokenID *big.Int, trader string, s portfolio.Summary) TokenMetadata {
	image := g.cfg.ImageBaseURI + trader + ".svg"
	return TokenMetadata{
		Name: fmt.Sprintf("Portfolio Mandala #%s", tokenID),
		Description: fmt.Sprintf("A unique portfolio mandala NFT representing the trading patterns of %s on Polymarket. "+
			"This NFT visualizes their portfolio distribution across different market categories through an animated, artistic mandala pattern.", trader),
		Image:        image,
		ExternalURL:  g.cfg.ExternalURLBase + trader,
		AnimationURL: image,
		Attributes:   g.Attributes(s),
		Collection: Collection{
			Name:         collectionName,
			Description:  "Unique visual representations of Polymarket trading patterns",
			Image:        g.cfg.BaseURI + "collection.png",
			ExternalLink: g.cfg.ExternalURLBase,
		},
		Creator: Creator{
			Name:        "Portfolio Mandala Generator",
			Description: "Generated portfolio visualizations",
		},
		BackgroundColor: "000000",
		CreatedDate:     g.now().UTC().Format(time.RFC3339),
		TokenID:         tokenID,
		TraderAddress:   trader,
	}
}

func (g *Generator) Contract() ContractMetadata {
	return ContractMetadata{
		Name: collectionName,
		Description: "A collection of unique NFTs representing Polymarket trading portfolios as animated mandala patterns. " +
			"Each NFT is a personalized visualization of a trader's market activity, showing their category preferences and trading patterns.",
		Image:                g.cfg.BaseURI + "collection.png",
		ExternalLink:         g.cfg.ExternalURLBase,
		SellerFeeBasisPoints: g.cfg.RoyaltyBPS,
		FeeRecipient:         g.cfg.FeeRecipient,
	}
}

// Attributes derives the trait list. Category share traits appear only above 5%.
func (g *Generator) Attributes(s portfolio.Summary) []Attribute {
	attrs := []Attribute{
		{TraitType: "Total Volume", Value: message.NewPrinter(language.English).Sprintf("$%d", int64(s.TotalVolume+0.5)), DisplayType: "number"},
		{TraitType: "Trade Count", Value: s.TradeCount, DisplayType: "number"},
		{TraitType: "Categories Traded", Value: s.CategoriesTraded, DisplayType: "number"},
		{TraitType: "Volume Tier", Value: VolumeTier(s.TotalVolume)},
		{TraitType: "Activity Level", Value: ActivityLevel(s.TradeCount)},
	}

	if cat, pct, ok := s.Dominant(); ok {
		attrs = append(attrs,
			Attribute{TraitType: "Dominant Category", Value: Title(cat)},
			Attribute{TraitType: "Dominant Category Percentage", Value: fmt.Sprintf("%.1f%%", pct), DisplayType: "number"},
		)
	}

	attrs = append(attrs,
		Attribute{TraitType: "Portfolio Diversity", Value: Diversity(s.CategoryPercentages)},
		Attribute{TraitType: "Pattern Type", Value: PatternType(len(s.CategoryPercentages))},
	)

	for _, cat := range portfolio.Categories {
		pct, ok := s.CategoryPercentages[cat]
		if !ok || pct <= 5 {
			continue
		}
		attrs = append(attrs, Attribute{
			TraitType:   Title(cat) + " %",
			Value:       fmt.Sprintf("%.1f%%", pct),
			DisplayType: "number",
		})
	}

	return append(attrs, Attribute{TraitType: "Rarity Score", Value: RarityScore(s), DisplayType: "number"})
}

func VolumeTier(volume float64) string {
	switch {
	case volume >= 1_000_000:
		return "Whale"
	case volume >= 100_000:
		return "High Roller"
	case volume >= 10_000:
		return "Active Trader"
	case volume >= 1_000:
		return "Regular Trader"
	case volume >= 100:
		return "Casual Trader"
	}
	return "Beginner"
}

func ActivityLevel(trades int) string {
	switch {
	case trades >= 1000:
		return "Hyperactive"
	case trades >= 500:
		return "Very Active"
	case trades >= 100:
		return "Active"
	case trades >= 50:
		return "Moderate"
	case trades >= 10:
		return "Light"
	}
	return "Minimal"
}

// Diversity buckets the Herfindahl-Hirschman index of category shares.
func Diversity(percentages map[portfolio.Category]float64) string {
	if len(percentages) == 0 {
		return "None"
	}
	hhi := 0.0
	for _, p := range percentages {
		hhi += (p / 100) * (p / 100)
	}
	switch {
	case hhi >= 0.8:
		return "Focused"
	case hhi >= 0.5:
		return "Moderate"
	case hhi >= 0.3:
		return "Diversified"
	}
	return "Highly Diversified"
}

func PatternType(categories int) string {
	switch categories {
	case 1:
		return "Spiral Flow"
	case 2:
		return "Dual Flow"
	case 3:
		return "Trinity Flow"
	}
	return "Network Flow"
}

// RarityScore is 0..100: volume up to 30, activity up to 25, category count up to 20
// and balance across categories up to 25.
func RarityScore(s portfolio.Summary) int {
	score := min(30, int(s.TotalVolume/10_000))
	score += min(25, s.TradeCount/20)

	n := len(s.CategoryPercentages)
	if n > 0 {
		score += min(20, n*4)

		even := 100 / float64(n)
		variance := 0.0
		for _, p := range s.CategoryPercentages {
			variance += (p - even) * (p - even)
		}
		score += max(0, 25-int(variance/100))
	}
	return min(100, score)
}

// Title renders a category name for display, e.g. "crypto" as "Crypto".
// Casers keep state, so each call gets its own.
func Title(cat portfolio.Category) string {
	return cases.Title(language.Und).String(strings.ToLower(string(cat)))
}
