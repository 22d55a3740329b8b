package catalog

import (
	"strings"

	"basket_swap/internal/core"
)

// Well known Sui coin types
const (
	SUICoinType  = "0x2::sui::SUI"
	USDCCoinType = "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC"
	DEEPCoinType = "0xdeeb7a4662eec9f2f3def03fb937a663dddaa2e215b8078a284d026b7946c270::deep::DEEP"
	NSCoinType   = "0x5145494a5f5100e645e4b0aa950fa6b68f614e8c59e17bc5ded3495123a79178::ns::NS"
	WETHCoinType = "0xaf8cd5edc19c4512f4259f0bee101a40d41ebed738ade5874359610ef8eeced5::coin::COIN"
)

// Pyth price feed ids
const (
	SUIFeedID  = "0x23d7315113f5b1d3ba7a83604c44b94d79f4fd69af77f804fc7f920a6dc65744"
	USDCFeedID = "0xeaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a"
	ETHFeedID  = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"
	DEEPFeedID = "0x29bdd5248234e33bd93d3b81100b5fa32eaa5997843847e2c2cb16d7c6d9f7ff"
	NSFeedID   = "0xbb5ff26e47a3a6cc7ec2fce1db996c2a145300edc5acaabe43bf9ff7c5dd5d32"
)

// Token is a registry entry: on-chain identity of a symbol
type Token struct {
	Symbol     string `yaml:"symbol" json:"symbol"`
	Name       string `yaml:"name" json:"name"`
	CoinType   string `yaml:"coin_type" json:"coin_type"`
	Decimals   int32  `yaml:"decimals" json:"decimals"`
	PythFeedID string `yaml:"pyth_feed_id" json:"pyth_feed_id,omitempty"`
	IconURL    string `yaml:"icon_url" json:"icon_url,omitempty"`
}

// Asset converts the token into a core asset with reference price zero
func (t Token) Asset() core.Asset {
	return core.Asset{
		Symbol:     t.Symbol,
		Name:       t.Name,
		CoinType:   t.CoinType,
		Decimals:   t.Decimals,
		PythFeedID: t.PythFeedID,
		IconURL:    t.IconURL,
	}
}

// Registry resolves symbols and coin types to tokens. Symbols match case-insensitively.
type Registry struct {
	bySymbol   map[string]Token
	byCoinType map[string]Token
	order      []string
}

func NewRegistry(tokens ...Token) *Registry {
	r := &Registry{
		bySymbol:   make(map[string]Token, len(tokens)),
		byCoinType: make(map[string]Token, len(tokens)),
	}
	for _, t := range tokens {
		r.Add(t)
	}
	return r
}

// Add registers or replaces a token
func (r *Registry) Add(t Token) {
	key := strings.ToUpper(t.Symbol)
	if _, exists := r.bySymbol[key]; !exists {
		r.order = append(r.order, key)
	}
	r.bySymbol[key] = t
	if t.CoinType != "" {
		r.byCoinType[t.CoinType] = t
	}
}

func (r *Registry) BySymbol(symbol string) (Token, bool) {
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

func (r *Registry) ByCoinType(coinType string) (Token, bool) {
	t, ok := r.byCoinType[coinType]
	return t, ok
}

// Tokens returns all tokens in registration order
func (r *Registry) Tokens() []Token {
	out := make([]Token, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.bySymbol[k])
	}
	return out
}

// DefaultRegistry holds the Sui mainnet tokens the built-in baskets and the portfolio use
func DefaultRegistry() *Registry {
	return NewRegistry(
		Token{Symbol: "SUI", Name: "Sui", CoinType: SUICoinType, Decimals: 9, PythFeedID: SUIFeedID},
		Token{Symbol: "USDC", Name: "USD Coin", CoinType: USDCCoinType, Decimals: 6, PythFeedID: USDCFeedID},
		Token{Symbol: "DEEP", Name: "DeepBook", CoinType: DEEPCoinType, Decimals: 6, PythFeedID: DEEPFeedID},
		Token{Symbol: "NS", Name: "SuiNS", CoinType: NSCoinType, Decimals: 6, PythFeedID: NSFeedID},
		Token{Symbol: "WETH", Name: "Wrapped Ether", CoinType: WETHCoinType, Decimals: 8, PythFeedID: ETHFeedID},
	)
}
