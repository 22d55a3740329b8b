// Package catalog holds the purchasable baskets and the tokens they are made of
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Basket is a named default allocation
type Basket struct {
	ID       string            `json:"id"`
	Slug     string            `json:"slug"`
	Name     string            `json:"name"`
	Category string            `json:"type"`
	CAGR     float64           `json:"cagr"`
	Score    float64           `json:"score"`
	Weights  core.WeightVector `json:"weights"`
}

// Purchasable reports whether every weighted asset resolves to a coin type
func (b Basket) Purchasable() bool {
	for _, e := range b.Weights {
		if e.Weight > 0 && e.Asset.CoinType == "" {
			return false
		}
	}
	return true
}

// Allocation returns the basket weights with overrides applied by position. nil keeps the
// defaults.
func (b Basket) Allocation(overrides []float64) (core.WeightVector, error) {
	out := b.Weights.Clone()
	if overrides == nil {
		return out, nil
	}
	if len(overrides) != len(out) {
		return nil, fmt.Errorf("%w: got %d weights for %d assets", apperrors.ErrInvalidWeights, len(overrides), len(out))
	}
	for i := range out {
		out[i].Weight = overrides[i]
	}
	return out, nil
}

// Slugify lowercases name and replaces spaces with dashes
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Store is a read-only source of baskets
type Store interface {
	List(ctx context.Context) ([]Basket, error)
	// Get looks a basket up by slug or id. Unknown baskets return ErrBasketNotFound.
	Get(ctx context.Context, slugOrID string) (*Basket, error)
}

// Catalog is an in-memory Store
type Catalog struct {
	mu      sync.RWMutex
	baskets []Basket
}

func NewCatalog(baskets []Basket) *Catalog {
	c := &Catalog{}
	for _, b := range baskets {
		c.baskets = append(c.baskets, normalize(b))
	}
	return c
}

func normalize(b Basket) Basket {
	if b.Slug == "" {
		b.Slug = Slugify(b.Name)
	}
	if b.ID == "" {
		b.ID = b.Slug
	}
	b.Weights = b.Weights.Clone()
	return b
}

func (c *Catalog) List(ctx context.Context) ([]Basket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Basket, len(c.baskets))
	for i, b := range c.baskets {
		b.Weights = b.Weights.Clone()
		out[i] = b
	}
	return out, nil
}

func (c *Catalog) Get(ctx context.Context, slugOrID string) (*Basket, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.baskets {
		if b.Slug == slugOrID || b.ID == slugOrID {
			b.Weights = b.Weights.Clone()
			return &b, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrBasketNotFound, slugOrID)
}

// Defaults returns the built-in baskets resolved against reg
func Defaults(reg *Registry) []Basket {
	defs := []basketDef{
		{
			Name: "Meme Stack", Type: "Meme", CAGR: 80.74, Score: 5.00,
			Assets: []assetDef{
				{Symbol: "SOL", Name: "Solana", Weight: 33.33, Price: "1.5"},
				{Symbol: "USDC", Name: "USD Coin", Weight: 33.33, Price: "1.0"},
				{Symbol: "FWOG", Name: "Fwog", Weight: 33.34, Price: "0.5"},
			},
		},
		{
			Name: "DeFi Basket", Type: "RWA", CAGR: 2.8, Score: 10.0,
			Assets: []assetDef{
				{Symbol: "SUI", Weight: 50, Price: "1.5"},
				{Symbol: "DEEP", Weight: 25, Price: "0.8"},
				{Symbol: "NS", Weight: 25, Price: "0.5"},
			},
		},
	}
	out := make([]Basket, 0, len(defs))
	for _, d := range defs {
		b, err := d.resolve(reg)
		if err != nil {
			// Built-in prices are literals
			panic(err)
		}
		out = append(out, b)
	}
	return out
}

// File is the YAML catalog layout
type File struct {
	Tokens  []Token     `yaml:"tokens"`
	Baskets []basketDef `yaml:"baskets"`
}

type basketDef struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Type   string     `yaml:"type"`
	CAGR   float64    `yaml:"cagr"`
	Score  float64    `yaml:"score"`
	Assets []assetDef `yaml:"assets"`
}

type assetDef struct {
	Symbol string  `yaml:"symbol"`
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
	Price  string  `yaml:"price"`
}

// resolve turns a definition into a basket. Symbols missing from reg keep an empty coin type.
func (d basketDef) resolve(reg *Registry) (Basket, error) {
	if d.Name == "" {
		return Basket{}, fmt.Errorf("basket without a name")
	}
	weights := make(core.WeightVector, 0, len(d.Assets))
	for _, a := range d.Assets {
		asset := core.Asset{Symbol: a.Symbol, Name: a.Name}
		if t, ok := reg.BySymbol(a.Symbol); ok {
			asset = t.Asset()
			if a.Name != "" {
				asset.Name = a.Name
			}
		}
		if a.Price != "" {
			p, err := decimal.NewFromString(a.Price)
			if err != nil {
				return Basket{}, fmt.Errorf("basket %s asset %s: invalid price %q", d.Name, a.Symbol, a.Price)
			}
			asset.Price = p
		}
		weights = append(weights, core.WeightEntry{Asset: asset, Weight: a.Weight})
	}
	return normalize(Basket{
		ID:       d.ID,
		Name:     d.Name,
		Category: d.Type,
		CAGR:     d.CAGR,
		Score:    d.Score,
		Weights:  weights,
	}), nil
}

// LoadFile reads a YAML catalog. Tokens in the file extend reg.
func LoadFile(path string, reg *Registry) ([]Basket, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data, reg)
}

// Parse decodes a YAML catalog
func Parse(data []byte, reg *Registry) ([]Basket, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for _, t := range f.Tokens {
		reg.Add(t)
	}

	out := make([]Basket, 0, len(f.Baskets))
	seen := make(map[string]bool, len(f.Baskets))
	for _, d := range f.Baskets {
		b, err := d.resolve(reg)
		if err != nil {
			return nil, err
		}
		if !b.Weights.IsBalanced() {
			return nil, fmt.Errorf("basket %s: weights sum to %v: %w", b.Name, b.Weights.Sum(), apperrors.ErrInvalidWeights)
		}
		if seen[b.Slug] {
			return nil, fmt.Errorf("duplicate basket %s", b.Slug)
		}
		seen[b.Slug] = true
		out = append(out, b)
	}
	return out, nil
}
