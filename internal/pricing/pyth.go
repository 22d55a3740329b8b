// Package pricing resolves USD prices from the Pyth Hermes service
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"basket_swap/internal/core"
	apperrors "basket_swap/pkg/errors"
	pkghttp "basket_swap/pkg/http"

	"github.com/shopspring/decimal"
)

// DefaultHermesURL is the public Hermes endpoint
const DefaultHermesURL = "https://hermes.pyth.network"

type priceDTO struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type parsedUpdate struct {
	ID    string   `json:"id"`
	Price priceDTO `json:"price"`
}

type latestResponse struct {
	Parsed []parsedUpdate `json:"parsed"`
}

// HermesClient implements core.IPriceSource
type HermesClient struct {
	http   *pkghttp.Client
	logger core.ILogger
}

func NewHermesClient(baseURL string, timeout time.Duration, logger core.ILogger) *HermesClient {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HermesClient{
		http:   pkghttp.NewClient(strings.TrimRight(baseURL, "/"), timeout, nil, pkghttp.WithName("pyth-hermes")),
		logger: logger.WithField("component", "pyth"),
	}
}

// GetPrices returns price*10^expo keyed by the feed ids as given. Feeds Hermes does not
// return are absent from the map.
func (c *HermesClient) GetPrices(ctx context.Context, feedIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(feedIDs))
	if len(feedIDs) == 0 {
		return out, nil
	}

	requested := make(map[string]string, len(feedIDs))
	ids := make([]string, 0, len(feedIDs))
	for _, id := range feedIDs {
		key := normalizeFeedID(id)
		if _, dup := requested[key]; dup {
			continue
		}
		requested[key] = id
		ids = append(ids, id)
	}

	raw, err := c.http.GetValues(ctx, "/v2/updates/price/latest", map[string][]string{
		"ids[]":    ids,
		"parsed":   {"true"},
		"encoding": {"hex"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pyth: %v", apperrors.ErrNetwork, err)
	}

	var resp latestResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: pyth: %v", apperrors.ErrInvalidResponse, err)
	}

	for _, u := range resp.Parsed {
		original, ok := requested[normalizeFeedID(u.ID)]
		if !ok {
			continue
		}
		price, err := u.Price.value()
		if err != nil {
			c.logger.Warn("Skipping malformed price", "feed", u.ID, "error", err)
			continue
		}
		out[original] = price
	}
	return out, nil
}

func (p priceDTO) value() (decimal.Decimal, error) {
	mantissa, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Zero, err
	}
	return mantissa.Shift(p.Expo), nil
}

func normalizeFeedID(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
}
