package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"basket_swap/internal/api"
	"basket_swap/internal/auth"
	pkghttp "basket_swap/pkg/http"
)

const apiKeyHeader = auth.MetadataKeyAPIKey

// apiClient talks to basketd. Reads retry; purchase submissions never do.
type apiClient struct {
	reads  *pkghttp.Client
	writes *pkghttp.Client
}

func newAPIClient(g *globals) *apiClient {
	base := strings.TrimRight(g.server, "/")
	signer := pkghttp.HeaderSigner{Header: apiKeyHeader, Value: g.apiKey}
	return &apiClient{
		reads:  pkghttp.NewClient(base, g.timeout, signer, pkghttp.WithName("basketd")),
		writes: pkghttp.NewClient(base, g.timeout, signer, pkghttp.WithName("basketd"), pkghttp.WithMaxRetries(0)),
	}
}

func (c *apiClient) get(ctx context.Context, path string, params map[string]string, out interface{}) error {
	raw, err := c.reads.Get(ctx, path, params)
	if err != nil {
		return describe(err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// query posts an idempotent request such as an estimate
func (c *apiClient) query(ctx context.Context, path string, body, out interface{}) error {
	return describe(c.reads.PostJSON(ctx, path, body, out))
}

func (c *apiClient) submit(ctx context.Context, path string, body, out interface{}) error {
	return describe(c.writes.PostJSON(ctx, path, body, out))
}

func basketPath(ref, suffix string) string {
	return "/api/baskets/" + url.PathEscape(ref) + suffix
}

// describe replaces an API error with the message basketd put in its body
func describe(err error) error {
	var apiErr *pkghttp.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	var body api.ErrorResponse
	if json.Unmarshal(apiErr.Body, &body) != nil || body.Error.Message == "" {
		return err
	}
	return fmt.Errorf("%s (%d %s)", body.Error.Message, apiErr.StatusCode, body.Error.Code)
}
