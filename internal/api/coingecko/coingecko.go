// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package coingecko provides a very minimal client for the CoinGecko API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.astrophena.name/bots/internal/request"
)

const defaultAPIURL = "https://api.coingecko.com"

// Client holds configuration for interacting with the CoinGecko API.
type Client struct {
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// APIURL overrides the CoinGecko API URL. Used in tests.
	APIURL string
}

// Sample is a single point of a price time series.
type Sample struct {
	Time  time.Time
	Price float64
}

// UnmarshalJSON decodes a sample from the [timestamp, price] pair CoinGecko
// returns.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	s.Time = time.UnixMilli(int64(pair[0]))
	s.Price = pair[1]
	return nil
}

// MarketChart is a price time series for a single coin.
type MarketChart struct {
	Prices []Sample `json:"prices"`
}

// MarketChart returns USD prices of the coin over the last days.
func (c *Client) MarketChart(ctx context.Context, coinID string, days int) (MarketChart, error) {
	chart, err := request.Make[MarketChart](ctx, request.Params{
		Method:     http.MethodGet,
		URL:        c.apiURL() + "/api/v3/coins/" + coinID + "/market_chart?vs_currency=usd&days=" + strconv.Itoa(days),
		HTTPClient: c.HTTPClient,
	})
	if err != nil {
		return MarketChart{}, err
	}
	if len(chart.Prices) == 0 {
		return MarketChart{}, fmt.Errorf("coingecko: empty price series for %q", coinID)
	}
	return chart, nil
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return defaultAPIURL
}
