// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package newsapi provides a very minimal client for the NewsAPI.org API.
package newsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.astrophena.name/bots/internal/request"
)

const defaultAPIURL = "https://newsapi.org"

// Client holds configuration for interacting with NewsAPI.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// APIURL overrides the NewsAPI URL. Used in tests.
	APIURL string
}

// Article is a single news article.
type Article struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []Article `json:"articles"`
}

// Everything searches for articles matching the query published between from
// and to, most relevant first.
func (c *Client) Everything(ctx context.Context, query string, from, to time.Time) ([]Article, error) {
	q := url.Values{
		"q":        {query},
		"from":     {from.Format(time.RFC3339)},
		"to":       {to.Format(time.RFC3339)},
		"sortBy":   {"relevancy"},
		"language": {"en"},
	}

	apiURL := defaultAPIURL
	if c.APIURL != "" {
		apiURL = c.APIURL
	}

	resp, err := request.Make[everythingResponse](ctx, request.Params{
		Method: http.MethodGet,
		URL:    apiURL + "/v2/everything?" + q.Encode(),
		Headers: map[string]string{
			"X-Api-Key": c.APIKey,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s: %s", resp.Code, resp.Message)
	}
	return resp.Articles, nil
}
