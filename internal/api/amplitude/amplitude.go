// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package amplitude provides a very minimal client for the Amplitude HTTP V2
// API.
package amplitude

import (
	"context"
	"net/http"
	"strings"

	"go.astrophena.name/bots/internal/request"
)

const defaultAPIURL = "https://api2.amplitude.com"

// Client holds configuration for interacting with the Amplitude API.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// APIURL overrides the Amplitude API URL. Used in tests.
	APIURL string
}

// Event is a single analytics event.
type Event struct {
	UserID     string         `json:"user_id"`
	DeviceID   string         `json:"device_id"`
	Type       string         `json:"event_type"`
	Properties map[string]any `json:"event_properties,omitempty"`
}

// LogEvents uploads events to Amplitude.
func (c *Client) LogEvents(ctx context.Context, events []Event) error {
	apiURL := defaultAPIURL
	if c.APIURL != "" {
		apiURL = c.APIURL
	}

	_, err := request.Make[request.IgnoreResponse](ctx, request.Params{
		Method: http.MethodPost,
		URL:    apiURL + "/2/httpapi",
		Body: map[string]any{
			"api_key": c.APIKey,
			"events":  events,
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	return err
}
