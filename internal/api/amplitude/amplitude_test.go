// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package amplitude

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/bots/internal/testutil"
)

func TestLogEvents(t *testing.T) {
	var got struct {
		APIKey string  `json:"api_key"`
		Events []Event `json:"events"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/httpapi" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"code": 200, "events_ingested": 1}`))
	}))
	defer ts.Close()

	c := &Client{APIKey: "secret", APIURL: ts.URL}
	err := c.LogEvents(context.Background(), []Event{{
		UserID:   "1",
		DeviceID: "2",
		Type:     "TextMessage",
		Properties: map[string]any{
			"keywords": []string{"text", "message"},
		},
	}})
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, got.APIKey, "secret")
	testutil.AssertEqual(t, len(got.Events), 1)
	testutil.AssertEqual(t, got.Events[0].Type, "TextMessage")
}

func TestLogEventsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code": 400}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	c := &Client{APIKey: "secret", APIURL: ts.URL}
	if err := c.LogEvents(context.Background(), []Event{{Type: "x"}}); err == nil {
		t.Fatal("expected error, got none")
	}
}
