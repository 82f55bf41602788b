// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.astrophena.name/bots/internal/testutil"

	openai "github.com/sashabaranov/go-openai"
)

func testAnalyzer(t *testing.T, reply string) (*Analyzer, *openai.ChatCompletionRequest) {
	var got openai.ChatCompletionRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"choices": [{"message": {"role": "assistant", "content": %q}}]}`, reply)
	}))
	t.Cleanup(ts.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	return &Analyzer{OpenAI: openai.NewClientWithConfig(cfg)}, &got
}

func TestDetectEmotion(t *testing.T) {
	a, got := testAnalyzer(t, "The person looks happy.")

	emotion, ok, err := a.DetectEmotion(context.Background(), "https://example.com/photo.jpg")
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, emotion, "The person looks happy.")

	// The image URL must be passed through as a multimodal part.
	parts := got.Messages[0].MultiContent
	testutil.AssertEqual(t, len(parts), 2)
	testutil.AssertEqual(t, string(parts[1].Type), "image_url")
	testutil.AssertEqual(t, parts[1].ImageURL.URL, "https://example.com/photo.jpg")
}

func TestDetectEmotionNoFace(t *testing.T) {
	a, _ := testAnalyzer(t, "False")

	emotion, ok, err := a.DetectEmotion(context.Background(), "https://example.com/photo.jpg")
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, ok, false)
	testutil.AssertEqual(t, emotion, "")
}

func TestDetectEmotionTrimsWhitespace(t *testing.T) {
	a, _ := testAnalyzer(t, "False\n")

	_, ok, err := a.DetectEmotion(context.Background(), "https://example.com/photo.jpg")
	testutil.AssertNilError(t, err)
	testutil.AssertEqual(t, ok, false)
}
