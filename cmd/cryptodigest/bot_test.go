// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.astrophena.name/bots/internal/api/coingecko"
	"go.astrophena.name/bots/internal/api/newsapi"
	"go.astrophena.name/bots/internal/api/telegram"
	"go.astrophena.name/bots/internal/digest"
	"go.astrophena.name/bots/internal/testutil"

	openai "github.com/sashabaranov/go-openai"
)

const tgToken = "123:test"

type fakeTelegram struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeTelegram) serve(t *testing.T) *telegram.Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /bot"+tgToken+"/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var args struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.messages = append(f.messages, args.Text)
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &telegram.Client{Token: tgToken, APIURL: ts.URL}
}

// completionServer returns an OpenAI client whose chat completions reply in
// order: the first request gets replies[0], the second replies[1] and so on.
func completionServer(t *testing.T, replies ...string) *openai.Client {
	t.Helper()

	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1) - 1
		if int(n) >= len(replies) {
			t.Errorf("unexpected completion request #%d", n+1)
			http.Error(w, "too many requests", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, replies[n])
	}))
	t.Cleanup(ts.Close)

	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = ts.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

// countingServer fails every request and counts them.
func countingServer(t *testing.T) (url string, calls *atomic.Int64) {
	t.Helper()
	calls = new(atomic.Int64)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "should not be called", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)
	return ts.URL, calls
}

func testEngine(t *testing.T, ft *fakeTelegram, oa *openai.Client) (*engine, *atomic.Int64) {
	t.Helper()

	marketURL, marketCalls := countingServer(t)
	newsURL, _ := countingServer(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &engine{
		coin:      "bitcoin",
		slog:      logger,
		tg:        ft.serve(t),
		oa:        oa,
		coingecko: &coingecko.Client{APIURL: marketURL},
		news: &digest.News{
			NewsAPI: &newsapi.Client{APIKey: "k", APIURL: newsURL},
			Logger:  logger,
		},
		scorer: &digest.Scorer{OpenAI: oa},
	}, marketCalls
}

func message(text string) telegram.Message {
	return telegram.Message{
		From: &telegram.User{ID: 1, FirstName: "Ann"},
		Chat: telegram.Chat{ID: 10},
		Text: text,
	}
}

func TestCapabilityQuestion(t *testing.T) {
	t.Parallel()

	ft := new(fakeTelegram)
	e, marketCalls := testEngine(t, ft, completionServer(t, "-1"))

	e.handleMessage(t.Context(), message("What can you do?"))

	// A question about the bot itself is answered from the fixed capability
	// text without touching the market or news APIs.
	testutil.AssertEqual(t, ft.messages, []string{capabilityMessage})
	testutil.AssertEqual(t, marketCalls.Load(), int64(0))
}

func TestOutOfScopeQuestion(t *testing.T) {
	t.Parallel()

	ft := new(fakeTelegram)
	e, marketCalls := testEngine(t, ft, completionServer(t, "-2"))

	e.handleMessage(t.Context(), message("What's the weather like?"))

	testutil.AssertEqual(t, ft.messages, []string{unsupportedMessage})
	testutil.AssertEqual(t, marketCalls.Load(), int64(0))
}

func TestPriceReport(t *testing.T) {
	t.Parallel()

	market := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[[1000,100],[2000,90]]}`)
	}))
	t.Cleanup(market.Close)

	news := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"ok","articles":[{"title":"Bitcoin slides on ETF outflows","url":"https://news.example.com/1","publishedAt":%q,"source":{"name":"Example News"}}]}`,
			time.Now().UTC().Format(time.RFC3339))
	}))
	t.Cleanup(news.Close)

	// First completion classifies the intent, second scores the headline.
	oa := completionServer(t, "7", "0. negative")

	ft := new(fakeTelegram)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := &engine{
		coin:      "bitcoin",
		slog:      logger,
		tg:        ft.serve(t),
		oa:        oa,
		coingecko: &coingecko.Client{APIURL: market.URL},
		news: &digest.News{
			NewsAPI: &newsapi.Client{APIKey: "k", APIURL: news.URL},
			Logger:  logger,
		},
		scorer: &digest.Scorer{OpenAI: oa},
	}

	e.handleMessage(t.Context(), message("How did bitcoin do this week?"))

	want := "Bitcoin price has decreased by 10.0% over the last 7 days.\n\n" +
		"Headlines that match the move:\n" +
		"- Bitcoin slides on ETF outflows (Example News)"
	testutil.AssertEqual(t, ft.messages, []string{want})
}

func TestStart(t *testing.T) {
	t.Parallel()

	ft := new(fakeTelegram)
	// No completion requests expected at all.
	e, _ := testEngine(t, ft, completionServer(t))

	e.handleMessage(t.Context(), message("/start"))

	testutil.AssertEqual(t, ft.messages, []string{capabilityMessage})
}
