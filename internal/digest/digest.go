// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package digest builds crypto price and news sentiment reports.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.astrophena.name/bots/internal/api/coingecko"
	"go.astrophena.name/bots/internal/api/newsapi"

	"github.com/mmcdole/gofeed"
	openai "github.com/sashabaranov/go-openai"
)

// PriceReport describes how an asset's price moved over a lookback window.
type PriceReport struct {
	Coin      string
	Days      int
	Earliest  float64
	Latest    float64
	Direction string // "increased" or "decreased"
	ChangePct float64
}

// FetchPrices pulls the asset's price history and compares the first and
// last samples.
func FetchPrices(ctx context.Context, client *coingecko.Client, coin string, days int) (PriceReport, error) {
	chart, err := client.MarketChart(ctx, coin, days)
	if err != nil {
		return PriceReport{}, err
	}

	samples := chart.Prices
	earliest, latest := samples[0].Price, samples[len(samples)-1].Price
	if earliest == 0 {
		return PriceReport{}, fmt.Errorf("coingecko: zero opening price for %q", coin)
	}

	direction := "increased"
	if latest < earliest {
		direction = "decreased"
	}

	return PriceReport{
		Coin:      coin,
		Days:      days,
		Earliest:  earliest,
		Latest:    latest,
		Direction: direction,
		ChangePct: math.Abs(latest-earliest) / earliest * 100,
	}, nil
}

// Headline is a news item about the asset.
type Headline struct {
	Title       string
	URL         string
	Source      string
	PublishedAt time.Time
}

// News fetches headlines from NewsAPI and optionally from RSS feeds.
type News struct {
	// NewsAPI is the article search client. Optional if Feeds is set.
	NewsAPI *newsapi.Client
	// Feeds is a list of RSS feed URLs merged into the results.
	Feeds []string
	// FeedParser parses the feeds. Defaults to gofeed.NewParser.
	FeedParser *gofeed.Parser
	// Logger is used for all logging.
	Logger *slog.Logger
	// Limit caps the number of returned headlines. Defaults to 10.
	Limit int
}

// Headlines returns the most recent headlines mentioning query within the
// lookback window, newest first. Individual source failures are logged and
// skipped; it is an error only if every source failed.
func (n *News) Headlines(ctx context.Context, query string, days int) ([]Headline, error) {
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	var (
		headlines []Headline
		lastErr   error
	)

	if n.NewsAPI != nil {
		articles, err := n.NewsAPI.Everything(ctx, query, from, to)
		if err != nil {
			n.Logger.Warn("newsapi fetch failed", "err", err)
			lastErr = err
		}
		for _, a := range articles {
			headlines = append(headlines, Headline{
				Title:       a.Title,
				URL:         a.URL,
				Source:      a.Source.Name,
				PublishedAt: a.PublishedAt,
			})
		}
	}

	parser := n.FeedParser
	if parser == nil {
		parser = gofeed.NewParser()
	}
	for _, url := range n.Feeds {
		feed, err := parser.ParseURLWithContext(url, ctx)
		if err != nil {
			n.Logger.Warn("feed fetch failed", "feed", url, "err", err)
			lastErr = err
			continue
		}
		for _, item := range feed.Items {
			if item.PublishedParsed == nil || item.PublishedParsed.Before(from) {
				continue
			}
			if !strings.Contains(strings.ToLower(item.Title), strings.ToLower(query)) {
				continue
			}
			headlines = append(headlines, Headline{
				Title:       item.Title,
				URL:         item.Link,
				Source:      feed.Title,
				PublishedAt: *item.PublishedParsed,
			})
		}
	}

	if len(headlines) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.Slice(headlines, func(i, j int) bool {
		return headlines[i].PublishedAt.After(headlines[j].PublishedAt)
	})

	limit := n.Limit
	if limit == 0 {
		limit = 10
	}
	if len(headlines) > limit {
		headlines = headlines[:limit]
	}
	return headlines, nil
}

// Label is a sentiment classification of a headline.
type Label string

// Possible sentiment labels.
const (
	LabelPositive Label = "positive"
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
)

// ScoredHeadline is a headline with its sentiment label.
type ScoredHeadline struct {
	Headline
	Label Label
}

// Scorer asks a model to label headline sentiment.
type Scorer struct {
	OpenAI *openai.Client
	Model  string // defaults to gpt-4o
}

// sentimentLine matches one "<index>. <label>" line of the model's reply.
var sentimentLine = regexp.MustCompile(`(?i)^\s*(\d+)[.):]?\s+(positive|negative|neutral)\b`)

// Score labels each headline's sentiment. Every headline is numbered in the
// prompt and the reply is paired back by that number, so a model that
// reorders, skips or pads lines can't silently misalign labels with
// headlines. Headlines the model didn't label are left out of the result.
func (s *Scorer) Score(ctx context.Context, headlines []Headline) ([]ScoredHeadline, error) {
	if len(headlines) == 0 {
		return nil, nil
	}

	var prompt strings.Builder
	prompt.WriteString("Classify the sentiment of each headline below as positive, negative or neutral for the asset it mentions. Reply with one line per headline in the form \"<number>. <label>\", using the number shown before the headline.\n\n")
	for i, h := range headlines {
		fmt.Fprintf(&prompt, "%d. %s\n", i, h.Title)
	}

	model := s.Model
	if model == "" {
		model = openai.GPT4o
	}
	resp, err := s.OpenAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt.String(),
		}},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("sentiment: empty completion response")
	}

	labels := make(map[int]Label)
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		m := sentimentLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= len(headlines) {
			continue
		}
		labels[idx] = Label(strings.ToLower(m[2]))
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("sentiment: no parseable labels in model reply %q", resp.Choices[0].Message.Content)
	}

	var scored []ScoredHeadline
	for i, h := range headlines {
		label, ok := labels[i]
		if !ok {
			continue
		}
		scored = append(scored, ScoredHeadline{Headline: h, Label: label})
	}
	return scored, nil
}

// Intent codes returned by [ClassifyIntent] for messages that don't ask
// about price history.
const (
	IntentChat        = -1 // question about the bot itself
	IntentUnsupported = -2 // unrelated to crypto prices
)

// ClassifyIntent asks a model what the user wants: a question about the
// bot's own functionality (IntentChat), something out of scope
// (IntentUnsupported), or a price summary over the returned number of days.
func ClassifyIntent(ctx context.Context, client *openai.Client, model, message string) (int, error) {
	if model == "" {
		model = openai.GPT4o
	}
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			Content: "Classify the user message below. Reply with a single " +
				"integer and nothing else: -1 if the user asks about this " +
				"bot's capabilities or functionality, -2 if the message is " +
				"unrelated to cryptocurrency prices, or the number of days " +
				"of price history the user asks about (default 7 if they " +
				"ask about prices without a period).\n\n" + message,
		}},
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("intent: empty completion response")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	code, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("intent: model reply %q is not an integer", raw)
	}
	if code < IntentUnsupported || code == 0 {
		return 0, fmt.Errorf("intent: model reply %d is out of range", code)
	}
	return code, nil
}

// ComposeReport renders the price movement summary together with the
// headlines whose sentiment matches the direction of the move.
func ComposeReport(price PriceReport, scored []ScoredHeadline) string {
	matching := LabelPositive
	if price.Direction == "decreased" {
		matching = LabelNegative
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s price has %s by %.1f%% over the last %d days.",
		capitalize(price.Coin), price.Direction, price.ChangePct, price.Days)

	var lines []string
	for _, h := range scored {
		if h.Label != matching {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", h.Title, h.Source))
	}
	if len(lines) == 0 {
		sb.WriteString("\n\nNo recent headlines match the move.")
		return sb.String()
	}

	sb.WriteString("\n\nHeadlines that match the move:\n")
	sb.WriteString(strings.Join(lines, "\n"))
	return sb.String()
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
