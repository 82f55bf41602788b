// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Cryptodigest is a Telegram bot that reports crypto price movements
// together with news headlines whose sentiment matches the move.
//
// It classifies each incoming message: questions about the bot itself get a
// capability description, unrelated messages get a polite refusal, and
// questions about prices get a report over the requested lookback window.
//
// # Environment
//
//   - TELEGRAM_TOKEN: Telegram Bot API token (required)
//   - OPENAI_KEY: OpenAI API key (required)
//   - NEWS_API_KEY: NewsAPI key; NewsAPI is skipped if unset
//   - RSS_FEEDS: comma-separated RSS feed URLs merged into the news
package main

import (
	"cmp"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.astrophena.name/bots/internal/api/coingecko"
	"go.astrophena.name/bots/internal/api/newsapi"
	"go.astrophena.name/bots/internal/api/telegram"
	"go.astrophena.name/bots/internal/cli"
	"go.astrophena.name/bots/internal/digest"

	openai "github.com/sashabaranov/go-openai"
)

const (
	longPollTimeout = 30 * time.Second
	pollRetryDelay  = 5 * time.Second
)

func main() { cli.Main(new(engine)) }

type engine struct {
	init    sync.Once
	verbose bool

	coin string

	tgToken    string
	openAIKey  string
	newsAPIKey string
	rssFeeds   string

	slogLevel *slog.LevelVar
	slog      *slog.Logger
	tg        *telegram.Client
	oa        *openai.Client
	coingecko *coingecko.Client
	news      *digest.News
	scorer    *digest.Scorer
}

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.coin, "coin", "bitcoin", "CoinGecko coin ID to report on.")
	fs.BoolVar(&e.verbose, "verbose", false, "Enable debug logging.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	// Load configuration from environment variables.
	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TELEGRAM_TOKEN"))
	e.openAIKey = cmp.Or(e.openAIKey, env.Getenv("OPENAI_KEY"))
	e.newsAPIKey = cmp.Or(e.newsAPIKey, env.Getenv("NEWS_API_KEY"))
	e.rssFeeds = cmp.Or(e.rssFeeds, env.Getenv("RSS_FEEDS"))

	if e.tgToken == "" {
		return fmt.Errorf("%w: TELEGRAM_TOKEN environment variable is not set", cli.ErrInvalidArgs)
	}
	if e.openAIKey == "" {
		return fmt.Errorf("%w: OPENAI_KEY environment variable is not set", cli.ErrInvalidArgs)
	}
	if e.newsAPIKey == "" && e.rssFeeds == "" {
		return fmt.Errorf("%w: set NEWS_API_KEY or RSS_FEEDS to have a news source", cli.ErrInvalidArgs)
	}

	e.init.Do(func() {
		e.doInit(env)
	})

	me, err := e.tg.GetMe(ctx)
	if err != nil {
		return err
	}
	e.slog.Info("started", "bot", me.Username, "coin", e.coin)

	return e.loop(ctx)
}

func (e *engine) doInit(env *cli.Env) {
	var scrubPairs []string
	for _, secret := range []string{e.tgToken, e.openAIKey, e.newsAPIKey} {
		if secret != "" {
			scrubPairs = append(scrubPairs, secret, "[EXPUNGED]")
		}
	}
	scrubber := strings.NewReplacer(scrubPairs...)

	e.slogLevel = new(slog.LevelVar)
	if e.verbose {
		e.slogLevel.Set(slog.LevelDebug)
	}
	e.slog = slog.New(slog.NewTextHandler(env.Stderr, &slog.HandlerOptions{
		Level: e.slogLevel,
	}))
	e.tg = &telegram.Client{
		Token:    e.tgToken,
		Scrubber: scrubber,
		// Long polls outlive request.DefaultClient's timeout.
		HTTPClient: &http.Client{Timeout: 2 * longPollTimeout},
	}
	e.oa = openai.NewClient(e.openAIKey)
	e.coingecko = &coingecko.Client{}

	e.news = &digest.News{
		Logger: e.slog,
	}
	if e.newsAPIKey != "" {
		e.news.NewsAPI = &newsapi.Client{
			APIKey:   e.newsAPIKey,
			Scrubber: scrubber,
		}
	}
	if e.rssFeeds != "" {
		for _, feed := range strings.Split(e.rssFeeds, ",") {
			if feed = strings.TrimSpace(feed); feed != "" {
				e.news.Feeds = append(e.news.Feeds, feed)
			}
		}
	}

	e.scorer = &digest.Scorer{OpenAI: e.oa}
}

func (e *engine) loop(ctx context.Context) error {
	var offset int64
	for {
		updates, err := e.tg.Updates(ctx, offset, int(longPollTimeout.Seconds()))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			e.slog.Error("getting updates failed", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}

		for _, u := range updates {
			offset = u.ID + 1
			if u.Message == nil || u.Message.From == nil {
				continue
			}
			go e.handleMessage(ctx, *u.Message)
		}
	}
}
