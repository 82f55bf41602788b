// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Voicelet is a Telegram bot that chats with users by voice.
//
// It transcribes incoming voice notes, relays them to an OpenAI assistant
// and replies with synthesized speech. Text messages get the same treatment,
// and photos are answered with a spoken description of the emotion on them.
//
// # Environment
//
//   - TELEGRAM_TOKEN: Telegram Bot API token (required)
//   - OPENAI_KEY: OpenAI API key (required)
//   - AMPLITUDE_API_KEY: Amplitude API key; telemetry is disabled if unset
//   - DATABASE_PATH: SQLite database path for saved user values; persistence
//     is disabled if unset
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

	"go.astrophena.name/bots/internal/api/amplitude"
	"go.astrophena.name/bots/internal/api/telegram"
	"go.astrophena.name/bots/internal/assistant"
	"go.astrophena.name/bots/internal/cli"
	"go.astrophena.name/bots/internal/media"
	"go.astrophena.name/bots/internal/store"
	"go.astrophena.name/bots/internal/telemetry"
	"go.astrophena.name/bots/internal/vision"

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

	tgToken      string
	openAIKey    string
	amplitudeKey string
	dbPath       string

	slogLevel *slog.LevelVar
	slog      *slog.Logger
	tg        *telegram.Client
	bridge    *assistant.Bridge
	media     *media.Converter
	vision    *vision.Analyzer
	telemetry *telemetry.Recorder
	store     *store.Store
}

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&e.verbose, "verbose", false, "Enable debug logging.")
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	// Load configuration from environment variables.
	e.tgToken = cmp.Or(e.tgToken, env.Getenv("TELEGRAM_TOKEN"))
	e.openAIKey = cmp.Or(e.openAIKey, env.Getenv("OPENAI_KEY"))
	e.amplitudeKey = cmp.Or(e.amplitudeKey, env.Getenv("AMPLITUDE_API_KEY"))
	e.dbPath = cmp.Or(e.dbPath, env.Getenv("DATABASE_PATH"))

	if e.tgToken == "" {
		return fmt.Errorf("%w: TELEGRAM_TOKEN environment variable is not set", cli.ErrInvalidArgs)
	}
	if e.openAIKey == "" {
		return fmt.Errorf("%w: OPENAI_KEY environment variable is not set", cli.ErrInvalidArgs)
	}

	var initErr error
	e.init.Do(func() {
		initErr = e.doInit(ctx, env)
	})
	if initErr != nil {
		return initErr
	}
	defer e.shutdown()

	if err := e.bridge.Init(ctx); err != nil {
		return err
	}

	me, err := e.tg.GetMe(ctx)
	if err != nil {
		return err
	}
	e.slog.Info("started", "bot", me.Username)

	return e.loop(ctx)
}

func (e *engine) doInit(ctx context.Context, env *cli.Env) error {
	var scrubPairs []string
	for _, secret := range []string{e.tgToken, e.openAIKey, e.amplitudeKey} {
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

	oa := openai.NewClient(e.openAIKey)
	e.media = &media.Converter{
		OpenAI:   oa,
		Telegram: e.tg,
	}
	e.vision = &vision.Analyzer{OpenAI: oa}

	var values assistant.ValueStore
	if e.dbPath != "" {
		s, err := store.Open(ctx, e.dbPath)
		if err != nil {
			return err
		}
		e.store = s
		values = s
	}

	e.bridge = assistant.New(assistant.Config{
		OpenAI: oa,
		Logger: e.slog,
		Values: values,
	})

	if e.amplitudeKey != "" {
		e.telemetry = telemetry.New(&amplitude.Client{
			APIKey:   e.amplitudeKey,
			Scrubber: scrubber,
		}, e.slog, 0, 0)
	}

	return nil
}

func (e *engine) shutdown() {
	if e.telemetry != nil {
		e.telemetry.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.slog.Error("closing store failed", "err", err)
		}
	}
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
