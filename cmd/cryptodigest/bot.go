// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"

	"go.astrophena.name/bots/internal/api/telegram"
	"go.astrophena.name/bots/internal/digest"
)

// Fixed user-facing replies.
const (
	capabilityMessage = "I report cryptocurrency price movements together " +
		"with news headlines that match the move. Ask me something like " +
		"\"how did the price change over the last week?\"."

	unsupportedMessage = "Sorry, I can only answer questions about " +
		"cryptocurrency prices. Ask me how the price changed over some " +
		"period."

	apology = "Sorry, there was an error preparing your report. Please try again later."
)

func (e *engine) handleMessage(ctx context.Context, msg telegram.Message) {
	if msg.Text == "" {
		return
	}

	var reply string
	switch code := e.classify(ctx, msg.Text); code {
	case digest.IntentChat:
		reply = capabilityMessage
	case digest.IntentUnsupported:
		reply = unsupportedMessage
	case 0: // classification failed, already logged
		reply = apology
	default:
		var err error
		reply, err = e.report(ctx, code)
		if err != nil {
			e.slog.Error("preparing report failed", "chat_id", msg.Chat.ID, "err", err)
			reply = apology
		}
	}

	if err := e.tg.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		e.slog.Error("sending reply failed", "chat_id", msg.Chat.ID, "err", err)
	}
}

// classify maps /start to the capability description and everything else
// through intent classification. Zero means classification failed.
func (e *engine) classify(ctx context.Context, text string) int {
	if text == "/start" {
		return digest.IntentChat
	}
	code, err := digest.ClassifyIntent(ctx, e.oa, "", text)
	if err != nil {
		e.slog.Error("intent classification failed", "err", err)
		return 0
	}
	return code
}

// report builds the price movement report over the lookback window. News
// failures degrade to a report without headlines.
func (e *engine) report(ctx context.Context, days int) (string, error) {
	price, err := digest.FetchPrices(ctx, e.coingecko, e.coin, days)
	if err != nil {
		return "", err
	}

	var scored []digest.ScoredHeadline
	headlines, err := e.news.Headlines(ctx, e.coin, days)
	if err != nil {
		e.slog.Error("fetching news failed", "err", err)
	} else if len(headlines) > 0 {
		scored, err = e.scorer.Score(ctx, headlines)
		if err != nil {
			e.slog.Error("scoring sentiment failed", "err", err)
		}
	}

	return digest.ComposeReport(price, scored), nil
}
