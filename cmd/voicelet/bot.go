// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.astrophena.name/bots/internal/api/telegram"
)

// Fixed user-facing replies. Which stage of the pipeline failed shows up in
// logs only, never to the user.
const (
	greeting = "Hello, %s! I'm a voice chat bot: send me a voice note or a " +
		"text message and I'll reply with speech. You can also send me a " +
		"photo and I'll tell you what emotion I see on it."

	voiceApology = "Sorry, there was an error processing your voice message."
	textApology  = "Sorry, there was an error processing your message."
	photoApology = "Sorry, there was an error processing your photo."

	noEmotionMessage = "I can't determine the emotion on this photo."
)

func (e *engine) handleMessage(ctx context.Context, msg telegram.Message) {
	switch {
	case strings.HasPrefix(msg.Text, "/start"):
		e.handleStart(ctx, msg)
	case msg.Voice != nil:
		e.handleVoice(ctx, msg)
	case len(msg.Photo) > 0:
		e.handlePhoto(ctx, msg)
	case msg.Text != "":
		e.handleText(ctx, msg)
	}
}

func (e *engine) handleStart(ctx context.Context, msg telegram.Message) {
	e.record(msg, "start", nil)
	if err := e.tg.SendMessage(ctx, msg.Chat.ID, fmt.Sprintf(greeting, msg.From.FirstName)); err != nil {
		e.slog.Error("sending greeting failed", "chat_id", msg.Chat.ID, "err", err)
	}
}

func (e *engine) handleVoice(ctx context.Context, msg telegram.Message) {
	e.record(msg, "voice_message", map[string]any{"duration": msg.Voice.Duration})

	transcript, err := e.media.SpeechToText(ctx, msg.Voice.FileID)
	if err != nil {
		e.apologize(ctx, msg, voiceApology, err)
		return
	}

	reply, err := e.bridge.Reply(ctx, msg.From.ID, transcript)
	if err != nil {
		e.apologize(ctx, msg, voiceApology, err)
		return
	}

	e.sendSpoken(ctx, msg, reply)
}

func (e *engine) handleText(ctx context.Context, msg telegram.Message) {
	e.record(msg, "text_message", nil)

	reply, err := e.bridge.Reply(ctx, msg.From.ID, msg.Text)
	if err != nil {
		e.apologize(ctx, msg, textApology, err)
		return
	}

	e.sendSpoken(ctx, msg, reply)
}

func (e *engine) handlePhoto(ctx context.Context, msg telegram.Message) {
	e.record(msg, "photo_message", nil)

	// Sizes are ordered smallest to largest; take the largest.
	largest := msg.Photo[len(msg.Photo)-1]

	file, err := e.tg.GetFile(ctx, largest.FileID)
	if err != nil {
		e.apologize(ctx, msg, photoApology, err)
		return
	}

	emotion, found, err := e.vision.DetectEmotion(ctx, e.tg.FileURL(file))
	if err != nil {
		e.apologize(ctx, msg, photoApology, err)
		return
	}

	reply := emotion
	if !found {
		reply = noEmotionMessage
	}
	e.sendSpoken(ctx, msg, reply)
}

// sendSpoken synthesizes text and sends it as a voice note. Every synthesis
// failure degrades the same way, to sending the reply as plain text; the
// synthesized file is removed here after the send, on every path.
func (e *engine) sendSpoken(ctx context.Context, msg telegram.Message, text string) {
	path, err := e.media.TextToSpeech(ctx, text)
	if err != nil {
		e.slog.Error("speech synthesis failed", "chat_id", msg.Chat.ID, "err", err)
		if err := e.tg.SendMessage(ctx, msg.Chat.ID, text); err != nil {
			e.slog.Error("sending fallback text failed", "chat_id", msg.Chat.ID, "err", err)
		}
		return
	}
	defer os.Remove(path)

	if err := e.tg.SendVoice(ctx, msg.Chat.ID, path); err != nil {
		e.slog.Error("sending voice note failed", "chat_id", msg.Chat.ID, "err", err)
	}
}

// apologize logs the failure and sends a fixed apology to the chat.
func (e *engine) apologize(ctx context.Context, msg telegram.Message, apology string, cause error) {
	e.slog.Error("message handling degraded", "chat_id", msg.Chat.ID, "err", cause)
	if err := e.tg.SendMessage(ctx, msg.Chat.ID, apology); err != nil {
		e.slog.Error("sending apology failed", "chat_id", msg.Chat.ID, "err", err)
	}
}

func (e *engine) record(msg telegram.Message, eventType string, properties map[string]any) {
	if e.telemetry == nil {
		return
	}
	e.telemetry.Record(msg.From.ID, msg.Chat.ID, eventType, properties)
}
