// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package media converts Telegram voice notes to text and text to voice
// notes through the OpenAI audio endpoints.
//
// Audio passes through scoped temporary files. Files created by this package
// for an incoming voice note are removed before returning; files returned by
// TextToSpeech are owned by the caller, which must remove them after sending.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.astrophena.name/bots/internal/api/telegram"

	openai "github.com/sashabaranov/go-openai"
)

// Errors returned by this package. Handlers map them to fixed user-facing
// messages while logging the underlying cause.
var (
	ErrDownload      = errors.New("voice download failed")
	ErrTranscription = errors.New("transcription failed")
	ErrSynthesis     = errors.New("speech synthesis failed")
)

// Converter converts between voice notes and text.
type Converter struct {
	// OpenAI is the client used for transcription and synthesis.
	OpenAI *openai.Client
	// Telegram is the client used to download voice notes.
	Telegram *telegram.Client
	// Voice is the synthesis voice. Defaults to onyx.
	Voice openai.SpeechVoice
	// TempDir is the directory for temporary audio files. Defaults to the
	// system one.
	TempDir string
}

// SpeechToText downloads the voice note identified by fileID and returns its
// transcript. The temporary file it creates is removed on every path.
func (c *Converter) SpeechToText(ctx context.Context, fileID string) (string, error) {
	file, err := c.Telegram.GetFile(ctx, fileID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	tmp, err := os.CreateTemp(c.TempDir, "voice-in-*.ogg")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer os.Remove(tmp.Name())

	if err := c.Telegram.DownloadFile(ctx, file, tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDownload, err)
	}

	resp, err := c.OpenAI.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: tmp.Name(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	return resp.Text, nil
}

// TextToSpeech synthesizes text into an OGG voice note and returns the path
// of the temporary file holding it. The caller owns the file and must remove
// it after sending, on both success and failure.
func (c *Converter) TextToSpeech(ctx context.Context, text string) (string, error) {
	voice := c.Voice
	if voice == "" {
		voice = openai.VoiceOnyx
	}

	resp, err := c.OpenAI.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.TTSModel1,
		Input: text,
		Voice: voice,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	defer resp.Close()

	tmp, err := os.CreateTemp(c.TempDir, "voice-out-*.ogg")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	if _, err := io.Copy(tmp, resp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %w", ErrSynthesis, err)
	}

	return tmp.Name(), nil
}
