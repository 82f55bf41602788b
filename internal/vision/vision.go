// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package vision detects human emotions on photos through a multimodal chat
// completion.
package vision

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// noFace is the literal value the model is instructed to return when the
// image contains no human face.
const noFace = "False"

const prompt = "Look at this image. If it contains a human face, describe " +
	"the emotion the person is experiencing. If it doesn't contain a human " +
	"face, return exactly the word False."

// Analyzer detects emotions on photos.
type Analyzer struct {
	// OpenAI is the client used for multimodal completions.
	OpenAI *openai.Client
	// Model overrides the completion model. Defaults to gpt-4o.
	Model string
}

// DetectEmotion submits the image at imageURL to the model. It returns the
// description of the detected emotion and true, or an empty string and false
// when no human face is present.
func (a *Analyzer) DetectEmotion(ctx context.Context, imageURL string) (string, bool, error) {
	model := a.Model
	if model == "" {
		model = openai.GPT4o
	}

	resp, err := a.OpenAI.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: 300,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: imageURL,
					},
				},
			},
		}},
	})
	if err != nil {
		return "", false, err
	}
	if len(resp.Choices) == 0 {
		return "", false, nil
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == noFace {
		return "", false, nil
	}
	return text, true, nil
}
