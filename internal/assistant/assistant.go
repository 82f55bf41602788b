// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package assistant maintains per-user conversations with an OpenAI
// assistant.
//
// Each Telegram user gets their own thread, created lazily on the first
// message and kept for the life of the process. A reply cycle posts the user
// message, starts a run and polls it with capped exponential backoff until a
// terminal status. Runs that pause for the save_value tool get one canned
// acknowledgement per tool call; the number of such rounds is capped so a
// misbehaving upstream can't spin the cycle forever.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Errors returned by this package.
var (
	// ErrRun indicates that a run finished with a status other than
	// completed, or didn't finish at all.
	ErrRun = errors.New("run did not complete")
	// ErrToolArguments indicates a malformed tool call payload.
	ErrToolArguments = errors.New("malformed tool arguments")
)

const (
	defaultModel = openai.GPT4o
	defaultName  = "Professional interlocutor"

	defaultInstructions = "You are a professional interlocutor. You need " +
		"to answer questions, ask your own and maintain dialogue as much as " +
		"possible. When the user expresses a personal opinion or names " +
		"something they value, record it with the save_value function."

	saveValueTool = "save_value"

	// maxToolRounds caps poll/submit cycles within one reply. The upstream
	// may re-request the same tool after a submission; without a cap that
	// would never terminate.
	maxToolRounds = 5

	defaultPollInterval = 500 * time.Millisecond
	maxPollInterval     = 8 * time.Second
	defaultTurnTimeout  = 2 * time.Minute
)

// ValueStore persists user values extracted by the save_value tool.
type ValueStore interface {
	SaveValue(ctx context.Context, telegramID int64, value string) error
}

// Config configures a [Bridge].
type Config struct {
	// OpenAI is the client used for all upstream calls.
	OpenAI *openai.Client
	// Logger is used for all logging.
	Logger *slog.Logger
	// Model overrides the assistant model. Defaults to gpt-4o.
	Model string
	// Instructions override the assistant instructions.
	Instructions string
	// Values, if set, persists values gathered by the save_value tool.
	Values ValueStore
	// TurnTimeout bounds one reply cycle. Defaults to 2 minutes.
	TurnTimeout time.Duration
	// PollInterval is the initial run polling interval. Defaults to 500ms.
	PollInterval time.Duration
}

// Bridge relays user messages to an OpenAI assistant and returns its
// replies.
type Bridge struct {
	client       *openai.Client
	slog         *slog.Logger
	model        string
	instructions string
	values       ValueStore
	turnTimeout  time.Duration
	pollInterval time.Duration

	assistantID string

	mu       sync.Mutex
	sessions map[int64]*session
}

// session is the conversation state of a single user. Access to it is
// serialized so interleaved messages of one user can't corrupt each other's
// context.
type session struct {
	mu       sync.Mutex
	threadID string
}

// New returns a new Bridge. Call [Bridge.Init] before using it.
func New(cfg Config) *Bridge {
	b := &Bridge{
		client:       cfg.OpenAI,
		slog:         cfg.Logger,
		model:        cfg.Model,
		instructions: cfg.Instructions,
		values:       cfg.Values,
		turnTimeout:  cfg.TurnTimeout,
		pollInterval: cfg.PollInterval,
		sessions:     make(map[int64]*session),
	}
	if b.model == "" {
		b.model = defaultModel
	}
	if b.instructions == "" {
		b.instructions = defaultInstructions
	}
	if b.turnTimeout == 0 {
		b.turnTimeout = defaultTurnTimeout
	}
	if b.pollInterval == 0 {
		b.pollInterval = defaultPollInterval
	}
	return b
}

// Init creates the upstream assistant.
func (b *Bridge) Init(ctx context.Context) error {
	name := defaultName
	instructions := b.instructions

	a, err := b.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        b.model,
		Name:         &name,
		Instructions: &instructions,
		Tools: []openai.AssistantTool{{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        saveValueTool,
				Description: "Define and gather user opinions and key values.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"opinions": map[string]any{
							"type":        "string",
							"description": "Opinions",
						},
						"values": map[string]any{
							"type":        "array",
							"items":       map[string]any{"type": "string"},
							"description": "Values important to the user",
						},
					},
					"required": []string{"opinions", "values"},
				},
			},
		}},
	})
	if err != nil {
		return err
	}
	b.assistantID = a.ID
	return nil
}

func (b *Bridge) session(userID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[userID]
	if !ok {
		sess = new(session)
		b.sessions[userID] = sess
	}
	return sess
}

// Reply posts the user's message to their thread and returns the assistant's
// reply.
func (b *Bridge) Reply(ctx context.Context, userID int64, text string) (string, error) {
	sess := b.session(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, b.turnTimeout)
	defer cancel()

	if sess.threadID == "" {
		thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return "", err
		}
		sess.threadID = thread.ID
	}

	if _, err := b.client.CreateMessage(ctx, sess.threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	}); err != nil {
		return "", err
	}

	run, err := b.client.CreateRun(ctx, sess.threadID, openai.RunRequest{
		AssistantID: b.assistantID,
	})
	if err != nil {
		return "", err
	}

	for rounds := 0; ; {
		run, err = b.awaitRun(ctx, sess.threadID, run.ID)
		if err != nil {
			return "", err
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return b.lastReply(ctx, sess.threadID, run.ID)
		case openai.RunStatusRequiresAction:
			rounds++
			if rounds > maxToolRounds {
				return "", fmt.Errorf("%w: tool submission didn't converge after %d rounds", ErrRun, maxToolRounds)
			}
			run, err = b.handleRequiredAction(ctx, userID, sess.threadID, run)
			if err != nil {
				return "", err
			}
		default:
			var cause string
			if run.LastError != nil {
				cause = ": " + run.LastError.Message
			}
			return "", fmt.Errorf("%w: run %s ended with status %q%s", ErrRun, run.ID, run.Status, cause)
		}
	}
}

// awaitRun polls the run until it leaves a non-terminal status, doubling the
// interval up to a cap.
func (b *Bridge) awaitRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	interval := b.pollInterval
	for {
		run, err := b.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return openai.Run{}, err
		}
		if run.Status != openai.RunStatusQueued && run.Status != openai.RunStatusInProgress {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return openai.Run{}, fmt.Errorf("%w: %w", ErrRun, ctx.Err())
		case <-time.After(interval):
		}
		interval = min(interval*2, maxPollInterval)
	}
}

func (b *Bridge) handleRequiredAction(ctx context.Context, userID int64, threadID string, run openai.Run) (openai.Run, error) {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return openai.Run{}, fmt.Errorf("%w: run %s requires action but has no tool calls", ErrRun, run.ID)
	}

	var outputs []openai.ToolOutput
	for _, tc := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
		if tc.Function.Name == saveValueTool {
			b.handleSaveValue(ctx, userID, tc.Function.Arguments)
		} else {
			b.slog.Warn("unknown tool requested", "tool", tc.Function.Name)
		}
		// The run can't proceed until every tool call gets a result.
		outputs = append(outputs, openai.ToolOutput{
			ToolCallID: tc.ID,
			Output:     "Value noted.",
		})
	}

	return b.client.SubmitToolOutputs(ctx, threadID, run.ID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	})
}

type saveValueArgs struct {
	Opinions string   `json:"opinions"`
	Values   []string `json:"values"`
}

// handleSaveValue validates and persists a save_value payload. Failures are
// logged and swallowed: the tool result submitted upstream is the same
// either way.
func (b *Bridge) handleSaveValue(ctx context.Context, userID int64, rawArgs string) {
	var args saveValueArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		b.slog.Error("save_value failed", "user_id", userID, "err", fmt.Errorf("%w: %w", ErrToolArguments, err))
		return
	}

	genuine, err := b.validateOpinion(ctx, args.Opinions)
	if err != nil {
		b.slog.Error("opinion validation failed", "user_id", userID, "err", err)
		return
	}
	if !genuine {
		b.slog.Info("opinion rejected by validation", "user_id", userID)
		return
	}

	if b.values == nil {
		return
	}
	if err := b.values.SaveValue(ctx, userID, args.Opinions); err != nil {
		b.slog.Error("failed to save value", "user_id", userID, "err", err)
	}
}

// validateOpinion asks the completion endpoint whether the text expresses a
// genuine opinion. The model calling the classification tool counts as yes,
// replying without calling it counts as no.
func (b *Bridge) validateOpinion(ctx context.Context, opinion string) (bool, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: b.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			Content: "Does the following text express a genuine personal " +
				"opinion or value? If it does, call the record_opinion " +
				"function.\n\n" + opinion,
		}},
		Tools: []openai.Tool{{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        "record_opinion",
				Description: "Record that the text expresses a genuine personal opinion or value.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"reason": map[string]any{"type": "string"},
					},
				},
			},
		}},
	})
	if err != nil {
		return false, err
	}
	if len(resp.Choices) == 0 {
		return false, nil
	}
	return len(resp.Choices[0].Message.ToolCalls) > 0, nil
}

func (b *Bridge) lastReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 10
	order := "desc"
	list, err := b.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", err
	}
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		return b.renderMessage(ctx, msg), nil
	}
	return "", fmt.Errorf("%w: run %s completed without an assistant message", ErrRun, runID)
}

type annotation struct {
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
	} `json:"file_citation"`
}

// renderMessage joins the text parts of a message, replacing citation
// annotation spans with bracketed indices and appending a citation legend.
func (b *Bridge) renderMessage(ctx context.Context, msg openai.Message) string {
	var (
		sb     strings.Builder
		legend []string
		index  int
	)

	for _, part := range msg.Content {
		if part.Text == nil {
			continue
		}
		text := part.Text.Value
		for _, raw := range part.Text.Annotations {
			ann, err := decodeAnnotation(raw)
			if err != nil || ann.Text == "" {
				continue
			}
			ref := fmt.Sprintf("[%d]", index)
			text = strings.ReplaceAll(text, ann.Text, ref)
			if ann.FileCitation != nil {
				legend = append(legend, ref+" "+b.citedFileName(ctx, ann.FileCitation.FileID))
			}
			index++
		}
		sb.WriteString(text)
	}

	if len(legend) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(legend, "\n"))
	}
	return sb.String()
}

func decodeAnnotation(raw any) (annotation, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return annotation{}, err
	}
	var ann annotation
	if err := json.Unmarshal(b, &ann); err != nil {
		return annotation{}, err
	}
	return ann, nil
}

func (b *Bridge) citedFileName(ctx context.Context, fileID string) string {
	file, err := b.client.GetFile(ctx, fileID)
	if err != nil || file.FileName == "" {
		return fileID
	}
	return file.FileName
}
