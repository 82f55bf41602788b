// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram provides a minimal client for the Telegram Bot API,
// covering only the methods the bots in this repository use.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.astrophena.name/bots/internal/request"
	"go.astrophena.name/bots/internal/version"
)

const defaultAPIURL = "https://api.telegram.org"

// Client holds configuration for interacting with the Telegram Bot API.
type Client struct {
	// Token is the bot token obtained from BotFather.
	Token string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient. Long polling with a non-zero timeout needs a
	// client whose timeout exceeds the polling timeout.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
	// APIURL overrides the Telegram Bot API URL. Used in tests.
	APIURL string
}

func (c *Client) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return defaultAPIURL
}

// User represents a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID int64 `json:"id"`
}

// Voice represents a voice note.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
}

// PhotoSize represents one size of a photo.
type PhotoSize struct {
	FileID string `json:"file_id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Message represents a message.
type Message struct {
	ID    int64       `json:"message_id"`
	From  *User       `json:"from"`
	Chat  Chat        `json:"chat"`
	Text  string      `json:"text"`
	Voice *Voice      `json:"voice"`
	Photo []PhotoSize `json:"photo"`
}

// Update represents an incoming update.
type Update struct {
	ID      int64    `json:"update_id"`
	Message *Message `json:"message"`
}

// File represents a file ready to be downloaded.
type File struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

type apiResponse[Result any] struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      Result `json:"result"`
}

func call[Result any](ctx context.Context, c *Client, method string, args any) (Result, error) {
	resp, err := request.Make[apiResponse[Result]](ctx, request.Params{
		Method:     http.MethodPost,
		URL:        c.apiURL() + "/bot" + c.Token + "/" + method,
		Body:       args,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		var zero Result
		return zero, err
	}
	if !resp.OK {
		var zero Result
		return zero, fmt.Errorf("telegram: %s: %s", method, resp.Description)
	}
	return resp.Result, nil
}

// GetMe returns basic information about the bot.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	return call[User](ctx, c, "getMe", nil)
}

// Updates long polls for incoming updates, starting from offset, waiting up
// to timeout seconds.
func (c *Client) Updates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	return call[[]Update](ctx, c, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         timeout,
		"allowed_updates": []string{"message"},
	})
}

// SendMessage sends a text message to the chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := call[Message](ctx, c, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	return err
}

// GetFile obtains information needed to download a file.
func (c *Client) GetFile(ctx context.Context, fileID string) (File, error) {
	return call[File](ctx, c, "getFile", map[string]any{
		"file_id": fileID,
	})
}

// FileURL returns the direct download URL of a file obtained via GetFile.
// The URL embeds the bot token, so don't log it unscrubbed.
func (c *Client) FileURL(f File) string {
	return c.apiURL() + "/file/bot" + c.Token + "/" + f.FilePath
}

// DownloadFile streams the contents of a file obtained via GetFile to w.
func (c *Client) DownloadFile(ctx context.Context, f File, w io.Writer) error {
	url := c.FileURL(f)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.scrub(err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.httpc().Do(req)
	if err != nil {
		return c.scrub(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return c.scrub(fmt.Errorf("telegram: download %q: want 200, got %d", f.FilePath, res.StatusCode))
	}

	_, err = io.Copy(w, res.Body)
	return c.scrub(err)
}

// SendVoice uploads the OGG file at path as a voice note to the chat.
func (c *Client) SendVoice(ctx context.Context, chatID int64, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("voice", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, file); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL()+"/bot"+c.Token+"/sendVoice", &buf)
	if err != nil {
		return c.scrub(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := c.httpc().Do(req)
	if err != nil {
		return c.scrub(err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return c.scrub(err)
	}
	if res.StatusCode != http.StatusOK {
		return c.scrub(fmt.Errorf("telegram: sendVoice: want 200, got %d: %s", res.StatusCode, b))
	}
	return nil
}

func (c *Client) httpc() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return request.DefaultClient
}

func (c *Client) scrub(err error) error {
	if err == nil {
		return nil
	}
	if c.Scrubber == nil {
		return err
	}
	return errors.New(c.Scrubber.Replace(err.Error()))
}
