// Package telegram provides a client for a subset of the Telegram Bot API
// used by this bot: identifying itself, long polling for updates and sending
// messages with optional inline keyboards.
//
// See https://core.telegram.org/bots/api.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jacobdcastro/xiv-wiki-telegram-bot/internal/request"
)

// APIEndpoint is the base URL of the Telegram Bot API.
const APIEndpoint = "https://api.telegram.org"

const sendRetryLimit = 5 // attempts to retry a rate-limited send

// Client represents a Telegram Bot API client.
type Client struct {
	// Token is the bot token used for authentication.
	Token string
	// HTTPClient is an optional custom HTTP client object to use for
	// requests. It should have a timeout larger than the long polling timeout
	// passed to GetUpdates.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data
	// (like the bot token) from error messages.
	Scrubber *strings.Replacer
}

// User represents a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Chat represents a Telegram chat.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"` // private|group|supergroup|channel
}

// Message represents a message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
}

// CallbackQuery represents an incoming callback query from an inline
// keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update represents an incoming update.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// InlineKeyboardButton represents one button of an inline keyboard.
//
// https://core.telegram.org/bots/api#inlinekeyboardbutton
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

// InlineKeyboard is a grid of inline keyboard buttons.
type InlineKeyboard = [][]InlineKeyboardButton

type replyMarkup struct {
	InlineKeyboard InlineKeyboard `json:"inline_keyboard"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description,omitempty"`
}

func makeRequest[T any](ctx context.Context, c *Client, httpMethod, apiMethod string, args any) (T, error) {
	var zero T
	resp, err := request.Make[apiResponse[T]](ctx, request.Params{
		Method:     httpMethod,
		URL:        APIEndpoint + "/bot" + c.Token + "/" + apiMethod,
		Body:       args,
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
	if err != nil {
		return zero, err
	}
	if !resp.OK {
		return zero, fmt.Errorf("telegram %s: ok=false: %s", apiMethod, resp.Description)
	}
	return resp.Result, nil
}

// GetMe returns basic information about the bot, validating the token along
// the way.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return makeRequest[*User](ctx, c, http.MethodGet, "getMe", nil)
}

type getUpdatesRequest struct {
	Offset  int64    `json:"offset,omitempty"`
	Timeout int      `json:"timeout"`
	Allowed []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long polls for updates, starting at offset, and returns the
// received updates together with the offset to pass to the next call.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := max(int(timeout.Seconds()), 1)

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	updates, err := makeRequest[[]Update](reqCtx, c, http.MethodPost, "getUpdates", getUpdatesRequest{
		Offset:  offset,
		Timeout: secs,
		Allowed: []string{"message", "callback_query"},
	})
	if err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

type sendMessageRequest struct {
	ChatID             int64        `json:"chat_id"`
	Text               string       `json:"text"`
	ReplyMarkup        *replyMarkup `json:"reply_markup,omitempty"`
	LinkPreviewOptions struct {
		IsDisabled bool `json:"is_disabled"`
	} `json:"link_preview_options"`
}

// SendMessage sends a plain text message to the chat, optionally attaching
// an inline keyboard. Rate-limited sends are retried after the wait
// suggested by the API.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard InlineKeyboard) error {
	msg := sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}
	msg.LinkPreviewOptions.IsDisabled = true
	if keyboard != nil {
		msg.ReplyMarkup = &replyMarkup{InlineKeyboard: keyboard}
	}

	var err error
	for range sendRetryLimit {
		_, err = makeRequest[json.RawMessage](ctx, c, http.MethodPost, "sendMessage", msg)
		if err == nil {
			break
		}
		retryable, wait := isSendingRateLimited(err)
		if !retryable {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func isSendingRateLimited(err error) (retryable bool, wait time.Duration) {
	var statusErr *request.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		return false, 0
	}

	var errorResponse struct {
		Parameters struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(statusErr.Body, &errorResponse); err != nil {
		return false, 0
	}

	return true, time.Duration(errorResponse.Parameters.RetryAfter) * time.Second
}

type answerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

// AnswerCallbackQuery acknowledges a callback query so the client stops
// showing a progress indicator on the pressed button.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	_, err := makeRequest[json.RawMessage](ctx, c, http.MethodPost, "answerCallbackQuery", answerCallbackQueryRequest{
		CallbackQueryID: id,
	})
	return err
}
