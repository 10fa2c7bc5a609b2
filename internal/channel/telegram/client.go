// Package telegram sends alerts through the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-wildfire-alerts/internal/apperr"
	"github.com/mr1hm/go-wildfire-alerts/internal/channel"
	"github.com/mr1hm/go-wildfire-alerts/internal/models"
)

const (
	Name = "telegram"

	DefaultAPIURL = "https://api.telegram.org"
)

type Config struct {
	BotToken  string
	ChatID    string
	APIURL    string
	ParseMode string
	Timeout   time.Duration
}

// Client implements channel.Channel. It is stateless: every Send is a single
// HTTPS call to the configured chat.
type Client struct {
	token      string
	chatID     string
	parseMode  string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:     cfg.BotToken,
		chatID:    cfg.ChatID,
		parseMode: cfg.ParseMode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Configured() bool {
	return c.token != "" && c.chatID != ""
}

func (c *Client) Status() channel.Status {
	return channel.Status{Name: Name, Configured: c.Configured(), Ready: c.Configured()}
}

// Send posts msg to the configured chat. The destination is ignored; a bot
// client only ever writes to its own chat.
func (c *Client) Send(ctx context.Context, msg channel.Message, _ models.Destination) (*channel.Receipt, error) {
	if c.token == "" {
		return nil, &apperr.ChannelConfigError{Channel: Name, Reason: "bot token is not set"}
	}
	if c.chatID == "" {
		return nil, &apperr.ChannelConfigError{Channel: Name, Reason: "chat id is not set"}
	}

	var (
		req *http.Request
		err error
	)
	if msg.Attachment != nil {
		req, err = c.documentRequest(ctx, msg)
	} else {
		req, err = c.messageRequest(ctx, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	result, err := c.do(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("telegram message sent", "chat_id", c.chatID, "message_id", result.MessageID)
	return &channel.Receipt{
		Channel:   Name,
		Success:   true,
		MessageID: strconv.FormatInt(result.MessageID, 10),
		ChatID:    c.chatID,
	}, nil
}

func (c *Client) messageRequest(ctx context.Context, msg channel.Message) (*http.Request, error) {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    c.chatID,
		Text:      msg.Text,
		ParseMode: c.parseMode,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) documentRequest(ctx context.Context, msg channel.Message) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{"chat_id": c.chatID, "caption": msg.Text}
	if c.parseMode != "" {
		fields["parse_mode"] = c.parseMode
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, msg.Attachment.Filename))
	h.Set("Content-Type", msg.Attachment.MimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(msg.Attachment.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func (c *Client) do(req *http.Request) (*messageResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the bot token, keep it out of the error.
		return nil, &apperr.RemoteServiceError{Channel: Name, Err: redact(err, c.token)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &apperr.RemoteServiceError{Channel: Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var apiResp response
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		return nil, &apperr.RemoteServiceError{
			Channel:     Name,
			StatusCode:  resp.StatusCode,
			Description: "unparseable response",
			Err:         err,
		}
	}
	if !apiResp.OK || apiResp.Result == nil {
		desc := apiResp.Description
		if desc == "" {
			desc = "request rejected"
		}
		return nil, &apperr.RemoteServiceError{Channel: Name, StatusCode: resp.StatusCode, Description: desc}
	}
	return apiResp.Result, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<token>"))
}

// Bot API request/response types.

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type response struct {
	OK          bool           `json:"ok"`
	Result      *messageResult `json:"result,omitempty"`
	ErrorCode   int            `json:"error_code,omitempty"`
	Description string         `json:"description,omitempty"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}
