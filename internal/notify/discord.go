package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lp-tracker/internal/config"
	"lp-tracker/internal/constants"
	"lp-tracker/internal/fetch"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

var (
	// ErrChannelGone means the target channel was deleted or the bot lost access to it.
	ErrChannelGone = errors.New("discord channel is gone")
	ErrMessageGone = errors.New("discord message is gone")
)

// Discord JSON error codes, see https://discord.com/developers/docs/topics/opcodes-and-status-codes
const (
	codeUnknownChannel = 10003
	codeUnknownMessage = 10008
	codeMissingAccess  = 50001
)

// Discord is a minimal channel-message client for the bot REST API.
type Discord struct {
	baseURL string
	token   string
	client  *fasthttp.Client
	policy  fetch.Policy
	logger  zerolog.Logger
}

func NewDiscord(cfg *config.Config, logger zerolog.Logger) *Discord {
	policy := fetch.DefaultPolicy()
	policy.AttemptTimeout = constants.DiscordTimeout

	return &Discord{
		baseURL: strings.TrimRight(cfg.DiscordAPIURL, "/"),
		token:   cfg.DiscordToken,
		client: &fasthttp.Client{
			MaxConnsPerHost:     16,
			ReadTimeout:         constants.DiscordTimeout,
			WriteTimeout:        constants.DiscordTimeout,
			MaxIdleConnDuration: time.Minute,
		},
		policy: policy,
		logger: logger,
	}
}

type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

type Embed struct {
	Title     string       `json:"title,omitempty"`
	Color     int          `json:"color,omitempty"`
	Fields    []EmbedField `json:"fields,omitempty"`
	Thumbnail *EmbedImage  `json:"thumbnail,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type messageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CreateMessage posts msg to the channel and returns the new message id.
func (d *Discord) CreateMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	body, err := d.do(ctx, fasthttp.MethodPost, "/channels/"+channelID+"/messages", msg)
	if err != nil {
		return "", fmt.Errorf("failed to create message in %s: %w", channelID, err)
	}

	var resp messageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode message response: %w", err)
	}
	return resp.ID, nil
}

func (d *Discord) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	if _, err := d.do(ctx, fasthttp.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, msg); err != nil {
		return fmt.Errorf("failed to edit message %s: %w", messageID, err)
	}
	return nil
}

func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if _, err := d.do(ctx, fasthttp.MethodDelete, "/channels/"+channelID+"/messages/"+messageID, nil); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", messageID, err)
	}
	return nil
}

func (d *Discord) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	policy := d.policy
	if method == fasthttp.MethodPost {
		// a 5xx after a POST may still have created the message
		policy.Retryable = isRateLimited
	}
	policy.OnRetry = func(attempt int, err error) {
		d.logger.Warn().Err(err).Str("method", method).Str("path", path).Int("attempt", attempt).Msg("retrying discord request")
	}

	return fetch.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		return d.send(ctx, method, path, body)
	})
}

func (d *Discord) send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(d.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bot "+d.token)
	req.Header.Set("User-Agent", "DiscordBot (lp-tracker, 1.0)")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = d.client.DoDeadline(req, resp, deadline)
	} else {
		err = d.client.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return append([]byte(nil), resp.Body()...), nil
	}

	var apiErr apiError
	_ = json.Unmarshal(resp.Body(), &apiErr)
	switch {
	case apiErr.Code == codeUnknownChannel || apiErr.Code == codeMissingAccess:
		return nil, ErrChannelGone
	case apiErr.Code == codeUnknownMessage:
		return nil, ErrMessageGone
	case status == fasthttp.StatusNotFound:
		return nil, fetch.ErrNotFound
	}
	return nil, &fetch.StatusError{Code: status, Body: apiErr.Message}
}

func isRateLimited(err error) bool {
	var se *fetch.StatusError
	return errors.As(err, &se) && se.Code == fasthttp.StatusTooManyRequests
}
