package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiocaption/internal/model"
)

const (
	ChatCompletionsPath = "/v1/chat/completions"
	RequestIDHeader     = "X-Request-Id"
	maxErrorBodyBytes   = 4096
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   ObserverFunc
}

// Error is returned for any response outside the 2xx range.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

// FormatError is returned when a 2xx body has no usable choices array.
type FormatError struct {
	Body []byte
}

func (e *FormatError) Error() string {
	return "unexpected response format"
}

type ChatCompletionResponse struct {
	Content string
	Usage   *model.TokenUsage
	Raw     json.RawMessage
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL string, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Endpoint() string {
	return c.baseURL + ChatCompletionsPath
}

func (c *Client) ChatCompletion(ctx context.Context, reqPayload model.ChatCompletionRequest) (ChatCompletionResponse, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("chat_completions", statusCode, time.Since(started)) }()

	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatCompletionResponse{}, err
	}
	defer resp.Body.Close()
	statusCode = resp.StatusCode

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ChatCompletionResponse{}, &Error{StatusCode: resp.StatusCode, Body: truncateBody(string(respBody))}
	}

	return parseChatCompletion(respBody)
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func parseChatCompletion(data []byte) (ChatCompletionResponse, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("invalid chat completion response: %w", err)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return ChatCompletionResponse{}, &FormatError{Body: data}
	}

	var choices []json.RawMessage
	rawChoices, ok := envelope["choices"]
	if !ok || json.Unmarshal(rawChoices, &choices) != nil || len(choices) == 0 {
		return ChatCompletionResponse{}, &FormatError{Body: data}
	}

	var first model.Choice
	if err := json.Unmarshal(choices[0], &first); err != nil {
		return ChatCompletionResponse{}, fmt.Errorf("invalid choices[0]: %w", err)
	}
	if first.Message == nil || first.Message.Content == nil {
		return ChatCompletionResponse{}, errors.New("missing choices[0].message.content")
	}

	resp := ChatCompletionResponse{
		Content: *first.Message.Content,
		Raw:     json.RawMessage(data),
	}
	if rawUsage, ok := envelope["usage"]; ok && string(bytes.TrimSpace(rawUsage)) != "null" {
		var usage model.TokenUsage
		if err := json.Unmarshal(rawUsage, &usage); err != nil {
			return ChatCompletionResponse{}, fmt.Errorf("invalid usage: %w", err)
		}
		resp.Usage = &usage
	}
	return resp, nil
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBodyBytes {
		return s
	}
	return s[:maxErrorBodyBytes] + "..."
}
