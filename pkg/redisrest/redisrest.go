// Package redisrest is a minimal Upstash Redis REST client shared by the
// stores that need durable counters and records (approvals, rate windows).
package redisrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retryx "github.com/haasonsaas/adept/pkg/retry"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client executes Redis commands over the Upstash REST protocol. Transient
// upstream failures are retried with exponential backoff.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      retryx.Options
}

type restResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retryx.Options{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      100 * time.Millisecond,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

// Do executes one Redis command and returns its raw result.
func (c *Client) Do(ctx context.Context, command ...any) (json.RawMessage, error) {
	if c == nil {
		return nil, errors.New("nil redis client")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	return retryx.Do(ctx, c.retry, func(ctx context.Context) (json.RawMessage, error) {
		return c.doOnce(ctx, body)
	})
}

func (c *Client) doOnce(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &retryx.HTTPError{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Message:    strings.TrimSpace(string(raw)),
		}
	}

	var parsed restResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return parsed.Result, nil
}

// GetString fetches a string key. Missing keys return ("", false, nil).
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	result, err := c.Do(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	trimmed := bytes.TrimSpace(result)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}
	var value string
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return "", false, fmt.Errorf("decode redis string result: %w", err)
	}
	return value, true, nil
}

// SetString writes a string key, with a TTL when ttl > 0.
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := []any{"SET", key, value}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}
	_, err := c.Do(ctx, cmd...)
	return err
}

// Incr increments a counter and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	result, err := c.Do(ctx, "INCR", key)
	if err != nil {
		return 0, err
	}
	var value int64
	if err := json.Unmarshal(bytes.TrimSpace(result), &value); err != nil {
		return 0, fmt.Errorf("decode redis incr result: %w", err)
	}
	return value, nil
}

// Expire sets a TTL on an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := c.Do(ctx, "EXPIRE", key, ttlSeconds(ttl))
	return err
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
