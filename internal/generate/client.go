// Package generate calls the remote text-generation service for reply
// text. All failure shapes (timeout, non-2xx, malformed body, empty
// content) surface as errors the pacing layer treats as recoverable at
// the candidate level.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"engagebot/internal/config"
	logx "engagebot/pkg/logx"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultRatePerMin = 20
	defaultAPIKeyEnv  = "GENERATION_API_KEY"

	maxReplyTokens = 100
	temperature    = 0.8
)

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	model   string
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg config.GenerationConfig, log logx.Logger) (*Client, error) {
	timeout, err := config.ParseDurationOrDefault("generation.timeout", cfg.Timeout, defaultTimeout)
	if err != nil {
		return nil, err
	}
	keyEnv := strings.TrimSpace(cfg.APIKeyEnv)
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	apiKey := strings.TrimSpace(os.Getenv(keyEnv))
	if apiKey == "" {
		return nil, fmt.Errorf("generation api key: environment variable %s is empty", keyEnv)
	}

	rpm := cfg.RatePerMin
	if rpm <= 0 {
		rpm = defaultRatePerMin
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  apiKey,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		log:     log,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate produces one reply for the tweet, in the account's voice.
// systemPrompt, style, and tone are opaque pass-through parameters.
func (c *Client) Generate(ctx context.Context, systemPrompt, style, tone, tweetText, author string) (string, error) {
	user := fmt.Sprintf("Tweet from %s: %q\n\nStyle: %s\nTone: %s\n\nGenerate ONE reply (max 280 chars). Be authentic.",
		author, tweetText, style, tone)

	out, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}, maxReplyTokens)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, `"'`), nil
}

// Ping issues a minimal completion to verify connectivity (health check).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.complete(ctx, []chatMessage{{Role: "user", Content: "test"}}, 5)
	return err
}

func (c *Client) complete(ctx context.Context, messages []chatMessage, maxTokens int) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("generation response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var cr chatResponse
		if json.Unmarshal(raw, &cr) == nil && cr.Error != nil && cr.Error.Message != "" {
			return "", fmt.Errorf("generation status %d: %s", resp.StatusCode, cr.Error.Message)
		}
		return "", fmt.Errorf("generation status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", fmt.Errorf("generation response malformed: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("generation response has no choices")
	}
	out := strings.TrimSpace(cr.Choices[0].Message.Content)
	if out == "" {
		return "", errors.New("generation returned empty content")
	}
	return out, nil
}
