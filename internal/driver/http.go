package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"engagebot/internal/config"
	"engagebot/internal/feed"
	logx "engagebot/pkg/logx"
)

const defaultSidecarTimeout = 90 * time.Second

// HTTPDriver talks JSON to the browser-automation sidecar on localhost.
// Page loads and human-speed typing happen on the far side, so the
// timeout is generous.
type HTTPDriver struct {
	http    *http.Client
	baseURL string
	log     logx.Logger
}

func NewHTTP(cfg config.DriverConfig, log logx.Logger) (*HTTPDriver, error) {
	timeout, err := config.ParseDurationOrDefault("driver.timeout", cfg.Timeout, defaultSidecarTimeout)
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPDriver{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log,
	}, nil
}

type okResponse struct {
	OK bool `json:"ok"`
}

type candidateRow struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Likes     int       `json:"likes"`
}

func (d *HTTPDriver) SwitchAccount(ctx context.Context, handle string) (bool, error) {
	var out okResponse
	err := d.call(ctx, http.MethodPost, "/switch", map[string]string{"handle": handle}, &out)
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

func (d *HTTPDriver) ListCandidates(ctx context.Context) ([]feed.Candidate, error) {
	var rows []candidateRow
	if err := d.call(ctx, http.MethodGet, "/candidates", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]feed.Candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, feed.Candidate{
			Author:    r.Author,
			Text:      r.Text,
			Timestamp: r.Timestamp,
			Likes:     r.Likes,
		})
	}
	return out, nil
}

func (d *HTTPDriver) PostReply(ctx context.Context, text string) (bool, error) {
	var out okResponse
	err := d.call(ctx, http.MethodPost, "/reply", map[string]string{"text": text}, &out)
	if err != nil {
		return false, err
	}
	return out.OK, nil
}

func (d *HTTPDriver) Like(ctx context.Context) (bool, error) {
	var out okResponse
	if err := d.call(ctx, http.MethodPost, "/like", nil, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (d *HTTPDriver) Retweet(ctx context.Context) (bool, error) {
	var out okResponse
	if err := d.call(ctx, http.MethodPost, "/retweet", nil, &out); err != nil {
		return false, err
	}
	return out.OK, nil
}

func (d *HTTPDriver) Skip(ctx context.Context) error {
	return d.call(ctx, http.MethodPost, "/skip", nil, nil)
}

func (d *HTTPDriver) Ping(ctx context.Context) error {
	return d.call(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (d *HTTPDriver) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("driver %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("driver %s: status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("driver %s: decode: %w", path, err)
	}
	return nil
}
