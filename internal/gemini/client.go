// Package gemini wraps the generateContent REST endpoint behind a bounded
// fixed-delay retry policy.
package gemini

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
)

// TerminalFailure is returned once the retry budget is exhausted. It carries the
// last observed error; callers decide whether redelivery will retry the work.
type TerminalFailure struct {
	Attempts int
	Last     error
}

func (e *TerminalFailure) Error() string {
	return fmt.Sprintf("analysis failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *TerminalFailure) Unwrap() error { return e.Last }

// Config captures the client tunables. URL and key are mandatory.
type Config struct {
	APIURL     string
	APIKey     string
	RetryCount int           // Additional attempts after the first failure.
	RetryDelay time.Duration // Fixed delay between attempts.
	Timeout    time.Duration // Per-attempt request timeout.
}

// Client issues generateContent calls. It holds no state beyond its configuration.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient validates the configuration and constructs a Client. A missing
// endpoint or credential is a programmer error surfaced immediately, never retried.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("gemini: api url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the prompt and returns the model's text answer. Transient
// failures (transport errors, per-attempt timeouts, non-2xx responses) are
// retried with a fixed delay up to the configured budget; exhaustion yields
// a *TerminalFailure.
func (c *Client) Analyze(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	attempts := 1 + c.cfg.RetryCount
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.cfg.RetryDelay); err != nil {
				return "", &TerminalFailure{Attempts: attempt - 1, Last: lastErr}
			}
		}

		text, err := c.generate(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		recordAttemptFailed()

		// Per-attempt timeouts surface as context.DeadlineExceeded too, so only
		// the caller's own context decides whether the work is abandoned.
		if ctx.Err() != nil {
			return "", &TerminalFailure{Attempts: attempt, Last: lastErr}
		}
	}

	return "", &TerminalFailure{Attempts: attempts, Last: lastErr}
}

func (c *Client) generate(ctx context.Context, body []byte) (string, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"?key="+c.cfg.APIKey, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	defer observeRequest(resp.StatusCode, time.Since(start))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, truncate(data, 256))
	}

	return extractText(data), nil
}

// extractText pulls candidate text out of a Gemini JSON response. Plain-text
// bodies pass through untouched so alternative endpoints keep working.
func extractText(data []byte) string {
	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil || len(parsed.Candidates) == 0 {
		return strings.TrimSpace(string(data))
	}

	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(b.String())
}

// sleep waits the fixed delay but abandons the wait when the context ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(data []byte, max int) string {
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max]
	}
	return s
}
