// Package buddi implements the live Buddi API conversation source.
package buddi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anithp/buddi-chain/internal/ingest"
)

// Config holds Buddi API connection parameters.
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RequestsPerSec float64
}

// Client fetches conversation summaries from the Buddi get_memories
// endpoint. Requests pass through a token-bucket limiter so manual triggers
// cannot hammer the API.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Limit(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		limit = rate.Inf
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// memory is the wire shape of one Buddi memory entry.
type memory struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"created_at"`
	Language   string `json:"language"`
	Source     string `json:"source"`
	Structured struct {
		Title       string   `json:"title"`
		Overview    string   `json:"overview"`
		Category    string   `json:"category"`
		Emoji       string   `json:"emoji"`
		ActionItems []string `json:"action_items"`
	} `json:"structured"`
}

// Fetch requests memories created after since, capped at limit. HTTP 401/403
// map to ErrUnauthorized, 429 to ErrRateLimited, 5xx and network errors to
// ErrTransient.
func (c *Client) Fetch(ctx context.Context, since time.Time, limit int) ([]ingest.RawConversation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint, err := c.buildURL(since, limit)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("api-key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: get_memories: %v", ingest.ErrTransient, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: get_memories returned %d", ingest.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: get_memories returned 429", ingest.ErrRateLimited)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: get_memories returned %d", ingest.ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get_memories returned unexpected status %d", resp.StatusCode)
	}

	memories, err := decodeMemories(resp.Body)
	if err != nil {
		return nil, err
	}

	out := make([]ingest.RawConversation, 0, len(memories))
	for _, m := range memories {
		conv, ok := toRaw(m)
		if !ok {
			c.logger.Debug("dropping memory without id")
			continue
		}
		out = append(out, conv)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (c *Client) buildURL(since time.Time, limit int) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL + "/get_memories")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("date", since.UTC().Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// decodeMemories tolerates the three response shapes the API has been seen
// returning: a bare list, {"memories": [...]}, and {"data": [...]}.
func decodeMemories(r io.Reader) ([]memory, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	var list []memory
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Memories []memory `json:"memories"`
		Data     []memory `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode memories: %w", err)
	}
	if wrapped.Memories != nil {
		return wrapped.Memories, nil
	}
	return wrapped.Data, nil
}

func toRaw(m memory) (ingest.RawConversation, bool) {
	if m.ID == "" {
		return ingest.RawConversation{}, false
	}
	createdAt, err := time.Parse(time.RFC3339, m.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}
	payload, err := json.Marshal(m)
	if err != nil {
		payload = nil
	}
	return ingest.RawConversation{
		ExternalID:  m.ID,
		CreatedAt:   createdAt,
		Title:       m.Structured.Title,
		Overview:    m.Structured.Overview,
		Category:    m.Structured.Category,
		Emoji:       m.Structured.Emoji,
		Language:    m.Language,
		Source:      m.Source,
		ActionItems: m.Structured.ActionItems,
		Payload:     payload,
	}, true
}
