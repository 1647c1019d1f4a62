// Package remote implements narration through a server-side synthesis
// endpoint that returns base64-encoded MP3 audio.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/lessonshelf/lectern/internal/cache"
	"github.com/lessonshelf/lectern/tts"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Errors returned by Client.Synthesize.
var (
	ErrMalformedResponse = errors.New("malformed synthesis response")
	ErrMissingAudio      = errors.New("synthesis response has no audio")
	ErrDecodeAudio       = errors.New("synthesis audio is not valid base64")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string // Server's error message, if it sent one
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("synthesis endpoint returned HTTP %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("synthesis endpoint returned HTTP %d", e.Code)
}

// Request is the synthesis request body.
type Request struct {
	Text string `json:"text"`
}

// Response is the synthesis response body.
type Response struct {
	Success bool   `json:"success"`
	Audio   string `json:"audio"`
	Format  string `json:"format"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

// Cache stores synthesized audio between requests.
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Endpoint          string       // Full URL of the synthesis endpoint
	RequestsPerMinute int          // Zero disables throttling
	HTTPClient        *http.Client // http.DefaultClient when nil
	Cache             Cache        // Optional
}

// Client talks to the synthesis endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	cache    Cache
	logger   *log.Logger

	// flights coalesces concurrent requests for the same text, such as a
	// lookahead still in flight when its paragraph starts.
	flights singleflight.Group
}

// NewClient creates a client. No timeout is applied; callers cancel through
// the context passed to Synthesize.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("synthesis endpoint is required")
	}

	c := &Client{
		endpoint: cfg.Endpoint,
		http:     cfg.HTTPClient,
		cache:    cfg.Cache,
		logger:   log.WithPrefix("remote"),
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c, nil
}

// Synthesize returns the decoded audio for text.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	if !utf8.ValidString(text) {
		return nil, tts.ErrInvalidText
	}

	key := cache.Key(c.endpoint, text)
	if c.cache != nil {
		if audio, ok := c.cache.Get(key); ok {
			c.logger.Debug("Cache hit", "bytes", len(audio))
			return audio, nil
		}
	}

	ch := c.flights.DoChan(key, func() (any, error) { return c.fetch(ctx, key, text) })
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		// The request we joined was cancelled by the caller that started it.
		if res.Err != nil && res.Shared && ctx.Err() == nil && errors.Is(res.Err, context.Canceled) {
			return c.fetch(ctx, key, text)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("Joined in-flight synthesis", "chars", len(text))
		}
		return res.Val.([]byte), nil //nolint:forcetypeassert
	}
}

// fetch requests text from the endpoint and caches the result.
func (c *Client) fetch(ctx context.Context, key, text string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	audio, err := c.request(ctx, text)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Put(key, audio); err != nil {
			c.logger.Warn("Could not cache audio", "err", err)
		}
	}
	return audio, nil
}

func (c *Client) request(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(Request{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("Synthesis response", "status", resp.StatusCode, "bytes", len(raw), "took", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var r Response
		if json.Unmarshal(raw, &r) == nil {
			se.Body = r.Error
		}
		return nil, se
	}

	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !r.Success || r.Audio == "" {
		return nil, ErrMissingAudio
	}

	audio, err := base64.StdEncoding.DecodeString(r.Audio)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeAudio, err)
	}
	if len(audio) == 0 {
		return nil, ErrMissingAudio
	}
	return audio, nil
}
