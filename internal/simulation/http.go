package simulation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/marquee/tierlist/internal/domain/types"
	"github.com/marquee/tierlist/pkg/logger"
)

// ErrStatus reports an unexpected HTTP status.
var ErrStatus = errors.New("unexpected status")

// statusError carries the status code so the breaker can tell client
// mistakes from server trouble.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }
func (e *statusError) Unwrap() error { return ErrStatus }

// Client talks to the tier-list HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit caps requests per second across every goroutine sharing the
// client. rps <= 0 leaves requests unthrottled.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, burst))
		}
	}
}

// WithBreaker stops calling the service after failures consecutive transport
// errors or 5xx replies, probing again after cooldown. 4xx replies do not
// count.
func WithBreaker(failures uint32, cooldown time.Duration) ClientOption {
	return func(c *Client) {
		if failures == 0 {
			return
		}
		c.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "tierlist-api",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				var se *statusError
				if errors.As(err, &se) {
					return se.code < http.StatusInternalServerError
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Get().Warn(context.Background(), "circuit breaker state changed",
					logger.String("name", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			},
		})
	}
}

// NewClient creates a client with a per-request timeout.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do sends body as JSON and decodes the reply into out when it carries want.
func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if c.breaker == nil {
		return c.send(ctx, method, path, body, want, out)
	}
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.send(ctx, method, path, body, want, out)
	})
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body any, want int, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return &statusError{
			code: resp.StatusCode,
			msg:  fmt.Sprintf("%s: %s %s: %d %s", ErrStatus, method, path, resp.StatusCode, bytes.TrimSpace(data)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

type startBody struct {
	UserID string    `json:"user_id"`
	Tier   string    `json:"tier"`
	Item   movieItem `json:"item"`
}

type movieItem struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Genres        []string `json:"genres"`
	Bracket       string   `json:"bracket,omitempty"`
	ExternalScore *float64 `json:"external_score,omitempty"`
}

// Start opens an insertion session for m.
func (c *Client) Start(ctx context.Context, m Movie) (types.Session, error) {
	var sess types.Session
	err := c.do(ctx, http.MethodPost, "/sessions", startBody{
		UserID: m.UserID,
		Tier:   m.Tier,
		Item: movieItem{
			ID:            m.ID,
			Title:         m.Title,
			Genres:        m.Genres,
			Bracket:       m.Bracket,
			ExternalScore: m.ExternalScore,
		},
	}, http.StatusCreated, &sess)
	return sess, err
}

type choiceBody struct {
	WinnerID  string `json:"winner_id"`
	RequestID string `json:"request_id,omitempty"`
}

// Choose answers the session's current comparison.
func (c *Client) Choose(ctx context.Context, sessionID, winnerID, requestID string) (types.Session, error) {
	var sess types.Session
	err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/choice",
		choiceBody{WinnerID: winnerID, RequestID: requestID}, http.StatusOK, &sess)
	return sess, err
}

// Rankings lists every entry for a user.
func (c *Client) Rankings(ctx context.Context, userID string, limit int) ([]types.Entry, error) {
	var list struct {
		Entries []types.Entry `json:"entries"`
	}
	path := fmt.Sprintf("/rankings/%s?limit=%d", url.PathEscape(userID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return list.Entries, nil
}

// Stats reads GET /stats.
func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, http.StatusOK, &st)
	return st, err
}
