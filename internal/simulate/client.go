package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/cosmic-journey/internal/domain/model"
)

// Client calls the HTTP API on behalf of simulated players.
type Client struct {
	baseURL string
	secret  []byte
	client  *http.Client
}

// NewClient creates a client with the given request timeout.
func NewClient(baseURL, jwtSecret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		secret:  []byte(jwtSecret),
		client:  &http.Client{Timeout: timeout},
	}
}

// token signs a session for userID the way the login flow would.
func (c *Client) token(userID string) (string, error) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": userID,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

func (c *Client) do(ctx context.Context, method, path, userID string, body, out any, want int) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		tok, err := c.token(userID)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrUnexpectedStatus, method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}

// Health checks that the service and its store are up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil, http.StatusOK)
}

// CreateRun starts a run for userID.
func (c *Client) CreateRun(ctx context.Context, userID string) (model.Run, error) {
	var run model.Run
	err := c.do(ctx, http.MethodPost, "/run/create", userID, nil, &run, http.StatusCreated)
	return run, err
}

// Progress submits one progress increment.
func (c *Client) Progress(ctx context.Context, userID string, req model.ProgressRequest) (model.Run, error) {
	var run model.Run
	err := c.do(ctx, http.MethodPatch, "/run/progress", userID, req, &run, http.StatusOK)
	return run, err
}

// LatestRun returns userID's latest run.
func (c *Client) LatestRun(ctx context.Context, userID string) (model.Run, error) {
	var run model.Run
	err := c.do(ctx, http.MethodGet, "/run/latest", userID, nil, &run, http.StatusOK)
	return run, err
}

// Leaderboard fetches one leaderboard page.
func (c *Client) Leaderboard(ctx context.Context, page, perPage int, window model.TimeWindow) (model.LeaderboardPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	q.Set("timeFrame", string(window))
	var out model.LeaderboardPage
	err := c.do(ctx, http.MethodGet, "/leaderboard?"+q.Encode(), "", nil, &out, http.StatusOK)
	return out, err
}
