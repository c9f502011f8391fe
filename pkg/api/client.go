// Package api is a small REST client for the session service. The websocket
// channel handles the live session; this client covers the surrounding
// lifecycle calls.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oduggan21/feynmanV2/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response decoded from the service's error body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the session service on behalf of one user. The user
// identity travels in the x-user-id header on every request.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userID:     userID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// CreateSession creates a new tutoring session for the given topic.
func (c *Client) CreateSession(ctx context.Context, topic string) (*protocol.Session, error) {
	body := struct {
		Topic string `json:"topic"`
	}{Topic: topic}
	var session protocol.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches an existing session by id.
func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*protocol.Session, error) {
	var session protocol.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id.String(), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// EndSession marks a session as ended.
func (c *Client) EndSession(ctx context.Context, id uuid.UUID) error {
	body := struct {
		Status protocol.SessionStatus `json:"status"`
	}{Status: protocol.SessionEnded}
	return c.do(ctx, http.MethodPatch, "/sessions/"+id.String()+"/status", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-user-id", c.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil {
			apiErr.Message = errBody.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
