// Package backend is a typed client for the chat backend's REST surface.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/fsy-chat/internal/model/chat"
)

// StatusSuccess is the envelope status the backend uses for success.
const StatusSuccess = 200

const maxResponseBytes = 4 << 20

// Response is the `{status, data, message}` envelope every endpoint returns.
type Response[T any] struct {
	Status  int    `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

// StatusError reports an envelope whose status is not the success code.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: backend status %d: %s", e.Op, e.Status, e.Message)
}

// SendResult is the acknowledgement of a send request. It only means the
// message was accepted; the reply arrives on the push stream.
type SendResult struct {
	Status  int
	Message string
}

type createSessionData struct {
	SessionID string `json:"session_id"`
}

// Client talks to one backend base URL such as http://localhost:3001/api.
type Client struct {
	baseURL       string
	http          *http.Client
	successStatus int
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSuccessStatus overrides StatusSuccess.
func WithSuccessStatus(status int) Option {
	return func(c *Client) { c.successStatus = status }
}

// NewClient builds a Client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          http.DefaultClient,
		successStatus: StatusSuccess,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Succeeded reports whether status is the configured success code.
func (c *Client) Succeeded(status int) bool { return status == c.successStatus }

// CreateSession asks the backend for a new session, optionally scoped to a category.
func (c *Client) CreateSession(ctx context.Context, category string) (string, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	resp, err := do[createSessionData](ctx, c, http.MethodGet, "/chat/create", query, nil)
	if err != nil {
		return "", err
	}
	if err := c.check("create session", resp.Status, resp.Message); err != nil {
		return "", err
	}
	if resp.Data.SessionID == "" {
		return "", errors.New("create session: backend returned an empty session id")
	}
	return resp.Data.SessionID, nil
}

// ListSessions returns the caller's sessions in backend order.
func (c *Client) ListSessions(ctx context.Context) ([]chat.SessionSummary, error) {
	resp, err := do[[]chat.SessionSummary](ctx, c, http.MethodGet, "/session/history", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := c.check("list sessions", resp.Status, resp.Message); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// DeleteSession removes a session on the backend.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := do[json.RawMessage](ctx, c, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return err
	}
	return c.check("delete session", resp.Status, resp.Message)
}

// SendMessage posts text to a session. A non-success status is reported in
// the result, not as an error; errors mean the request itself failed.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (SendResult, error) {
	body := struct {
		Message string `json:"message"`
	}{Message: text}
	resp, err := do[json.RawMessage](ctx, c, http.MethodPost, "/chat/message/"+url.PathEscape(sessionID), nil, body)
	if err != nil {
		return SendResult{}, err
	}
	return SendResult{Status: resp.Status, Message: resp.Message}, nil
}

// MessageHistory fetches the persisted records of a session, oldest first.
func (c *Client) MessageHistory(ctx context.Context, sessionID string) ([]chat.HistoryRecord, error) {
	resp, err := do[[]chat.HistoryRecord](ctx, c, http.MethodGet, "/message/history/"+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return nil, err
	}
	if err := c.check("message history", resp.Status, resp.Message); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Categories lists the document categories sessions can be created with.
func (c *Client) Categories(ctx context.Context) ([]string, error) {
	resp, err := do[[]string](ctx, c, http.MethodGet, "/all/document/category", nil, nil)
	if err != nil {
		return nil, err
	}
	if err := c.check("list categories", resp.Status, resp.Message); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) check(op string, status int, message string) error {
	if c.Succeeded(status) {
		return nil
	}
	return &StatusError{Op: op, Status: status, Message: message}
}

func do[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (Response[T], error) {
	var out Response[T]

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return out, errors.Wrapf(err, "encode %s %s body", method, path)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return out, errors.Wrapf(err, "build %s %s request", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return out, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, errors.Wrapf(err, "read %s %s response", method, path)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return Response[T]{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}, nil
		}
		return out, errors.Wrapf(err, "decode %s %s response", method, path)
	}
	if out.Status == 0 && resp.StatusCode >= http.StatusMultipleChoices {
		out.Status = resp.StatusCode
	}
	return out, nil
}
