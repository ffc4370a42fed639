// Package client is a typed HTTP client for the cinelines API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is returned for any non-2xx response. The fields mirror the
// server's RFC 7807 problem body.
type APIError struct {
	StatusCode int
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors"`
}

// FieldError is a single request validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cinelines: %d %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("cinelines: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// IsNotFound reports whether err is a 404 from the server. Ingest
// rejections are also 404s; their reason is in APIError.Detail.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to one cinelines server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health fetches the server status and record counts.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Character fetches a character profile.
func (c *Client) Character(ctx context.Context, id int) (*CharacterProfile, error) {
	var out CharacterProfile
	if err := c.do(ctx, http.MethodGet, "/characters/"+strconv.Itoa(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCharacters lists characters whose name contains opts.Name.
func (c *Client) ListCharacters(ctx context.Context, opts ListOptions) ([]CharacterListing, error) {
	var out []CharacterListing
	if err := c.do(ctx, http.MethodGet, "/characters/", opts.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Line fetches a line with its conversation context.
func (c *Client) Line(ctx context.Context, id int) (*LineDetail, error) {
	var out LineDetail
	if err := c.do(ctx, http.MethodGet, "/lines/"+strconv.Itoa(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLines lists lines whose text contains opts.Name.
func (c *Client) ListLines(ctx context.Context, opts ListOptions) ([]LineListing, error) {
	var out []LineListing
	if err := c.do(ctx, http.MethodGet, "/lines/", opts.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation fetches a conversation with its lines in order.
func (c *Client) Conversation(ctx context.Context, id int) (*ConversationDetail, error) {
	var out ConversationDetail
	if err := c.do(ctx, http.MethodGet, "/lines/conv/"+strconv.Itoa(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateConversation appends a conversation to a movie and returns its id.
func (c *Client) CreateConversation(ctx context.Context, movieID int, nc NewConversation) (int, error) {
	if nc.Lines == nil {
		nc.Lines = []NewLine{}
	}
	var out struct {
		ConversationID int `json:"conversation_id"`
	}
	path := "/movies/" + strconv.Itoa(movieID) + "/conversations/"
	if err := c.do(ctx, http.MethodPost, path, nil, nc, &out); err != nil {
		return 0, err
	}
	return out.ConversationID, nil
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Name != "" {
		v.Set("name", o.Name)
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Limit != 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset != 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		// Non-problem bodies (e.g. the router's plain-text 404) leave Detail empty.
		_ = json.Unmarshal(data, apiErr)
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
