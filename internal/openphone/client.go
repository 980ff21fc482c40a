// Package openphone is a small client for the OpenPhone-compatible REST API
// the app talks to: phone numbers, conversations, and messages.
package openphone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL    = "http://localhost:3001/api"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxResults = 100
)

// Client performs API requests. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for DefaultBaseURL unless overridden.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// ListPhoneNumbers returns the workspace's phone numbers.
func (c *Client) ListPhoneNumbers(ctx context.Context, p ListPhoneNumbersParams) (*PhoneNumbersResponse, error) {
	q := url.Values{}
	if p.UserID != "" {
		q.Set("userId", p.UserID)
	}
	var out PhoneNumbersResponse
	if err := c.get(ctx, "listPhoneNumbers", "/v1/phone-numbers", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns a page of conversations, most recently active first.
func (c *Client) ListConversations(ctx context.Context, p ListConversationsParams) (*ConversationsResponse, error) {
	q := url.Values{}
	setIf(q, "userId", p.UserID)
	setIf(q, "createdAfter", p.CreatedAfter)
	setIf(q, "createdBefore", p.CreatedBefore)
	setIf(q, "updatedAfter", p.UpdatedAfter)
	setIf(q, "updatedBefore", p.UpdatedBefore)
	setIf(q, "pageToken", p.PageToken)
	if p.ExcludeInactive != nil {
		q.Set("excludeInactive", strconv.FormatBool(*p.ExcludeInactive))
	}
	q.Set("maxResults", strconv.Itoa(maxResults(p.MaxResults)))
	for _, pn := range p.PhoneNumbers {
		q.Add("phoneNumbers", pn)
	}

	var out ConversationsResponse
	if err := c.get(ctx, "listConversations", "/v1/conversations", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns one page of a conversation, newest first.
func (c *Client) ListMessages(ctx context.Context, p ListMessagesParams) (*MessagesResponse, error) {
	if err := validateListMessages(p); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("phoneNumberId", p.PhoneNumberID)
	for _, participant := range p.Participants {
		q.Add("participants", participant)
	}
	setIf(q, "userId", p.UserID)
	setIf(q, "createdAfter", p.CreatedAfter)
	setIf(q, "createdBefore", p.CreatedBefore)
	setIf(q, "pageToken", p.PageToken)
	q.Set("maxResults", strconv.Itoa(maxResults(p.MaxResults)))

	var out MessagesResponse
	if err := c.get(ctx, "listMessages", "/v1/messages", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage submits a text message and returns the server's copy of it.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*SendMessageResponse, error) {
	if err := ValidateSend(p); err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out SendMessageResponse
	if err := c.do("sendMessage", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("api request",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(text)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func maxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return n
}
