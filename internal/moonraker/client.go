package moonraker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
)

// Caller issues one JSON-RPC request and returns its raw result. *Client
// implements it; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, call Call) (json.RawMessage, error)
}

// Ensure Client implements Caller at compile time.
var _ Caller = (*Client)(nil)

// Call describes a single request/response exchange.
type Call struct {
	// Token correlates the response with the request.
	Token  string
	Method string
	Params any
	// OnSent, when set, fires once the request has been fully written to the
	// connection.
	OnSent func()
}

// Client talks to the Moonraker JSON-RPC endpoint over HTTP.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
	apiKey    string
}

const (
	defaultAddress   = "127.0.0.1:7125"
	defaultUserAgent = "moonterm/0.1"
	rpcPath          = "/server/jsonrpc"
	websocketPath    = "/websocket"
	maxErrorBody     = 4096
)

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey sends the key in the X-Api-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithUserAgent overrides the User-Agent header. Empty values are ignored.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for the given host:port. Per-call deadlines come
// from the context, so the HTTP client itself carries no timeout.
func NewClient(address string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(address)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIKey returns the configured key, if any.
func (c *Client) APIKey() string {
	return c.apiKey
}

// WebsocketURL returns the notification endpoint for the same server.
func (c *Client) WebsocketURL() string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = websocketPath
	return u.String()
}

// Call posts a JSON-RPC request and decodes the response envelope. Transport
// failures return *TransportError, explicit server errors *RPCError and
// malformed or mismatched replies *ProtocolError.
func (c *Client) Call(ctx context.Context, call Call) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if strings.TrimSpace(call.Method) == "" {
		return nil, fmt.Errorf("method required")
	}

	body, err := json.Marshal(NewRequest(call.Method, call.Params, call.Token))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if call.OnSent != nil {
		trace := &httptrace.ClientTrace{
			WroteRequest: func(info httptrace.WroteRequestInfo) {
				if info.Err == nil {
					call.OnSent()
				}
			},
		}
		ctx = httptrace.WithClientTrace(ctx, trace)
	}

	reqURL := c.baseURL.ResolveReference(&url.URL{Path: rpcPath})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "execute request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Op: "read response", Err: err}
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &RPCError{Code: resp.StatusCode, Message: statusMessage(resp.StatusCode, data)}
		}
		return nil, &ProtocolError{Reason: "decode response", Err: err}
	}
	if msg.Error != nil {
		return nil, msg.Error
	}
	if resp.StatusCode >= 400 {
		return nil, &RPCError{Code: resp.StatusCode, Message: statusMessage(resp.StatusCode, data)}
	}
	if call.Token != "" && msg.IDString() != call.Token {
		return nil, &ProtocolError{Reason: fmt.Sprintf("response id %q does not match request %q", msg.IDString(), call.Token)}
	}
	return msg.Result, nil
}

// IsTimeout reports whether err came from a context deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func statusMessage(code int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	if text == "" {
		return fmt.Sprintf("server returned status %d", code)
	}
	return fmt.Sprintf("server returned status %d: %s", code, text)
}

func parseBaseURL(address string) (*url.URL, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		trimmed = defaultAddress
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse address %q: missing host", address)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
