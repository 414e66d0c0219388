// Package api is the client for the hosted transactions backend.
//
// Every request after Login carries the session's bearer token. The token is
// only decoded to learn the owner ID; verifying it is the backend's job.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/source"
)

var _ source.Source = (*Client)(nil)

// ErrUnauthorized is returned for 401 responses and when no token is set.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method  string
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == http.StatusUnauthorized
	case source.ErrNotFound:
		return e.Code == http.StatusNotFound
	}
	return false
}

type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the overall per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithToken starts the client with an existing session token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q: must be http or https", u.Scheme)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Owner returns the account ID carried by the current token, or "".
func (c *Client) Owner() string {
	return OwnerFromToken(c.Token())
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, credentials{email, password}, &resp, false); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login: %w: empty token", ErrUnauthorized)
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, password string) error {
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, credentials{email, password}, nil, false); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (c *Client) FetchTransactions(ctx context.Context, f core.Filters) ([]core.Transaction, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Kind != "" {
		q.Set("type", string(f.Kind))
	}
	if !f.StartDate.IsZero() {
		q.Set("startDate", f.StartDate.String())
	}
	if !f.EndDate.IsZero() {
		q.Set("endDate", f.EndDate.String())
	}

	var rows []wireTransaction
	if err := c.do(ctx, http.MethodGet, "/transactions", q, nil, &rows, true); err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}
	out := make([]core.Transaction, 0, len(rows))
	for i, w := range rows {
		t, err := w.toCore()
		if err != nil {
			return nil, fmt.Errorf("fetch transactions: record %d (%s): %w", i, w.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Client) FetchSummary(ctx context.Context) (core.Totals, error) {
	var w wireSummary
	if err := c.do(ctx, http.MethodGet, "/transactions/summary", nil, nil, &w, true); err != nil {
		return core.Totals{}, fmt.Errorf("fetch summary: %w", err)
	}
	return w.toCore()
}

func (c *Client) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validation failed: %w", err)
	}
	var created wireTransaction
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, fromCore(t), &created, true); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	out, err := created.toCore()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: decode response: %w", err)
	}
	return out, nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id), nil, nil, nil, true); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// Export streams the backend-generated document into w.
func (c *Client) Export(ctx context.Context, format source.ExportFormat, w io.Writer) (string, error) {
	if _, err := source.ParseExportFormat(string(format)); err != nil {
		return "", err
	}
	resp, err := c.send(ctx, http.MethodGet, "/transactions/export/"+string(format), nil, nil, true)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", format, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("export %s: copy body: %w", format, err)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = source.ContentTypeCSV
		if format == source.ExportPDF {
			ct = source.ContentTypePDF
		}
	}
	return ct, nil
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, in, out any, auth bool) error {
	resp, err := c.send(ctx, method, path, q, in, auth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs the request and returns the response when it is 2xx. The
// caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, q url.Values, in any, auth bool) (*http.Response, error) {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token := c.Token()
		if token == "" {
			return nil, ErrUnauthorized
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	slog.DebugContext(ctx, "Backend request completed",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Message: readMessage(resp.Body)}
	}
	return resp, nil
}

// readMessage extracts {"message": "..."} from an error body, falling back
// to the first bytes of the raw body.
func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	var m struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(b, &m) == nil {
		if m.Message != "" {
			return m.Message
		}
		if m.Error != "" {
			return m.Error
		}
	}
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
