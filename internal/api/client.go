// Package api is a client for the posyandu REST API. Read endpoints return
// the raw response body so callers can cache it verbatim.
package api

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

	"github.com/rs/zerolog"

	"github.com/nutrilogic/datacache/keys"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // Overrides Timeout when set
	Logger     zerolog.Logger
}

// Client calls the posyandu API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

// NewClient returns an unauthenticated client.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base url %q", opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  hc,
		logger:  opts.Logger,
	}, nil
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token returns the bearer token in use, if any.
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")

	if resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var eb ErrorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
			apiErr.Message = eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, apiErr
	}

	if len(respBody) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(respBody), nil
}

func rolePath(role keys.Role, rest string) string {
	return "/api/" + string(role) + rest
}

// ChildFilterQuery renders f as request query parameters.
func ChildFilterQuery(f keys.ChildFilter) url.Values {
	q := url.Values{}
	if s := f.NormalizedStatus(); s != "all" {
		q.Set("status", s)
	}
	if f.Active != nil {
		q.Set("is_active", f.ActiveParam())
	}
	if f.HasSearch() {
		q.Set("search", strings.TrimSpace(f.Search))
	}
	return q
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	raw, err := c.do(ctx, http.MethodPost, "/api/login", nil, map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	var res LoginResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	return &res, nil
}

// Logout revokes the client's token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/api/logout", nil, nil)
	return err
}

func (c *Client) ListChildren(ctx context.Context, role keys.Role, f keys.ChildFilter) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, rolePath(role, "/children"), ChildFilterQuery(f), nil)
}

func (c *Client) GetChild(ctx context.Context, role keys.Role, id int64) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, rolePath(role, "/children/"+strconv.FormatInt(id, 10)), nil, nil)
}

func (c *Client) DashboardSummary(ctx context.Context, role keys.Role) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, rolePath(role, "/dashboard"), nil, nil)
}

func (c *Client) PriorityChildren(ctx context.Context, role keys.Role) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, rolePath(role, "/priority-children"), nil, nil)
}

func (c *Client) CreateChild(ctx context.Context, role keys.Role, in ChildInput) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, rolePath(role, "/children"), nil, in)
}

func (c *Client) UpdateChild(ctx context.Context, role keys.Role, id int64, in ChildInput) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, rolePath(role, "/children/"+strconv.FormatInt(id, 10)), nil, in)
}

func (c *Client) DeleteChild(ctx context.Context, role keys.Role, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, rolePath(role, "/children/"+strconv.FormatInt(id, 10)), nil, nil)
	return err
}
