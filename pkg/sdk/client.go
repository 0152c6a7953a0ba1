package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient talks to the manager API at baseURL. token may be empty when
// the server does not require one.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("error: %s", e.Message)
	}
	return fmt.Sprintf("API error (%d)", e.Status)
}

// Is lets callers match an APIError against the domain errors the server
// maps to the same status.
func (e *APIError) Is(target error) bool {
	switch e.Status {
	case http.StatusNotFound:
		return target == domain.ErrNotFound
	case http.StatusConflict:
		return target == domain.ErrOperationInProgress ||
			target == domain.ErrAlreadyRunning ||
			target == domain.ErrUpdateInProgress ||
			target == domain.ErrNotRunning
	case http.StatusUnprocessableEntity:
		return target == domain.ErrNotInstalled
	case http.StatusFailedDependency:
		return target == domain.ErrAuthExpired
	}
	return false
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		if r, ok := body.(io.Reader); ok {
			bodyReader = r
		} else {
			jsonData, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			bodyReader = bytes.NewReader(jsonData)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		if _, raw := body.(io.Reader); !raw {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// send performs the request and returns the response for a 2xx status.
// Transport failures wrap domain.ErrConnection.
func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readError(resp)
	}
	return resp, nil
}

func readError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, target interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, target)
}

func (c *Client) post(ctx context.Context, path string, body, target interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, target)
}

func (c *Client) put(ctx context.Context, path string, body, target interface{}) error {
	return c.do(ctx, http.MethodPut, path, body, target)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// query builds "?k=v&..." from pairs, skipping empty values.
func query(pairs ...string) string {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set(pairs[i], pairs[i+1])
		}
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// GetWebSocketURL turns an API path into a ws:// or wss:// URL carrying
// the token as a query parameter.
func (c *Client) GetWebSocketURL(path string) (string, error) {
	return c.wsURL(path, c.token)
}

func (c *Client) wsURL(path, token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	u.Path, u.RawPath = ref.Path, ref.RawPath
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Ticket asks the daemon for a short-lived token for query-string clients.
// It returns "" when the daemon does not require authentication.
func (c *Client) Ticket(ctx context.Context) (string, error) {
	var t struct {
		Ticket string `json:"ticket"`
	}
	if err := c.post(ctx, "/api/auth/ticket", nil, &t); err != nil {
		return "", err
	}
	return t.Ticket, nil
}

func (c *Client) Info(ctx context.Context, checkRelease bool) (*Info, error) {
	var info Info
	path := "/api/info"
	if checkRelease {
		path += "?check_release=true"
	}
	err := c.get(ctx, path, &info)
	return &info, err
}

func (c *Client) GetPortRange(ctx context.Context) (*PortRange, error) {
	var pr PortRange
	err := c.get(ctx, "/api/settings/port-range", &pr)
	return &pr, err
}

func (c *Client) SetPortRange(ctx context.Context, start, end int) error {
	return c.put(ctx, "/api/settings/port-range", PortRange{Start: start, End: end}, nil)
}
