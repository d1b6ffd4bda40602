// Package nodeapi is a minimal client for the node's owner JSON-RPC API.
package nodeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// DefaultUser is the Basic auth user the node expects.
const DefaultUser = "grin"

// ErrUnauthorized is returned when the API rejects the secret.
var ErrUnauthorized = errors.New("admin API rejected credentials")

// Client calls the owner API of one node.
type Client struct {
	url        string
	user       string
	secret     string
	httpClient *http.Client
}

// New creates a client for http://127.0.0.1:<port>/v2/owner.
func New(port int, secret string, timeout time.Duration) *Client {
	return NewWithURL(fmt.Sprintf("http://127.0.0.1:%d/v2/owner", port), secret, timeout)
}

// NewWithURL creates a client for an explicit endpoint.
func NewWithURL(url, secret string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		user:       DefaultUser,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ReadSecret loads the API secret file, trimming the trailing newline.
func ReadSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read API secret: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// Call invokes method and decodes the Ok payload into result.
func (c *Client) Call(ctx context.Context, method string, result any) error {
	body, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: []any{}})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.SetBasicAuth(c.user, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: HTTP %d: %s", method, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return ParseResponse(data, result)
}

// Status fetches the node's get_status result.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var s Status
	if err := c.Call(ctx, "get_status", &s); err != nil {
		return Status{}, err
	}
	return s, nil
}
