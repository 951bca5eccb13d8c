// Package api is a small HTTP client for a healthsnap node.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"healthsnap/api/server"
	"healthsnap/core/view"
)

// DefaultBaseURL matches the node's default API_LISTEN_ADDR.
const DefaultBaseURL = "http://localhost:8080"

type Client struct {
	BaseURL string
	Token   string // bearer token for the patient endpoints
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is returned for non-2xx responses that are not screens.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.Code, strings.TrimSpace(e.Body))
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTP.Do(req)
}

func (c *Client) getJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	resp, err := c.do(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return json.Unmarshal(raw, out)
}

// IssueShare posts a raw payload document.
func (c *Client) IssueShare(ctx context.Context, ttlSeconds int, payload json.RawMessage) (server.ShareResponse, error) {
	var out server.ShareResponse
	in := map[string]interface{}{"payload": payload}
	if ttlSeconds > 0 {
		in["ttlSeconds"] = ttlSeconds
	}
	err := c.getJSON(ctx, http.MethodPost, "/api/shares", in, &out)
	return out, err
}

func (c *Client) RefreshShare(ctx context.Context) (server.ShareResponse, error) {
	var out server.ShareResponse
	err := c.getJSON(ctx, http.MethodPost, "/api/shares/refresh", nil, &out)
	return out, err
}

// screen decodes a screen response. Redemption failures still carry a
// screen body, so any status with a decodable screen is returned as such.
func screen(resp *http.Response) (view.Screen, int, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return view.Screen{}, resp.StatusCode, err
	}
	var sc view.Screen
	if err := json.Unmarshal(raw, &sc); err != nil || sc.Kind == "" {
		return sc, resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return sc, resp.StatusCode, nil
}

// Redeem submits a scanned URL or opaque string.
func (c *Client) Redeem(ctx context.Context, scanned string) (view.Screen, int, error) {
	b, err := json.Marshal(map[string]string{"scanned": scanned})
	if err != nil {
		return view.Screen{}, 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/redeem", "application/json", bytes.NewReader(b))
	if err != nil {
		return view.Screen{}, 0, err
	}
	return screen(resp)
}

// Scan uploads an image for the node to read and redeem.
func (c *Client) Scan(ctx context.Context, filename string, image io.Reader) (view.Screen, int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return view.Screen{}, 0, err
	}
	if _, err := io.Copy(part, image); err != nil {
		return view.Screen{}, 0, err
	}
	if err := mw.Close(); err != nil {
		return view.Screen{}, 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/scan", mw.FormDataContentType(), &buf)
	if err != nil {
		return view.Screen{}, 0, err
	}
	return screen(resp)
}
