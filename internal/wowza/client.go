// Package wowza is the gateway to the Wowza Streaming Engine REST API. It
// provisions live applications, registers incoming streams, manages
// push-publish mappings toward external platforms, and reads stream
// statistics. Credential material stays inside this package.
package wowza

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultPort           = 8087
	defaultStreamingPort  = 1935
	defaultApplication    = "live"
	defaultRequestTimeout = 10 * time.Second

	serverBase = "/v2/servers/_defaultServer_"
)

// Config carries connection settings for the Wowza management API.
type Config struct {
	Host          string
	Port          int
	StreamingPort int
	Username      string
	Password      string
	Application   string
	HTTPClient    *http.Client
	Timeout       time.Duration
}

// Client issues digest-authenticated requests against one Wowza server.
// All methods are safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("wowza host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.StreamingPort <= 0 {
		cfg.StreamingPort = defaultStreamingPort
	}
	if strings.TrimSpace(cfg.Application) == "" {
		cfg.Application = defaultApplication
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Application returns the server-side live application name this client
// provisions streams under.
func (c *Client) Application() string {
	return c.cfg.Application
}

// Result is the outcome of one management API call. HTTP-level failures
// (4xx/5xx, unparseable bodies) are reported through Success/StatusCode/Data,
// never as a Go error; only transport faults surface as errors from Request.
type Result struct {
	Success    bool
	StatusCode int
	// Data is the decoded JSON body when parseable, otherwise the raw
	// body text.
	Data any
}

// Detail renders the response body for error messages.
func (r Result) Detail() string {
	switch data := r.Data.(type) {
	case nil:
		return fmt.Sprintf("status %d", r.StatusCode)
	case string:
		if strings.TrimSpace(data) == "" {
			return fmt.Sprintf("status %d", r.StatusCode)
		}
		return data
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprintf("status %d", r.StatusCode)
		}
		return string(encoded)
	}
}

// Request performs one authenticated call against the management API.
// endpoint is the path below the server root, e.g.
// "/v2/servers/_defaultServer_/applications".
func (c *Client) Request(ctx context.Context, method, endpoint string, payload any) (Result, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Result{}, fmt.Errorf("marshal request: %w", err)
		}
		body = encoded
	}

	url := fmt.Sprintf("http://%s:%d%s", c.cfg.Host, c.cfg.Port, endpoint)
	resp, err := c.do(ctx, method, url, endpoint, body, "")
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		header := resp.Header.Get("WWW-Authenticate")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		challenge, parseErr := parseDigestChallenge(header)
		if parseErr != nil {
			return Result{Success: false, StatusCode: http.StatusUnauthorized, Data: "authentication challenge not understood"}, nil
		}
		authorization, authErr := challenge.authorization(c.cfg.Username, c.cfg.Password, method, endpoint)
		if authErr != nil {
			return Result{}, authErr
		}
		resp, err = c.do(ctx, method, url, endpoint, body, authorization)
		if err != nil {
			return Result{}, err
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	result := Result{
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode: resp.StatusCode,
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var decoded any
		if json.Unmarshal(raw, &decoded) == nil {
			result.Data = decoded
		} else {
			result.Data = string(raw)
		}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, url, uri string, body []byte, authorization string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wowza request %s %s: %w", method, uri, err)
	}
	return resp, nil
}
