// Package okx talks to the OKX Web3 explorer API: signed requests,
// paginated balance retrieval and token metadata lookups.
package okx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/matrixise/dog-tracker/internal/metrics"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultPageSize    = 100
	defaultMaxAttempts = 3
	defaultPageDelay   = 500 * time.Millisecond
	defaultRetryDelay  = 1500 * time.Millisecond

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	// ErrFetchFailed marks a fetch that exhausted its attempts. It is never
	// used for an address that legitimately holds nothing.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrAPI is wrapped by errors carrying a non-zero API status code
	ErrAPI = errors.New("okx api error")
)

// Options configures a Client
type Options struct {
	BaseURL        string
	APIKey         string
	SecretKey      string
	Passphrase     string
	ChainShortName string
	ProxyURL       string // socks5:// or http(s)://, empty for direct
	Timeout        time.Duration
	PageSize       int
	MaxAttempts    int
	PageDelay      time.Duration
	RetryDelay     time.Duration
	HTTPClient     *http.Client // overrides Timeout and ProxyURL
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

// Client is a signed OKX Web3 API client
type Client struct {
	baseURL     string
	apiKey      string
	secretKey   []byte
	passphrase  string
	chain       string
	httpClient  *http.Client
	pageSize    int
	maxAttempts int
	pageDelay   time.Duration
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewClient creates a client from opts, filling defaults
func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" || opts.SecretKey == "" || opts.Passphrase == "" {
		return nil, errors.New("okx credentials are required")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("okx base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport, err := newTransport(opts.ProxyURL)
		if err != nil {
			return nil, err
		}
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	c := &Client{
		baseURL:     opts.BaseURL,
		apiKey:      opts.APIKey,
		secretKey:   []byte(opts.SecretKey),
		passphrase:  opts.Passphrase,
		chain:       opts.ChainShortName,
		httpClient:  httpClient,
		pageSize:    opts.PageSize,
		maxAttempts: opts.MaxAttempts,
		pageDelay:   opts.PageDelay,
		retryDelay:  opts.RetryDelay,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
	if c.chain == "" {
		c.chain = "XLAYER"
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.pageDelay < 0 {
		c.pageDelay = defaultPageDelay
	}
	if c.retryDelay <= 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Sign computes the OK-ACCESS-SIGN header for a request
func Sign(secret []byte, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// envelope is the common response wrapper. Code is "0" on success.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs one signed GET and decodes data into out
func (c *Client) get(ctx context.Context, endpoint string, path string, query url.Values, out any) error {
	return c.do(ctx, endpoint, http.MethodGet, path, query, nil, out)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body []byte, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(endpoint, time.Since(start), err)
	}()

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	timestamp := c.now().UTC().Format(timestampLayout)
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("OK-ACCESS-SIGN", Sign(c.secretKey, timestamp, method, requestPath, string(body)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != "0" {
		msg := env.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("%w [%s]: %s", ErrAPI, env.Code, msg)
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
