// Package transport fetches registry documents and archives over HTTP.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "livepkg"

	// maxJSONResponseBytes bounds registry documents. Package documents for
	// popular packages run to tens of megabytes.
	maxJSONResponseBytes = 64 << 20

	// maxErrorBodyBytes bounds the response snippet kept on FetchError.
	maxErrorBodyBytes = 512
)

// Client performs authenticated GET requests against registries and
// git hosts. Request headers are supplied per call.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client during construction.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxies.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// New creates a Client with connection-level timeouts. There is no overall
// request timeout because archive downloads can be large.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches url and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers http.Header, out any) error {
	body, err := c.open(ctx, url, headers)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if err := json.NewDecoder(io.LimitReader(body, maxJSONResponseBytes)).Decode(out); err != nil {
		return &FetchError{URL: url, StatusCode: http.StatusOK, Err: fmt.Errorf("decoding JSON: %w", err)}
	}
	return nil
}

// Download fetches url and returns the whole body.
func (c *Client) Download(ctx context.Context, url string, headers http.Header) ([]byte, error) {
	body, err := c.open(ctx, url, headers)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: http.StatusOK, Err: fmt.Errorf("reading body: %w", err)}
	}
	return data, nil
}

// DownloadTo streams the body of url into w.
func (c *Client) DownloadTo(ctx context.Context, url string, headers http.Header, w io.Writer) error {
	body, err := c.open(ctx, url, headers)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if _, err := io.Copy(w, body); err != nil {
		return &FetchError{URL: url, StatusCode: http.StatusOK, Err: fmt.Errorf("reading body: %w", err)}
	}
	return nil
}

// open issues the request and returns the (decompressed) body of a 2xx
// response. Any other status becomes a FetchError.
func (c *Client) open(ctx context.Context, url string, headers http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		_ = resp.Body.Close()
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	// Setting Accept-Encoding by hand disables the transport's transparent
	// decompression, so gzip bodies are unwrapped here.
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("opening gzip body: %w", err)}
		}
		return &gzipBody{Reader: zr, body: resp.Body}, nil
	}
	return resp.Body, nil
}

type gzipBody struct {
	*gzip.Reader
	body io.ReadCloser
}

func (g *gzipBody) Close() error {
	_ = g.Reader.Close()
	return g.body.Close()
}
