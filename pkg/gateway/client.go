// Package gateway talks to AMF remoting gateways over HTTP.
// Request bodies are an opaque preamble followed by AMF3 values; the
// response carries AMF3 values from a caller-known offset.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/net/publicsuffix"

	"github.com/DMA-Software/dma-goamf/internal/amf3"
	"github.com/DMA-Software/dma-goamf/internal/logging"
)

// ContentType is the media type of AMF request and response bodies.
const ContentType = "application/x-amf"

// Config holds configuration options for the gateway client.
type Config struct {
	// Endpoint is the URL request bodies are posted to.
	Endpoint string

	// Timeout bounds a whole request including reading the response.
	// Zero means no limit beyond the caller's context.
	Timeout time.Duration

	// UserAgent is sent with every request when set.
	UserAgent string

	// Cookies seeds the session cookie jar for Endpoint.
	Cookies map[string]string

	// Preamble is written before the AMF3 values of every Call.
	Preamble []byte

	// ResponseOffset is where the first AMF3 value starts in a Call
	// response.
	ResponseOffset int

	// MaxResponseSize bounds response bodies after content decoding.
	// Zero means DefaultMaxBodySize.
	MaxResponseSize int64
}

// Exchange is one completed request/response pair.
type Exchange struct {
	Time     time.Time
	Endpoint string
	Status   int
	Request  []byte
	Response []byte
}

// Recorder keeps a copy of every exchange the client completes.
type Recorder interface {
	Record(ctx context.Context, exchange Exchange) error
}

// Client posts AMF bodies to a single endpoint.
type Client struct {
	config   Config
	http     *http.Client
	logger   *slog.Logger
	recorder Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. A client without a
// cookie jar gets the session jar.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		copied := *client
		c.http = &copied
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder records every completed exchange.
func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		c.recorder = recorder
	}
}

// NewClient creates a client for config.Endpoint.
func NewClient(config Config, opts ...Option) (*Client, error) {
	endpoint, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q is not an http or https URL", config.Endpoint)
	}

	c := &Client{
		config: config,
		http:   &http.Client{},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	if len(config.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(config.Cookies))
		for name, value := range config.Cookies {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		c.http.Jar.SetCookies(endpoint, cookies)
	}

	return c, nil
}

// Response is a gateway reply with its body already read and decoded
// from any content encoding.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Values decodes the AMF3 values that start at offset in the body.
func (r *Response) Values(offset int) ([]amf3.Value, error) {
	if offset < 0 || offset > len(r.Body) {
		return nil, fmt.Errorf("response offset %d outside %d-byte body", offset, len(r.Body))
	}
	values, err := amf3.Deserialize(r.Body[offset:])
	if err != nil {
		return nil, fmt.Errorf("decoding response at offset %d: %w", offset, err)
	}
	return values, nil
}

// StatusError reports a non-2xx gateway reply.
type StatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	const limit = 200
	body := e.Body
	if len(body) > limit {
		body = body[:limit]
	}
	return fmt.Sprintf("gateway returned %s: %q", e.Status, body)
}

// Post sends body as-is and returns the reply. A non-2xx status yields
// both the Response and a *StatusError.
func (c *Client) Post(ctx context.Context, body []byte) (*Response, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept-Encoding", "gzip")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", c.config.Endpoint, err)
	}
	defer resp.Body.Close()

	data, err := readBody(resp, c.maxResponseSize())
	if err != nil {
		return nil, err
	}

	c.logger.Debug("gateway exchange",
		"endpoint", c.config.Endpoint,
		"status", resp.StatusCode,
		"request_bytes", len(body),
		"response_bytes", len(data),
		"elapsed", time.Since(started),
	)

	if c.recorder != nil {
		exchange := Exchange{
			Time:     started,
			Endpoint: c.config.Endpoint,
			Status:   resp.StatusCode,
			Request:  body,
			Response: data,
		}
		if err := c.recorder.Record(ctx, exchange); err != nil {
			c.logger.Warn("recording exchange failed", "error", err)
		}
	}

	response := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return response, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	return response, nil
}

// Call encodes values after the configured preamble, posts them and
// decodes the reply from the configured response offset.
func (c *Client) Call(ctx context.Context, values ...amf3.Value) ([]amf3.Value, error) {
	encoded, err := amf3.Serialize(values...)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	body := make([]byte, 0, len(c.config.Preamble)+len(encoded))
	body = append(body, c.config.Preamble...)
	body = append(body, encoded...)

	resp, err := c.Post(ctx, body)
	if err != nil {
		return nil, err
	}
	return resp.Values(c.config.ResponseOffset)
}

func (c *Client) maxResponseSize() int64 {
	if c.config.MaxResponseSize > 0 {
		return c.config.MaxResponseSize
	}
	return DefaultMaxBodySize
}

// ResponseTooLargeError reports a response body over the client's limit.
type ResponseTooLargeError struct {
	Limit int64
}

func (e *ResponseTooLargeError) Error() string {
	return fmt.Sprintf("response body exceeds %d bytes", e.Limit)
}

func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip response: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, &ResponseTooLargeError{Limit: limit}
	}
	return data, nil
}
