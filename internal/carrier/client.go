package carrier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const maxBodyBytes = 16 << 20

// Request describes one carrier API call. The body is replayed on every
// attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read carrier response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client executes carrier requests with a per-attempt deadline and
// exponential backoff on transient server errors.
type Client struct {
	http       *http.Client
	maxRetries uint64
	baseDelay  time.Duration
	logger     *zap.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a client that retries up to maxRetries times after the
// first attempt, waiting baseDelay * 2^attempt between attempts.
func NewClient(maxRetries int, baseDelay time.Duration, opts ...ClientOption) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	c := &Client{
		http:       &http.Client{},
		maxRetries: uint64(maxRetries),
		baseDelay:  baseDelay,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retryable reports whether a status code signals a transient carrier
// condition. 501 means the endpoint will never work.
func Retryable(status int) bool {
	return status >= 500 && status != http.StatusNotImplemented
}

// Do runs req until it gets a non-retryable response or the retry budget is
// spent. Exhausting retries returns the last response rather than an error.
// A per-attempt deadline surfaces as ErrTimeout and is never retried.
func (c *Client) Do(ctx context.Context, timeout time.Duration, req Request) (*Response, error) {
	var (
		last    *Response
		attempt int
	)

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		resp, transient, err := c.send(ctx, timeout, req)
		if err != nil {
			if !transient {
				return err
			}
			c.logger.Warn("carrier request failed",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}

		last = resp
		if Retryable(resp.StatusCode) {
			c.logger.Warn("carrier transient response",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
			)
			return retry.RetryableError(fmt.Errorf("carrier responded %d", resp.StatusCode))
		}
		return nil
	})

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, ErrTimeout):
		return nil, err
	case last != nil:
		return last, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	default:
		return nil, err
	}
}

// send performs a single attempt. transient marks errors worth retrying.
func (c *Client) send(parent context.Context, timeout time.Duration, req Request) (*Response, bool, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, false, err
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return nil, true, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, false, nil
}
