// Package httpclient is the outbound HTTP layer shared by the SaaS adapters.
//
// It retries transient transport failures and 5xx responses on idempotent
// requests. Rate limiting (429) is never retried here: it surfaces as a
// *StatusError whose RateLimited method lets pkg/retry own that decision.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	randv2 "math/rand/v2"
	"net"
	stdhttp "net/http"
	"net/url"
	"os"
	"strconv"
	"syscall"
	"time"
)

// Client wraps http.Client with logging and retries.
type Client struct {
	hc            *stdhttp.Client
	log           *slog.Logger
	retries       int
	baseBackoff   time.Duration
	maxBackoff    time.Duration
	headers       map[string]string
	urlRedactor   func(*url.URL) string
	retryMethods  map[string]struct{}
	maxReplayBody int64
	retryPolicy   func(*stdhttp.Response, error) (time.Duration, bool)
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets request timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries enables retries with exponential backoff and jitter.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retries = n
		if backoff > 0 {
			c.baseBackoff = backoff
		}
	}
}

// WithMaxBackoff limits exponential backoff growth.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) { c.maxBackoff = d }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			if c.headers == nil {
				c.headers = make(map[string]string)
			}
			c.headers[k] = v
		}
	}
}

// WithURLRedactor sets URL redactor for logs.
func WithURLRedactor(f func(*url.URL) string) Option {
	return func(c *Client) { c.urlRedactor = f }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// WithMaxReplayBodySize limits size of buffered body for retries (0 disables limit).
func WithMaxReplayBodySize(n int64) Option {
	return func(c *Client) { c.maxReplayBody = n }
}

// WithRetryPolicy sets custom retry policy.
func WithRetryPolicy(f func(*stdhttp.Response, error) (time.Duration, bool)) Option {
	return func(c *Client) {
		if f != nil {
			c.retryPolicy = f
		}
	}
}

// ErrReplayBodyTooLarge indicates request body exceeds replay limit.
var ErrReplayBodyTooLarge = errors.New("http: body too large for replay")

// New creates configured Client.
func New(opts ...Option) *Client {
	tr := stdhttp.DefaultTransport.(*stdhttp.Transport).Clone()
	tr.MaxIdleConnsPerHost = 32
	tr.IdleConnTimeout = 90 * time.Second
	tr.TLSHandshakeTimeout = 10 * time.Second

	c := &Client{
		hc: &stdhttp.Client{
			Timeout:   60 * time.Second,
			Transport: tr,
		},
		log:           slog.Default(),
		baseBackoff:   200 * time.Millisecond,
		maxReplayBody: 1 << 20,
		retryPolicy:   retryInfo,
		retryMethods: map[string]struct{}{
			stdhttp.MethodGet:    {},
			stdhttp.MethodHead:   {},
			stdhttp.MethodPut:    {},
			stdhttp.MethodDelete: {},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// retryAfter parses Retry-After header value.
func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := stdhttp.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *Client) redactURL(u *url.URL) string {
	if c.urlRedactor != nil {
		return c.urlRedactor(u)
	}
	return u.Redacted()
}

// drainAndClose drains up to 512KB from body and closes it.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, b, 512<<10)
	_ = b.Close()
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var se *os.SyscallError
	if errors.As(err, &se) {
		switch se.Err {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
			syscall.ENETUNREACH, syscall.EPIPE, syscall.EHOSTUNREACH, syscall.ETIMEDOUT:
			return true
		}
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsTemporary
}

// retryInfo determines if request should be retried and returns optional delay.
// 429 is deliberately absent: rate limiting belongs to the caller's retry policy.
func retryInfo(resp *stdhttp.Response, err error) (time.Duration, bool) {
	if err != nil {
		return 0, isRetryableError(err)
	}
	switch {
	case resp.StatusCode == stdhttp.StatusRequestTimeout, resp.StatusCode == stdhttp.StatusTooEarly:
		drainAndClose(resp.Body)
		return 0, true
	case resp.StatusCode >= 500 && resp.StatusCode != stdhttp.StatusNotImplemented:
		delay := retryAfter(resp.Header.Get("Retry-After"))
		drainAndClose(resp.Body)
		return delay, true
	default:
		return 0, false
	}
}

// bufferBody makes the request body replayable.
func (c *Client) bufferBody(req *stdhttp.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	var r io.Reader = req.Body
	if c.maxReplayBody > 0 {
		r = io.LimitReader(req.Body, c.maxReplayBody+1)
	}
	body, err := io.ReadAll(r)
	_ = req.Body.Close()
	if err != nil {
		return err
	}
	if c.maxReplayBody > 0 && int64(len(body)) > c.maxReplayBody {
		return ErrReplayBodyTooLarge
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	req.Body, _ = req.GetBody()
	return nil
}

// Do sends HTTP request with context, logging and retries. Non-2xx responses
// that are not retried are returned as-is; use CheckStatus to turn them into
// errors.
func (c *Client) Do(ctx context.Context, req *stdhttp.Request) (*stdhttp.Response, error) {
	retries := c.retries
	if _, ok := c.retryMethods[req.Method]; !ok {
		retries = 0
	}
	if retries > 0 {
		if err := c.bufferBody(req); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		r := req.Clone(ctx)
		for k, v := range c.headers {
			if r.Header.Get(k) == "" {
				r.Header.Set(k, v)
			}
		}
		if r.GetBody != nil && attempt > 1 {
			rc, err := r.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = rc
		}
		u := c.redactURL(r.URL)
		st := time.Now()
		resp, err := c.hc.Do(r)
		dur := time.Since(st)
		if err != nil {
			// net/http embeds the raw URL in *url.Error; keep secrets out of it
			var ue *url.Error
			if errors.As(err, &ue) {
				ue.URL = u
			}
		}

		delay, retry := c.retryPolicy(resp, err)
		if !retry || attempt > retries {
			if err != nil {
				c.log.Warn("http request error", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Any("error", err))
				return nil, err
			}
			if retry {
				// retryPolicy already drained the body
				return nil, &StatusError{Method: r.Method, URL: u, StatusCode: resp.StatusCode}
			}
			c.log.Debug("http request", slog.String("method", r.Method), slog.String("url", u), slog.Int("status", resp.StatusCode), slog.Duration("dur", dur), slog.Int("attempt", attempt))
			return resp, nil
		}

		wait := delay
		if wait <= 0 {
			wait = c.baseBackoff * time.Duration(1<<uint(attempt-1))
			if wait > 0 {
				wait += time.Duration(randv2.Int64N(int64(wait)))
			}
		}
		if c.maxBackoff > 0 && wait > c.maxBackoff {
			wait = c.maxBackoff
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{Method: r.Method, URL: u, StatusCode: resp.StatusCode}
		}
		c.log.Warn("http request retry", slog.String("method", r.Method), slog.String("url", u), slog.Int("attempt", attempt), slog.Int("attempts_left", retries-attempt), slog.Duration("wait", wait), slog.Any("error", lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
