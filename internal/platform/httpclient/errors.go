package httpclient

import (
	"fmt"
	"io"
	stdhttp "net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// RateLimited reports whether the server rejected the request for rate limiting.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == stdhttp.StatusTooManyRequests
}

// CheckStatus returns nil for 2xx responses. Otherwise it consumes and closes
// the body and returns a *StatusError carrying its beginning. The URL in the
// error goes through the client's redactor.
func (c *Client) CheckStatus(resp *stdhttp.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	e := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.URL = c.redactURL(resp.Request.URL)
	}
	return e
}
