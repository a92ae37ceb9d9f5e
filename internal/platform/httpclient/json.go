package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	stdhttp "net/http"

	"github.com/bytedance/sonic"
)

// DoJSON sends req and decodes a 2xx JSON body into out (skipped when out is nil).
func (c *Client) DoJSON(ctx context.Context, req *stdhttp.Request, out any) error {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := c.CheckStatus(resp); err != nil {
		return err
	}
	defer drainAndClose(resp.Body)
	if out == nil {
		return nil
	}
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", c.redactURL(resp.Request.URL), err)
	}
	return nil
}

// NewJSONRequest builds a request with body encoded as JSON.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*stdhttp.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := stdhttp.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
