package httpclient

import stdhttp "net/http"

// transport adapts Client to http.RoundTripper.
type transport struct{ c *Client }

func (t transport) RoundTrip(req *stdhttp.Request) (*stdhttp.Response, error) {
	return t.c.Do(req.Context(), req)
}

// HTTPClient returns an *http.Client that sends every request through c, so
// SDKs that only accept a standard client share its logging and retries.
func (c *Client) HTTPClient() *stdhttp.Client {
	return &stdhttp.Client{Transport: transport{c: c}, Timeout: c.hc.Timeout}
}
