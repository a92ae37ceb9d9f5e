// Package sanitize normalizes URLs found in model output before rendering.
package sanitize

import (
	"net/url"
	"regexp"
)

// InvalidURL replaces links that lack a scheme or host.
const InvalidURL = "#invalid-url"

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`)

// URL returns s re-serialized as an absolute URL, or InvalidURL when it does
// not parse with both a scheme and a host. Bare "www." hosts have no scheme
// and are rejected.
func URL(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return InvalidURL
	}
	return u.String()
}

// Links applies URL to every URL-shaped token in text.
func Links(text string) string {
	return linkPattern.ReplaceAllStringFunc(text, URL)
}
