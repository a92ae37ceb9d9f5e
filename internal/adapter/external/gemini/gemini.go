// Package gemini talks to the Gemini REST API: the Files API for uploads and
// generateContent for multimodal prompts.
package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agenthub/internal/platform/httpclient"
	"agenthub/internal/shared"
)

// File states reported by the Files API.
const (
	StateProcessing = "PROCESSING"
	StateActive     = "ACTIVE"
	StateFailed     = "FAILED"
)

// File is an uploaded media file.
type File struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Client is a minimal Gemini REST client.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
	model   string
	poll    time.Duration
}

// New creates a Client. baseURL is normally https://generativelanguage.googleapis.com.
func New(c *httpclient.Client, baseURL, apiKey, model string, poll time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set: %w", shared.ErrUnavailable)
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Client{
		http:    c,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		poll:    poll,
	}, nil
}

// Model returns the generation model name.
func (c *Client) Model() string { return c.model }

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("x-goog-api-key", c.apiKey)
}

// Upload sends size bytes from r using the resumable upload protocol.
func (c *Client) Upload(ctx context.Context, displayName, mimeType string, size int64, r io.Reader) (File, error) {
	start, err := httpclient.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files",
		map[string]any{"file": map[string]string{"display_name": displayName}})
	if err != nil {
		return File{}, err
	}
	c.authorize(start)
	start.Header.Set("X-Goog-Upload-Protocol", "resumable")
	start.Header.Set("X-Goog-Upload-Command", "start")
	start.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(size, 10))
	start.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.http.Do(ctx, start)
	if err != nil {
		return File{}, fmt.Errorf("gemini upload start: %w", err)
	}
	if err := c.http.CheckStatus(resp); err != nil {
		return File{}, fmt.Errorf("gemini upload start: %w", err)
	}
	_ = resp.Body.Close()
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return File{}, fmt.Errorf("gemini upload start: missing upload url: %w", shared.ErrDependencyFailure)
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, r)
	if err != nil {
		return File{}, err
	}
	put.ContentLength = size
	put.Header.Set("X-Goog-Upload-Offset", "0")
	put.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	var out struct {
		File File `json:"file"`
	}
	if err := c.http.DoJSON(ctx, put, &out); err != nil {
		return File{}, fmt.Errorf("gemini upload: %w", err)
	}
	return out.File, nil
}

// GetFile returns the current metadata of an uploaded file ("files/abc").
func (c *Client) GetFile(ctx context.Context, name string) (File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return File{}, err
	}
	c.authorize(req)
	var f File
	if err := c.http.DoJSON(ctx, req, &f); err != nil {
		return File{}, fmt.Errorf("gemini get %s: %w", name, err)
	}
	return f, nil
}

// WaitActive polls until the file leaves PROCESSING.
func (c *Client) WaitActive(ctx context.Context, f File) (File, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		switch f.State {
		case StateActive, "":
			return f, nil
		case StateFailed:
			msg := "processing failed"
			if f.Error != nil && f.Error.Message != "" {
				msg = f.Error.Message
			}
			return f, fmt.Errorf("gemini file %s: %s: %w", f.Name, msg, shared.ErrDependencyFailure)
		}
		select {
		case <-ctx.Done():
			return f, ctx.Err()
		case <-t.C:
		}
		var err error
		if f, err = c.GetFile(ctx, f.Name); err != nil {
			return f, err
		}
	}
}

// DeleteFile removes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1beta/"+name, nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	if err := c.http.DoJSON(ctx, req, nil); err != nil {
		return fmt.Errorf("gemini delete %s: %w", name, err)
	}
	return nil
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// GenerateContent asks the model about an uploaded file and returns the
// concatenated text of the first candidate. Empty text is not an error.
func (c *Client) GenerateContent(ctx context.Context, f File, prompt string) (string, error) {
	body := map[string]any{
		"contents": []content{{
			Role: "user",
			Parts: []part{
				{Text: prompt},
				{FileData: &fileData{MimeType: f.MimeType, FileURI: f.URI}},
			},
		}},
	}
	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	var out generateResponse
	if err := c.http.DoJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", shared.Validation("request blocked: " + out.PromptFeedback.BlockReason)
		}
		return "", nil
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
