package openai

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"agenthub/internal/platform/httpclient"
	"agenthub/internal/shared"
)

// TranscriberConfig describes the /audio/transcriptions endpoint.
type TranscriberConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Language is an optional ISO-639-1 hint.
	Language string
	Timeout  time.Duration
}

// Transcriber turns voice questions into text.
type Transcriber struct {
	client *httpclient.Client
	cfg    TranscriberConfig
}

// NewTranscriber creates a transcription client. A missing API key yields a
// KindUnavailable error.
func NewTranscriber(c *httpclient.Client, cfg TranscriberConfig) (*Transcriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not set: %w", shared.ErrUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Transcriber{client: c, cfg: cfg}, nil
}

// Transcribe uploads audio and returns the recognized text.
func (t *Transcriber) Transcribe(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	body, formType, err := t.form(filename, contentType, data)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	var out struct {
		Text string `json:"text"`
	}
	if err := t.client.DoJSON(ctx, req, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func (t *Transcriber) form(filename, contentType string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{{"model", t.cfg.Model}, {"response_format", "json"}}
	if t.cfg.Language != "" {
		fields = append(fields, [2]string{"language", t.cfg.Language})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
