package openai_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/adapter/external/openai"
	"agenthub/internal/platform/httpclient"
	"agenthub/internal/platform/logger"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func TestTranscribe_OK(t *testing.T) {
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		mr, err := r.MultipartReader()
		require.NoError(t, err)
		parts := map[string]string{}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, _ := io.ReadAll(part)
			parts[part.FormName()] = string(data)
			if part.FormName() == "file" {
				assert.Equal(t, "audio/ogg", part.Header.Get("Content-Type"))
			}
		}
		assert.Equal(t, "data", parts["file"])
		assert.Equal(t, "whisper-1", parts["model"])
		assert.Equal(t, "en", parts["language"])
		return jsonResponse(r, http.StatusOK, `{"text":" what are the key findings? "}`), nil
	})

	client := httpclient.New(httpclient.WithTransport(rt), httpclient.WithLogger(logger.Discard()))
	tr, err := openai.NewTranscriber(client, openai.TranscriberConfig{APIKey: "secret", Language: "en"})
	require.NoError(t, err)

	got, err := tr.Transcribe(context.Background(), "voice.ogg", "audio/ogg", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "what are the key findings?", got)
}

func TestTranscribe_RateLimited(t *testing.T) {
	rt := rtFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(r, http.StatusTooManyRequests, `{"error":{"code":"rate_limit_exceeded"}}`), nil
	})
	client := httpclient.New(httpclient.WithTransport(rt), httpclient.WithLogger(logger.Discard()))
	tr, err := openai.NewTranscriber(client, openai.TranscriberConfig{APIKey: "secret", BaseURL: "https://api.openai.com/v1/"})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), "voice.ogg", "audio/ogg", []byte("data"))
	require.Error(t, err)
	assert.True(t, retry.IsRateLimited(err))
}

func TestNewTranscriber_MissingKey(t *testing.T) {
	_, err := openai.NewTranscriber(httpclient.New(), openai.TranscriberConfig{})
	require.Error(t, err)
	assert.True(t, shared.IsUnavailable(err))
}

func TestNewChatModel_MissingKey(t *testing.T) {
	_, err := openai.NewChatModel(context.Background(), openai.ChatConfig{Provider: "groq", Model: "llama-3.3-70b-versatile"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "groq api key not set")
}

func TestNewChatModel_OK(t *testing.T) {
	cm, err := openai.NewChatModel(context.Background(), openai.ChatConfig{
		Provider:    "openai",
		APIKey:      "sk-test",
		BaseURL:     "http://127.0.0.1:1/v1",
		Model:       "gpt-4o",
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.NotNil(t, cm)
}
