package gemini_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/adapter/external/gemini"
	"agenthub/internal/platform/httpclient"
	"agenthub/internal/platform/logger"
	"agenthub/internal/shared"
	"agenthub/pkg/retry"
)

func newClient(t *testing.T, h http.Handler) *gemini.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := gemini.New(httpclient.New(httpclient.WithLogger(logger.Discard())), srv.URL, "test-key", "gemini-2.0-flash-exp", 5*time.Millisecond)
	require.NoError(t, err)
	return c
}

func TestNew_MissingKey(t *testing.T) {
	_, err := gemini.New(httpclient.New(), "http://x", "", "m", 0)
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestUpload(t *testing.T) {
	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Equal(t, "resumable", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "start", r.Header.Get("X-Goog-Upload-Command"))
		assert.Equal(t, "5", r.Header.Get("X-Goog-Upload-Header-Content-Length"))
		assert.Equal(t, "video/mp4", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
		w.Header().Set("X-Goog-Upload-URL", srvURL+"/resumable/123")
	})
	mux.HandleFunc("/resumable/123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upload, finalize", r.Header.Get("X-Goog-Upload-Command"))
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, "video", string(b))
		_, _ = w.Write([]byte(`{"file":{"name":"files/abc","uri":"https://x/files/abc","mimeType":"video/mp4","state":"PROCESSING"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	c, err := gemini.New(httpclient.New(httpclient.WithLogger(logger.Discard())), srv.URL, "test-key", "m", time.Millisecond)
	require.NoError(t, err)

	f, err := c.Upload(context.Background(), "clip.mp4", "video/mp4", 5, strings.NewReader("video"))
	require.NoError(t, err)
	assert.Equal(t, "files/abc", f.Name)
	assert.Equal(t, gemini.StateProcessing, f.State)
}

func TestUpload_MissingUploadURL(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := c.Upload(context.Background(), "a.mp4", "video/mp4", 1, strings.NewReader("x"))
	require.ErrorIs(t, err, shared.ErrDependencyFailure)
}

func TestWaitActive(t *testing.T) {
	var polls atomic.Int32
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/files/abc", r.URL.Path)
		state := gemini.StateProcessing
		if polls.Add(1) >= 2 {
			state = gemini.StateActive
		}
		_, _ = w.Write([]byte(`{"name":"files/abc","state":"` + state + `"}`))
	}))
	f, err := c.WaitActive(context.Background(), gemini.File{Name: "files/abc", State: gemini.StateProcessing})
	require.NoError(t, err)
	assert.Equal(t, gemini.StateActive, f.State)
	assert.Equal(t, int32(2), polls.Load())
}

func TestWaitActive_Failed(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"files/abc","state":"FAILED","error":{"message":"bad codec"}}`))
	}))
	_, err := c.WaitActive(context.Background(), gemini.File{Name: "files/abc", State: gemini.StateProcessing})
	require.ErrorIs(t, err, shared.ErrDependencyFailure)
	assert.Contains(t, err.Error(), "bad codec")
}

func TestWaitActive_ContextCanceled(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"files/abc","state":"PROCESSING"}`))
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.WaitActive(ctx, gemini.File{Name: "files/abc", State: gemini.StateProcessing})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenerateContent(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash-exp:generateContent", r.URL.Path)
		var body struct {
			Contents []struct {
				Parts []map[string]any `json:"parts"`
			} `json:"contents"`
		}
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, sonic.Unmarshal(raw, &body))
		require.Len(t, body.Contents, 1)
		require.Len(t, body.Contents[0].Parts, 2)
		assert.Equal(t, "describe", body.Contents[0].Parts[0]["text"])
		fd := body.Contents[0].Parts[1]["file_data"].(map[string]any)
		assert.Equal(t, "https://x/files/abc", fd["file_uri"])
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"A cat "},{"text":"on a mat."}]}}]}`))
	}))
	text, err := c.GenerateContent(context.Background(), gemini.File{URI: "https://x/files/abc", MimeType: "video/mp4"}, "describe")
	require.NoError(t, err)
	assert.Equal(t, "A cat on a mat.", text)
}

func TestGenerateContent_Empty(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	text, err := c.GenerateContent(context.Background(), gemini.File{}, "q")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGenerateContent_RateLimited(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	_, err := c.GenerateContent(context.Background(), gemini.File{}, "q")
	require.Error(t, err)
	assert.True(t, retry.IsRateLimited(err))
}

func TestDeleteFile(t *testing.T) {
	var called atomic.Bool
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1beta/files/abc", r.URL.Path)
		called.Store(true)
		_, _ = w.Write([]byte(`{}`))
	}))
	require.NoError(t, c.DeleteFile(context.Background(), "files/abc"))
	assert.True(t, called.Load())
}
