package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenthub/internal/platform/httpclient"
	"agenthub/internal/platform/logger"
	"agenthub/internal/shared"
)

type fileBot struct {
	Bot
	file *models.File
}

func (f fileBot) GetFile(context.Context, *bot.GetFileParams) (*models.File, error) {
	return f.file, nil
}

func TestIsSupportedAudio(t *testing.T) {
	cases := []struct {
		mime, name string
		ok         bool
	}{
		{"audio/ogg", "a.ogg", true},
		{"audio/mpeg", "a.mp3", true},
		{"application/zip", "a.zip", false},
		{"video/mp4", "a.mp4", false},
		{"", "a.webm", true},
		{"", "a.txt", false},
	}
	for i, c := range cases {
		assert.Equal(t, c.ok, IsSupportedAudio(c.mime, c.name), "case %d", i)
	}
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("application/pdf", "x"))
	assert.True(t, IsPDF("", "Report.PDF"))
	assert.False(t, IsPDF("text/plain", "a.txt"))
}

func TestNormalizeOGGName(t *testing.T) {
	cases := []struct {
		in, out string
	}{
		{"file.oga", "file.ogg"},
		{"voice/file_0.oga", "voice/file_0.ogg"},
		{"audio.ogg", "audio.ogg"},
		{"doc.mp3", "doc.mp3"},
	}
	for i, c := range cases {
		assert.Equal(t, c.out, normalizeOGGName(c.in), "case %d", i)
	}
}

func TestRedactToken(t *testing.T) {
	u, _ := url.Parse("https://api.telegram.org/file/bot123:ABC/voice/file_0.oga")
	assert.Equal(t, "https://api.telegram.org/file/botREDACTED/voice/file_0.oga", RedactToken(u))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/botTOKEN/voice/file_0.oga", r.URL.Path)
		_, _ = w.Write([]byte("OggS"))
	}))
	defer srv.Close()

	d := NewDownloader(httpclient.New(httpclient.WithLogger(logger.Discard())), "TOKEN", 0).WithBaseURL(srv.URL)
	f, err := d.Download(context.Background(), fileBot{file: &models.File{FilePath: "voice/file_0.oga", FileSize: 4}}, "id")
	require.NoError(t, err)
	assert.Equal(t, "file_0.ogg", f.Name)
	assert.Equal(t, "audio/ogg", f.ContentType)
	assert.Equal(t, []byte("OggS"), f.Data)
}

func TestDownload_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2<<20))
	}))
	defer srv.Close()
	d := NewDownloader(httpclient.New(httpclient.WithLogger(logger.Discard())), "T", 1<<20).WithBaseURL(srv.URL)

	_, err := d.Download(context.Background(), fileBot{file: &models.File{FilePath: "documents/a.pdf", FileSize: 5 << 20}}, "id")
	require.ErrorIs(t, err, shared.ErrValidation)

	// size unknown up front
	_, err = d.Download(context.Background(), fileBot{file: &models.File{FilePath: "documents/a.pdf"}}, "id")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDownload_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	client := httpclient.New(httpclient.WithLogger(logger.Discard()), httpclient.WithURLRedactor(RedactToken))
	d := NewDownloader(client, "123456:SECRETTOKEN", 0).WithBaseURL(srv.URL)
	_, err := d.Download(context.Background(), fileBot{file: &models.File{FilePath: "documents/x.pdf"}}, "id")
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.NotContains(t, err.Error(), "SECRETTOKEN")
	assert.Contains(t, se.URL, "/file/botREDACTED/documents/x.pdf")
}
