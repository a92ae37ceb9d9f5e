// Package telegram dispatches bot updates to workers and downloads attached files.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-telegram/bot"

	"agenthub/internal/platform/httpclient"
	"agenthub/internal/shared"
)

// File is a downloaded Telegram attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Downloader fetches files by file_id.
type Downloader struct {
	client  *httpclient.Client
	token   string
	baseURL string
	maxSize int64
}

// NewDownloader creates a Downloader. maxSize bounds the file size (0 means 20MB,
// the Bot API limit).
func NewDownloader(client *httpclient.Client, token string, maxSize int64) *Downloader {
	if maxSize <= 0 {
		maxSize = 20 << 20
	}
	return &Downloader{client: client, token: token, baseURL: "https://api.telegram.org", maxSize: maxSize}
}

// WithBaseURL points the downloader at another Bot API server.
func (d *Downloader) WithBaseURL(u string) *Downloader {
	d.baseURL = strings.TrimRight(u, "/")
	return d
}

// Download fetches a file by file_id and returns its name, content type and bytes.
func (d *Downloader) Download(ctx context.Context, b Bot, fileID string) (File, error) {
	f, err := b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return File{}, fmt.Errorf("get file: %w", err)
	}
	if f.FileSize > 0 && f.FileSize > d.maxSize {
		return File{}, shared.Validation(fmt.Sprintf("the file is too large (max %d MB)", d.maxSize>>20))
	}
	u := d.baseURL + "/file/bot" + d.token + "/" + f.FilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return File{}, err
	}
	resp, err := d.client.Do(ctx, req)
	if err != nil {
		return File{}, err
	}
	if err := d.client.CheckStatus(resp); err != nil {
		return File{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return File{}, err
	}
	if int64(len(data)) > d.maxSize {
		return File{}, shared.Validation(fmt.Sprintf("the file is too large (max %d MB)", d.maxSize>>20))
	}
	name := normalizeOGGName(filepath.Base(f.FilePath))
	return File{Name: name, ContentType: guessCT(name), Data: data}, nil
}

// RedactToken hides the bot token in file URLs for logs and errors.
func RedactToken(u *url.URL) string {
	c := *u
	if i := strings.Index(c.Path, "/bot"); i >= 0 {
		rest := c.Path[i+4:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			c.Path = c.Path[:i+4] + "REDACTED" + rest[j:]
		} else {
			c.Path = c.Path[:i+4] + "REDACTED"
		}
	}
	return c.Redacted()
}

// normalizeOGGName renames .oga voice notes to .ogg, which transcription
// endpoints accept.
func normalizeOGGName(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".oga") {
		return strings.TrimSuffix(name, filepath.Ext(name)) + ".ogg"
	}
	return name
}

func guessCT(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".m4a":
		return "audio/m4a"
	case ".webm":
		return "audio/webm"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// IsSupportedAudio reports whether a document can be transcribed.
func IsSupportedAudio(mime, filename string) bool {
	m := strings.ToLower(strings.TrimSpace(mime))
	if strings.HasPrefix(m, "video/") { // video containers are rejected
		return false
	}
	if strings.HasPrefix(m, "audio/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".ogg", ".oga", ".mp3", ".m4a", ".wav", ".webm", ".mpga", ".mpeg":
		return true
	default:
		return false
	}
}

// IsPDF reports whether a document attachment is a PDF.
func IsPDF(mime, filename string) bool {
	if strings.EqualFold(strings.TrimSpace(mime), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
