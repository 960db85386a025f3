// Package media downloads remote files into sendable attachments.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/wa-relay/internal/session"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

// Label is the display name given to every fetched attachment.
const Label = "Media"

const defaultMaxBytes = 16 << 20

// ErrFetchFailed wraps every failure to obtain the remote file.
var ErrFetchFailed = errors.New("media: fetch failed")

// Fetcher retrieves files over HTTP.
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *logging.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithTimeout bounds each download.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		maxBytes:   defaultMaxBytes,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns it base64 encoded with the mimetype
// reported by the server.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (session.MediaAttachment, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return session.MediaAttachment{}, fmt.Errorf("%w: unsupported url %q", ErrFetchFailed, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return session.MediaAttachment{}, fmt.Errorf("%w: create request: %v", ErrFetchFailed, err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return session.MediaAttachment{}, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.MediaAttachment{}, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return session.MediaAttachment{}, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
	}
	if int64(len(data)) > f.maxBytes {
		return session.MediaAttachment{}, fmt.Errorf("%w: body exceeds %d bytes", ErrFetchFailed, f.maxBytes)
	}

	mimetype := contentType(resp.Header.Get("Content-Type"), data)
	f.logger.Debug("media: fetched", "url", rawURL, "bytes", len(data), "mimetype", mimetype)

	return session.MediaAttachment{
		MimeType:      mimetype,
		Base64Payload: base64.StdEncoding.EncodeToString(data),
		Label:         Label,
	}, nil
}

// contentType returns the header's media type without parameters, sniffing
// the body when the header is missing or unparsable.
func contentType(header string, body []byte) string {
	if header != "" {
		if mediaType, _, err := mime.ParseMediaType(header); err == nil {
			return mediaType
		}
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	return sniffed
}
