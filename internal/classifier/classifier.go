// Package classifier determines the MIME type of downloaded files and remote streams.
//
// Local files are classified by extension first and then by sniffing their first bytes.
// Remote streams are probed over HTTP; any failure yields [models.MimeTypeUnsupported]
// instead of an error so a station update is never aborted by a dead stream.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/stationsync/internal/models"
	"github.com/desertthunder/stationsync/internal/shared"
)

const sniffLen = 512

var extensionTypes = map[string]string{
	".m3u":  "audio/x-mpegurl",
	".pls":  "audio/x-scpls",
	".m3u8": "application/vnd.apple.mpegurl",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
}

// ClassifyFile returns the MIME type of the file at path, or [models.MimeTypeUnsupported].
func ClassifyFile(path string) string {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}

	f, err := os.Open(path)
	if err != nil {
		return models.MimeTypeUnsupported
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	return ClassifyContent(head[:n])
}

// ClassifyContent sniffs a MIME type from the leading bytes of a file.
func ClassifyContent(head []byte) string {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	lower := bytes.ToLower(trimmed)
	switch {
	case len(trimmed) == 0:
		return models.MimeTypeUnsupported
	case bytes.HasPrefix(lower, []byte("[playlist]")):
		return "audio/x-scpls"
	case bytes.HasPrefix(lower, []byte("#extm3u")), bytes.HasPrefix(lower, []byte("http://")), bytes.HasPrefix(lower, []byte("https://")):
		return "audio/x-mpegurl"
	case bytes.HasPrefix(head, []byte{0x00, 0x00, 0x01, 0x00}):
		return "image/x-icon"
	}

	t := MediaType(http.DetectContentType(head))
	if models.IsImage(t) || models.IsStream(t) {
		return t
	}
	return models.MimeTypeUnsupported
}

// MediaType strips parameters from a Content-Type header value.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	t, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		t, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(t))
}

// ContentType is the result of probing a stream.
type ContentType struct {
	Type    string
	Charset string
}

// Prober detects the content type of remote streams.
type Prober struct {
	client    *http.Client
	userAgent string
	logger    *log.Logger
}

// NewProber creates a new [Prober]. A nil client gets one with the given timeout.
func NewProber(client *http.Client, userAgent string, timeout time.Duration, logger *log.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Prober{client: client, userAgent: userAgent, logger: shared.WithLogger(logger, "component", "prober")}
}

// Probe returns the content type of uri. HEAD is tried first; servers that reject it or omit
// the header get a GET whose body is closed unread.
func (p *Prober) Probe(ctx context.Context, uri string) ContentType {
	unsupported := ContentType{Type: models.MimeTypeUnsupported}
	if uri == "" {
		return unsupported
	}

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		header, err := p.fetchHeader(ctx, method, uri)
		if err != nil {
			p.logger.Debug("probe failed", "method", method, "uri", uri, "error", err)
			continue
		}
		if ct := parseContentType(header); ct.Type != "" {
			p.logger.Debug("probed stream", "uri", uri, "type", ct.Type)
			return ct
		}
	}

	p.logger.Warn("unable to detect stream content type", "uri", uri)
	return unsupported
}

func (p *Prober) fetchHeader(ctx context.Context, method, uri string) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, err
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Icy-MetaData", "1")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s returned status %d", shared.ErrClassification, method, resp.StatusCode)
	}
	return resp.Header, nil
}

func parseContentType(h http.Header) ContentType {
	raw := h.Get("Content-Type")
	if raw == "" {
		return ContentType{}
	}
	ct := ContentType{Type: MediaType(raw)}
	if _, params, err := mime.ParseMediaType(raw); err == nil {
		ct.Charset = params["charset"]
	}
	return ct
}
