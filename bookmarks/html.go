package bookmarks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gocolly/colly/v2"
)

// exportURL is the address in-memory exports are served under.
const exportURL = "file:///stdin/export.html"

// ErrNotLocal is returned when an export is requested from anywhere but the
// local filesystem.
var ErrNotLocal = errors.New("bookmark exports must be local files")

// HTMLImporter reads Netscape bookmark files (the HTML export format shared
// by Firefox, Chrome and most bookmark managers) through a colly collector.
type HTMLImporter struct {
	transport http.RoundTripper
}

// HTMLOption configures an HTMLImporter.
type HTMLOption func(*HTMLImporter)

// WithTransport sets the transport used by ImportFile.
func WithTransport(rt http.RoundTripper) HTMLOption {
	return func(h *HTMLImporter) {
		h.transport = rt
	}
}

// NewHTMLImporter builds an importer. Without options ImportFile reads
// file:// URLs from the local filesystem and refuses every other scheme.
func NewHTMLImporter(opts ...HTMLOption) *HTMLImporter {
	h := &HTMLImporter{
		transport: localTransport{files: http.NewFileTransport(http.Dir("/"))},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Import parses an export held in memory.
func (h *HTMLImporter) Import(ctx context.Context, data []byte) ([]Leaf, error) {
	return h.collect(ctx, staticTransport{body: data}, exportURL)
}

// ImportFile parses the export stored at path.
func (h *HTMLImporter) ImportFile(ctx context.Context, path string) ([]Leaf, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return h.collect(ctx, h.transport, u.String())
}

func (h *HTMLImporter) collect(ctx context.Context, rt http.RoundTripper, target string) ([]Leaf, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector()
	collector.MaxBodySize = 0
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(rt)

	var (
		mu     sync.Mutex
		leaves []Leaf
	)
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if ctx.Err() != nil {
			return
		}
		leaf, ok := extractLeaf(e)
		if !ok {
			return
		}
		mu.Lock()
		leaves = append(leaves, leaf)
		mu.Unlock()
	})

	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		slog.Error("bookmark export read failed",
			slog.String("url", target),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	})

	if err := collector.Visit(target); err != nil {
		if errors.Is(err, ErrNotLocal) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrMalformedTree, target, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return leaves, nil
}

func extractLeaf(e *colly.HTMLElement) (Leaf, bool) {
	href := strings.TrimSpace(e.Attr("href"))
	if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "place:") {
		return Leaf{}, false
	}

	seconds := parseSeconds(e.Attr("last_modified"))
	if seconds == 0 {
		seconds = parseSeconds(e.Attr("add_date"))
	}

	return Leaf{
		Title:              strings.TrimSpace(e.Text),
		URI:                href,
		LastModifiedMicros: seconds * 1_000_000,
	}, true
}

func parseSeconds(v string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// staticTransport answers every request with the same HTML body.
type staticTransport struct {
	body []byte
}

func (t staticTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(t.body)),
		ContentLength: int64(len(t.body)),
		Request:       req,
	}, nil
}

// localTransport serves file:// requests and labels them as HTML, whatever
// the file extension.
type localTransport struct {
	files http.RoundTripper
}

func (t localTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "file" {
		return nil, fmt.Errorf("%w: %s", ErrNotLocal, req.URL.Redacted())
	}
	resp, err := t.files.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	}
	return resp, nil
}
