// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package http provides an archive Source backed by HTTP requests.
//
// A Source works in one of two modes. In range mode every read issues a GET
// with a Range header and the size is discovered up front with HEAD (or a one
// byte ranged GET when HEAD is not allowed). In whole mode the resource is
// fetched once, kept in memory and served from there.
package http //nolint:revive // mirrors the role of the package, not net/http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lemon4ksan/sfz"
)

var (
	// ErrRangeUnsupported is returned in range mode when the server ignores
	// Range headers or does not advertise byte ranges.
	ErrRangeUnsupported = errors.New("http: range requests not supported")

	// ErrNotInitialized is returned by reads issued before Init.
	ErrNotInitialized = errors.New("http: source not initialized")
)

// Source implements sfz.Source and sfz.Initializer over a URL.
type Source struct {
	url     string
	client  *nethttp.Client
	headers nethttp.Header
	ranges  bool
	useHead bool
	logger  *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	ready bool
	size  int64
	data  []byte
}

var (
	_ sfz.Source          = (*Source)(nil)
	_ sfz.Initializer     = (*Source)(nil)
	_ sfz.ContextReaderAt = (*Source)(nil)
)

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) { s.client = client }
}

// WithHeader sets a header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithRangeRequests selects range mode (true) or whole mode (false).
func WithRangeRequests(enabled bool) Option {
	return func(s *Source) { s.ranges = enabled }
}

// WithoutHead disables HEAD requests. The size is then taken from a GET.
func WithoutHead() Option {
	return func(s *Source) { s.useHead = false }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) { s.logger = l }
}

// NewSource returns a Source for url. No request is made until Init.
// Range mode is the default.
func NewSource(url string, opts ...Option) *Source {
	s := &Source{
		url:     url,
		client:  nethttp.DefaultClient,
		ranges:  true,
		useHead: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// URL returns the source URL.
func (s *Source) URL() string { return s.url }

// Init determines the size of the resource. In whole mode it also downloads
// it. Concurrent calls share one round trip.
func (s *Source) Init(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}

	_, err, shared := s.group.Do("init", func() (any, error) {
		s.mu.RLock()
		ready := s.ready
		s.mu.RUnlock()
		if ready {
			return nil, nil
		}
		if s.ranges {
			return nil, s.discoverSize(ctx)
		}
		return nil, s.fetch(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", sfz.ErrRead, s.url, err)
	}
	s.logger.Debug("http source ready", "url", s.url, "size", s.Size(), "range", s.ranges, "shared", shared)
	return nil
}

// Size returns the resource size, or 0 before Init.
func (s *Source) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// ReadAt implements io.ReaderAt. Range requests made by ReadAt cannot be
// canceled; archive readers use ReadAtContext instead.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	return s.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext is ReadAt with a context bounding the range request.
func (s *Source) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	s.mu.RLock()
	ready, size, data := s.ready, s.size, s.data
	s.mu.RUnlock()

	if !ready {
		return 0, ErrNotInitialized
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= size {
		return 0, io.EOF
	}
	if !s.ranges {
		n := copy(p, data[off:])
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}
	return s.readRange(ctx, p, off, size)
}

func (s *Source) readRange(ctx context.Context, p []byte, off, size int64) (int, error) {
	end := off + int64(len(p)) - 1
	expected := len(p)
	if end >= size {
		end = size - 1
		expected = int(end - off + 1)
	}

	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	case nethttp.StatusOK:
		return 0, ErrRangeUnsupported
	default:
		return 0, fmt.Errorf("range request failed: %s", resp.Status)
	}

	if cr := resp.Header.Get("Content-Range"); cr != "" {
		start, total, err := parseContentRange(cr)
		if err != nil {
			return 0, err
		}
		if start != off || total != size {
			return 0, fmt.Errorf("unexpected Content-Range %q for offset %d of %d bytes", cr, off, size)
		}
	}

	n, err := io.ReadFull(resp.Body, p[:expected])
	if err != nil {
		return n, err
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// discoverSize finds the size for range mode.
func (s *Source) discoverSize(ctx context.Context) error {
	if s.useHead {
		req, err := s.newRequest(ctx, nethttp.MethodHead)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		drain(resp)

		if resp.StatusCode != nethttp.StatusOK {
			return fmt.Errorf("head request failed: %s", resp.Status)
		}
		if !strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes") {
			return ErrRangeUnsupported
		}
		if resp.ContentLength < 0 {
			return errors.New("head response missing Content-Length")
		}
		s.setSize(resp.ContentLength, nil)
		return nil
	}

	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("size request failed: %s", resp.Status)
	}
	_, total, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.setSize(total, nil)
	return nil
}

// fetch downloads the whole resource for whole mode.
func (s *Source) fetch(ctx context.Context) error {
	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != nethttp.StatusOK {
		return fmt.Errorf("get request failed: %s", resp.Status)
	}
	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return err
	}
	s.setSize(int64(buf.Len()), buf.Bytes())
	return nil
}

func (s *Source) setSize(size int64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	s.data = data
	s.ready = true
}

func (s *Source) newRequest(ctx context.Context, method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// parseContentRange parses "bytes start-end/size".
func parseContentRange(value string) (start, size int64, err error) {
	invalid := fmt.Errorf("invalid Content-Range %q", value)

	rng, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, 0, invalid
	}
	span, total, ok := strings.Cut(rng, "/")
	if !ok || total == "*" {
		return 0, 0, invalid
	}
	first, _, ok := strings.Cut(span, "-")
	if !ok {
		return 0, 0, invalid
	}
	if start, err = strconv.ParseInt(first, 10, 64); err != nil || start < 0 {
		return 0, 0, invalid
	}
	if size, err = strconv.ParseInt(total, 10, 64); err != nil || size < 0 {
		return 0, 0, invalid
	}
	return start, size, nil
}
