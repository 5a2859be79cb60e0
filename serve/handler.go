// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package serve displays archived pages over HTTP.
//
// The handler reconstructs the archive once, on the first request, and then
// serves the document at "/" and every binary resource at
// "/r/<digest>", where digest is the content digest of the resource.
package serve

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/bootstrap"
)

// ResourcePrefix is the path under which resources are served.
const ResourcePrefix = "/r/"

type blob struct {
	mimeType string
	data     []byte
}

// Handler serves one archive.
type Handler struct {
	src    sfz.Source
	opts   []bootstrap.Option
	logger *slog.Logger

	group singleflight.Group

	mu    sync.RWMutex
	doc   *bootstrap.Document
	blobs map[digest.Digest]blob
}

// Option configures a Handler.
type Option func(*Handler)

// WithPassword sets the archive password.
func WithPassword(pwd string) Option {
	return func(h *Handler) { h.opts = append(h.opts, bootstrap.WithPassword(pwd)) }
}

// WithExtractOptions passes options to bootstrap.Extract.
func WithExtractOptions(opts ...bootstrap.Option) Option {
	return func(h *Handler) { h.opts = append(h.opts, opts...) }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler returns a handler for the archive in src.
func NewHandler(src sfz.Source, opts ...Option) *Handler {
	h := &Handler{src: src, blobs: make(map[digest.Digest]blob)}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	doc, err := h.document(r.Context())
	if err != nil {
		h.logger.Error("archive reconstruction failed", "error", err)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, bootstrap.RenderError(err))
		return
	}

	switch {
	case r.URL.Path == "/":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeContent(w, r, "index.html", time.Time{}, strings.NewReader(doc.HTML))
	case strings.HasPrefix(r.URL.Path, ResourcePrefix):
		h.serveResource(w, r, strings.TrimPrefix(r.URL.Path, ResourcePrefix))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) serveResource(w http.ResponseWriter, r *http.Request, id string) {
	d, err := digest.Parse(id)
	if err != nil {
		http.Error(w, "invalid resource id", http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	b, ok := h.blobs[d]
	h.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", b.mimeType)
	w.Header().Set("ETag", `"`+d.Encoded()+`"`)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(b.data))
}

// document reconstructs the archive once. Concurrent first requests share
// the work, failures are retried on the next request.
func (h *Handler) document(ctx context.Context) (*bootstrap.Document, error) {
	h.mu.RLock()
	doc := h.doc
	h.mu.RUnlock()
	if doc != nil {
		return doc, nil
	}

	v, err, _ := h.group.Do("document", func() (any, error) {
		opts := append([]bootstrap.Option{bootstrap.WithURLResolver(h.resolve), bootstrap.WithLogger(h.logger)}, h.opts...)
		doc, err := bootstrap.Extract(context.WithoutCancel(ctx), h.src, opts...)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.doc = doc
		h.mu.Unlock()
		h.logger.Info("archive reconstructed", "title", doc.Title, "resources", len(doc.Resources))
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*bootstrap.Document), nil
}

// resolve stores a resource and returns its URL.
func (h *Handler) resolve(_, mimeType string, data []byte) (string, error) {
	d := digest.FromBytes(data)
	h.mu.Lock()
	h.blobs[d] = blob{mimeType: mimeType, data: data}
	h.mu.Unlock()
	return ResourcePrefix + d.String(), nil
}
