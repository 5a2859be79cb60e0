// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package bootstrap builds self-extracting archives and reconstructs the
// archived page from them.
//
// A self-extracting archive is an HTML shell followed by the ZIP bytes. In a
// browser the embedded script (see [BootstrapScript]) re-reads the file,
// extracts the entries and replaces the shell with the archived document.
// [Extract] does the same on the Go side and returns the reconstructed
// [Document].
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/pagedata"
)

// ErrNoIndex is returned for archives without a top-level index.html.
var ErrNoIndex = errors.New("bootstrap: index.html not found")

var docPrefix = regexp.MustCompile(`^(frames/[0-9]+/)*`)

// Document is a page reconstructed from an archive.
type Document struct {
	HTML    string
	Title   string
	Scripts []Script

	// Resources are sorted by descending name length.
	Resources []*Resource

	// Manifests maps document prefixes ("" and "frames/N/...") to their
	// index.json.
	Manifests map[string]*pagedata.Manifest
}

// Resource returns the resource called name.
func (d *Document) Resource(name string) (*Resource, bool) {
	for _, r := range d.Resources {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

type config struct {
	password    string
	prompt      func(ctx context.Context) (string, error)
	resolve     URLResolver
	logger      *slog.Logger
	zipOpts     []sfz.Option
	parallelism int
}

// Option configures Extract.
type Option func(*config)

// WithPassword sets the archive password.
func WithPassword(pwd string) Option {
	return func(c *config) { c.password = pwd }
}

// WithPasswordPrompt sets a function asked for the password when the
// archive has encrypted entries and no password was given. It is called at
// most once per Extract.
func WithPasswordPrompt(prompt func(ctx context.Context) (string, error)) Option {
	return func(c *config) { c.prompt = prompt }
}

// WithURLResolver sets how binary resources are turned into URLs.
func WithURLResolver(resolve URLResolver) Option {
	return func(c *config) { c.resolve = resolve }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithZipOptions passes options to the ZIP reader.
func WithZipOptions(opts ...sfz.Option) Option {
	return func(c *config) { c.zipOpts = append(c.zipOpts, opts...) }
}

// WithParallelism bounds the number of entries extracted at once.
func WithParallelism(n int) Option {
	return func(c *config) { c.parallelism = n }
}

// Extract reads the archive in src and reconstructs its top-level document.
func Extract(ctx context.Context, src sfz.Source, opts ...Option) (*Document, error) {
	c := config{resolve: DataURI, parallelism: 8}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	zr, err := sfz.NewZipReader(ctx, src, c.zipOpts...)
	if err != nil {
		return nil, err
	}
	entries, err := zr.GetEntries(ctx)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("archive opened", "entries", len(entries), "prepended", zr.PrependedDataLength())

	password, err := c.resolvePassword(ctx, entries)
	if err != nil {
		return nil, err
	}

	resources, err := extractAll(ctx, entries, password, c.parallelism)
	if err != nil {
		return nil, err
	}

	doc := &Document{Resources: resources, Manifests: make(map[string]*pagedata.Manifest)}
	if err := doc.verify(); err != nil {
		return nil, err
	}
	if err := Substitute(doc.Resources, c.resolve); err != nil {
		return nil, fmt.Errorf("resolve resources: %w", err)
	}

	index, ok := doc.Resource("index.html")
	if !ok {
		return nil, ErrNoIndex
	}
	doc.HTML, doc.Title, doc.Scripts, err = rewriteDocument(index.Text)
	if err != nil {
		return nil, fmt.Errorf("parse index.html: %w", err)
	}
	c.logger.Debug("document reconstructed", "title", doc.Title, "scripts", len(doc.Scripts))
	return doc, nil
}

func (c *config) resolvePassword(ctx context.Context, entries []*sfz.Entry) (string, error) {
	if c.password != "" || c.prompt == nil {
		return c.password, nil
	}
	for _, e := range entries {
		if !e.Encrypted {
			continue
		}
		pwd, err := c.prompt(ctx)
		if err != nil {
			return "", fmt.Errorf("password prompt: %w", err)
		}
		return pwd, nil
	}
	return "", nil
}

func extractAll(ctx context.Context, entries []*sfz.Entry, password string, parallelism int) ([]*Resource, error) {
	var files []*sfz.Entry
	for _, e := range entries {
		if !e.Directory {
			files = append(files, e)
		}
	}

	resources := make([]*Resource, len(files))
	g, ctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, e := range files {
		g.Go(func() error {
			data, err := e.Bytes(ctx, sfz.WithPassword(password))
			if err != nil {
				return fmt.Errorf("extract %s: %w", e.Filename, err)
			}
			r := &Resource{Name: e.Filename, MIMEType: mimeTypeOf(e.Filename)}
			if textEntry.MatchString(e.Filename) {
				r.IsText, r.Text = true, string(data)
			} else {
				r.Data = data
			}
			resources[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return resources, nil
}

// verify loads manifests and checks every resource against the manifest of
// its document.
func (d *Document) verify() error {
	for _, r := range d.Resources {
		if path.Base(r.Name) != pagedata.ManifestFilename {
			continue
		}
		m, err := pagedata.ParseManifest([]byte(r.Text))
		if err != nil {
			return fmt.Errorf("%s: %w", r.Name, err)
		}
		d.Manifests[dirPrefix(r.Name)] = m
	}

	for _, r := range d.Resources {
		prefix := docPrefix.FindString(r.Name)
		m, ok := d.Manifests[prefix]
		if !ok || path.Base(r.Name) == pagedata.ManifestFilename {
			continue
		}
		content := r.Data
		if r.IsText {
			content = []byte(r.Text)
		}
		if err := m.Verify(strings.TrimPrefix(r.Name, prefix), content); err != nil {
			return err
		}
	}
	return nil
}
