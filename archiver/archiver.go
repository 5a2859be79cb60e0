// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package archiver packs a captured page tree into a ZIP archive, optionally
// wrapped in a self-extracting HTML shell.
package archiver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/bootstrap"
	"github.com/lemon4ksan/sfz/pagedata"
)

// storedExtensions lists formats that are already compressed.
var storedExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "avif": true,
	"pdf": true, "woff": true, "woff2": true,
	"mp3": true, "mp4": true, "ogg": true, "webm": true,
	"zip": true, "gz": true, "br": true,
}

// CompressionFor returns the compression method and level used for name.
func CompressionFor(name string, level int) (sfz.CompressionMethod, int) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if storedExtensions[ext] {
		return sfz.Store, 0
	}
	return sfz.Deflate, level
}

// Options controls Pack.
type Options struct {
	Password   string
	Encryption sfz.EncryptionMethod

	// SelfExtracting prefixes the archive with the bootstrap shell.
	SelfExtracting bool

	// Shell overrides the shell fields. Title and canonical URL default to
	// the page values, the readable text to the text of the page.
	Shell bootstrap.Shell

	// Manifest writes index.json next to every index.html.
	Manifest bool

	Level     int
	Scheduler *sfz.CodecScheduler
	Logger    *slog.Logger

	// Now returns the archive time. Default: time.Now.
	Now func() time.Time

	// ZipOptions are appended to the writer options.
	ZipOptions []sfz.Option
}

// Option configures Pack.
type Option func(*Options)

// WithPassword encrypts every entry. The method defaults to AES256.
func WithPassword(pwd string, method sfz.EncryptionMethod) Option {
	return func(o *Options) {
		o.Password = pwd
		o.Encryption = method
	}
}

// WithSelfExtracting enables the bootstrap shell.
func WithSelfExtracting(shell bootstrap.Shell) Option {
	return func(o *Options) {
		o.SelfExtracting = true
		o.Shell = shell
	}
}

// WithManifest toggles index.json manifests.
func WithManifest(enabled bool) Option {
	return func(o *Options) { o.Manifest = enabled }
}

// WithLevel sets the deflate level.
func WithLevel(level int) Option {
	return func(o *Options) { o.Level = level }
}

// WithScheduler shares a codec scheduler.
func WithScheduler(s *sfz.CodecScheduler) Option {
	return func(o *Options) { o.Scheduler = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithClock sets the archive time source.
func WithClock(now func() time.Time) Option {
	return func(o *Options) { o.Now = now }
}

// WithZipOptions passes options to the ZIP writer.
func WithZipOptions(opts ...sfz.Option) Option {
	return func(o *Options) { o.ZipOptions = append(o.ZipOptions, opts...) }
}

// Result describes a packed archive.
type Result struct {
	Entries []*sfz.Entry

	// PrefixLength is the size of the shell before the ZIP bytes.
	PrefixLength int64

	// Corrupted reports entries that failed after reaching the sink.
	Corrupted bool
}

type file struct {
	name    string
	content []byte
}

// Pack writes pd to sink. Entries land in the archive in a fixed order:
// for each document, index.html, index.json, then images, background
// images, fonts, stylesheets and scripts, then its frames. They are
// compressed in parallel.
func Pack(ctx context.Context, pd *pagedata.PageData, sink sfz.Sink, opts ...Option) (*Result, error) {
	o := Options{Level: sfz.DeflateNormal, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := pd.Validate(); err != nil {
		return nil, err
	}

	files, err := layout(pd, o)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var comment []byte
	if o.SelfExtracting {
		prefix, err := shellPrefix(pd, o.Shell)
		if err != nil {
			return nil, err
		}
		if _, err := sink.Write(prefix); err != nil {
			return nil, fmt.Errorf("write shell: %w", err)
		}
		res.PrefixLength = int64(len(prefix))
		comment = []byte(bootstrap.Trailer)

		// Offsets stay relative to the ZIP start and readers correct them
		// by the prefix length. The wrapper hides patching from the writer,
		// since the sink does not start at the ZIP start.
		sink = sfz.NewWriterSink(sink)
	}

	zopts := []sfz.Option{sfz.WithLogger(o.Logger), sfz.WithLastModDate(o.Now())}
	if o.Scheduler != nil {
		zopts = append(zopts, sfz.WithScheduler(o.Scheduler))
	}
	if o.Password != "" {
		zopts = append(zopts, sfz.WithEncryption(o.Encryption, o.Password))
	}
	zopts = append(zopts, o.ZipOptions...)

	zw, err := sfz.NewZipWriter(ctx, sink, zopts...)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		method, level := CompressionFor(f.name, o.Level)
		pa, err := zw.Queue(gctx, f.name, sfz.NewBytesSource(f.content), sfz.WithCompression(method, level))
		if err != nil {
			g.Go(func() error { return err })
			break
		}
		g.Go(func() error {
			_, err := pa.Wait()
			return err
		})
	}
	werr := g.Wait()

	if err := zw.Close(ctx, comment); err != nil && werr == nil {
		werr = err
	}
	if werr != nil {
		return nil, werr
	}

	res.Entries = zw.Entries()
	res.Corrupted = zw.HasCorruptedEntries()
	o.Logger.Info("page archived", "title", pd.Title, "entries", len(res.Entries), "self_extracting", o.SelfExtracting)
	return res, nil
}

// layout lists the archive files of the whole page tree.
func layout(pd *pagedata.PageData, o Options) ([]file, error) {
	var files []file
	err := pd.Walk(func(prefix string, doc *pagedata.PageData) error {
		files = append(files, file{prefix + "index.html", []byte(doc.Content)})
		if o.Manifest {
			m, err := pagedata.NewManifest(doc, o.Now()).Marshal()
			if err != nil {
				return err
			}
			files = append(files, file{prefix + pagedata.ManifestFilename, m})
		}
		for _, r := range doc.Resources.All() {
			files = append(files, file{prefix + r.Name, r.Content})
		}
		return nil
	})
	return files, err
}

func shellPrefix(pd *pagedata.PageData, shell bootstrap.Shell) ([]byte, error) {
	if shell.Title == "" {
		shell.Title = pd.Title
	}
	if shell.CanonicalURL == "" {
		shell.CanonicalURL = pd.URL
	}
	if shell.ReadableText == "" {
		text, err := bootstrap.ReadableText(pd.Content)
		if err != nil {
			return nil, fmt.Errorf("readable text: %w", err)
		}
		shell.ReadableText = text
	}
	return shell.Prefix(), nil
}
