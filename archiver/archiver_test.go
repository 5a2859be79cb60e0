// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package archiver_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/archiver"
	"github.com/lemon4ksan/sfz/bootstrap"
	"github.com/lemon4ksan/sfz/pagedata"
)

func scenarioPage() *pagedata.PageData {
	return &pagedata.PageData{
		URL:     "https://example.com/",
		Title:   "Scenario",
		Content: "<html></html>",
		Resources: pagedata.Resources{
			Images:      []pagedata.Resource{{Name: "a.png", Content: make([]byte, 10_000)}},
			Stylesheets: []pagedata.Resource{{Name: "b.css", Content: []byte(".x{color:red}")}},
		},
	}
}

func framedPage() *pagedata.PageData {
	pd := &pagedata.PageData{
		URL:     "https://example.com/framed",
		Title:   "Framed <page>",
		Content: `<html><head><link rel=stylesheet href=stylesheet_0.css></head><body><h1>Hello</h1><p>World</p><iframe src=frames/0/index.html></iframe><script src=scripts/0.js></script></body></html>`,
		Resources: pagedata.Resources{
			Stylesheets: []pagedata.Resource{{Name: "stylesheet_0.css", Content: []byte("body{background:url(images/0.png)}")}},
			Scripts:     []pagedata.Resource{{Name: "scripts/0.js", Content: []byte("console.log('images/0.png')")}},
			Images:      []pagedata.Resource{{Name: "images/0.png", Content: []byte{0x89, 'P', 'N', 'G'}}},
			Frames: []pagedata.PageData{{
				Content:   `<img src=images/0.png>`,
				Resources: pagedata.Resources{Images: []pagedata.Resource{{Name: "images/0.png", Content: []byte("frame png")}}},
			}},
		},
	}
	return pd
}

func pack(t *testing.T, pd *pagedata.PageData, opts ...archiver.Option) ([]byte, *archiver.Result) {
	t.Helper()
	sink := new(sfz.BufferSink)
	res, err := archiver.Pack(context.Background(), pd, sink, opts...)
	require.NoError(t, err)
	return sink.Bytes(), res
}

func TestPack_Scenario(t *testing.T) {
	data, res := pack(t, scenarioPage())
	assert.Zero(t, res.PrefixLength)
	assert.False(t, res.Corrupted)

	ctx := context.Background()
	zr, err := sfz.NewZipReader(ctx, sfz.NewBytesSource(data))
	require.NoError(t, err)
	entries, err := zr.GetEntries(ctx)
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "index.html", entries[0].Filename)
	assert.Equal(t, "a.png", entries[1].Filename)
	assert.Equal(t, "b.css", entries[2].Filename)

	assert.Equal(t, uint64(10_000), entries[1].UncompressedSize)
	assert.Equal(t, sfz.Store, entries[1].CompressionMethod)
	assert.Equal(t, sfz.Deflate, entries[2].CompressionMethod)

	css, err := entries[2].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, ".x{color:red}", css)
}

func TestCompressionFor(t *testing.T) {
	tests := []struct {
		name   string
		method sfz.CompressionMethod
	}{
		{"images/0.PNG", sfz.Store},
		{"fonts/0.woff2", sfz.Store},
		{"photo.jpeg", sfz.Store},
		{"index.html", sfz.Deflate},
		{"stylesheet_0.css", sfz.Deflate},
		{"images/1.svg", sfz.Deflate},
		{"noext", sfz.Deflate},
	}
	for _, tt := range tests {
		method, _ := archiver.CompressionFor(tt.name, sfz.DeflateNormal)
		assert.Equal(t, tt.method, method, tt.name)
	}
}

func TestPack_LayoutAndManifest(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	data, res := pack(t, framedPage(), archiver.WithManifest(true), archiver.WithClock(func() time.Time { return now }))

	var names []string
	for _, e := range res.Entries {
		names = append(names, e.Filename)
	}
	assert.Equal(t, []string{
		"index.html", "index.json", "images/0.png", "stylesheet_0.css", "scripts/0.js",
		"frames/0/index.html", "frames/0/index.json", "frames/0/images/0.png",
	}, names)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	rc, err := zr.Open("frames/0/index.json")
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	require.NoError(t, err)

	m, err := pagedata.ParseManifest(raw)
	require.NoError(t, err)
	assert.True(t, now.Equal(m.ArchiveTime))
	assert.NoError(t, m.Verify("images/0.png", []byte("frame png")))
}

func TestPack_SelfExtractingDuality(t *testing.T) {
	data, res := pack(t, framedPage(), archiver.WithSelfExtracting(bootstrap.Shell{NoIndex: true}))
	require.Positive(t, res.PrefixLength)

	assert.True(t, bytes.HasPrefix(data, []byte("<!doctype html><html data-sfz>")))
	assert.True(t, bytes.HasSuffix(data, []byte(bootstrap.Trailer)))

	// HTML view.
	doc, err := html.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	var xmp, title, main *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "xmp":
				xmp = n
			case "title":
				title = n
			case "main":
				main = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	require.NotNil(t, xmp)
	require.NotNil(t, xmp.FirstChild)
	assert.True(t, strings.HasPrefix(xmp.FirstChild.Data, "<![CDATA[PK\x03\x04"))
	require.NotNil(t, title)
	assert.Equal(t, "Framed <page>", title.FirstChild.Data)
	require.NotNil(t, main)
	assert.Equal(t, "Hello\nWorld", main.FirstChild.Data)

	// ZIP view.
	ctx := context.Background()
	zr, err := sfz.NewZipReader(ctx, sfz.NewBytesSource(data))
	require.NoError(t, err)
	assert.Equal(t, res.PrefixLength, zr.PrependedDataLength())
	assert.Equal(t, bootstrap.Trailer, zr.Comment())
	for entry, err := range zr.Entries(ctx) {
		require.NoError(t, err)
		assert.GreaterOrEqual(t, int64(entry.Offset), res.PrefixLength, entry.Filename)
		_, err := entry.Bytes(ctx)
		require.NoError(t, err, entry.Filename)
	}

	stdlib, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Len(t, stdlib.File, 6)
}

func TestPack_Encrypted(t *testing.T) {
	data, res := pack(t, scenarioPage(), archiver.WithPassword("secret", sfz.NotEncrypted))
	for _, e := range res.Entries {
		assert.True(t, e.Encrypted)
		assert.Equal(t, sfz.AES256, e.EncryptionMethod)
	}

	ctx := context.Background()
	zr, err := sfz.NewZipReader(ctx, sfz.NewBytesSource(data), sfz.WithPassword("secret"))
	require.NoError(t, err)
	entries, err := zr.GetEntries(ctx)
	require.NoError(t, err)
	content, err := entries[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", content)
}

func TestPack_InvalidPage(t *testing.T) {
	pd := scenarioPage()
	pd.Resources.Fonts = []pagedata.Resource{{Name: "a.png"}}

	sink := new(sfz.BufferSink)
	_, err := archiver.Pack(context.Background(), pd, sink)
	require.ErrorIs(t, err, pagedata.ErrInvalidResource)
	assert.Empty(t, sink.Bytes())
}
