// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package serve_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/sfz"
	"github.com/lemon4ksan/sfz/archiver"
	"github.com/lemon4ksan/sfz/pagedata"
	"github.com/lemon4ksan/sfz/serve"
)

var png = []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}

func archive(t *testing.T, opts ...archiver.Option) []byte {
	t.Helper()
	pd := &pagedata.PageData{
		Title:     "Served",
		Content:   `<html><head><title>Served</title></head><body><img src=images/0.png></body></html>`,
		Resources: pagedata.Resources{Images: []pagedata.Resource{{Name: "images/0.png", Content: png}}},
	}
	sink := new(sfz.BufferSink)
	_, err := archiver.Pack(context.Background(), pd, sink, opts...)
	require.NoError(t, err)
	return sink.Bytes()
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

// countingSource counts central directory reads.
type countingSource struct {
	sfz.Source
	reads atomic.Int32
}

func (s *countingSource) ReadAt(p []byte, off int64) (int, error) {
	s.reads.Add(1)
	return s.Source.ReadAt(p, off)
}

func TestHandler(t *testing.T) {
	src := &countingSource{Source: sfz.NewBytesSource(archive(t))}
	server := httptest.NewServer(serve.NewHandler(src))
	t.Cleanup(server.Close)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(server.URL + "/")
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	reads := src.reads.Load()

	resp, body := get(t, server.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "<title>Served</title>")
	assert.Equal(t, reads, src.reads.Load(), "document is reconstructed once")

	match := regexp.MustCompile(`src="(/r/[^"]+)"`).FindStringSubmatch(string(body))
	require.Len(t, match, 2)
	assert.Equal(t, serve.ResourcePrefix+digest.FromBytes(png).String(), match[1])

	resp, body = get(t, server.URL+match[1])
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, png, body)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, `"`+digest.FromBytes(png).Encoded()+`"`, resp.Header.Get("ETag"))

	resp, _ = get(t, server.URL+serve.ResourcePrefix+"not-a-digest")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = get(t, server.URL+serve.ResourcePrefix+digest.FromString("missing").String())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = get(t, server.URL+"/elsewhere")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	post, err := http.Post(server.URL+"/", "text/plain", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)
}

func TestHandler_Password(t *testing.T) {
	data := archive(t, archiver.WithPassword("pw", sfz.ZipCrypto))

	locked := httptest.NewServer(serve.NewHandler(sfz.NewBytesSource(data)))
	t.Cleanup(locked.Close)
	resp, body := get(t, locked.URL+"/")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "sfz-error-message")

	unlocked := httptest.NewServer(serve.NewHandler(sfz.NewBytesSource(data), serve.WithPassword("pw")))
	t.Cleanup(unlocked.Close)
	resp, body = get(t, unlocked.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>Served</title>")
}
