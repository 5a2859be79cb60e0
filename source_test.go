// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/sfz"
)

func TestReadFull(t *testing.T) {
	ctx := context.Background()
	src := sfz.NewTextSource("0123456789")

	got, err := sfz.ReadFull(ctx, src, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("3456"), got)

	_, err = sfz.ReadFull(ctx, src, 8, 4)
	assert.ErrorIs(t, err, sfz.ErrRead)
	_, err = sfz.ReadFull(ctx, src, -1, 1)
	assert.ErrorIs(t, err, sfz.ErrRead)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sfz.ReadFull(canceled, src, 0, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamSource(t *testing.T) {
	ctx := context.Background()
	src := sfz.NewStreamSource(strings.NewReader("abcdefghij"), 10)
	assert.Equal(t, int64(10), src.Size())

	got, err := sfz.ReadFull(ctx, src, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	// Forward gaps are skipped.
	got, err = sfz.ReadFull(ctx, src, 6, 2)
	require.NoError(t, err)
	assert.Equal(t, "gh", string(got))

	_, err = sfz.ReadFull(ctx, src, 2, 1)
	assert.ErrorIs(t, err, sfz.ErrNotSeekable)
}

func TestBufferSink(t *testing.T) {
	sink := new(sfz.BufferSink)
	_, err := sink.Write([]byte("hello world"))
	require.NoError(t, err)

	_, err = sink.WriteAt([]byte("W"), 6)
	require.NoError(t, err)
	assert.Equal(t, "hello World", string(sink.Bytes()))

	_, err = sink.WriteAt([]byte("overflow"), 8)
	assert.Error(t, err)
}

func TestSinkVariants(t *testing.T) {
	text := new(sfz.TextSink)
	_, err := text.Write([]byte("héllo"))
	require.NoError(t, err)
	assert.Equal(t, "héllo", text.String())

	uri := sfz.NewDataURISink("")
	_, err = uri.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "data:application/octet-stream;base64,aGk=", uri.String())

	var out bytes.Buffer
	w := sfz.NewWriterSink(&out)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", out.String())

	var sink sfz.Sink = w
	_, patchable := sink.(sfz.Patcher)
	assert.False(t, patchable)
}
