// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemon4ksan/sfz"
)

func newWriter(t *testing.T, opts ...sfz.Option) (*sfz.ZipWriter, *sfz.BufferSink) {
	t.Helper()
	sink := new(sfz.BufferSink)
	zw, err := sfz.NewZipWriter(context.Background(), sink, opts...)
	require.NoError(t, err)
	return zw, sink
}

func TestWriter_ResourceErrors(t *testing.T) {
	ctx := context.Background()
	zw, sink := newWriter(t)

	_, err := zw.Add(ctx, "a.txt", sfz.NewTextSource("a"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		entry   string
		opts    []sfz.Option
		wantErr error
	}{
		{"Duplicate", "a.txt", nil, sfz.ErrDuplicateEntry},
		{"Empty", "", nil, sfz.ErrInvalidEntryName},
		{"Absolute", "/etc/passwd", nil, sfz.ErrInvalidEntryName},
		{"Parent", "x/../../y", nil, sfz.ErrInvalidEntryName},
		{"FilenameTooLong", strings.Repeat("n", 70_000), nil, sfz.ErrFilenameTooLong},
		{"CommentTooLong", "c.txt", []sfz.Option{sfz.WithComment(strings.Repeat("c", 70_000))}, sfz.ErrCommentTooLong},
		{"NoPassword", "p.txt", []sfz.Option{sfz.WithEncryption(sfz.AES256, "")}, sfz.ErrEncryptedFileNoPassword},
		{"Zip64Disabled", "z.bin", []sfz.Option{sfz.WithZip64(sfz.Zip64Disable), sfz.WithCompression(sfz.Store, 0)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(sink.Bytes())
			_, err := zw.Add(ctx, tt.entry, sfz.NewTextSource("data"), tt.opts...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Len(t, sink.Bytes(), before, "rejected entries write nothing")
		})
	}

	require.NoError(t, zw.Close(ctx, nil))
	_, names := readArchive(t, sink.Bytes())
	assert.Equal(t, []string{"a.txt", "z.bin"}, names)
}

func TestWriter_Closed(t *testing.T) {
	ctx := context.Background()
	zw, _ := newWriter(t)

	err := zw.Close(ctx, bytes.Repeat([]byte{'x'}, 70_000))
	assert.ErrorIs(t, err, sfz.ErrCommentTooLong)

	require.NoError(t, zw.Close(ctx, nil))
	assert.ErrorIs(t, zw.Close(ctx, nil), sfz.ErrWriterClosed)

	_, err = zw.Add(ctx, "late.txt", sfz.NewTextSource("late"))
	assert.ErrorIs(t, err, sfz.ErrWriterClosed)
}

func TestWriter_DefaultEncryptionWithPassword(t *testing.T) {
	ctx := context.Background()
	zw, sink := newWriter(t)

	e, err := zw.Add(ctx, "secret.txt", sfz.NewTextSource("s"), sfz.WithPassword("pw"))
	require.NoError(t, err)
	assert.Equal(t, sfz.AES256, e.EncryptionMethod)
	assert.Equal(t, uint16(51), e.VersionNeeded)
	require.NoError(t, zw.Close(ctx, nil))

	text, err := openEntries(t, sink.Bytes())[0].Text(ctx, sfz.WithPassword("pw"))
	require.NoError(t, err)
	assert.Equal(t, "s", text)
}

func TestWriter_ZipCryptoForcesDataDescriptor(t *testing.T) {
	ctx := context.Background()
	zw, sink := newWriter(t, sfz.WithDataDescriptor(false))

	e, err := zw.Add(ctx, "z.txt", sfz.NewTextSource("zip crypto"), sfz.WithEncryption(sfz.ZipCrypto, "pw"))
	require.NoError(t, err)
	assert.True(t, e.DataDescriptor())

	plain, err := zw.Add(ctx, "p.txt", sfz.NewTextSource("plain"))
	require.NoError(t, err)
	assert.False(t, plain.DataDescriptor())
	require.NoError(t, zw.Close(ctx, nil))

	got, _ := readArchive(t, sink.Bytes(), sfz.WithPassword("pw"))
	assert.Equal(t, "zip crypto", string(got["z.txt"]))
	assert.Equal(t, "plain", string(got["p.txt"]))
}

// localCRC returns the CRC32 field of the local header of e.
func localCRC(data []byte, e *sfz.Entry) uint32 {
	return binary.LittleEndian.Uint32(data[e.Offset+14:])
}

func TestWriter_WithoutDataDescriptor(t *testing.T) {
	ctx := context.Background()
	content := payload(100_000)

	t.Run("PatchedSink", func(t *testing.T) {
		zw, sink := newWriter(t, sfz.WithDataDescriptor(false))
		_, err := zw.Add(ctx, "a.html", sfz.NewBytesSource(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close(ctx, nil))

		e := openEntries(t, sink.Bytes())[0]
		assert.False(t, e.DataDescriptor())
		assert.Equal(t, crc32.ChecksumIEEE(content), localCRC(sink.Bytes(), e))
		verifyWithStdlib(t, sink.Bytes(), map[string][]byte{"a.html": content}, "")
	})

	t.Run("StreamSink", func(t *testing.T) {
		var out bytes.Buffer
		zw, err := sfz.NewZipWriter(ctx, sfz.NewWriterSink(&out), sfz.WithDataDescriptor(false))
		require.NoError(t, err)
		_, err = zw.Add(ctx, "a.html", sfz.NewBytesSource(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close(ctx, nil))

		e := openEntries(t, out.Bytes())[0]
		assert.False(t, e.DataDescriptor())
		assert.Equal(t, crc32.ChecksumIEEE(content), localCRC(out.Bytes(), e))
		verifyWithStdlib(t, out.Bytes(), map[string][]byte{"a.html": content}, "")
	})

	t.Run("FileSink", func(t *testing.T) {
		f, err := os.Create(filepath.Join(t.TempDir(), "out.zip"))
		require.NoError(t, err)
		defer f.Close()
		_, err = f.WriteString("<html>prefix</html>")
		require.NoError(t, err)

		sink, err := sfz.NewFileSink(f)
		require.NoError(t, err)
		zw, err := sfz.NewZipWriter(ctx, sink, sfz.WithDataDescriptor(false))
		require.NoError(t, err)
		_, err = zw.Add(ctx, "a.html", sfz.NewBytesSource(content))
		require.NoError(t, err)
		require.NoError(t, zw.Close(ctx, nil))
		require.NoError(t, sink.Sync())

		src, err := sfz.NewFileSource(f)
		require.NoError(t, err)
		zr, err := sfz.NewZipReader(ctx, src)
		require.NoError(t, err)
		assert.Equal(t, int64(len("<html>prefix</html>")), zr.PrependedDataLength())

		entries, err := zr.GetEntries(ctx)
		require.NoError(t, err)
		got, err := entries[0].Bytes(ctx)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	})
}

// failingSource fails every read.
type failingSource struct{ size int64 }

func (s failingSource) Size() int64 { return s.size }
func (s failingSource) ReadAt(p []byte, off int64) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestWriter_CorruptedEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("Direct", func(t *testing.T) {
		zw, sink := newWriter(t)
		_, err := zw.Add(ctx, "broken.txt", failingSource{size: 100})
		require.ErrorIs(t, err, sfz.ErrRead)
		assert.True(t, zw.HasCorruptedEntries())
		assert.NotEmpty(t, sink.Bytes(), "the local header was already written")

		_, err = zw.Add(ctx, "ok.txt", sfz.NewTextSource("fine"))
		require.NoError(t, err)
		require.NoError(t, zw.Close(ctx, nil))

		got, names := readArchive(t, sink.Bytes())
		assert.Equal(t, []string{"ok.txt"}, names)
		assert.Equal(t, "fine", string(got["ok.txt"]))
	})

	t.Run("Buffered", func(t *testing.T) {
		zw, sink := newWriter(t, sfz.WithBufferedWrite(true))
		_, err := zw.Add(ctx, "broken.txt", failingSource{size: 100})
		require.ErrorIs(t, err, sfz.ErrRead)
		assert.False(t, zw.HasCorruptedEntries())
		assert.Empty(t, sink.Bytes())

		// The name was released.
		_, err = zw.Add(ctx, "broken.txt", sfz.NewTextSource("retry"))
		require.NoError(t, err)
		require.NoError(t, zw.Close(ctx, nil))

		got, _ := readArchive(t, sink.Bytes())
		assert.Equal(t, "retry", string(got["broken.txt"]))
	})
}

func TestWriter_StreamSourceInput(t *testing.T) {
	ctx := context.Background()
	content := payload(300_000)
	zw, sink := newWriter(t, sfz.WithChunkSize(8192))

	_, err := zw.Add(ctx, "stream.html", sfz.NewStreamSource(bytes.NewReader(content), int64(len(content))))
	require.NoError(t, err)
	require.NoError(t, zw.Close(ctx, nil))

	got, _ := readArchive(t, sink.Bytes())
	assert.Equal(t, content, got["stream.html"])

	// Reading an archive needs to seek backwards.
	archive := sink.Bytes()
	_, err = sfz.NewZipReader(ctx, sfz.NewStreamSource(bytes.NewReader(archive), int64(len(archive))))
	assert.ErrorIs(t, err, sfz.ErrNotSeekable)
}

func TestWriter_EntriesAndCallback(t *testing.T) {
	ctx := context.Background()
	var seen []string
	zw, _ := newWriter(t, sfz.WithOnEntry(func(e *sfz.Entry, err error) {
		if err == nil {
			seen = append(seen, e.Filename)
		}
	}))

	_, err := zw.Add(ctx, "one", sfz.NewTextSource("1"))
	require.NoError(t, err)
	_, err = zw.Add(ctx, "two", sfz.NewTextSource("2"))
	require.NoError(t, err)
	_, err = zw.Add(ctx, "one", sfz.NewTextSource("dup"))
	require.Error(t, err)

	entries := zw.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Filename)
	assert.Equal(t, uint64(1), entries[1].UncompressedSize)
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestWriter_QueueKeepsQueueOrder(t *testing.T) {
	ctx := context.Background()
	zw, sink := newWriter(t)

	slow := newGatedSource(payload(200_000), true)
	first, err := zw.Queue(ctx, "slow.html", slow)
	require.NoError(t, err)

	var pending []*sfz.PendingAdd
	for i := range 5 {
		pa, err := zw.Queue(ctx, fmt.Sprintf("fast_%d.css", i), sfz.NewBytesSource(payload(1000+i)))
		require.NoError(t, err)
		pending = append(pending, pa)
	}
	_, err = zw.Queue(ctx, "slow.html", sfz.NewTextSource("dup"))
	require.ErrorIs(t, err, sfz.ErrDuplicateEntry)

	close(slow.release)
	_, err = first.Wait()
	require.NoError(t, err)
	for _, pa := range pending {
		_, err := pa.Wait()
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close(ctx, nil))

	_, order := readArchive(t, sink.Bytes())
	assert.Equal(t, []string{"slow.html", "fast_0.css", "fast_1.css", "fast_2.css", "fast_3.css", "fast_4.css"}, order)
}
