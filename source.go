// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Source is a random-access byte source of known size.
//
// ReadAt must return exactly len(p) bytes or an error. Sources that need a
// network round trip before Size is meaningful implement [Initializer].
type Source interface {
	io.ReaderAt
	Size() int64
}

// Sink is an append-only byte destination. Concrete sinks expose the written
// data in their native form (Bytes, String, a data URI or a file).
type Sink interface {
	io.Writer
}

// Initializer is implemented by sources and sinks that must be prepared
// before the first read or write.
type Initializer interface {
	Init(ctx context.Context) error
}

// Patcher is implemented by sinks that can rewrite bytes already written.
// The writer uses it to fill in local header sizes without a data descriptor.
// Offsets count from the first byte the sink received.
type Patcher interface {
	WriteAt(p []byte, off int64) (int, error)
}

// sizedSink reports how many bytes a sink already holds. A writer created on
// a non-empty Patcher patches relative to that length.
type sizedSink interface {
	Len() int64
}

// ContextReaderAt is implemented by sources whose reads can be canceled,
// such as network sources. ReadFull prefers it over ReadAt.
type ContextReaderAt interface {
	ReadAtContext(ctx context.Context, p []byte, off int64) (int, error)
}

// initialize calls Init on v when it implements Initializer.
func initialize(ctx context.Context, v any) error {
	if i, ok := v.(Initializer); ok {
		return i.Init(ctx)
	}
	return nil
}

// ReadFull reads exactly n bytes at off.
func ReadFull(ctx context.Context, src Source, off int64, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if off < 0 || n < 0 || off+int64(n) > src.Size() {
		return nil, fmt.Errorf("%w: range [%d, %d) outside source of %d bytes", ErrRead, off, off+int64(n), src.Size())
	}
	buf := make([]byte, n)
	var read int
	var err error
	if cr, ok := src.(ContextReaderAt); ok {
		read, err = cr.ReadAtContext(ctx, buf, off)
	} else {
		read, err = src.ReadAt(buf, off)
	}
	if read == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("%w: at %d: %w", ErrRead, off, err)
}

// NewBytesSource returns a Source over an in-memory buffer.
func NewBytesSource(b []byte) *bytes.Reader { return bytes.NewReader(b) }

// NewTextSource returns a Source over the UTF-8 bytes of s.
func NewTextSource(s string) *strings.Reader { return strings.NewReader(s) }

// NewFileSource returns a Source over the whole content of f.
func NewFileSource(f *os.File) (*io.SectionReader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return io.NewSectionReader(f, 0, info.Size()), nil
}

// StreamSource adapts a sequential reader of known size. Reads must move
// forward; skipped ranges are discarded.
type StreamSource struct {
	mu   sync.Mutex
	r    io.Reader
	size int64
	pos  int64
}

// NewStreamSource wraps r, which must deliver exactly size bytes.
func NewStreamSource(r io.Reader, size int64) *StreamSource {
	return &StreamSource{r: r, size: size}
}

func (s *StreamSource) Size() int64 { return s.size }

func (s *StreamSource) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off < s.pos {
		return 0, fmt.Errorf("%w: offset %d behind position %d", ErrNotSeekable, off, s.pos)
	}
	if off > s.pos {
		skipped, err := io.CopyN(io.Discard, s.r, off-s.pos)
		s.pos += skipped
		if err != nil {
			return 0, err
		}
	}
	n, err := io.ReadFull(s.r, p)
	s.pos += int64(n)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// BufferSink collects written bytes in memory. It supports patching.
type BufferSink struct {
	buf []byte
}

func (s *BufferSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *BufferSink) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(s.buf)) {
		return 0, fmt.Errorf("zip: patch range [%d, %d) beyond %d written bytes", off, off+int64(len(p)), len(s.buf))
	}
	return copy(s.buf[off:], p), nil
}

// Bytes returns the written data.
func (s *BufferSink) Bytes() []byte { return s.buf }

// Len returns the number of written bytes.
func (s *BufferSink) Len() int64 { return int64(len(s.buf)) }

// TextSink collects written bytes as a string.
type TextSink struct {
	strings.Builder
}

// DataURISink encodes written bytes as a base64 data URI.
type DataURISink struct {
	mimeType string
	buf      bytes.Buffer
}

// NewDataURISink returns a sink producing "data:<mimeType>;base64,..." URIs.
func NewDataURISink(mimeType string) *DataURISink {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &DataURISink{mimeType: mimeType}
}

func (s *DataURISink) Write(p []byte) (int, error) { return s.buf.Write(p) }

// String returns the data URI.
func (s *DataURISink) String() string {
	return "data:" + s.mimeType + ";base64," + base64.StdEncoding.EncodeToString(s.buf.Bytes())
}

// WriterSink forwards to an arbitrary writer. It cannot be patched, so
// entries written without data descriptors are buffered first.
type WriterSink struct {
	w io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) Write(p []byte) (int, error) { return s.w.Write(p) }

// FileSink writes to a file and supports patching. Offsets passed to WriteAt
// are relative to the file position when the sink was created.
type FileSink struct {
	f       *os.File
	base    int64
	written int64
}

// NewFileSink wraps f at its current position.
func NewFileSink(f *os.File) (*FileSink, error) {
	base, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("file position: %w", err)
	}
	return &FileSink{f: f, base: base}, nil
}

func (s *FileSink) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.written += int64(n)
	return n, err
}

// Len returns the number of bytes written through the sink.
func (s *FileSink) Len() int64 { return s.written }

func (s *FileSink) WriteAt(p []byte, off int64) (int, error) { return s.f.WriteAt(p, s.base+off) }

// Sync commits the file to stable storage.
func (s *FileSink) Sync() error { return s.f.Sync() }
