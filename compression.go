// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an entry.
type CompressionMethod uint16

// Supported compression methods according to ZIP specification
const (
	Store   CompressionMethod = 0 // No compression - data stored as-is
	Deflate CompressionMethod = 8 // DEFLATE compression
)

func (m CompressionMethod) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	}
	return fmt.Sprintf("CompressionMethod(%d)", uint16(m))
}

// Compression levels for DEFLATE algorithm
const (
	DeflateNormal    = 6 // Default compression level (good balance between speed and ratio)
	DeflateMaximum   = 9 // Maximum compression (best ratio, slowest speed)
	DeflateFast      = 3 // Fast compression (lower ratio, faster speed)
	DeflateSuperFast = 1 // Super fast compression (lowest ratio, fastest speed)
)

// Deflate emits at most 5 bytes of stored-block overhead per 16383 bytes.
const deflateBlockSize = 16383

// maxCompressedSize bounds the deflated size of n bytes, stored blocks included.
func maxCompressedSize(n uint64, method CompressionMethod) uint64 {
	if method == Store {
		return n
	}
	return n + 5*((n+deflateBlockSize-1)/deflateBlockSize+1)
}

var deflaterPool sync.Map // level -> *sync.Pool of *flate.Writer

func getFlateWriter(w io.Writer, level int) (*flate.Writer, error) {
	p, _ := deflaterPool.LoadOrStore(level, &sync.Pool{})
	if fw, ok := p.(*sync.Pool).Get().(*flate.Writer); ok {
		fw.Reset(w)
		return fw, nil
	}
	return flate.NewWriter(w, level)
}

func putFlateWriter(fw *flate.Writer, level int) {
	p, _ := deflaterPool.LoadOrStore(level, &sync.Pool{})
	p.(*sync.Pool).Put(fw)
}

// deflater compresses pushed chunks into raw DEFLATE.
type deflater struct {
	level int
	buf   bytes.Buffer
	w     *flate.Writer
}

func newDeflater(level int) (*deflater, error) {
	if level == 0 {
		level = DeflateNormal
	}
	d := &deflater{level: level}
	w, err := getFlateWriter(&d.buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate level %d: %w", level, err)
	}
	d.w = w
	return d, nil
}

func (d *deflater) update(p []byte) ([]byte, error) {
	if _, err := d.w.Write(p); err != nil {
		return nil, err
	}
	return d.drain(), nil
}

func (d *deflater) final() ([]byte, error) {
	if err := d.w.Close(); err != nil {
		return nil, err
	}
	putFlateWriter(d.w, d.level)
	d.w = nil
	return d.drain(), nil
}

func (d *deflater) drain() []byte {
	if d.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(d.buf.Bytes())
	d.buf.Reset()
	return out
}

// inflater decompresses pushed chunks. The flate reader pulls from a pipe in
// its own goroutine; output accumulates until the next update or final.
type inflater struct {
	pw   *io.PipeWriter
	mu   sync.Mutex
	out  bytes.Buffer
	done chan error
}

func newInflater() *inflater {
	pr, pw := io.Pipe()
	in := &inflater{pw: pw, done: make(chan error, 1)}

	go func() {
		fr := flate.NewReader(pr)
		_, err := io.Copy(inflaterOutput{in}, fr)
		fr.Close()
		if err != nil {
			pr.CloseWithError(err)
		} else {
			// Trailing bytes after the final block are ignored.
			_, err = io.Copy(io.Discard, pr)
		}
		in.done <- err
	}()
	return in
}

type inflaterOutput struct{ in *inflater }

func (o inflaterOutput) Write(p []byte) (int, error) {
	o.in.mu.Lock()
	defer o.in.mu.Unlock()
	return o.in.out.Write(p)
}

func (in *inflater) update(p []byte) ([]byte, error) {
	if _, err := in.pw.Write(p); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return in.drain(), nil
}

func (in *inflater) final() ([]byte, error) {
	in.pw.Close()
	if err := <-in.done; err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return in.drain(), nil
}

// abort stops the decoding goroutine.
func (in *inflater) abort() {
	in.pw.CloseWithError(io.ErrClosedPipe)
}

func (in *inflater) drain() []byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.out.Len() == 0 {
		return nil
	}
	out := bytes.Clone(in.out.Bytes())
	in.out.Reset()
	return out
}
