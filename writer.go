// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lemon4ksan/sfz/internal"
	"github.com/lemon4ksan/sfz/internal/sys"
)

// ZipWriter appends entries to a Sink and writes the central directory on
// Close.
//
// Add is safe for concurrent use. Up to MaxWorkers entries of the configured
// scheduler are encoded at once and further calls wait in FIFO order.
// Entries always land in the archive in the order Add was called.
type ZipWriter struct {
	sink      Sink
	patcher   Patcher // nil when the sink cannot be patched
	patchBase int64   // sink position of the writer's first byte
	cfg     Config
	addSem  *semaphore.Weighted

	mu        sync.Mutex
	wg        sync.WaitGroup
	names     map[string]struct{}
	entries   []*Entry
	offset    uint64        // absolute position of the next local header
	reserved  uint64        // upper bound of the bytes claimed by pending entries
	tail      chan struct{} // closed once the last registered entry is written
	closed    bool
	corrupted bool
}

// pendingEntry is an entry between registration and commit.
type pendingEntry struct {
	entry      *Entry
	cfg        Config
	src        Source
	size       uint64
	zip64      bool
	descriptor bool
	reserved   uint64
	localExtra map[uint16][]byte
	dosDate    uint16
	dosTime    uint16

	prev <-chan struct{}
	done chan struct{}
}

// NewZipWriter initializes sink and returns a writer. Options become the
// defaults of every added entry.
func NewZipWriter(ctx context.Context, sink Sink, opts ...Option) (*ZipWriter, error) {
	if err := initialize(ctx, sink); err != nil {
		return nil, fmt.Errorf("init sink: %w", err)
	}
	cfg := defaultConfig().with(opts)
	if cfg.Offset < 0 {
		return nil, fmt.Errorf("zip: negative writer offset %d", cfg.Offset)
	}

	tail := make(chan struct{})
	close(tail)

	zw := &ZipWriter{
		sink:   sink,
		cfg:    cfg,
		addSem: semaphore.NewWeighted(int64(cfg.scheduler().MaxWorkers())),
		names:  make(map[string]struct{}),
		offset: uint64(cfg.Offset),
		tail:   tail,
	}
	zw.patcher, _ = sink.(Patcher)
	if sized, ok := sink.(sizedSink); ok && zw.patcher != nil {
		zw.patchBase = sized.Len()
	}
	return zw, nil
}

// HasCorruptedEntries reports whether a failed Add left partial entry bytes
// in the sink. Such bytes are skipped by the central directory.
func (zw *ZipWriter) HasCorruptedEntries() bool {
	zw.mu.Lock()
	defer zw.mu.Unlock()
	return zw.corrupted
}

// Entries returns the committed entries in archive order.
func (zw *ZipWriter) Entries() []*Entry {
	zw.mu.Lock()
	defer zw.mu.Unlock()
	return append([]*Entry(nil), zw.entries...)
}

// Add writes one entry read from src. src may be nil for directories.
// Resource errors are returned before any byte is written.
func (zw *ZipWriter) Add(ctx context.Context, name string, src Source, opts ...Option) (*Entry, error) {
	pa, err := zw.Queue(ctx, name, src, opts...)
	if err != nil {
		return nil, err
	}
	return pa.Wait()
}

// PendingAdd is an entry that holds its place in the archive while its data
// is being written.
type PendingAdd struct {
	done  chan struct{}
	entry *Entry
	err   error
}

// Wait blocks until the entry is written.
func (pa *PendingAdd) Wait() (*Entry, error) {
	<-pa.done
	return pa.entry, pa.err
}

// Queue validates and registers an entry, then writes it in the background.
// The archive position of the entry is fixed when Queue returns, so callers
// that queue entries from one goroutine get call order on disk while the
// entries are compressed in parallel.
func (zw *ZipWriter) Queue(ctx context.Context, name string, src Source, opts ...Option) (*PendingAdd, error) {
	cfg := zw.cfg.with(opts)

	p, err := zw.admit(ctx, name, src, cfg)
	if err != nil {
		if cfg.OnEntry != nil {
			cfg.OnEntry(nil, err)
		}
		return nil, err
	}

	pa := &PendingAdd{done: make(chan struct{})}
	go func() {
		defer close(pa.done)
		defer zw.wg.Done()

		if err := zw.write(ctx, p); err != nil {
			cfg.log().Warn("zip entry failed", "name", p.entry.Filename, "error", err)
			pa.err = err
		} else {
			cfg.log().Debug("zip entry written",
				"name", p.entry.Filename,
				"offset", p.entry.Offset,
				"compressed", p.entry.CompressedSize,
				"uncompressed", p.entry.UncompressedSize)
			pa.entry = p.entry
		}
		if cfg.OnEntry != nil {
			cfg.OnEntry(pa.entry, pa.err)
		}
	}()
	return pa, nil
}

// admit prepares the entry and reserves its place in archive order.
func (zw *ZipWriter) admit(ctx context.Context, name string, src Source, cfg Config) (*pendingEntry, error) {
	var size uint64
	if src != nil {
		if err := initialize(ctx, src); err != nil {
			return nil, fmt.Errorf("init source %s: %w", name, err)
		}
		size = uint64(src.Size())
	}

	p, err := prepareEntry(name, size, cfg)
	if err != nil {
		return nil, err
	}
	p.src = src
	if p.entry.Directory {
		p.src, p.size = nil, 0
	}

	if err := zw.register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// prepareEntry validates name and options and builds the entry headers that
// do not depend on the written data.
func prepareEntry(name string, size uint64, cfg Config) (*pendingEntry, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	dir := cfg.Directory || strings.HasSuffix(name, "/")
	if dir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	if !validEntryName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}

	enc := cfg.EncryptionMethod
	if enc == NotEncrypted && cfg.Password != "" {
		enc = AES256
	}
	if enc > AES256 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncryption, enc)
	}
	if enc != NotEncrypted && cfg.Password == "" {
		return nil, fmt.Errorf("%w: %s", ErrEncryptedFileNoPassword, name)
	}
	method := cfg.CompressionMethod
	if dir {
		enc, method, size = NotEncrypted, Store, 0
	}
	if method != Store && method != Deflate {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, method)
	}

	e := &Entry{
		Filename:          name,
		Comment:           cfg.Comment,
		Directory:         dir,
		CompressionMethod: method,
		Encrypted:         enc != NotEncrypted,
		EncryptionMethod:  enc,
		UncompressedSize:  size,
		ExtraField:        make(map[uint16][]byte),
	}
	p := &pendingEntry{
		entry:      e,
		cfg:        cfg,
		size:       size,
		localExtra: make(map[uint16][]byte),
	}

	if cfg.UseUnicodeFileNames {
		e.RawFilename, e.RawComment = []byte(name), []byte(cfg.Comment)
		e.BitFlag |= flagUTF8
	} else {
		var exact bool
		if e.RawFilename, exact = encodeCP437(name); !exact {
			extra := encodeUnicodeExtra(e.RawFilename, name)
			p.localExtra[UnicodePathTag] = extra
			e.ExtraField[UnicodePathTag] = extra
		}
		if e.RawComment, exact = encodeCP437(cfg.Comment); !exact {
			e.ExtraField[UnicodeCommentTag] = encodeUnicodeExtra(e.RawComment, cfg.Comment)
		}
	}
	if len(e.RawFilename) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFilenameTooLong, len(e.RawFilename))
	}
	if len(e.RawComment) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCommentTooLong, len(e.RawComment))
	}

	if e.Encrypted {
		e.BitFlag |= flagEncrypted
	}
	if method == Deflate {
		e.BitFlag |= compressionLevelBits(cfg.CompressionLevel)
	}
	// The ZipCrypto check byte comes from the DOS time when sizes follow
	// the data, so it never depends on the CRC.
	p.descriptor = !dir && (cfg.DataDescriptor || enc == ZipCrypto)
	if p.descriptor {
		e.BitFlag |= flagDataDescriptor
	}

	if enc.IsAES() {
		e.AESVersion = cfg.AESVersion
		if e.AESVersion != AESVersion2 {
			e.AESVersion = AESVersion1
		}
		extra := encodeAESExtra(e.AESVersion, enc.aesStrength(), method)
		p.localExtra[AESEncryptionTag] = extra
		e.ExtraField[AESEncryptionTag] = extra
	}

	mtime := cfg.LastModDate
	if mtime.IsZero() {
		mtime = time.Now()
	}
	e.LastModDate, e.LastAccessDate, e.CreationDate = mtime, cfg.LastAccessDate, cfg.CreationDate
	p.dosDate, p.dosTime = timeToMsDos(mtime)
	e.RawLastModDate = uint32(p.dosDate)<<16 | uint32(p.dosTime)
	if cfg.ExtendedTimestamp {
		p.localExtra[ExtendedTimestampTag] = encodeExtTimestamp(false, mtime, e.LastAccessDate, e.CreationDate)
		e.ExtraField[ExtendedTimestampTag] = encodeExtTimestamp(true, mtime, e.LastAccessDate, e.CreationDate)
	}
	if cfg.NTFSTimestamp {
		extra := encodeNTFSExtra(mtime, e.LastAccessDate, e.CreationDate)
		p.localExtra[NTFSFieldTag] = extra
		e.ExtraField[NTFSFieldTag] = extra
	}

	// Room for a Zip64 field: two values locally, three centrally.
	if internal.ExtraFieldLength(p.localExtra)+4+16 > math.MaxUint16 ||
		internal.ExtraFieldLength(e.ExtraField)+4+24 > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %s", ErrExtraFieldTooLong, name)
	}

	host := sys.DefaultHostSystem
	if cfg.Mode != 0 {
		host = sys.HostSystemUNIX
	}
	e.VersionMadeBy = uint16(host)<<8 | LatestZipVersion
	e.ExternalAttributes = sys.ExternalAttributes(host, cfg.Mode, dir)
	e.Mode = sys.FileMode(host, e.ExternalAttributes, dir)
	return p, nil
}

// validEntryName rejects empty, absolute and parent-relative names.
func validEntryName(name string) bool {
	if name == "" || name == "/" || strings.HasPrefix(name, "/") || strings.ContainsRune(name, 0) {
		return false
	}
	for elem := range strings.SplitSeq(strings.TrimSuffix(name, "/"), "/") {
		if elem == ".." {
			return false
		}
	}
	return true
}

// planEntry decides up front whether an entry written at offset needs Zip64
// records, and bounds the number of bytes it can occupy.
func planEntry(mode Zip64Mode, offset, size uint64, method CompressionMethod, enc EncryptionMethod, headerLen int) (zip64 bool, reserved uint64, err error) {
	maxCompressed := maxCompressedSize(size, method) + uint64(encryptionOverhead(enc))
	needed := offset >= math.MaxUint32 || size >= math.MaxUint32 || maxCompressed >= math.MaxUint32

	switch {
	case mode == Zip64Force:
		zip64 = true
	case needed && mode == Zip64Disable:
		return false, 0, fmt.Errorf("%w: entry of %d bytes at offset %d", ErrUnsupportedFormat, size, offset)
	case needed:
		zip64 = true
	}

	reserved = uint64(headerLen) + 4 + 16 + maxCompressed +
		internal.DataDescriptorSigLen + internal.DataDescriptor64Len
	return zip64, reserved, nil
}

// register claims the entry name, plans Zip64 and links the entry into the
// write order.
func (zw *ZipWriter) register(p *pendingEntry) error {
	e := p.entry
	headerLen := internal.LocalFileHeaderLen + len(e.RawFilename) + internal.ExtraFieldLength(p.localExtra)

	zw.mu.Lock()
	defer zw.mu.Unlock()

	if zw.closed {
		return ErrWriterClosed
	}
	if _, ok := zw.names[e.Filename]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.Filename)
	}

	zip64, reserved, err := planEntry(p.cfg.Zip64, zw.offset+zw.reserved, p.size,
		e.CompressionMethod, e.EncryptionMethod, headerLen)
	if err != nil {
		return err
	}
	p.zip64, p.reserved = zip64, reserved
	e.Zip64 = zip64
	e.VersionNeeded = versionNeeded(e.Directory, zip64, e.CompressionMethod, e.EncryptionMethod)

	zw.names[e.Filename] = struct{}{}
	zw.reserved += reserved
	p.prev = zw.tail
	p.done = make(chan struct{})
	zw.tail = p.done
	zw.wg.Add(1)
	return nil
}

// write runs the entry either directly against the sink, when it is next in
// line, or through a memory buffer flushed behind its predecessor.
func (zw *ZipWriter) write(ctx context.Context, p *pendingEntry) error {
	if err := zw.addSem.Acquire(ctx, 1); err != nil {
		zw.abandon(p)
		return err
	}

	direct := !p.cfg.BufferedWrite && isClosed(p.prev) && (p.descriptor || zw.patcher != nil)
	if direct {
		defer zw.addSem.Release(1)
		return zw.writeDirect(ctx, p)
	}

	data, res, err := zw.encode(ctx, p)
	// Release before waiting so predecessors can run their own encoding.
	zw.addSem.Release(1)
	if err != nil {
		zw.abandon(p)
		return err
	}

	select {
	case <-p.prev:
	case <-ctx.Done():
		zw.abandon(p)
		return ctx.Err()
	}
	return zw.writeBuffered(p, data, res)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func (zw *ZipWriter) codecOptions(p *pendingEntry) CodecOptions {
	return CodecOptions{
		CompressionMethod: p.entry.CompressionMethod,
		Level:             p.cfg.CompressionLevel,
		Encryption:        p.entry.EncryptionMethod,
		Password:          p.cfg.Password,
		ZipCryptoCheck:    zipCryptoCheckByte(p.entry.BitFlag, 0, p.dosTime),
		Signed:            true,
		PortableCrypto:    p.cfg.PortableCrypto,
	}
}

func (zw *ZipWriter) encode(ctx context.Context, p *pendingEntry) ([]byte, CodecResult, error) {
	if p.src == nil {
		return nil, CodecResult{}, nil
	}
	codec, err := p.cfg.scheduler().Acquire(ctx, zw.codecOptions(p))
	if err != nil {
		return nil, CodecResult{}, err
	}
	var buf bytes.Buffer
	res, err := pump(ctx, p.src, 0, int64(p.size), codec, &buf, p.cfg.ChunkSize)
	if err != nil {
		return nil, CodecResult{}, fmt.Errorf("%s: %w", p.entry.Filename, err)
	}
	return buf.Bytes(), res, nil
}

// writeDirect streams the entry into the sink. Sizes go to a data descriptor
// or are patched into the local header afterwards.
func (zw *ZipWriter) writeDirect(ctx context.Context, p *pendingEntry) error {
	e := p.entry
	e.Offset = zw.currentOffset()

	cw := &byteCountWriter{dest: zw.sink}
	header := zw.localHeader(p, false).Encode()
	if _, err := cw.Write(header); err != nil {
		return zw.fail(p, cw.bytesWritten, err)
	}

	if p.src != nil {
		codec, err := p.cfg.scheduler().Acquire(ctx, zw.codecOptions(p))
		if err != nil {
			return zw.fail(p, cw.bytesWritten, err)
		}
		res, err := pump(ctx, p.src, 0, int64(p.size), codec, cw, p.cfg.ChunkSize)
		if err != nil {
			return zw.fail(p, cw.bytesWritten, fmt.Errorf("%s: %w", e.Filename, err))
		}
		zw.setResult(p, res, uint64(cw.bytesWritten)-uint64(len(header)))

		if p.descriptor {
			if _, err := cw.Write(zw.dataDescriptor(p)); err != nil {
				return zw.fail(p, cw.bytesWritten, err)
			}
		} else {
			final := zw.localHeader(p, true).Encode()
			if _, err := zw.patcher.WriteAt(final, zw.patchBase+int64(e.Offset)-zw.cfg.Offset); err != nil {
				return zw.fail(p, cw.bytesWritten, fmt.Errorf("patch local header: %w", err))
			}
		}
	}
	zw.commit(p, cw.bytesWritten)
	return nil
}

// writeBuffered copies an encoded entry into the sink. The caller has
// waited for the previous entry.
func (zw *ZipWriter) writeBuffered(p *pendingEntry, data []byte, res CodecResult) error {
	e := p.entry
	e.Offset = zw.currentOffset()
	if p.src != nil {
		zw.setResult(p, res, uint64(len(data)))
	}

	cw := &byteCountWriter{dest: zw.sink}
	if _, err := cw.Write(zw.localHeader(p, !p.descriptor).Encode()); err != nil {
		return zw.fail(p, cw.bytesWritten, err)
	}
	if _, err := cw.Write(data); err != nil {
		return zw.fail(p, cw.bytesWritten, err)
	}
	if p.descriptor {
		if _, err := cw.Write(zw.dataDescriptor(p)); err != nil {
			return zw.fail(p, cw.bytesWritten, err)
		}
	}
	zw.commit(p, cw.bytesWritten)
	return nil
}

func (zw *ZipWriter) setResult(p *pendingEntry, res CodecResult, compressed uint64) {
	e := p.entry
	e.UncompressedSize = res.InputSize
	e.CompressedSize = compressed
	e.Signature = res.Signature
	if e.EncryptionMethod.IsAES() && e.AESVersion == AESVersion2 {
		e.Signature = 0
	}
}

func (zw *ZipWriter) currentOffset() uint64 {
	zw.mu.Lock()
	defer zw.mu.Unlock()
	return zw.offset
}

// localHeader builds the local header. Sizes and CRC are zero unless final.
func (zw *ZipWriter) localHeader(p *pendingEntry, final bool) internal.LocalFileHeader {
	e := p.entry
	method := uint16(e.CompressionMethod)
	if e.EncryptionMethod.IsAES() {
		method = winZipAESMarker
	}
	h := internal.LocalFileHeader{
		VersionNeededToExtract: e.VersionNeeded,
		GeneralPurposeBitFlag:  e.BitFlag,
		CompressionMethod:      method,
		LastModFileTime:        p.dosTime,
		LastModFileDate:        p.dosDate,
		Filename:               e.RawFilename,
	}

	var compressed, uncompressed uint64
	if final {
		h.CRC32 = e.Signature
		compressed, uncompressed = e.CompressedSize, e.UncompressedSize
	}

	extra := p.localExtra
	if p.zip64 {
		extra = maps.Clone(p.localExtra)
		extra[Zip64ExtraFieldTag] = encodeZip64Extra(uncompressed, compressed)
		h.CompressedSize, h.UncompressedSize = math.MaxUint32, math.MaxUint32
	} else {
		h.CompressedSize, h.UncompressedSize = uint32(compressed), uint32(uncompressed)
	}
	h.ExtraField = internal.EncodeExtraField(extra)
	return h
}

func (zw *ZipWriter) dataDescriptor(p *pendingEntry) []byte {
	e := p.entry
	return internal.EncodeDataDescriptor(p.cfg.DataDescriptorSignature, p.zip64,
		e.Signature, e.CompressedSize, e.UncompressedSize)
}

// commit accounts for written bytes and hands the sink to the next entry.
func (zw *ZipWriter) commit(p *pendingEntry, written int64) {
	zw.mu.Lock()
	zw.offset += uint64(written)
	zw.reserved -= p.reserved
	zw.entries = append(zw.entries, p.entry)
	zw.mu.Unlock()
	close(p.done)
}

// fail handles an error raised after the entry owned the sink. Bytes already
// written stay in the archive and mark it corrupted.
func (zw *ZipWriter) fail(p *pendingEntry, written int64, err error) error {
	zw.mu.Lock()
	zw.offset += uint64(written)
	zw.reserved -= p.reserved
	if written > 0 {
		zw.corrupted = true
	} else {
		delete(zw.names, p.entry.Filename)
	}
	zw.mu.Unlock()
	close(p.done)
	return err
}

// abandon drops an entry that never wrote anything. Its slot in the write
// order is released once the previous entry is done.
func (zw *ZipWriter) abandon(p *pendingEntry) {
	zw.mu.Lock()
	zw.reserved -= p.reserved
	delete(zw.names, p.entry.Filename)
	zw.mu.Unlock()

	go func() {
		<-p.prev
		close(p.done)
	}()
}

// Close waits for pending entries and writes the central directory and end
// records. comment becomes the archive comment.
func (zw *ZipWriter) Close(ctx context.Context, comment []byte) error {
	if len(comment) > math.MaxUint16 {
		return fmt.Errorf("%w: archive comment of %d bytes", ErrCommentTooLong, len(comment))
	}

	zw.mu.Lock()
	if zw.closed {
		zw.mu.Unlock()
		return ErrWriterClosed
	}
	zw.closed = true
	tail := zw.tail
	zw.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		zw.wg.Wait()
		<-tail
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	dirOffset := zw.offset
	zip64 := zw.cfg.Zip64 == Zip64Force
	var dir bytes.Buffer
	for _, e := range zw.entries {
		record := centralRecord(e)
		dir.Write(record.Encode())
		zip64 = zip64 || e.Zip64
	}
	dirSize := uint64(dir.Len())
	count := uint64(len(zw.entries))

	if count >= math.MaxUint16 || dirOffset >= math.MaxUint32 || dirSize >= math.MaxUint32 {
		if zw.cfg.Zip64 == Zip64Disable {
			return fmt.Errorf("%w: %d entries, central directory at %d", ErrUnsupportedFormat, count, dirOffset)
		}
		zip64 = true
	}

	if _, err := zw.sink.Write(dir.Bytes()); err != nil {
		return fmt.Errorf("write central directory: %w", err)
	}

	eocdCount, eocdSize, eocdOffset := count, dirSize, dirOffset
	if zip64 {
		recordOffset := dirOffset + dirSize
		if _, err := zw.sink.Write(internal.EncodeZip64EndOfCentralDirRecord(count, dirSize, dirOffset)); err != nil {
			return fmt.Errorf("write zip64 end of central directory: %w", err)
		}
		if _, err := zw.sink.Write(internal.EncodeZip64EndOfCentralDirLocator(recordOffset)); err != nil {
			return fmt.Errorf("write zip64 end of central directory locator: %w", err)
		}
		// Sentinels send readers to the Zip64 record.
		eocdCount, eocdSize, eocdOffset = math.MaxUint16, math.MaxUint32, math.MaxUint32
	}

	if _, err := zw.sink.Write(internal.EncodeEndOfCentralDirRecord(eocdCount, eocdSize, eocdOffset, comment)); err != nil {
		return fmt.Errorf("write end of central directory: %w", err)
	}

	zw.cfg.log().Debug("zip archive closed",
		"entries", count,
		"central_dir_offset", dirOffset,
		"zip64", zip64,
		"corrupted", zw.corrupted)
	return nil
}

// centralRecord builds the central directory record of e. Only values that
// overflow 32 bits go to the Zip64 extra field.
func centralRecord(e *Entry) internal.CentralDirectory {
	method := uint16(e.CompressionMethod)
	if e.EncryptionMethod.IsAES() {
		method = winZipAESMarker
	}
	record := internal.CentralDirectory{
		VersionMadeBy:          e.VersionMadeBy,
		VersionNeededToExtract: e.VersionNeeded,
		GeneralPurposeBitFlag:  e.BitFlag,
		CompressionMethod:      method,
		LastModFileTime:        uint16(e.RawLastModDate),
		LastModFileDate:        uint16(e.RawLastModDate >> 16),
		CRC32:                  e.Signature,
		ExternalFileAttributes: e.ExternalAttributes,
		Filename:               e.RawFilename,
		ExtraField:             e.ExtraField,
		Comment:                e.RawComment,
	}

	var values []uint64
	clamp := func(v uint64) uint32 {
		if v >= math.MaxUint32 {
			values = append(values, v)
			return math.MaxUint32
		}
		return uint32(v)
	}
	record.UncompressedSize = clamp(e.UncompressedSize)
	record.CompressedSize = clamp(e.CompressedSize)
	record.LocalHeaderOffset = clamp(e.Offset)

	if len(values) > 0 {
		record.ExtraField = maps.Clone(e.ExtraField)
		record.ExtraField[Zip64ExtraFieldTag] = encodeZip64Extra(values...)
		record.VersionNeededToExtract = max(record.VersionNeededToExtract, 45)
	}
	return record
}
