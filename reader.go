// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/lemon4ksan/sfz/internal"
	"github.com/lemon4ksan/sfz/internal/sys"
)

// maxEOCDSearch is the longest tail that can hold the end of central
// directory record: the fixed record plus a maximal comment.
const maxEOCDSearch = internal.EndOfCentralDirLen + math.MaxUint16

// ZipReader reads the central directory of an archive and extracts entries.
type ZipReader struct {
	src Source
	cfg Config
	enc encoding.Encoding

	comment      string
	rawComment   []byte
	entriesCount uint64
	dirOffset    int64 // corrected by prependedDataLength
	dirSize      uint64
	prepended    int64
	zip64        bool
}

// NewZipReader initializes src and locates the central directory.
func NewZipReader(ctx context.Context, src Source, opts ...Option) (*ZipReader, error) {
	if err := initialize(ctx, src); err != nil {
		return nil, fmt.Errorf("init source: %w", err)
	}

	cfg := defaultConfig().with(opts)
	enc, err := resolveEncoding(cfg.FilenameEncoding)
	if err != nil {
		return nil, err
	}

	zr := &ZipReader{src: src, cfg: cfg, enc: enc}
	if err := zr.readEndOfCentralDir(ctx); err != nil {
		return nil, err
	}
	cfg.log().Debug("zip central directory located",
		"entries", zr.entriesCount,
		"offset", zr.dirOffset,
		"prepended", zr.prepended,
		"zip64", zr.zip64)
	return zr, nil
}

// Comment returns the archive comment.
func (zr *ZipReader) Comment() string { return zr.comment }

// RawComment returns the archive comment bytes.
func (zr *ZipReader) RawComment() []byte { return zr.rawComment }

// PrependedDataLength is the number of bytes found before the archive.
func (zr *ZipReader) PrependedDataLength() int64 { return zr.prepended }

// Len returns the number of entries declared by the directory.
func (zr *ZipReader) Len() uint64 { return zr.entriesCount }

// readEndOfCentralDir scans backward for the end of central directory
// record, follows the Zip64 locator when needed and computes the length of
// data prepended to the archive.
func (zr *ZipReader) readEndOfCentralDir(ctx context.Context) error {
	size := zr.src.Size()
	if size < internal.EndOfCentralDirLen {
		return fmt.Errorf("%w: file too small", ErrEOCDRNotFound)
	}

	window := min(size, maxEOCDSearch)
	windowStart := size - window
	buf, err := ReadFull(ctx, zr.src, windowStart, int(window))
	if err != nil {
		return err
	}

	p := -1
	for i := len(buf) - internal.EndOfCentralDirLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:i+4]) == internal.EndOfCentralDirSignature {
			p = i
			break
		}
	}
	if p < 0 {
		return ErrEOCDRNotFound
	}

	eocdOffset := windowStart + int64(p)
	eocd := internal.DecodeEndOfCentralDir(buf[p : p+internal.EndOfCentralDirLen])
	commentEnd := min(p+internal.EndOfCentralDirLen+int(eocd.CommentLength), len(buf))
	zr.rawComment = bytes.Clone(buf[p+internal.EndOfCentralDirLen : commentEnd])
	zr.comment = decodeText(zr.rawComment, false, zr.enc)

	dirOffset := uint64(eocd.CentralDirOffset)
	zr.dirSize = uint64(eocd.CentralDirSize)
	zr.entriesCount = uint64(eocd.TotalNumberOfEntries)
	recordOffset := eocdOffset

	if dirOffset == math.MaxUint32 || zr.dirSize == math.MaxUint32 || zr.entriesCount == math.MaxUint16 {
		zr.zip64 = true
		locatorOffset := eocdOffset - internal.Zip64LocatorLen
		if locatorOffset < 0 {
			return ErrEOCDRLocatorZip64NotFound
		}
		locBuf, err := ReadFull(ctx, zr.src, locatorOffset, internal.Zip64LocatorLen)
		if err != nil {
			return err
		}
		locator, ok := internal.DecodeZip64EndOfCentralDirLocator(locBuf)
		if !ok {
			return ErrEOCDRLocatorZip64NotFound
		}

		// The record normally sits right before the locator. Its declared
		// offset is wrong by the length of any prepended data.
		record, at, err := zr.readZip64Record(ctx, []int64{
			locatorOffset - internal.Zip64EndOfCentralDirLen,
			int64(locator.Zip64EndOfCentralDirOffset),
		})
		if err != nil {
			return err
		}
		recordOffset = at
		dirOffset = record.CentralDirOffset
		zr.dirSize = record.CentralDirSize
		zr.entriesCount = record.TotalNumberOfEntries
	}

	expected := recordOffset - int64(zr.dirSize)
	if expected < 0 {
		return fmt.Errorf("%w: central directory larger than file", ErrBadFormat)
	}
	zr.prepended = expected - int64(dirOffset)
	zr.dirOffset = expected

	if zr.entriesCount == 0 {
		return nil
	}

	sig, err := ReadFull(ctx, zr.src, zr.dirOffset, 4)
	if err != nil {
		return err
	}
	if binary.LittleEndian.Uint32(sig) != internal.CentralDirectorySignature {
		// Trust the declared offset when the computed one misses.
		if dirOffset < uint64(size) {
			sig, err = ReadFull(ctx, zr.src, int64(dirOffset), 4)
			if err == nil && binary.LittleEndian.Uint32(sig) == internal.CentralDirectorySignature {
				zr.dirOffset = int64(dirOffset)
				zr.prepended = 0
				return nil
			}
		}
		return ErrCentralDirectoryNotFound
	}
	return nil
}

func (zr *ZipReader) readZip64Record(ctx context.Context, candidates []int64) (internal.Zip64EndOfCentralDirectory, int64, error) {
	for _, off := range candidates {
		if off < 0 || off+internal.Zip64EndOfCentralDirLen > zr.src.Size() {
			continue
		}
		buf, err := ReadFull(ctx, zr.src, off, internal.Zip64EndOfCentralDirLen)
		if err != nil {
			return internal.Zip64EndOfCentralDirectory{}, 0, err
		}
		if record, ok := internal.DecodeZip64EndOfCentralDir(buf); ok {
			return record, off, nil
		}
	}
	return internal.Zip64EndOfCentralDirectory{}, 0, ErrEOCDRZip64NotFound
}

// Entries parses the central directory lazily, one entry per step.
// Parsing stops at the first format error, which is yielded last.
func (zr *ZipReader) Entries(ctx context.Context) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		if zr.entriesCount == 0 {
			return
		}
		if zr.dirSize > math.MaxInt32 {
			yield(nil, fmt.Errorf("%w: central directory of %d bytes", ErrBadFormat, zr.dirSize))
			return
		}
		dir, err := ReadFull(ctx, zr.src, zr.dirOffset, int(zr.dirSize))
		if err != nil {
			yield(nil, err)
			return
		}
		rd := bytes.NewReader(dir)

		var sig [4]byte
		for i := uint64(0); i < zr.entriesCount; i++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if _, err := io.ReadFull(rd, sig[:]); err != nil || binary.LittleEndian.Uint32(sig[:]) != internal.CentralDirectorySignature {
				yield(nil, fmt.Errorf("%w: expected central directory signature at entry %d", ErrBadFormat, i))
				return
			}
			record, err := internal.ReadCentralDirEntry(rd)
			if err != nil {
				yield(nil, fmt.Errorf("%w: entry %d: %w", ErrBadFormat, i, err))
				return
			}
			entry, err := zr.newEntry(record)
			if zr.cfg.OnEntry != nil {
				zr.cfg.OnEntry(entry, err)
			}
			if err != nil {
				yield(nil, fmt.Errorf("entry %d: %w", i, err))
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// GetEntries drains Entries into a slice.
func (zr *ZipReader) GetEntries(ctx context.Context) ([]*Entry, error) {
	entries := make([]*Entry, 0, min(zr.entriesCount, 1024))
	for entry, err := range zr.Entries(ctx) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// newEntry builds an Entry from a central directory record and overlays
// the known extra fields.
func (zr *ZipReader) newEntry(record internal.CentralDirectory) (*Entry, error) {
	utf8Flag := record.GeneralPurposeBitFlag&flagUTF8 != 0
	e := &Entry{
		RawFilename:        record.Filename,
		RawComment:         record.Comment,
		Filename:           decodeText(record.Filename, utf8Flag, zr.enc),
		Comment:            decodeText(record.Comment, utf8Flag, zr.enc),
		CompressedSize:     uint64(record.CompressedSize),
		UncompressedSize:   uint64(record.UncompressedSize),
		CompressionMethod:  CompressionMethod(record.CompressionMethod),
		Signature:          record.CRC32,
		BitFlag:            record.GeneralPurposeBitFlag,
		Encrypted:          record.GeneralPurposeBitFlag&flagEncrypted != 0,
		RawLastModDate:     uint32(record.LastModFileDate)<<16 | uint32(record.LastModFileTime),
		LastModDate:        msDosToTime(record.LastModFileDate, record.LastModFileTime),
		Offset:             uint64(record.LocalHeaderOffset),
		ExtraField:         record.ExtraField,
		VersionMadeBy:      record.VersionMadeBy,
		VersionNeeded:      record.VersionNeededToExtract,
		ExternalAttributes: record.ExternalFileAttributes,
		reader:             zr,
	}

	if payload, ok := e.ExtraField[Zip64ExtraFieldTag]; ok || e.UncompressedSize == math.MaxUint32 ||
		e.CompressedSize == math.MaxUint32 || e.Offset == math.MaxUint32 {
		if err := applyZip64Extra(payload, &e.UncompressedSize, &e.CompressedSize, &e.Offset); err != nil {
			return nil, err
		}
		e.Zip64 = ok
	}
	e.Offset += uint64(zr.prepended)

	if e.Encrypted {
		e.EncryptionMethod = ZipCrypto
	}
	if record.CompressionMethod == winZipAESMarker {
		version, strength, method, ok := decodeAESExtra(e.ExtraField[AESEncryptionTag])
		if ok {
			e.AESVersion = version
			e.CompressionMethod = method
			if enc, ok := encryptionFromStrength(strength); ok {
				e.EncryptionMethod = enc
			} else {
				e.EncryptionMethod = NotEncrypted
			}
		}
	}

	if payload, ok := e.ExtraField[UnicodePathTag]; ok {
		if name, ok := decodeUnicodeExtra(payload, e.RawFilename); ok {
			e.Filename = name
		}
	}
	if payload, ok := e.ExtraField[UnicodeCommentTag]; ok {
		if comment, ok := decodeUnicodeExtra(payload, e.RawComment); ok {
			e.Comment = comment
		}
	}

	if payload, ok := e.ExtraField[ExtendedTimestampTag]; ok {
		mtime, atime, ctime := decodeExtTimestamp(payload)
		if !mtime.IsZero() {
			e.LastModDate = mtime
		}
		e.LastAccessDate, e.CreationDate = atime, ctime
	}
	if payload, ok := e.ExtraField[NTFSFieldTag]; ok {
		if mtime, atime, ctime, ok := decodeNTFSExtra(payload); ok {
			e.LastModDate, e.LastAccessDate, e.CreationDate = mtime, atime, ctime
		}
	}

	host := e.HostSystem()
	e.Directory = strings.HasSuffix(e.Filename, "/") ||
		(host.IsWindows() && e.ExternalAttributes&sys.DOSDirectory != 0)
	e.Mode = sys.FileMode(host, e.ExternalAttributes, e.Directory)
	return e, nil
}

// GetData re-reads the local header of e and streams its content through
// the decrypt and decompress pipeline into sink.
func (e *Entry) GetData(ctx context.Context, sink Sink, opts ...Option) (err error) {
	if e.reader == nil {
		return fmt.Errorf("%w: entry %s is not attached to a reader", ErrRead, e.Filename)
	}
	zr := e.reader
	cfg := zr.cfg.with(opts)
	defer func() {
		if cfg.OnEntry != nil {
			cfg.OnEntry(e, err)
		}
	}()

	if err := initialize(ctx, sink); err != nil {
		return fmt.Errorf("init sink: %w", err)
	}
	if e.Directory {
		return nil
	}
	if e.CompressionMethod != Store && e.CompressionMethod != Deflate {
		return fmt.Errorf("%w: %s uses method %d", ErrUnsupportedCompression, e.Filename, e.CompressionMethod)
	}
	if e.Encrypted {
		if e.EncryptionMethod == NotEncrypted {
			return fmt.Errorf("%w: %s", ErrUnsupportedEncryption, e.Filename)
		}
		if cfg.Password == "" {
			return fmt.Errorf("%w: %s", ErrEncryptedFileNoPassword, e.Filename)
		}
	}

	headerBuf, err := ReadFull(ctx, zr.src, int64(e.Offset), internal.LocalFileHeaderLen)
	if err != nil {
		if errors.Is(err, ErrRead) {
			return fmt.Errorf("%w: %s: %w", ErrLocalFileHeaderNotFound, e.Filename, err)
		}
		return err
	}
	header, nameLen, extraLen, ok := internal.DecodeLocalFileHeader(headerBuf)
	if !ok {
		return fmt.Errorf("%w: %s at offset %d", ErrLocalFileHeaderNotFound, e.Filename, e.Offset)
	}
	dataOffset := int64(e.Offset) + internal.LocalFileHeaderLen + int64(nameLen) + int64(extraLen)

	encryption := NotEncrypted
	if e.Encrypted {
		encryption = e.EncryptionMethod
	}
	signed := cfg.CheckSignature && !(encryption.IsAES() && e.AESVersion == AESVersion2)

	codec, err := cfg.scheduler().Acquire(ctx, CodecOptions{
		Decode:            true,
		CompressionMethod: e.CompressionMethod,
		Encryption:        encryption,
		Password:          cfg.Password,
		ZipCryptoCheck:    zipCryptoCheckByte(header.GeneralPurposeBitFlag, e.Signature, header.LastModFileTime),
		Signed:            signed,
		Signature:         e.Signature,
		PortableCrypto:    cfg.PortableCrypto,
	})
	if err != nil {
		return err
	}

	res, err := pump(ctx, zr.src, dataOffset, int64(e.CompressedSize), codec, sink, cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Filename, err)
	}
	if cfg.CheckSignature && res.OutputSize != e.UncompressedSize {
		return fmt.Errorf("%w: %s: got %d bytes, expected %d", ErrInvalidUncompressedSize, e.Filename, res.OutputSize, e.UncompressedSize)
	}
	return nil
}

// pump reads length bytes of src starting at off, pushes them through codec
// in chunks and writes the output to dst.
func pump(ctx context.Context, src Source, off, length int64, codec Codec, dst io.Writer, chunkSize int) (CodecResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	for pos := int64(0); pos < length; {
		n := int(min(int64(chunkSize), length-pos))
		chunk, err := ReadFull(ctx, src, off+pos, n)
		if err != nil {
			codec.Abort()
			return CodecResult{}, err
		}
		out, err := codec.Append(ctx, chunk)
		if err != nil {
			codec.Abort()
			return CodecResult{}, err
		}
		if len(out) > 0 {
			if _, err := dst.Write(out); err != nil {
				codec.Abort()
				return CodecResult{}, err
			}
		}
		pos += int64(n)
	}

	res, err := codec.Flush(ctx)
	if err != nil {
		return CodecResult{}, err
	}
	if len(res.Data) > 0 {
		if _, err := dst.Write(res.Data); err != nil {
			return CodecResult{}, err
		}
	}
	return res, nil
}
