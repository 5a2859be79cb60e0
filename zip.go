// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sfz implements the ZIP container engine behind single-file web
// archives: a streaming reader and writer with Zip64, data descriptors,
// WinZip AES and ZipCrypto encryption, and Deflate codecs executed by a
// bounded worker pool.
//
// An archive written by [ZipWriter] may be prefixed with arbitrary bytes,
// such as an HTML document carrying a bootstrap script. [ZipReader] detects
// the prefix from the end of central directory record and corrects every
// offset, so the same file opens both as a web page and as a ZIP archive.
//
// # Key Features
//
// 1. Concurrency: [ZipWriter.Add] may be called from many goroutines. Entries
// are compressed in parallel, up to the scheduler's MaxWorkers, and still land
// in the archive in call order.
//
// 2. Pluggable I/O: archives are read from any [Source] (memory, files,
// sequential streams, HTTP range requests) and written to any [Sink].
//
// 3. Context Awareness: every read and write checks its context.Context
// between chunks.
//
// # Basic Usage
//
//	sink := new(sfz.BufferSink)
//	zw, _ := sfz.NewZipWriter(ctx, sink)
//	zw.Add(ctx, "index.html", sfz.NewTextSource("<html></html>"))
//	zw.Add(ctx, "a.png", sfz.NewBytesSource(png), sfz.WithCompression(sfz.Store, 0))
//	zw.Close(ctx, nil)
//
//	zr, _ := sfz.NewZipReader(ctx, sfz.NewBytesSource(sink.Bytes()))
//	for entry, err := range zr.Entries(ctx) {
//		if err != nil {
//			return err
//		}
//		data, _ := entry.Bytes(ctx)
//		// ...
//	}
package sfz

import (
	"io"
	"io/fs"
	"log/slog"
	"time"
)

// Zip64Mode controls the use of Zip64 records.
type Zip64Mode int

const (
	// Zip64Auto uses Zip64 when a size, offset or count overflows.
	Zip64Auto Zip64Mode = iota
	// Zip64Force writes Zip64 records for every entry.
	Zip64Force
	// Zip64Disable fails with ErrUnsupportedFormat instead of using Zip64.
	Zip64Disable
)

// DefaultChunkSize is the size of the chunks pushed through codecs.
const DefaultChunkSize = 512 * 1024

// Config holds the settings shared by readers, writers and single entries.
// Options passed to NewZipReader or NewZipWriter become defaults that
// per-entry options override.
type Config struct {
	// Password encrypts written entries and decrypts read ones.
	Password string

	// EncryptionMethod used when writing. Defaults to AES256 when a
	// password is set.
	EncryptionMethod EncryptionMethod

	// AESVersion is 1 (AE-1, CRC32 stored) or 2 (AE-2, CRC32 zeroed).
	AESVersion uint16

	// CompressionMethod is Store or Deflate.
	CompressionMethod CompressionMethod

	// CompressionLevel controls the speed vs size trade-off (1-9).
	CompressionLevel int

	// DataDescriptor writes sizes after the entry data. Disabling it needs a
	// Patcher sink, otherwise entries are buffered until their sizes are known.
	DataDescriptor bool

	// DataDescriptorSignature prefixes data descriptors with PK\x07\x08.
	DataDescriptorSignature bool

	Zip64 Zip64Mode

	// UseUnicodeFileNames sets the UTF-8 flag on written names. When false,
	// names are encoded as CP437 and a Unicode path extra field keeps the
	// original if it cannot be represented.
	UseUnicodeFileNames bool

	// ExtendedTimestamp writes the 0x5455 extra field.
	ExtendedTimestamp bool

	// NTFSTimestamp writes the 0x000a extra field.
	NTFSTimestamp bool

	LastModDate    time.Time
	LastAccessDate time.Time
	CreationDate   time.Time

	// Comment is the entry comment.
	Comment string

	// Directory marks the added entry as a directory.
	Directory bool

	// Mode stores Unix permission bits in the external attributes.
	Mode fs.FileMode

	// FilenameEncoding names the charset of entries without the UTF-8 flag.
	// Any IANA name is accepted. Default: CP437 (IBM PC).
	FilenameEncoding string

	// CheckSignature verifies CRC32 and size after extraction.
	CheckSignature bool

	// PortableCrypto derives AES keys with the embedded PBKDF2.
	PortableCrypto bool

	// BufferedWrite forces entries through an in-memory buffer.
	BufferedWrite bool

	// ChunkSize is the size of the chunks read from sources.
	ChunkSize int

	// Offset is the position of the writer's first byte in the final file,
	// for archives appended after a prefix.
	Offset int64

	Scheduler *CodecScheduler
	Logger    *slog.Logger

	// OnEntry is called after an entry is read, written or extracted.
	// WARNING: with concurrent adds this is called concurrently.
	OnEntry func(*Entry, error)
}

// Option is a functional option for configuring readers, writers and entries.
type Option func(c *Config)

func defaultConfig() Config {
	return Config{
		AESVersion:          1,
		CompressionMethod:   Deflate,
		CompressionLevel:    DeflateNormal,
		DataDescriptor:      true,
		UseUnicodeFileNames: true,
		ExtendedTimestamp:   true,
		CheckSignature:      true,
		ChunkSize:           DefaultChunkSize,
	}
}

// with returns a copy of c with opts applied.
func (c Config) with(opts []Option) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c Config) scheduler() *CodecScheduler {
	if c.Scheduler != nil {
		return c.Scheduler
	}
	return DefaultScheduler()
}

func (c Config) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// WithPassword sets the password. If no encryption method is specified,
// written entries use AES256.
func WithPassword(pwd string) Option {
	return func(c *Config) { c.Password = pwd }
}

// WithEncryption sets the encryption method and password.
func WithEncryption(e EncryptionMethod, pwd string) Option {
	return func(c *Config) {
		c.EncryptionMethod = e
		c.Password = pwd
	}
}

// WithAESVersion selects AE-1 or AE-2.
func WithAESVersion(v uint16) Option {
	return func(c *Config) { c.AESVersion = v }
}

// WithCompression sets the compression method and level.
func WithCompression(m CompressionMethod, lvl int) Option {
	return func(c *Config) {
		c.CompressionMethod = m
		c.CompressionLevel = lvl
	}
}

// WithDataDescriptor toggles data descriptors.
func WithDataDescriptor(enabled bool) Option {
	return func(c *Config) { c.DataDescriptor = enabled }
}

// WithDataDescriptorSignature toggles the data descriptor signature.
func WithDataDescriptorSignature(enabled bool) Option {
	return func(c *Config) { c.DataDescriptorSignature = enabled }
}

// WithZip64 sets the Zip64 mode.
func WithZip64(mode Zip64Mode) Option {
	return func(c *Config) { c.Zip64 = mode }
}

// WithUnicodeFileNames toggles UTF-8 names.
func WithUnicodeFileNames(enabled bool) Option {
	return func(c *Config) { c.UseUnicodeFileNames = enabled }
}

// WithExtendedTimestamp toggles the extended timestamp extra field.
func WithExtendedTimestamp(enabled bool) Option {
	return func(c *Config) { c.ExtendedTimestamp = enabled }
}

// WithNTFSTimestamp toggles the NTFS extra field.
func WithNTFSTimestamp(enabled bool) Option {
	return func(c *Config) { c.NTFSTimestamp = enabled }
}

// WithLastModDate sets the modification time of an entry.
func WithLastModDate(t time.Time) Option {
	return func(c *Config) { c.LastModDate = t }
}

// WithTimes sets modification, access and creation times.
func WithTimes(mtime, atime, ctime time.Time) Option {
	return func(c *Config) {
		c.LastModDate = mtime
		c.LastAccessDate = atime
		c.CreationDate = ctime
	}
}

// WithComment sets the entry comment.
func WithComment(comment string) Option {
	return func(c *Config) { c.Comment = comment }
}

// WithDirectory marks the entry as a directory.
func WithDirectory() Option {
	return func(c *Config) { c.Directory = true }
}

// WithMode sets the Unix-style permission bits.
func WithMode(mode fs.FileMode) Option {
	return func(c *Config) { c.Mode = mode }
}

// WithFilenameEncoding sets the fallback charset of non-UTF-8 names.
func WithFilenameEncoding(name string) Option {
	return func(c *Config) { c.FilenameEncoding = name }
}

// WithCheckSignature toggles CRC32 verification on extraction.
func WithCheckSignature(enabled bool) Option {
	return func(c *Config) { c.CheckSignature = enabled }
}

// WithPortableCrypto selects the embedded PBKDF2 implementation.
func WithPortableCrypto(enabled bool) Option {
	return func(c *Config) { c.PortableCrypto = enabled }
}

// WithBufferedWrite forces buffered entry writes.
func WithBufferedWrite(enabled bool) Option {
	return func(c *Config) { c.BufferedWrite = enabled }
}

// WithChunkSize sets the codec chunk size.
func WithChunkSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ChunkSize = n
		}
	}
}

// WithOffset sets the initial offset of a writer.
func WithOffset(offset int64) Option {
	return func(c *Config) { c.Offset = offset }
}

// WithScheduler shares a codec scheduler.
func WithScheduler(s *CodecScheduler) Option {
	return func(c *Config) { c.Scheduler = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithOnEntry sets the per-entry callback.
func WithOnEntry(fn func(*Entry, error)) Option {
	return func(c *Config) { c.OnEntry = fn }
}
