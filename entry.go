// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"context"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/lemon4ksan/sfz/internal/sys"
)

// Compression method indicating WinZip AES encryption.
// The actual compression method is stored in the extra field.
const winZipAESMarker = 99

// LatestZipVersion represents the maximum ZIP specification version supported
// by this implementation. Version 63 corresponds to ZIP 6.3 specification.
const LatestZipVersion uint16 = 63

// General purpose bit flags
const (
	flagEncrypted      uint16 = 0x0001
	flagDataDescriptor uint16 = 0x0008
	flagUTF8           uint16 = 0x0800
)

// Entry is one file or directory of an archive.
//
// Entries returned by a reader are read-only snapshots of the central
// directory. Entries returned by ZipWriter.Add describe what was written.
type Entry struct {
	Filename    string // path inside the archive, "/"-terminated for directories
	RawFilename []byte // name bytes as stored in the header
	Comment     string
	RawComment  []byte
	Directory   bool

	CompressedSize    uint64
	UncompressedSize  uint64
	CompressionMethod CompressionMethod // real method, also for AES entries

	Encrypted        bool
	EncryptionMethod EncryptionMethod
	AESVersion       uint16

	// Signature is the CRC32 of the uncompressed data.
	Signature uint32
	BitFlag   uint16

	LastModDate    time.Time // best available precision
	LastAccessDate time.Time
	CreationDate   time.Time
	RawLastModDate uint32 // DOS date in the high word, DOS time in the low word

	// Offset of the local header, prepended data included.
	Offset     uint64
	ExtraField map[uint16][]byte
	Zip64      bool

	VersionMadeBy      uint16
	VersionNeeded      uint16
	ExternalAttributes uint32
	Mode               fs.FileMode

	reader *ZipReader
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Directory }

// Name returns the base name of the entry.
func (e *Entry) Name() string { return path.Base(strings.TrimSuffix(e.Filename, "/")) }

// HostSystem returns the system the entry was created on.
func (e *Entry) HostSystem() sys.HostSystem { return sys.HostSystem(e.VersionMadeBy >> 8) }

// DataDescriptor reports whether sizes follow the entry data.
func (e *Entry) DataDescriptor() bool { return e.BitFlag&flagDataDescriptor != 0 }

// Bytes extracts the entry into memory. Empty entries yield an empty,
// non-nil slice.
func (e *Entry) Bytes(ctx context.Context, opts ...Option) ([]byte, error) {
	sink := &BufferSink{buf: []byte{}}
	if err := e.GetData(ctx, sink, opts...); err != nil {
		return nil, err
	}
	return sink.Bytes(), nil
}

// Text extracts the entry as a string.
func (e *Entry) Text(ctx context.Context, opts ...Option) (string, error) {
	sink := new(TextSink)
	if err := e.GetData(ctx, sink, opts...); err != nil {
		return "", err
	}
	return sink.String(), nil
}

// versionNeeded returns the minimum ZIP version required by the features
// an entry uses.
func versionNeeded(dir, zip64 bool, method CompressionMethod, enc EncryptionMethod) uint16 {
	switch {
	case enc.IsAES():
		return 51
	case zip64:
		return 45
	case method == Deflate, dir, enc == ZipCrypto:
		return 20
	}
	return 10
}

// compressionLevelBits maps a Deflate level to flag bits 1-2.
func compressionLevelBits(level int) uint16 {
	switch level {
	case DeflateSuperFast:
		return 0x0006
	case DeflateFast:
		return 0x0004
	case DeflateMaximum:
		return 0x0002
	default:
		return 0x0000
	}
}
