// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import "errors"

// Format errors abort the whole read.
var (
	// ErrBadFormat is returned when a record does not carry the expected structure.
	ErrBadFormat = errors.New("zip: not a valid zip file")

	// ErrEOCDRNotFound is returned when no end of central directory record
	// exists within the last 65557 bytes of the source.
	ErrEOCDRNotFound = errors.New("zip: end of central directory not found")

	// ErrEOCDRZip64NotFound is returned when the Zip64 end of central directory
	// record announced by the locator is missing.
	ErrEOCDRZip64NotFound = errors.New("zip: zip64 end of central directory not found")

	// ErrEOCDRLocatorZip64NotFound is returned when the regular record carries
	// Zip64 sentinels but no locator precedes it.
	ErrEOCDRLocatorZip64NotFound = errors.New("zip: zip64 end of central directory locator not found")

	// ErrCentralDirectoryNotFound is returned when the directory offset does not
	// point at a central directory record.
	ErrCentralDirectoryNotFound = errors.New("zip: central directory not found")

	// ErrZip64ExtraFieldNotFound is returned when a 32-bit field holds the
	// 0xFFFFFFFF sentinel without a matching Zip64 extra field value.
	ErrZip64ExtraFieldNotFound = errors.New("zip: zip64 extra field not found")
)

// Entry errors abort only the extraction of one entry.
var (
	// ErrLocalFileHeaderNotFound is returned when an entry offset does not
	// point at a local file header.
	ErrLocalFileHeaderNotFound = errors.New("zip: local file header not found")

	// ErrEncryptedFileNoPassword is returned when extracting an encrypted
	// entry without a password.
	ErrEncryptedFileNoPassword = errors.New("zip: encrypted entry requires a password")

	// ErrUnsupportedCompression is returned for compression methods other than Store and Deflate.
	ErrUnsupportedCompression = errors.New("zip: unsupported compression method")

	// ErrUnsupportedEncryption is returned for unknown encryption schemes.
	ErrUnsupportedEncryption = errors.New("zip: unsupported encryption method")

	// ErrInvalidPassword is returned when the password verification value does not match.
	ErrInvalidPassword = errors.New("zip: invalid password")

	// ErrInvalidSignature is returned when the CRC32 or the AES authentication code does not match.
	ErrInvalidSignature = errors.New("zip: invalid signature")

	// ErrInvalidUncompressedSize is returned when extracted data does not match the declared size.
	ErrInvalidUncompressedSize = errors.New("zip: uncompressed size mismatch")
)

// Resource errors are reported by Add before any byte is written.
var (
	// ErrDuplicateEntry is returned when attempting to add an entry with a name that already exists.
	ErrDuplicateEntry = errors.New("zip: duplicate entry name")

	// ErrInvalidEntryName is returned for empty or absolute names.
	ErrInvalidEntryName = errors.New("zip: invalid entry name")

	// ErrFilenameTooLong is returned when an encoded filename exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zip: filename too long")

	// ErrCommentTooLong is returned when a comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zip: comment too long")

	// ErrExtraFieldTooLong is returned when the total size of extra fields exceeds 65535 bytes.
	ErrExtraFieldTooLong = errors.New("zip: extra field too long")

	// ErrUnsupportedFormat is returned when Zip64 is required but disabled.
	ErrUnsupportedFormat = errors.New("zip: zip64 required but disabled")

	// ErrWriterClosed is returned by Add after Close.
	ErrWriterClosed = errors.New("zip: writer closed")
)

// I/O errors.
var (
	// ErrRead is returned when a source cannot deliver the requested range.
	ErrRead = errors.New("zip: read error")

	// ErrNotSeekable is returned by sequential sources asked to read backwards.
	ErrNotSeekable = errors.New("zip: source is not seekable")

	// ErrSchedulerClosed is returned after TerminateAll.
	ErrSchedulerClosed = errors.New("zip: codec scheduler terminated")
)
