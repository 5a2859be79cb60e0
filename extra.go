// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"time"
	"unicode/utf8"

	"github.com/lemon4ksan/sfz/internal/sys"
)

// Known extra field tags
const (
	// Zip64ExtraFieldTag identifies the extra field that contains 64-bit size
	// and offset information for entries exceeding 4GB limits.
	Zip64ExtraFieldTag uint16 = 0x0001

	// NTFSFieldTag identifies the extra field that stores high-precision
	// NTFS timestamps with 100-nanosecond resolution.
	NTFSFieldTag uint16 = 0x000A

	// AESEncryptionTag identifies the extra field for WinZip AES encryption metadata,
	// including encryption strength and actual compression method.
	AESEncryptionTag uint16 = 0x9901

	// UnicodePathTag and UnicodeCommentTag carry UTF-8 versions of names and
	// comments written in a legacy charset.
	UnicodePathTag    uint16 = 0x7075
	UnicodeCommentTag uint16 = 0x6375

	// ExtendedTimestampTag stores Unix timestamps with one second resolution.
	ExtendedTimestampTag uint16 = 0x5455
)

// encodeZip64Extra packs the given 64-bit values in header order:
// uncompressed size, compressed size, local header offset.
func encodeZip64Extra(values ...uint64) []byte {
	buf := make([]byte, 0, 8*len(values))
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	return buf
}

// applyZip64Extra replaces every 32-bit sentinel with the matching Zip64
// value. A sentinel without a value is a malformed archive.
func applyZip64Extra(payload []byte, fields ...*uint64) error {
	pos := 0
	for _, f := range fields {
		if *f != math.MaxUint32 {
			continue
		}
		if len(payload) < pos+8 {
			return ErrZip64ExtraFieldNotFound
		}
		*f = binary.LittleEndian.Uint64(payload[pos : pos+8])
		pos += 8
	}
	return nil
}

// WinZip AES extra field versions
const (
	AESVersion1 uint16 = 1 // AE-1: CRC32 stored and checked
	AESVersion2 uint16 = 2 // AE-2: CRC32 zeroed, HMAC only
)

func encodeAESExtra(version uint16, strength byte, method CompressionMethod) []byte {
	buf := make([]byte, 7)
	binary.LittleEndian.PutUint16(buf[0:2], version)
	buf[2], buf[3] = 'A', 'E'
	buf[4] = strength
	binary.LittleEndian.PutUint16(buf[5:7], uint16(method))
	return buf
}

func decodeAESExtra(payload []byte) (version uint16, strength byte, method CompressionMethod, ok bool) {
	if len(payload) < 7 || payload[2] != 'A' || payload[3] != 'E' {
		return 0, 0, 0, false
	}
	return binary.LittleEndian.Uint16(payload[0:2]), payload[4], CompressionMethod(binary.LittleEndian.Uint16(payload[5:7])), true
}

// encodeNTFSExtra writes attribute tag 1 with modification, access and
// creation FILETIMEs.
func encodeNTFSExtra(mtime, atime, ctime time.Time) []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint16(buf[4:6], 0x0001)
	binary.LittleEndian.PutUint16(buf[6:8], 24)
	binary.LittleEndian.PutUint64(buf[8:16], sys.TimeToFiletime(mtime))
	binary.LittleEndian.PutUint64(buf[16:24], sys.TimeToFiletime(atime))
	binary.LittleEndian.PutUint64(buf[24:32], sys.TimeToFiletime(ctime))
	return buf
}

func decodeNTFSExtra(payload []byte) (mtime, atime, ctime time.Time, ok bool) {
	// Skip 4 reserved bytes, then walk attribute records.
	for pos := 4; pos+4 <= len(payload); {
		tag := binary.LittleEndian.Uint16(payload[pos : pos+2])
		size := int(binary.LittleEndian.Uint16(payload[pos+2 : pos+4]))
		pos += 4
		if pos+size > len(payload) {
			break
		}
		if tag == 0x0001 && size >= 24 {
			return sys.FiletimeToTime(binary.LittleEndian.Uint64(payload[pos : pos+8])),
				sys.FiletimeToTime(binary.LittleEndian.Uint64(payload[pos+8 : pos+16])),
				sys.FiletimeToTime(binary.LittleEndian.Uint64(payload[pos+16 : pos+24])),
				true
		}
		pos += size
	}
	return time.Time{}, time.Time{}, time.Time{}, false
}

// encodeUnicodeExtra builds a 0x7075/0x6375 payload: version 1, CRC32 of
// the raw header bytes, UTF-8 text.
func encodeUnicodeExtra(raw []byte, text string) []byte {
	buf := make([]byte, 5, 5+len(text))
	buf[0] = 1
	binary.LittleEndian.PutUint32(buf[1:5], crc32.ChecksumIEEE(raw))
	return append(buf, text...)
}

// decodeUnicodeExtra returns the UTF-8 text if the payload belongs to raw.
func decodeUnicodeExtra(payload, raw []byte) (string, bool) {
	if len(payload) < 5 || payload[0] != 1 {
		return "", false
	}
	if binary.LittleEndian.Uint32(payload[1:5]) != crc32.ChecksumIEEE(raw) {
		return "", false
	}
	text := payload[5:]
	if !utf8.Valid(text) {
		return "", false
	}
	return string(text), true
}

// Extended timestamp flag bits
const (
	extTimeMod    = 0x1
	extTimeAccess = 0x2
	extTimeCreate = 0x4
)

// encodeExtTimestamp writes the flags and the present times. The central
// directory copy only ever holds the modification time.
func encodeExtTimestamp(central bool, mtime, atime, ctime time.Time) []byte {
	var flags byte
	times := []time.Time{}
	for i, t := range []time.Time{mtime, atime, ctime} {
		if t.IsZero() {
			continue
		}
		flags |= 1 << i
		if !central || i == 0 {
			times = append(times, t)
		}
	}
	buf := []byte{flags}
	for _, t := range times {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(t.Unix()))
	}
	return buf
}

func decodeExtTimestamp(payload []byte) (mtime, atime, ctime time.Time) {
	if len(payload) < 1 {
		return
	}
	flags := payload[0]
	pos := 1
	next := func() time.Time {
		if len(payload) < pos+4 {
			return time.Time{}
		}
		t := time.Unix(int64(int32(binary.LittleEndian.Uint32(payload[pos:pos+4]))), 0).UTC()
		pos += 4
		return t
	}
	if flags&extTimeMod != 0 {
		mtime = next()
	}
	if flags&extTimeAccess != 0 {
		atime = next()
	}
	if flags&extTimeCreate != 0 {
		ctime = next()
	}
	return
}
