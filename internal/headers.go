// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// Each record type must be identified using a header signature that identifies the record type.
// Signature values begin with the two byte constant marker of 0x4b50, representing the characters "PK".
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DataDescriptorSignature              uint32 = 0x08074b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
)

// Fixed record lengths, signature included.
const (
	LocalFileHeaderLen       = 30
	CentralDirectoryLen      = 46
	EndOfCentralDirLen       = 22
	Zip64EndOfCentralDirLen  = 56
	Zip64LocatorLen          = 20
	DataDescriptorLen        = 12 // crc32 + two 32-bit sizes
	DataDescriptor64Len      = 20 // crc32 + two 64-bit sizes
	DataDescriptorSigLen     = 4
)

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	Filename               []byte
	ExtraField             []byte
}

func (h LocalFileHeader) Encode() []byte {
	buf := make([]byte, LocalFileHeaderLen+len(h.Filename)+len(h.ExtraField))

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(h.ExtraField)))

	copy(buf[30:], h.Filename)
	copy(buf[30+len(h.Filename):], h.ExtraField)

	return buf
}

// DecodeLocalFileHeader parses the fixed part of a local header.
// buf must hold at least LocalFileHeaderLen bytes starting at the signature.
// The returned lengths tell the caller how many variable bytes follow.
func DecodeLocalFileHeader(buf []byte) (h LocalFileHeader, filenameLen, extraLen int, ok bool) {
	if len(buf) < LocalFileHeaderLen || binary.LittleEndian.Uint32(buf[0:4]) != LocalFileHeaderSignature {
		return h, 0, 0, false
	}
	h = LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
	}
	return h, int(binary.LittleEndian.Uint16(buf[26:28])), int(binary.LittleEndian.Uint16(buf[28:30])), true
}

// EncodeDataDescriptor builds the record written after entry data when
// bit 3 of the general purpose flag is set.
func EncodeDataDescriptor(withSignature, zip64 bool, crc uint32, compressed, uncompressed uint64) []byte {
	size := DataDescriptorLen
	if zip64 {
		size = DataDescriptor64Len
	}
	if withSignature {
		size += DataDescriptorSigLen
	}
	buf := make([]byte, 0, size)
	if withSignature {
		buf = binary.LittleEndian.AppendUint32(buf, DataDescriptorSignature)
	}
	buf = binary.LittleEndian.AppendUint32(buf, crc)
	if zip64 {
		buf = binary.LittleEndian.AppendUint64(buf, compressed)
		buf = binary.LittleEndian.AppendUint64(buf, uncompressed)
	} else {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(compressed))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(uncompressed))
	}
	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               []byte
	ExtraField             map[uint16][]byte
	Comment                []byte
}

// ReadCentralDirEntry decodes one central directory record. The signature
// must already have been consumed from src.
func ReadCentralDirEntry(src io.Reader) (CentralDirectory, error) {
	var buf [CentralDirectoryLen - 4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return CentralDirectory{}, fmt.Errorf("read source: %w", err)
	}

	entry := CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[0:2]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[2:4]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[4:6]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[6:8]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[10:12]),
		CRC32:                  binary.LittleEndian.Uint32(buf[12:16]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[16:20]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[20:24]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[30:32]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[32:34]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[34:38]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[38:42]),
	}
	filenameLen := binary.LittleEndian.Uint16(buf[24:26])
	extraLen := binary.LittleEndian.Uint16(buf[26:28])
	commentLen := binary.LittleEndian.Uint16(buf[28:30])

	variable := make([]byte, int(filenameLen)+int(extraLen)+int(commentLen))
	if _, err := io.ReadFull(src, variable); err != nil {
		return CentralDirectory{}, fmt.Errorf("read variable fields: %w", err)
	}
	entry.Filename = variable[:filenameLen]
	entry.ExtraField = ParseExtraField(variable[filenameLen : filenameLen+extraLen])
	entry.Comment = variable[filenameLen+extraLen:]

	return entry, nil
}

func (d CentralDirectory) Encode() []byte {
	extra := EncodeExtraField(d.ExtraField)
	totalSize := CentralDirectoryLen + len(d.Filename) + len(extra) + len(d.Comment)
	buf := make([]byte, totalSize)

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extra)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(d.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], extra)
	copy(buf[offset:], d.Comment)

	return buf
}

type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
}

// EncodeEndOfCentralDirRecord clamps every field to its 32/16-bit sentinel;
// the Zip64 record carries the real values in that case.
func EncodeEndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64, comment []byte) []byte {
	commentLen := min(len(comment), math.MaxUint16)
	buf := make([]byte, EndOfCentralDirLen+commentLen)

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(min(math.MaxUint16, entriesNum)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(min(math.MaxUint32, centralDirSize)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(min(math.MaxUint32, centralDirOffset)))
	binary.LittleEndian.PutUint16(buf[20:22], uint16(commentLen))

	copy(buf[22:], comment[:commentLen])

	return buf
}

// DecodeEndOfCentralDir parses the fixed 22-byte record, signature included.
func DecodeEndOfCentralDir(buf []byte) EndOfCentralDirectory {
	return EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[4:6]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[6:8]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[8:10]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[20:22]),
	}
}

type Zip64EndOfCentralDirectory struct {
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

// DecodeZip64EndOfCentralDir parses the 56-byte record, signature included.
func DecodeZip64EndOfCentralDir(buf []byte) (Zip64EndOfCentralDirectory, bool) {
	if len(buf) < Zip64EndOfCentralDirLen || binary.LittleEndian.Uint32(buf[0:4]) != Zip64EndOfCentralDirSignature {
		return Zip64EndOfCentralDirectory{}, false
	}
	return Zip64EndOfCentralDirectory{
		Size:                            binary.LittleEndian.Uint64(buf[4:12]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(buf[14:16]),
		ThisDiskNum:                     binary.LittleEndian.Uint32(buf[16:20]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint32(buf[20:24]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint64(buf[24:32]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint64(buf[32:40]),
		CentralDirSize:                  binary.LittleEndian.Uint64(buf[40:48]),
		CentralDirOffset:                binary.LittleEndian.Uint64(buf[48:56]),
	}, true
}

func EncodeZip64EndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], Zip64EndOfCentralDirLen-12)
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

// DecodeZip64EndOfCentralDirLocator parses the 20-byte locator, signature included.
func DecodeZip64EndOfCentralDirLocator(buf []byte) (Zip64EndOfCentralDirectoryLocator, bool) {
	if len(buf) < Zip64LocatorLen || binary.LittleEndian.Uint32(buf[0:4]) != Zip64EndOfCentralDirLocatorSignature {
		return Zip64EndOfCentralDirectoryLocator{}, false
	}
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: binary.LittleEndian.Uint32(buf[4:8]),
		Zip64EndOfCentralDirOffset:  binary.LittleEndian.Uint64(buf[8:16]),
		TotalNumberOfDisks:          binary.LittleEndian.Uint32(buf[16:20]),
	}, true
}

func EncodeZip64EndOfCentralDirLocator(endOfCentralDirOffset uint64) []byte {
	buf := make([]byte, Zip64LocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], endOfCentralDirOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}

// EncodeExtraField serializes tag → payload pairs in ascending tag order so
// that writes are deterministic.
func EncodeExtraField(extraField map[uint16][]byte) []byte {
	if len(extraField) == 0 {
		return nil
	}
	keys := make([]uint16, 0, len(extraField))
	size := 0
	for key, payload := range extraField {
		keys = append(keys, key)
		size += 4 + len(payload)
	}
	slices.Sort(keys)

	buf := make([]byte, 0, size)
	for _, key := range keys {
		buf = binary.LittleEndian.AppendUint16(buf, key)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(extraField[key])))
		buf = append(buf, extraField[key]...)
	}
	return buf
}

// ExtraFieldLength returns the encoded size of the given fields.
func ExtraFieldLength(extraField map[uint16][]byte) int {
	size := 0
	for _, payload := range extraField {
		size += 4 + len(payload)
	}
	return size
}

// ParseExtraField converts raw extra field bytes into a map of tag → payload.
// Truncated trailing records are ignored.
func ParseExtraField(extraField []byte) map[uint16][]byte {
	m := make(map[uint16][]byte)

	for offset := 0; offset+4 <= len(extraField); {
		tag := binary.LittleEndian.Uint16(extraField[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(extraField[offset+2 : offset+4]))

		offset += 4
		if offset+size > len(extraField) {
			break
		}

		m[tag] = extraField[offset : offset+size]
		offset += size
	}
	return m
}
