// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sys

import (
	"io/fs"
	"time"
)

// HostSystem represents the host system on which the ZIP file was created
type HostSystem uint8

// Supported host systems according to ZIP specification
const (
	HostSystemFAT       HostSystem = 0  // MS-DOS and OS/2 (FAT / VFAT / FAT32 file systems)
	HostSystemAmiga     HostSystem = 1  // Amiga
	HostSystemOpenVMS   HostSystem = 2  // OpenVMS
	HostSystemUNIX      HostSystem = 3  // UNIX
	HostSystemVMCMS     HostSystem = 4  // VM/CMS
	HostSystemAtariST   HostSystem = 5  // Atari ST
	HostSystemOS2HPFS   HostSystem = 6  // OS/2 H.P.F.S.
	HostSystemMacintosh HostSystem = 7  // Macintosh
	HostSystemZSystem   HostSystem = 8  // Z-System
	HostSystemCPM       HostSystem = 9  // CP/M
	HostSystemNTFS      HostSystem = 10 // Windows NTFS
	HostSystemMVS       HostSystem = 11 // MVS (OS/390 - Z/OS)
	HostSystemVSE       HostSystem = 12 // VSE
	HostSystemAcornRisc HostSystem = 13 // Acorn Risc
	HostSystemVFAT      HostSystem = 14 // VFAT
	HostSystemAltMVS    HostSystem = 15 // alternate MVS
	HostSystemBeOS      HostSystem = 16 // BeOS
	HostSystemTandem    HostSystem = 17 // Tandem
	HostSystemOS400     HostSystem = 18 // OS/400
	HostSystemDarwin    HostSystem = 19 // OS X (Darwin)
)

// DefaultHostSystem is stamped into "version made by" of written entries.
// Archives leave the browser on every platform, so MS-DOS attributes are
// the most portable choice.
const DefaultHostSystem = HostSystemFAT

var hostSystemNames = map[HostSystem]string{
	HostSystemFAT:       "MS-DOS/OS2 (FAT)",
	HostSystemAmiga:     "Amiga",
	HostSystemOpenVMS:   "OpenVMS",
	HostSystemUNIX:      "UNIX",
	HostSystemVMCMS:     "VM/CMS",
	HostSystemAtariST:   "Atari ST",
	HostSystemOS2HPFS:   "OS/2 HPFS",
	HostSystemMacintosh: "Macintosh",
	HostSystemZSystem:   "Z-System",
	HostSystemCPM:       "CP/M",
	HostSystemNTFS:      "Windows NTFS",
	HostSystemMVS:       "MVS (OS/390 - Z/OS)",
	HostSystemVSE:       "VSE",
	HostSystemAcornRisc: "Acorn Risc",
	HostSystemVFAT:      "VFAT",
	HostSystemAltMVS:    "Alternate MVS",
	HostSystemBeOS:      "BeOS",
	HostSystemTandem:    "Tandem",
	HostSystemOS400:     "OS/400",
	HostSystemDarwin:    "OS X (Darwin)",
}

// String representation of HostSystem for debugging
func (h HostSystem) String() string {
	if name, exists := hostSystemNames[h]; exists {
		return name
	}
	return "Unknown"
}

// IsUnix reports whether external attributes carry a POSIX mode in the high word.
func (h HostSystem) IsUnix() bool {
	return h == HostSystemUNIX || h == HostSystemDarwin
}

// IsWindows reports whether external attributes carry MS-DOS attribute bits.
func (h HostSystem) IsWindows() bool {
	return h == HostSystemFAT || h == HostSystemNTFS || h == HostSystemVFAT
}

// Unix constants for file types (standard POSIX)
const (
	S_IFMT   = 0170000
	S_IFSOCK = 0140000
	S_IFLNK  = 0120000
	S_IFREG  = 0100000
	S_IFBLK  = 0060000
	S_IFDIR  = 0040000
	S_IFCHR  = 0020000
	S_IFIFO  = 0010000
)

// MS-DOS attribute bits
const (
	DOSReadOnly  = 0x01
	DOSDirectory = 0x10
	DOSArchive   = 0x20
)

// ExternalAttributes encodes mode for the given host system.
func ExternalAttributes(host HostSystem, mode fs.FileMode, isDir bool) uint32 {
	if host.IsUnix() {
		unixMode := uint32(mode & fs.ModePerm)
		switch {
		case isDir:
			unixMode |= S_IFDIR
		case mode&fs.ModeSymlink != 0:
			unixMode |= S_IFLNK
		default:
			unixMode |= S_IFREG
		}
		return unixMode << 16
	}

	var attrs uint32
	if isDir {
		attrs |= DOSDirectory
	} else {
		attrs |= DOSArchive
	}
	if mode != 0 && mode&0200 == 0 {
		attrs |= DOSReadOnly
	}
	return attrs
}

// FileMode decodes external attributes written by host.
func FileMode(host HostSystem, attrs uint32, isDir bool) fs.FileMode {
	if host.IsUnix() {
		unixMode := attrs >> 16
		mode := fs.FileMode(unixMode & 0777)

		switch unixMode & S_IFMT {
		case S_IFDIR:
			mode |= fs.ModeDir
		case S_IFLNK:
			mode |= fs.ModeSymlink
		case S_IFSOCK:
			mode |= fs.ModeSocket
		case S_IFIFO:
			mode |= fs.ModeNamedPipe
		case S_IFCHR:
			mode |= fs.ModeCharDevice
		case S_IFBLK:
			mode |= fs.ModeDevice
		}
		if unixMode != 0 {
			return mode
		}
	}

	var mode fs.FileMode = 0644
	if isDir || (host.IsWindows() && attrs&DOSDirectory != 0) {
		mode = 0755 | fs.ModeDir
	}
	if host.IsWindows() && attrs&DOSReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

// Seconds between 1601-01-01 and 1970-01-01
const filetimeEpochDiff = 11644473600

// TimeToFiletime converts t to Windows FILETIME (100ns ticks since 1601).
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.Unix()+filetimeEpochDiff)*10000000 + uint64(t.Nanosecond())/100
}

// FiletimeToTime converts Windows FILETIME to time.Time in UTC.
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	const ticksPerSecond = 10000000
	seconds := int64(ft/ticksPerSecond) - filetimeEpochDiff
	nanos := int64(ft%ticksPerSecond) * 100
	return time.Unix(seconds, nanos).UTC()
}
