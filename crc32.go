// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import "hash/crc32"

// Crc32 is a running CRC-32 (IEEE, reflected polynomial 0xEDB88320).
// The zero value is ready to use.
type Crc32 struct {
	crc uint32
}

// Append feeds p into the checksum.
func (c *Crc32) Append(p []byte) { c.crc = crc32.Update(c.crc, crc32.IEEETable, p) }

// Get returns the checksum of everything appended so far.
func (c *Crc32) Get() uint32 { return c.crc }
