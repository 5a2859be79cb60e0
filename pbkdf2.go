// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"crypto/hmac"
	"crypto/sha1"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// WinZip AES derives keys with 1000 iterations of PBKDF2-HMAC-SHA1.
const aesKeyIterations = 1000

// deriveKey runs PBKDF2-HMAC-SHA1. The portable path never touches the
// platform implementation; both produce identical output.
func deriveKey(password, salt []byte, keyLen int, portable bool) []byte {
	if portable {
		return portablePBKDF2(password, salt, aesKeyIterations, keyLen, sha1.New)
	}
	return pbkdf2.Key(password, salt, aesKeyIterations, keyLen, sha1.New)
}

// portablePBKDF2 implements PBKDF2 with the HMAC variant using the supplied hash function.
func portablePBKDF2(password, salt []byte, iter, keyLen int, h func() hash.Hash) []byte {
	prf := hmac.New(h, password)
	hashLen := prf.Size()
	numBlocks := (keyLen + hashLen - 1) / hashLen

	var buf [4]byte
	dk := make([]byte, 0, numBlocks*hashLen)
	u := make([]byte, hashLen)

	for block := 1; block <= numBlocks; block++ {
		// U_1 = PRF(password, salt || INT_32_BE(i))
		prf.Reset()
		prf.Write(salt)
		buf[0] = byte(block >> 24)
		buf[1] = byte(block >> 16)
		buf[2] = byte(block >> 8)
		buf[3] = byte(block)
		prf.Write(buf[:4])
		dk = prf.Sum(dk)

		t := dk[len(dk)-hashLen:]
		copy(u, t)

		// U_n = PRF(password, U_(n-1))
		for n := 2; n <= iter; n++ {
			prf.Reset()
			prf.Write(u)
			u = u[:0]
			u = prf.Sum(u)
			for x := range u {
				t[x] ^= u[x]
			}
		}
	}
	return dk[:keyLen]
}
