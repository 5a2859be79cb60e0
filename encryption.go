// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"hash"
	"hash/crc32"
	"strings"
)

// EncryptionMethod represents the encryption algorithm used for entry protection.
type EncryptionMethod uint16

// Supported encryption methods
const (
	NotEncrypted EncryptionMethod = iota // No encryption - entry stored in plaintext
	ZipCrypto                            // Legacy PKWARE encryption. Vulnerable to known-plaintext attacks
	AES128                               // WinZip AES, strength 1
	AES192                               // WinZip AES, strength 2
	AES256                               // WinZip AES, strength 3
)

var encryptionNames = map[EncryptionMethod]string{
	NotEncrypted: "none",
	ZipCrypto:    "zipcrypto",
	AES128:       "aes128",
	AES192:       "aes192",
	AES256:       "aes256",
}

func (e EncryptionMethod) String() string {
	if name, ok := encryptionNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EncryptionMethod(%d)", uint16(e))
}

// ParseEncryptionMethod converts a name such as "aes256" or "zipcrypto".
func ParseEncryptionMethod(name string) (EncryptionMethod, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NotEncrypted, nil
	}
	for method, n := range encryptionNames {
		if n == name {
			return method, nil
		}
	}
	return NotEncrypted, fmt.Errorf("%w: %q", ErrUnsupportedEncryption, name)
}

// IsAES reports whether e is one of the WinZip AES strengths.
func (e EncryptionMethod) IsAES() bool { return e >= AES128 && e <= AES256 }

// aesStrength returns the strength byte stored in the AES extra field.
func (e EncryptionMethod) aesStrength() byte { return byte(e - ZipCrypto) }

func encryptionFromStrength(strength byte) (EncryptionMethod, bool) {
	if strength < 1 || strength > 3 {
		return NotEncrypted, false
	}
	return ZipCrypto + EncryptionMethod(strength), true
}

// AES Constants
const (
	aesMacSize      = 10 // HMAC-SHA1 truncated to 10 bytes
	aesPvvSize      = 2  // Password Verification Value
	zipCryptoHeader = 12
)

func aesSaltSize(strength byte) int { return 4 + 4*int(strength) }
func aesKeySize(strength byte) int  { return 8 + 8*int(strength) }

// encryptionOverhead is the number of bytes encryption adds to the payload.
func encryptionOverhead(e EncryptionMethod) int {
	switch {
	case e == ZipCrypto:
		return zipCryptoHeader
	case e.IsAES():
		return aesSaltSize(e.aesStrength()) + aesPvvSize + aesMacSize
	}
	return 0
}

// aesKeys holds keys derived from the password.
type aesKeys struct {
	encKey []byte // AES encryption key
	macKey []byte // HMAC signing key
	pvv    []byte // Password verification value
}

func deriveAESKeys(password string, salt []byte, strength byte, portable bool) aesKeys {
	keySize := aesKeySize(strength)
	dk := deriveKey([]byte(password), salt, 2*keySize+aesPvvSize, portable)
	return aesKeys{
		encKey: dk[:keySize],
		macKey: dk[keySize : 2*keySize],
		pvv:    dk[2*keySize:],
	}
}

type aesEncrypter struct {
	preamble []byte
	stream   *winZipCounter
	mac      hash.Hash
}

func newAESEncrypter(password string, strength byte, portable bool) (*aesEncrypter, error) {
	salt := make([]byte, aesSaltSize(strength))
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("aes rand: %w", err)
	}
	keys := deriveAESKeys(password, salt, strength, portable)
	block, err := aes.NewCipher(keys.encKey)
	if err != nil {
		return nil, err
	}
	return &aesEncrypter{
		preamble: append(salt, keys.pvv...),
		stream:   newWinZipCounter(block),
		mac:      hmac.New(sha1.New, keys.macKey),
	}, nil
}

func (e *aesEncrypter) update(p []byte) ([]byte, error) {
	out := make([]byte, len(e.preamble)+len(p))
	n := copy(out, e.preamble)
	e.preamble = nil

	// Encrypt-then-MAC: the HMAC covers the ciphertext
	e.stream.XORKeyStream(out[n:], p)
	e.mac.Write(out[n:])
	return out, nil
}

func (e *aesEncrypter) final() ([]byte, error) {
	out := e.preamble
	e.preamble = nil
	return append(out, e.mac.Sum(nil)[:aesMacSize]...), nil
}

// aesDecrypter holds back the trailing authentication code until final.
type aesDecrypter struct {
	password string
	strength byte
	portable bool

	preamble []byte
	tail     []byte
	stream   *winZipCounter
	mac      hash.Hash
}

func newAESDecrypter(password string, strength byte, portable bool) *aesDecrypter {
	return &aesDecrypter{password: password, strength: strength, portable: portable}
}

func (d *aesDecrypter) update(p []byte) ([]byte, error) {
	if d.stream == nil {
		need := aesSaltSize(d.strength) + aesPvvSize
		take := min(need-len(d.preamble), len(p))
		d.preamble = append(d.preamble, p[:take]...)
		p = p[take:]
		if len(d.preamble) < need {
			return nil, nil
		}

		salt := d.preamble[:aesSaltSize(d.strength)]
		keys := deriveAESKeys(d.password, salt, d.strength, d.portable)
		if !hmac.Equal(keys.pvv, d.preamble[len(salt):]) {
			return nil, ErrInvalidPassword
		}
		block, err := aes.NewCipher(keys.encKey)
		if err != nil {
			return nil, err
		}
		d.stream = newWinZipCounter(block)
		d.mac = hmac.New(sha1.New, keys.macKey)
	}

	data := append(d.tail, p...)
	if len(data) <= aesMacSize {
		d.tail = data
		return nil, nil
	}
	n := len(data) - aesMacSize
	d.mac.Write(data[:n])
	out := make([]byte, n)
	d.stream.XORKeyStream(out, data[:n])
	d.tail = append([]byte(nil), data[n:]...)
	return out, nil
}

func (d *aesDecrypter) final() ([]byte, error) {
	if d.stream == nil || len(d.tail) != aesMacSize {
		return nil, fmt.Errorf("%w: truncated aes payload", ErrInvalidSignature)
	}
	if !hmac.Equal(d.mac.Sum(nil)[:aesMacSize], d.tail) {
		return nil, ErrInvalidSignature
	}
	return nil, nil
}

// winZipCounter implements cipher.Stream for WinZip AES-CTR mode.
// The 128-bit counter starts at 1 and is incremented little-endian,
// whereas standard Go cipher.NewCTR uses big-endian.
type winZipCounter struct {
	block   cipher.Block
	counter [aes.BlockSize]byte
	buffer  [aes.BlockSize]byte
	pos     int
}

func newWinZipCounter(block cipher.Block) *winZipCounter {
	c := &winZipCounter{block: block}
	c.counter[0] = 1
	return c
}

func (c *winZipCounter) XORKeyStream(dst, src []byte) {
	for i := range src {
		if c.pos == 0 {
			c.block.Encrypt(c.buffer[:], c.counter[:])
			for j := 0; j < aes.BlockSize; j++ {
				c.counter[j]++
				if c.counter[j] != 0 {
					break
				}
			}
		}
		dst[i] = src[i] ^ c.buffer[c.pos]
		c.pos = (c.pos + 1) % aes.BlockSize
	}
}

const cipherMagic = 134775813

// zipCipher implements the legacy ZipCrypto algorithm.
type zipCipher struct {
	k0, k1, k2 uint32
}

func newZipCipher(password string) *zipCipher {
	z := &zipCipher{
		k0: 0x12345678,
		k1: 0x23456789,
		k2: 0x34567890,
	}
	for i := 0; i < len(password); i++ {
		z.updateKeys(password[i])
	}
	return z
}

func (z *zipCipher) updateKeys(b byte) {
	z.k0 = crc32.IEEETable[(z.k0^uint32(b))&0xff] ^ (z.k0 >> 8)
	z.k1 = (z.k1+(z.k0&0xff))*cipherMagic + 1
	z.k2 = crc32.IEEETable[(z.k2^uint32(byte(z.k1>>24)))&0xff] ^ (z.k2 >> 8)
}

func (z *zipCipher) magicByte() byte {
	t := z.k2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

func (z *zipCipher) encrypt(buf []byte) {
	for i, b := range buf {
		c := b ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = c
	}
}

func (z *zipCipher) decrypt(buf []byte) {
	for i, c := range buf {
		b := c ^ z.magicByte()
		z.updateKeys(b)
		buf[i] = b
	}
}

type zipCryptoEncrypter struct {
	cipher *zipCipher
	header []byte
}

// newZipCryptoEncrypter prepares the 12-byte random header whose last byte
// is the verification byte.
func newZipCryptoEncrypter(password string, checkByte byte) (*zipCryptoEncrypter, error) {
	c := newZipCipher(password)
	header := make([]byte, zipCryptoHeader)
	if _, err := rand.Read(header); err != nil {
		return nil, fmt.Errorf("crypto rand failed: %w", err)
	}
	header[zipCryptoHeader-1] = checkByte
	c.encrypt(header)
	return &zipCryptoEncrypter{cipher: c, header: header}, nil
}

func (e *zipCryptoEncrypter) update(p []byte) ([]byte, error) {
	out := make([]byte, len(e.header)+len(p))
	n := copy(out, e.header)
	e.header = nil
	copy(out[n:], p)
	e.cipher.encrypt(out[n:])
	return out, nil
}

func (e *zipCryptoEncrypter) final() ([]byte, error) {
	out := e.header
	e.header = nil
	return out, nil
}

type zipCryptoDecrypter struct {
	cipher    *zipCipher
	checkByte byte
	header    []byte
	verified  bool
}

func newZipCryptoDecrypter(password string, checkByte byte) *zipCryptoDecrypter {
	return &zipCryptoDecrypter{cipher: newZipCipher(password), checkByte: checkByte}
}

func (d *zipCryptoDecrypter) update(p []byte) ([]byte, error) {
	if !d.verified {
		take := min(zipCryptoHeader-len(d.header), len(p))
		d.header = append(d.header, p[:take]...)
		p = p[take:]
		if len(d.header) < zipCryptoHeader {
			return nil, nil
		}
		d.cipher.decrypt(d.header)
		if d.header[zipCryptoHeader-1] != d.checkByte {
			return nil, ErrInvalidPassword
		}
		d.verified = true
	}
	out := append([]byte(nil), p...)
	d.cipher.decrypt(out)
	return out, nil
}

func (d *zipCryptoDecrypter) final() ([]byte, error) {
	if !d.verified {
		return nil, fmt.Errorf("%w: truncated encryption header", ErrBadFormat)
	}
	return nil, nil
}

// zipCryptoCheckByte selects the verification byte: the high byte of the DOS
// time when sizes follow in a data descriptor, else the high byte of the CRC.
func zipCryptoCheckByte(flags uint16, crc uint32, dosTime uint16) byte {
	if flags&flagDataDescriptor != 0 {
		return byte(dosTime >> 8)
	}
	return byte(crc >> 24)
}
