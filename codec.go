// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"context"
	"fmt"
)

// CodecResult is returned by Flush.
type CodecResult struct {
	// Data holds the bytes still buffered inside the codec.
	Data []byte
	// Signature is the CRC32 of the uncompressed content.
	Signature uint32
	// InputSize and OutputSize count bytes pushed in and produced.
	InputSize, OutputSize uint64
}

// Codec transforms one entry's data chunk by chunk.
//
// Chunks are processed strictly in order. After Flush or Abort the codec
// must not be used again.
type Codec interface {
	Append(ctx context.Context, p []byte) ([]byte, error)
	Flush(ctx context.Context) (CodecResult, error)
	Abort()
}

// CodecOptions selects the transform chain of a codec.
//
// Encoding runs raw bytes through CRC32, then Deflate, then encryption.
// Decoding runs decryption, then Inflate, then CRC32.
type CodecOptions struct {
	Decode            bool
	CompressionMethod CompressionMethod
	Level             int
	Encryption        EncryptionMethod
	Password          string
	// ZipCryptoCheck is the ZipCrypto password verification byte.
	ZipCryptoCheck byte
	// Signed enables CRC32 computation; when decoding the result is
	// compared with Signature.
	Signed         bool
	Signature      uint32
	PortableCrypto bool
}

// passThrough reports whether the codec would copy bytes unchanged.
func (o CodecOptions) passThrough() bool {
	return o.CompressionMethod == Store && o.Encryption == NotEncrypted && !o.Signed
}

// stage is one push-based step of the chain.
type stage interface {
	update(p []byte) ([]byte, error)
	final() ([]byte, error)
}

type aborter interface {
	abort()
}

// NewCodec builds a codec running in the caller's goroutine.
func NewCodec(opts CodecOptions) (Codec, error) {
	if opts.passThrough() {
		return &passThroughCodec{}, nil
	}
	if opts.CompressionMethod != Store && opts.CompressionMethod != Deflate {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, opts.CompressionMethod)
	}
	if opts.Encryption != NotEncrypted && opts.Password == "" {
		return nil, ErrEncryptedFileNoPassword
	}

	c := &pipelineCodec{opts: opts}
	if opts.Decode {
		if err := c.addCrypto(); err != nil {
			return nil, err
		}
		if opts.CompressionMethod == Deflate {
			c.stages = append(c.stages, newInflater())
		}
		return c, nil
	}

	if opts.CompressionMethod == Deflate {
		d, err := newDeflater(opts.Level)
		if err != nil {
			return nil, err
		}
		c.stages = append(c.stages, d)
	}
	if err := c.addCrypto(); err != nil {
		return nil, err
	}
	return c, nil
}

type pipelineCodec struct {
	opts   CodecOptions
	stages []stage
	crc    Crc32
	in     uint64
	out    uint64
	done   bool
}

func (c *pipelineCodec) addCrypto() error {
	var st stage
	switch {
	case c.opts.Encryption == NotEncrypted:
		return nil
	case c.opts.Encryption == ZipCrypto && c.opts.Decode:
		st = newZipCryptoDecrypter(c.opts.Password, c.opts.ZipCryptoCheck)
	case c.opts.Encryption == ZipCrypto:
		e, err := newZipCryptoEncrypter(c.opts.Password, c.opts.ZipCryptoCheck)
		if err != nil {
			return err
		}
		st = e
	case c.opts.Encryption.IsAES() && c.opts.Decode:
		st = newAESDecrypter(c.opts.Password, c.opts.Encryption.aesStrength(), c.opts.PortableCrypto)
	case c.opts.Encryption.IsAES():
		e, err := newAESEncrypter(c.opts.Password, c.opts.Encryption.aesStrength(), c.opts.PortableCrypto)
		if err != nil {
			return err
		}
		st = e
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEncryption, c.opts.Encryption)
	}
	c.stages = append(c.stages, st)
	return nil
}

func (c *pipelineCodec) Append(ctx context.Context, p []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		c.Abort()
		return nil, err
	}
	c.in += uint64(len(p))
	if c.opts.Signed && !c.opts.Decode {
		c.crc.Append(p)
	}

	data := p
	for _, st := range c.stages {
		var err error
		if data, err = st.update(data); err != nil {
			c.Abort()
			return nil, err
		}
		if len(data) == 0 {
			break
		}
	}
	c.account(data)
	return data, nil
}

func (c *pipelineCodec) Flush(ctx context.Context) (CodecResult, error) {
	if err := ctx.Err(); err != nil {
		c.Abort()
		return CodecResult{}, err
	}

	var carry []byte
	for _, st := range c.stages {
		var head []byte
		if len(carry) > 0 {
			var err error
			if head, err = st.update(carry); err != nil {
				c.Abort()
				return CodecResult{}, err
			}
		}
		tail, err := st.final()
		if err != nil {
			c.Abort()
			return CodecResult{}, err
		}
		carry = append(head, tail...)
	}
	c.done = true
	c.account(carry)

	if c.opts.Signed && c.opts.Decode && c.crc.Get() != c.opts.Signature {
		return CodecResult{}, fmt.Errorf("%w: crc32 %08x, expected %08x", ErrInvalidSignature, c.crc.Get(), c.opts.Signature)
	}
	return CodecResult{Data: carry, Signature: c.crc.Get(), InputSize: c.in, OutputSize: c.out}, nil
}

func (c *pipelineCodec) account(out []byte) {
	c.out += uint64(len(out))
	if c.opts.Signed && c.opts.Decode {
		c.crc.Append(out)
	}
}

func (c *pipelineCodec) Abort() {
	if c.done {
		return
	}
	c.done = true
	for _, st := range c.stages {
		if a, ok := st.(aborter); ok {
			a.abort()
		}
	}
}

type passThroughCodec struct {
	n uint64
}

func (c *passThroughCodec) Append(ctx context.Context, p []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.n += uint64(len(p))
	return p, nil
}

func (c *passThroughCodec) Flush(ctx context.Context) (CodecResult, error) {
	return CodecResult{InputSize: c.n, OutputSize: c.n}, ctx.Err()
}

func (c *passThroughCodec) Abort() {}
