// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// byteCountWriter counts bytes written to a writer.
type byteCountWriter struct {
	dest         io.Writer
	bytesWritten int64
}

func (w *byteCountWriter) Write(p []byte) (int, error) {
	n, err := w.dest.Write(p)
	w.bytesWritten += int64(n)
	return n, err
}

// Time conversion functions
func timeToMsDos(t time.Time) (dosDate uint16, dosTime uint16) {
	if t.IsZero() {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	year := min(max(t.Year()-1980, 0), 127)
	month := uint16(t.Month())
	day := uint16(t.Day())
	hour := uint16(t.Hour())
	minute := uint16(t.Minute())
	second := uint16(t.Second())

	dosDate = uint16(year)<<9 | month<<5 | day
	dosTime = hour<<11 | minute<<5 | second/2
	return dosDate, dosTime
}

func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// resolveEncoding returns the charset for names without the UTF-8 flag.
func resolveEncoding(name string) (encoding.Encoding, error) {
	if name == "" {
		return charmap.CodePage437, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("filename encoding %q: %w", name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("filename encoding %q is not supported", name)
	}
	return enc, nil
}

// decodeText converts raw header bytes to a string.
func decodeText(raw []byte, utf8Flag bool, enc encoding.Encoding) string {
	if utf8Flag || enc == nil {
		return string(raw)
	}
	// Pure ASCII reads the same in every supported charset.
	ascii := true
	for _, b := range raw {
		if b >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// encodeCP437 encodes s as CP437. exact is false when some runes were
// replaced because CP437 cannot represent them.
func encodeCP437(s string) (raw []byte, exact bool) {
	raw, err := charmap.CodePage437.NewEncoder().Bytes([]byte(s))
	if err == nil {
		return raw, true
	}
	raw, _ = encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder()).Bytes([]byte(s))
	return raw, false
}
