// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"errors"
	"math"
	"testing"

	"github.com/lemon4ksan/sfz/internal"
)

func TestPlanEntry_Zip64Boundary(t *testing.T) {
	tests := []struct {
		name    string
		mode    Zip64Mode
		offset  uint64
		size    uint64
		method  CompressionMethod
		zip64   bool
		wantErr error
	}{
		{"StoreAtLimit", Zip64Auto, 0, math.MaxUint32, Store, true, nil},
		{"StoreBelowLimit", Zip64Auto, 0, math.MaxUint32 - 1, Store, false, nil},
		{"DeflateWorstCase", Zip64Auto, 0, math.MaxUint32 - 1, Deflate, true, nil},
		{"OffsetAtLimit", Zip64Auto, math.MaxUint32, 10, Store, true, nil},
		{"Forced", Zip64Force, 0, 10, Deflate, true, nil},
		{"Disabled", Zip64Disable, 0, math.MaxUint32, Store, false, ErrUnsupportedFormat},
		{"DisabledSmall", Zip64Disable, 0, 10, Store, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zip64, reserved, err := planEntry(tt.mode, tt.offset, tt.size, tt.method, NotEncrypted, 40)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error mismatch: got %v, expected %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if zip64 != tt.zip64 {
				t.Errorf("zip64 mismatch: got %v, expected %v", zip64, tt.zip64)
			}
			if reserved < tt.size+40 {
				t.Errorf("reserved %d does not cover the entry", reserved)
			}
		})
	}
}

func TestLocalHeader_Zip64Extra(t *testing.T) {
	for _, tc := range []struct {
		size  uint64
		zip64 bool
	}{
		{math.MaxUint32, true},
		{math.MaxUint32 - 1, false},
	} {
		p, err := prepareEntry("big.bin", tc.size, defaultConfig().with([]Option{WithCompression(Store, 0)}))
		if err != nil {
			t.Fatalf("prepareEntry: %v", err)
		}
		zip64, _, err := planEntry(Zip64Auto, 0, tc.size, Store, NotEncrypted, 0)
		if err != nil {
			t.Fatalf("planEntry: %v", err)
		}
		p.zip64 = zip64

		header := (&ZipWriter{}).localHeader(p, false)
		_, has := internal.ParseExtraField(header.ExtraField)[Zip64ExtraFieldTag]
		if has != tc.zip64 {
			t.Errorf("size %d: zip64 extra present = %v, expected %v", tc.size, has, tc.zip64)
		}
	}
}

func TestValidEntryName(t *testing.T) {
	tests := map[string]bool{
		"index.html":     true,
		"frames/0/a.png": true,
		"dir/":           true,
		"..hidden":       true,
		"":               false,
		"/":              false,
		"/abs":           false,
		"../up":          false,
		"a/../../b":      false,
		"nul\x00":        false,
	}
	for name, want := range tests {
		if got := validEntryName(name); got != want {
			t.Errorf("validEntryName(%q) = %v, expected %v", name, got, want)
		}
	}
}

func TestCentralRecord_Zip64OnlyForOverflow(t *testing.T) {
	e := &Entry{
		Filename:         "f",
		RawFilename:      []byte("f"),
		UncompressedSize: math.MaxUint32 + 10,
		CompressedSize:   100,
		Offset:           math.MaxUint32 + 1,
		ExtraField:       map[uint16][]byte{},
		VersionNeeded:    20,
	}
	record := centralRecord(e)

	if record.UncompressedSize != math.MaxUint32 || record.CompressedSize != 100 || record.LocalHeaderOffset != math.MaxUint32 {
		t.Fatalf("unexpected sizes: %+v", record)
	}
	if got := len(record.ExtraField[Zip64ExtraFieldTag]); got != 16 {
		t.Errorf("zip64 extra length: got %d, expected 16", got)
	}
	if record.VersionNeededToExtract != 45 {
		t.Errorf("version needed: got %d", record.VersionNeededToExtract)
	}
	if len(e.ExtraField) != 0 {
		t.Error("entry extra field was modified")
	}

	uncompressed, compressed, offset := uint64(math.MaxUint32), uint64(100), uint64(math.MaxUint32)
	if err := applyZip64Extra(record.ExtraField[Zip64ExtraFieldTag], &uncompressed, &compressed, &offset); err != nil {
		t.Fatal(err)
	}
	if uncompressed != e.UncompressedSize || offset != e.Offset {
		t.Errorf("round trip mismatch: %d %d", uncompressed, offset)
	}
}
