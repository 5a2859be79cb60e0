// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pagedata

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
)

// ManifestFilename is the name of the manifest next to each index.html.
const ManifestFilename = "index.json"

// ErrDigestMismatch is returned by Verify when content does not match.
var ErrDigestMismatch = errors.New("pagedata: digest mismatch")

// Manifest describes one archived document.
type Manifest struct {
	OriginalURL   string                   `json:"originalUrl"`
	Title         string                   `json:"title"`
	ArchiveTime   time.Time                `json:"archiveTime"`
	IndexFilename string                   `json:"indexFilename"`
	Resources     map[string]string        `json:"resources"`
	Digests       map[string]digest.Digest `json:"digests,omitempty"`
}

// NewManifest returns the manifest of doc, with digests of the index and of
// every leaf resource.
func NewManifest(doc *PageData, archived time.Time) *Manifest {
	m := &Manifest{
		OriginalURL:   doc.URL,
		Title:         doc.Title,
		ArchiveTime:   archived.UTC().Truncate(time.Second),
		IndexFilename: "index.html",
		Resources:     make(map[string]string),
		Digests:       make(map[string]digest.Digest),
	}
	m.Digests[m.IndexFilename] = digest.FromString(doc.Content)
	for _, res := range doc.Resources.All() {
		m.Resources[res.Name] = res.URL
		m.Digests[res.Name] = digest.FromBytes(res.Content)
	}
	return m
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest decodes a manifest and validates its digests.
func ParseManifest(b []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	for name, d := range m.Digests {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("manifest digest of %s: %w", name, err)
		}
	}
	return &m, nil
}

// Verify checks content against the recorded digest of name. Names without
// a digest are accepted.
func (m *Manifest) Verify(name string, content []byte) error {
	want, ok := m.Digests[name]
	if !ok {
		return nil
	}
	if got := want.Algorithm().FromBytes(content); got != want {
		return fmt.Errorf("%w: %s: got %s, want %s", ErrDigestMismatch, name, got, want)
	}
	return nil
}
