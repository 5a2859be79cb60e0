// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pagedata defines the captured page tree consumed by the archiver
// and the index.json manifest written next to every index.html.
package pagedata

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidResource is returned for resources that cannot be archived.
var ErrInvalidResource = errors.New("pagedata: invalid resource")

// PageData is one captured document. Frames nest further documents.
type PageData struct {
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Resources Resources `json:"resources"`
}

// Resources groups the resources of a document by kind.
type Resources struct {
	Images           []Resource `json:"images,omitempty"`
	Fonts            []Resource `json:"fonts,omitempty"`
	Stylesheets      []Resource `json:"stylesheets,omitempty"`
	Scripts          []Resource `json:"scripts,omitempty"`
	BackgroundImages []Resource `json:"backgroundImages,omitempty"`
	Frames           []PageData `json:"frames,omitempty"`
}

// Resource is a single file referenced by a document. Name is the path of
// the resource relative to the document, as referenced by its content.
type Resource struct {
	Name        string `json:"name"`
	Extension   string `json:"extension,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"-"`
}

type resourceJSON struct {
	Name        string `json:"name"`
	Extension   string `json:"extension,omitempty"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
	Base64      bool   `json:"base64,omitempty"`
}

// MarshalJSON writes text content as is and binary content as base64.
func (r Resource) MarshalJSON() ([]byte, error) {
	out := resourceJSON{Name: r.Name, Extension: r.Extension, URL: r.URL, ContentType: r.ContentType}
	if r.IsText() {
		out.Content = string(r.Content)
	} else {
		out.Content = base64.StdEncoding.EncodeToString(r.Content)
		out.Base64 = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts plain string content or base64 content flagged with
// "base64": true.
func (r *Resource) UnmarshalJSON(b []byte) error {
	var in resourceJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = Resource{Name: in.Name, Extension: in.Extension, URL: in.URL, ContentType: in.ContentType}
	if !in.Base64 {
		r.Content = []byte(in.Content)
		return nil
	}
	content, err := base64.StdEncoding.DecodeString(in.Content)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResource, in.Name, err)
	}
	r.Content = content
	return nil
}

// Ext returns the extension without the leading dot, from Extension or Name.
func (r Resource) Ext() string {
	ext := r.Extension
	if ext == "" {
		ext = path.Ext(r.Name)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsText reports whether the content is stored as text. Stylesheets and
// scripts are text; everything else is binary.
func (r Resource) IsText() bool {
	switch r.Ext() {
	case "css", "js", "mjs", "html", "htm", "svg", "txt", "json":
		return true
	}
	return strings.HasPrefix(r.ContentType, "text/")
}

// Load decodes a page tree from JSON and validates it.
func Load(r io.Reader) (*PageData, error) {
	var pd PageData
	if err := json.NewDecoder(r).Decode(&pd); err != nil {
		return nil, fmt.Errorf("decode page data: %w", err)
	}
	if err := pd.Validate(); err != nil {
		return nil, err
	}
	return &pd, nil
}

// All returns the leaf resources of the document, frames excluded, in
// archive order.
func (r Resources) All() []Resource {
	var out []Resource
	for _, group := range [][]Resource{r.Images, r.BackgroundImages, r.Fonts, r.Stylesheets, r.Scripts} {
		out = append(out, group...)
	}
	return out
}

// Validate checks resource names for the whole tree. Names must be
// relative, clean and unique within one document.
func (pd *PageData) Validate() error {
	seen := map[string]bool{"index.html": true, "index.json": true}
	for _, res := range pd.Resources.All() {
		name := res.Name
		if name == "" || path.IsAbs(name) || path.Clean(name) != name || strings.HasPrefix(name, "../") || name == ".." {
			return fmt.Errorf("%w: bad name %q", ErrInvalidResource, name)
		}
		if strings.HasPrefix(name, "frames/") {
			return fmt.Errorf("%w: %q collides with frame documents", ErrInvalidResource, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidResource, name)
		}
		seen[name] = true
	}
	for i := range pd.Resources.Frames {
		if err := pd.Resources.Frames[i].Validate(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Walk calls fn for the document and every nested frame, depth first. The
// prefix is the directory of each document inside the archive: "" for the
// top document, "frames/0/" for its first frame, "frames/0/frames/1/" and
// so on.
func (pd *PageData) Walk(fn func(prefix string, doc *PageData) error) error {
	return pd.walk("", fn)
}

func (pd *PageData) walk(prefix string, fn func(string, *PageData) error) error {
	if err := fn(prefix, pd); err != nil {
		return err
	}
	for i := range pd.Resources.Frames {
		if err := pd.Resources.Frames[i].walk(fmt.Sprintf("%sframes/%d/", prefix, i), fn); err != nil {
			return err
		}
	}
	return nil
}
