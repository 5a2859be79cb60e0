// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bootstrap

import (
	"encoding/base64"
	"mime"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/lemon4ksan/sfz/pagedata"
)

var (
	textEntry   = regexp.MustCompile(`(^|/)(index\.html|index\.json|stylesheet_[0-9]+\.css|scripts/[0-9]+\.js)$`)
	scriptEntry = regexp.MustCompile(`(^|/)scripts/[0-9]+\.js$`)
)

// Resource is one extracted archive entry.
type Resource struct {
	Name     string
	MIMEType string

	// IsText marks documents, stylesheets and scripts. Their content is in
	// Text, other resources keep theirs in Data.
	IsText bool
	Text   string
	Data   []byte

	// URL is the resolved address other resources use to reference this one.
	URL string
}

// URLResolver turns resource content into a URL.
type URLResolver func(name, mimeType string, data []byte) (string, error)

// DataURI is the default URLResolver.
func DataURI(_, mimeType string, data []byte) (string, error) {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func mimeTypeOf(name string) string {
	t := mime.TypeByExtension(path.Ext(name))
	if t == "" {
		return "application/octet-stream"
	}
	t, _, _ = strings.Cut(t, ";")
	return strings.TrimSpace(t)
}

// dirPrefix returns the directory part of name including the slash.
func dirPrefix(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i+1]
	}
	return ""
}

// SortByNameLength orders resources by descending name length, so that no
// name is replaced inside a longer one that contains it.
func SortByNameLength(resources []*Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		return len(resources[i].Name) > len(resources[j].Name)
	})
}

// SubstituteText replaces, in text, every reference to a resource sharing
// the directory prefix with the URL of that resource. Resources must be
// sorted with SortByNameLength. Resources without a URL, the resource named
// self and manifests are skipped.
//
// Any occurrence of a name is replaced, including occurrences that are not
// references, e.g. "images/0.png" in prose.
func SubstituteText(text, self string, resources []*Resource) string {
	prefix := dirPrefix(self)
	for _, inner := range resources {
		if inner.Name == self || inner.URL == "" || !strings.HasPrefix(inner.Name, prefix) {
			continue
		}
		relative := strings.TrimPrefix(inner.Name, prefix)
		if path.Base(relative) == pagedata.ManifestFilename {
			continue
		}
		text = strings.ReplaceAll(text, relative, inner.URL)
	}
	return text
}

// Substitute resolves all resources in place, longest name first. Binary
// resources get their URL from resolve. Text resources first have
// references to other resources replaced and then get their URL. Scripts
// and manifests are kept verbatim. Resources under frames/ always become
// data URIs, since frame documents cannot share transient URLs with their
// parent.
func Substitute(resources []*Resource, resolve URLResolver) error {
	if resolve == nil {
		resolve = DataURI
	}
	SortByNameLength(resources)

	urlOf := func(r *Resource, data []byte) (string, error) {
		if strings.HasPrefix(r.Name, "frames/") {
			return DataURI(r.Name, r.MIMEType, data)
		}
		return resolve(r.Name, r.MIMEType, data)
	}

	for _, r := range resources {
		if r.IsText {
			continue
		}
		url, err := urlOf(r, r.Data)
		if err != nil {
			return err
		}
		r.URL = url
	}
	for _, r := range resources {
		if !r.IsText {
			continue
		}
		if !scriptEntry.MatchString(r.Name) && path.Base(r.Name) != pagedata.ManifestFilename {
			r.Text = SubstituteText(r.Text, r.Name, resources)
		}
		url, err := urlOf(r, []byte(r.Text))
		if err != nil {
			return err
		}
		r.URL = url
	}
	return nil
}
